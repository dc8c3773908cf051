package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestCleanSegment(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  danavision.worker  ": "danavision.worker",
		"..jobs..":              "jobs",
		".":                     "",
		"":                      "",
	}

	for input, want := range tests {
		if got := cleanSegment(input); got != want {
			t.Fatalf("cleanSegment(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" jobs/completed ":   "jobs_completed",
		"jobs..completed":    "jobs.completed",
		"price search":       "price_search",
		"tier/2/escalations": "tier_2_escalations",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestAppendTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " worker ",
	}
	local := map[string]string{
		"job_type": " price-search ",
		"":         "ignored",
		"env":      "stage",
	}

	var b strings.Builder
	appendTags(&b, global, local)

	want := "|#env:stage,job_type:price-search,service:worker"
	if got := b.String(); got != want {
		t.Fatalf("appendTags mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestAppendTagsEmpty(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	appendTags(&b, nil, nil)
	if b.Len() != 0 {
		t.Fatalf("appendTags(nil, nil) wrote %q, want nothing", b.String())
	}
}

func TestCopyTagsReturnsCopy(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env": "prod",
		"":    "ignored",
	}

	cp := copyTags(original)
	cp["env"] = "stage"

	if original["env"] != "prod" {
		t.Fatal("copyTags did not copy values")
	}
	if _, ok := cp[""]; ok {
		t.Fatal("copyTags kept empty key")
	}
}

func TestClientEmitsDatagrams(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     "danavision.worker",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("jobs.completed", 1, map[string]string{"job_type": "price-search"})

	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	buf := make([]byte, 512)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}

	want := "danavision.worker.jobs.completed:1|c|#env:test,job_type:price-search"
	if got := string(buf[:n]); got != want {
		t.Fatalf("datagram mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	if !client.Enabled() {
		t.Fatal("expected Enabled with an active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected disabled after Close")
	}

	// Close must be idempotent.
	if err := client.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
	nilClient.Count("jobs.completed", 1, nil)
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
