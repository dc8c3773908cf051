package bootstrap

import (
	"testing"

	"github.com/danavision/discovery-go/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "http and worker",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeWorker},
			want:  2,
		},
		{
			name:  "scheduler and reaper",
			modes: []config.ServiceMode{config.ServiceModeScheduler, config.ServiceModeReaper},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeScheduler,
				config.ServiceModeReaper,
			},
			want: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 1,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeScheduler,
				config.ServiceModeReaper,
			},
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelBufferSize(enabled); got != tt.want {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestBuildAIGateway(t *testing.T) {
	t.Run("no providers configured", func(t *testing.T) {
		var cfg config.AIConfig
		cfg.Sanitize()

		if got := buildAIGateway(cfg, testLogger()); got != nil {
			t.Fatalf("buildAIGateway() = %v, want nil", got)
		}
	})

	t.Run("configured providers primary first", func(t *testing.T) {
		cfg := config.AIConfig{
			Primary:   config.AIProviderConfig{Name: "openai", BaseURL: "https://api.openai.example/v1", Model: "gpt-4o-mini"},
			Secondary: config.AIProviderConfig{Name: "backup", BaseURL: "https://backup.example/v1", Model: "gpt-4o-mini"},
		}
		cfg.Sanitize()

		gateway := buildAIGateway(cfg, testLogger())
		if gateway == nil {
			t.Fatal("buildAIGateway() = nil, want gateway")
		}
		providers := gateway.Providers()
		if len(providers) != 2 {
			t.Fatalf("len(Providers()) = %d, want 2", len(providers))
		}
		if got := providers[0].Name(); got != "openai" {
			t.Fatalf("primary provider = %q, want %q", got, "openai")
		}
	})
}

func TestNewCrawlClient(t *testing.T) {
	cfg := config.CrawlConfig{BaseURL: "http://127.0.0.1:5000"}
	cfg.Sanitize()

	if got := newCrawlClient(cfg, testLogger()); got == nil {
		t.Fatal("newCrawlClient() = nil, want client")
	}

	if got := newCrawlClient(config.CrawlConfig{}, testLogger()); got != nil {
		t.Fatalf("newCrawlClient(empty) = %v, want nil", got)
	}
}
