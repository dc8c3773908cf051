package config

import (
	"strings"
	"time"
)

const (
	defaultObservabilityName   = "danavision"
	defaultNotificationTimeout = 5 * time.Second
)

// ObservabilityConfig groups the knobs for metrics emission and failure
// alert fan-out. Logging is configured at process start and does not live
// here.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls the StatsD sink. Namespace becomes the
// metric prefix and Environment is attached as an env tag on every datagram
// when set.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Namespace     string `env:"OBSERVABILITY_METRICS_NAMESPACE"      envDefault:"danavision"`
	Environment   string `env:"OBSERVABILITY_METRICS_ENVIRONMENT"`
}

// Sanitize trims addresses and disables emission when there is nowhere to
// send datagrams.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Namespace = fallbackName(c.Namespace)
	c.Environment = strings.TrimSpace(c.Environment)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled reports whether the sink should be constructed at all.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// GlobalTags returns tags stamped on every metric, or nil when none apply.
func (c *ObservabilityMetricsConfig) GlobalTags() map[string]string {
	if c.Environment == "" {
		return nil
	}
	return map[string]string{"env": c.Environment}
}

// ObservabilityNotificationsConfig controls outbound failure notifications.
// Timeout and RetryLimit are shared across sinks; each sink stays off until
// both the top-level switch and its own switch are on and it has a target to
// deliver to.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig     `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty  PagerDutyNotificationConfig `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = defaultNotificationTimeout
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	// A sink without a delivery target cannot fire, and nothing fires while
	// the top-level switch is off.
	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"        envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"       envDefault:"danavision"`
	// JobURLPrefix prepends a link target to job ids in failure messages,
	// e.g. "https://app.example.com/jobs".
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.JobURLPrefix = strings.TrimSpace(c.JobURLPrefix)
	c.Username = fallbackName(c.Username)
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"danavision"`
	Component  string `env:"COMPONENT"   envDefault:"danavision"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Source = fallbackName(c.Source)
	c.Component = fallbackName(c.Component)
}

func fallbackName(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return defaultObservabilityName
	}
	return s
}
