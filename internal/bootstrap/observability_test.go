package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/culturemaker/cmk-api/config"
)

func TestBuildObservability_Disabled(t *testing.T) {
	obs := buildObservability(discardLogger(), config.ObservabilityConfig{}, "http://localhost:8080")
	defer obs.Close()

	assert.Nil(t, obs.Metrics)
	assert.Nil(t, obs.MetricsSink())
	assert.False(t, obs.Notifier.Enabled())
}

func TestBuildNotifier_Sinks(t *testing.T) {
	cfg := config.ObservabilityNotificationsConfig{Enabled: true}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = "https://hooks.slack.test/services/x"
	cfg.PagerDuty.Enabled = true
	cfg.PagerDuty.RoutingKey = "routing-key"

	d := buildNotifier(discardLogger(), cfg, "http://localhost:8080")
	defer d.Close()
	assert.True(t, d.Enabled())

	disabled := buildNotifier(discardLogger(), config.ObservabilityNotificationsConfig{Slack: cfg.Slack}, "")
	assert.False(t, disabled.Enabled())
}

func TestBuildObservability_Metrics(t *testing.T) {
	cfg := config.ObservabilityConfig{}
	cfg.Metrics.Enabled = true
	cfg.Metrics.StatsdAddress = "127.0.0.1:8125"
	cfg.Metrics.Prefix = "cmk"

	obs := buildObservability(discardLogger(), cfg, "")
	defer obs.Close()
	assert.NotNil(t, obs.Metrics)
	assert.NotNil(t, obs.MetricsSink())
}
