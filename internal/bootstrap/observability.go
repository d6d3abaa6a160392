package bootstrap

import (
	"log/slog"
	"strings"

	"github.com/culturemaker/cmk-api/config"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/observability/notify"
	"github.com/culturemaker/cmk-api/internal/observability/notify/pagerduty"
	"github.com/culturemaker/cmk-api/internal/observability/notify/slack"
	"github.com/culturemaker/cmk-api/internal/observability/statsd"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Metrics is nil when metrics are disabled.
	Metrics  *statsd.Client
	Notifier *notify.Dispatcher
}

// MetricsSink returns the metrics sink, or nil when metrics are disabled.
//
//nolint:ireturn // a nil interface keeps metric emission optional for callers.
func (o ObservabilityContainer) MetricsSink() statsd.Sink {
	if o.Metrics == nil {
		return nil
	}
	return o.Metrics
}

// Close flushes the notifier and releases the statsd socket.
func (o ObservabilityContainer) Close() {
	o.Notifier.Close()
	if o.Metrics != nil {
		_ = o.Metrics.Close()
	}
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, baseURL string) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metrics *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metrics = client
		}
	}

	return ObservabilityContainer{
		Metrics:  metrics,
		Notifier: buildNotifier(obsLogger, cfg.Notifications, baseURL),
	}
}

func buildNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig, baseURL string) *notify.Dispatcher {
	if !cfg.Enabled {
		return notify.NewDispatcher(notify.DispatcherOptions{Logger: logger, Timeout: cfg.Timeout})
	}

	sinks := make([]notify.Sink, 0, 2)

	if cfg.Slack.Enabled {
		reviewURL := cfg.Slack.ReviewURL
		if reviewURL == "" && baseURL != "" {
			reviewURL = strings.TrimRight(baseURL, "/") + domainauth.PathAdminDashboard
		}
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			ReviewURL:  reviewURL,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	return notify.NewDispatcher(notify.DispatcherOptions{
		Sinks:   sinks,
		Logger:  logger,
		Timeout: cfg.Timeout,
	})
}
