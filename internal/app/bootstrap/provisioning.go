package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/telehealth-provisioner/internal/config"
	"github.com/wolfman30/telehealth-provisioner/internal/events"
	"github.com/wolfman30/telehealth-provisioner/internal/notify"
	"github.com/wolfman30/telehealth-provisioner/internal/observability/metrics"
	"github.com/wolfman30/telehealth-provisioner/internal/provisioning"
	"github.com/wolfman30/telehealth-provisioner/internal/zoomclient"
	"github.com/wolfman30/telehealth-provisioner/pkg/logging"
)

// BuildMeetingProvider creates the Zoom client. Missing credentials are not fatal here;
// every provisioning attempt reports them until the app is configured.
func BuildMeetingProvider(cfg *appconfig.Config, logger *logging.Logger) *zoomclient.Client {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.ZoomConfigured() {
		logger.Warn("zoom credentials not configured; provisioning will fail until ZOOM_ACCOUNT_ID, ZOOM_CLIENT_ID and ZOOM_CLIENT_SECRET are set")
	}
	return zoomclient.New(zoomclient.Config{
		BaseURL:           cfg.ZoomBaseURL,
		TokenURL:          cfg.ZoomTokenURL,
		AccountID:         cfg.ZoomAccountID,
		ClientID:          cfg.ZoomClientID,
		ClientSecret:      cfg.ZoomClientSecret,
		UserID:            cfg.ZoomUserID,
		Timeout:           cfg.ZoomTimeout,
		RequestsPerSecond: cfg.ZoomRequestsPerSecond,
		Logger:            logger,
	})
}

// BuildEmailSender picks the transport named by EMAIL_PROVIDER, falling back to the stub
// sender when the chosen transport is not configured.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			logger.Info("email provider configured", "provider", "sendgrid")
			return sender
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub email sender")
	case "ses":
		if cfg.SESFromEmail != "" {
			logger.Info("email provider configured", "provider", "ses")
			return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SESFromName,
			}, logger)
		}
		logger.Warn("ses selected but SES_FROM_EMAIL is empty; using stub email sender")
	case "", "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using stub email sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildPublisher returns an SQS publisher when a queue is configured, otherwise a log-only publisher.
func BuildPublisher(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) events.Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ProvisioningEventsQueueURL == "" {
		return events.NewLogPublisher(logger)
	}
	logger.Info("provisioning events enabled", "queue_url", cfg.ProvisioningEventsQueueURL)
	return events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.ProvisioningEventsQueueURL, logger)
}

// SchedulerDeps are the collaborators built by the caller.
type SchedulerDeps struct {
	Store     provisioning.Store
	Provider  provisioning.Provider
	Email     notify.EmailSender
	Publisher events.Publisher
	Locker    provisioning.Locker
	Metrics   *metrics.ProvisioningMetrics
}

// BuildScheduler maps config onto the provisioning loop.
func BuildScheduler(cfg *appconfig.Config, deps SchedulerDeps, logger *logging.Logger) (*provisioning.Scheduler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	dispatcher := notify.NewDispatcher(deps.Email, deps.Metrics, logger)

	opts := []provisioning.Option{
		provisioning.WithLogger(logger),
		provisioning.WithMetrics(deps.Metrics),
	}
	if deps.Publisher != nil {
		opts = append(opts, provisioning.WithPublisher(deps.Publisher))
	}
	if deps.Locker != nil {
		opts = append(opts, provisioning.WithLocker(deps.Locker))
	}

	return provisioning.NewScheduler(deps.Store, deps.Provider, dispatcher, provisioning.Config{
		Lead:         cfg.LeadTime(),
		Interval:     cfg.TickInterval(),
		Duration:     cfg.MeetingDuration(),
		Concurrency:  cfg.MeetingProvisionConcurrency,
		ReuseOrphans: cfg.MeetingReuseOrphans,
		LockTTL:      cfg.MeetingLockTTL,
	}, opts...)
}
