package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"golang.org/x/time/rate"
)

// Alert is a security notification for operators
type Alert struct {
	Subject string
	Body    string
}

// Alerter delivers operator alerts. Notify never blocks the caller.
type Alerter interface {
	Notify(alert Alert)
}

// NoopAlerter discards alerts
type NoopAlerter struct{}

func (NoopAlerter) Notify(Alert) {}

// SESAPI is the subset of the SES client used for alerts
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// NewSESClient builds an SES client from the default AWS credential chain
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

// AlertConfig controls alert delivery
type AlertConfig struct {
	FromAddress string
	Recipients  []string
	PerMinute   float64
	Burst       int
	QueueSize   int
	SendTimeout time.Duration
}

// SESAlertService e-mails alerts through SES from a single background
// worker. Alerts beyond the configured rate, or arriving while the queue is
// full, are dropped and logged.
type SESAlertService struct {
	client  SESAPI
	config  AlertConfig
	limiter *rate.Limiter
	queue   chan Alert
	logger  *slog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSESAlertService creates the service; call Start to begin delivery
func NewSESAlertService(client SESAPI, config AlertConfig, logger *slog.Logger) *SESAlertService {
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	return &SESAlertService{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.PerMinute/60), config.Burst),
		queue:   make(chan Alert, config.QueueSize),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Notify queues alert for delivery
func (s *SESAlertService) Notify(alert Alert) {
	if !s.limiter.Allow() {
		s.logger.Debug("alert dropped by rate limit", slog.String("subject", alert.Subject))
		return
	}
	select {
	case s.queue <- alert:
	default:
		s.logger.Warn("alert queue full, dropping alert", slog.String("subject", alert.Subject))
	}
}

// Start launches the delivery worker
func (s *SESAlertService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case alert := <-s.queue:
				s.send(alert)
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the worker after any in-flight send. Queued alerts are discarded.
func (s *SESAlertService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *SESAlertService) send(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
	defer cancel()

	input := &ses.SendEmailInput{
		Source: aws.String(s.config.FromAddress),
		Destination: &types.Destination{
			ToAddresses: s.config.Recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("[guardrail] " + alert.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(alert.Body)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security alert via SES",
			slog.String("subject", alert.Subject),
			slog.Any("error", err))
		return
	}

	s.logger.Info("security alert sent",
		slog.String("subject", alert.Subject),
		slog.String("recipients", strings.Join(s.config.Recipients, ",")),
		slog.String("message_id", aws.ToString(result.MessageId)))
}
