package mailer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Cobiozo/essential-gem-clone-sub008/internal/pkg/logger"
	"github.com/Cobiozo/essential-gem-clone-sub008/internal/smtpconn"
)

// DefaultPacingDelay is the fixed gap between consecutive recipients.
const DefaultPacingDelay = 100 * time.Millisecond

// Pacer controls the gap between consecutive recipients in a batch.
type Pacer interface {
	Pause(ctx context.Context)
}

// FixedDelayPacer waits a constant delay between recipients.
type FixedDelayPacer struct {
	Delay time.Duration
}

func (p FixedDelayPacer) Pause(ctx context.Context) {
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ProgressReporter publishes in-flight counters for a running batch so the
// UI can poll progress. Reporting failures never affect the batch.
type ProgressReporter interface {
	Report(ctx context.Context, batchID uuid.UUID, processed, sent, total int)
}

// Request is one dispatch order: what to send, to whom, with which extra
// variables.
type Request struct {
	Source    MessageSource
	Roles     []string
	Variables map[string]string
}

// Dispatcher drives one batch to completion: resolve config and audience,
// personalize and compose per recipient, deliver over a fresh session, and
// record every attempt. Strictly sequential: one socket open at a time.
type Dispatcher struct {
	configs   ConfigStore
	templates TemplateStore
	resolver  RecipientResolver
	log       DeliveryLog
	composer  *Composer
	transport TransportFactory
	pacer     Pacer
	progress  ProgressReporter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTransportFactory overrides how per-recipient transports are built.
func WithTransportFactory(f TransportFactory) Option {
	return func(d *Dispatcher) { d.transport = f }
}

// WithPacer overrides the inter-recipient pacing strategy.
func WithPacer(p Pacer) Option {
	return func(d *Dispatcher) { d.pacer = p }
}

// WithProgressReporter publishes batch progress snapshots.
func WithProgressReporter(r ProgressReporter) Option {
	return func(d *Dispatcher) { d.progress = r }
}

// WithComposer overrides the message composer, mainly for tests.
func WithComposer(c *Composer) Option {
	return func(d *Dispatcher) { d.composer = c }
}

// NewDispatcher wires a dispatcher with the production SMTP transport and
// the default fixed pacing.
func NewDispatcher(configs ConfigStore, templates TemplateStore, resolver RecipientResolver, log DeliveryLog, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		configs:   configs,
		templates: templates,
		resolver:  resolver,
		log:       log,
		composer:  NewComposer(),
		transport: SMTPTransportFactory("", 0, 0),
		pacer:     FixedDelayPacer{Delay: DefaultPacingDelay},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SMTPTransportFactory builds single-use smtpconn sessions. localName is
// the EHLO identity; zero timeouts fall back to the session defaults.
func SMTPTransportFactory(localName string, connectTimeout, ioTimeout time.Duration) TransportFactory {
	return func(cfg ServerConfig) Transport {
		return smtpconn.New(smtpconn.Config{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Encryption:     cfg.Encryption,
			Username:       cfg.Username,
			Password:       cfg.Password,
			LocalName:      localName,
			ConnectTimeout: connectTimeout,
			IOTimeout:      ioTimeout,
		})
	}
}

// Dispatch runs one batch. A ConfigurationError is returned before any
// socket is opened or any log record written; every other error is caught
// per recipient and recorded as a failed attempt without stopping the
// loop. One failed attempt is final for that recipient in that batch.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Batch, error) {
	cfg, err := d.configs.ActiveServer(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, &ConfigurationError{Reason: "no active SMTP server configured"}
	}

	msg, err := d.resolveSource(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	recipients, err := d.resolver.Resolve(ctx, req.Roles)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, &ConfigurationError{Reason: "audience resolved to no recipients"}
	}

	batch := &Batch{
		ID:         uuid.New(),
		TotalCount: len(recipients),
	}
	logger.Info("dispatch started",
		"batch_id", batch.ID.String(),
		"recipients", len(recipients),
		"relay", cfg.Host)

	for i, rcpt := range recipients {
		attempt := d.sendOne(ctx, cfg, msg, rcpt, req.Variables)
		batch.Attempts = append(batch.Attempts, attempt)
		if attempt.Status == StatusSent {
			batch.SentCount++
		}

		d.recordAttempt(ctx, batch.ID, req.Roles, cfg.FromName, attempt)
		if d.progress != nil {
			d.progress.Report(ctx, batch.ID, i+1, batch.SentCount, batch.TotalCount)
		}

		if i < len(recipients)-1 {
			d.pacer.Pause(ctx)
		}
	}

	logger.Info("dispatch finished",
		"batch_id", batch.ID.String(),
		"sent", batch.SentCount,
		"total", batch.TotalCount)
	return batch, nil
}

// sendOne personalizes, composes, and delivers to a single recipient over
// a fresh transport. Session errors terminate the attempt, not the batch.
func (d *Dispatcher) sendOne(ctx context.Context, cfg *ServerConfig, msg Message, rcpt Recipient, vars map[string]string) Attempt {
	subject := Substitute(msg.Subject, rcpt, vars)
	html := Substitute(msg.HTML, rcpt, vars)
	raw := d.composer.Compose(cfg.FromName, cfg.FromEmail, rcpt.Email, subject, html)

	attempt := Attempt{
		Email:     rcpt.Email,
		UserID:    rcpt.UserID,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	}

	session := d.transport(*cfg)
	if err := session.Send(ctx, cfg.FromEmail, rcpt.Email, raw); err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		logger.Warn("delivery failed", "email", rcpt.Email, "error", err.Error())
		return attempt
	}

	attempt.Status = StatusSent
	logger.Debug("delivered", "email", rcpt.Email)
	return attempt
}

func (d *Dispatcher) recordAttempt(ctx context.Context, batchID uuid.UUID, roles []string, fromName string, attempt Attempt) {
	rec := &DeliveryRecord{
		BatchID: batchID,
		Email:   attempt.Email,
		UserID:  attempt.UserID,
		Subject: attempt.Subject,
		Status:  attempt.Status,
		Error:   attempt.Error,
		Metadata: map[string]interface{}{
			"roles":     roles,
			"from_name": fromName,
		},
	}
	if attempt.Status == StatusSent {
		t := attempt.Timestamp
		rec.SentAt = &t
	}
	if err := d.log.RecordAttempt(ctx, rec); err != nil {
		// The attempt itself stands; only its persistence failed.
		logger.Warn("delivery log write failed", "email", attempt.Email, "error", err.Error())
	}
}

// resolveSource materializes the tagged message source. Template footers
// are appended to the body before composition.
func (d *Dispatcher) resolveSource(ctx context.Context, src MessageSource) (Message, error) {
	switch s := src.(type) {
	case TemplateRef:
		tpl, err := d.templates.TemplateByID(ctx, s.ID)
		if err != nil {
			return Message{}, err
		}
		if tpl == nil {
			return Message{}, &ConfigurationError{Reason: "template not found"}
		}
		return Message{Subject: tpl.Subject, HTML: tpl.BodyHTML + tpl.FooterHTML}, nil
	case Custom:
		if s.Subject == "" && s.HTML == "" {
			return Message{}, &ConfigurationError{Reason: "empty message content"}
		}
		return Message{Subject: s.Subject, HTML: s.HTML}, nil
	default:
		return Message{}, &ConfigurationError{Reason: "no message source given"}
	}
}
