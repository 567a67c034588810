// Package mailer personalizes, composes, and dispatches role-targeted bulk
// email through a configured SMTP relay, one recipient at a time.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Cobiozo/essential-gem-clone-sub008/internal/smtpconn"
)

// Attempt status constants.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ServerConfig is the relay snapshot taken once per batch. It is never
// mutated while a batch is running.
type ServerConfig struct {
	ID         uuid.UUID
	Host       string
	Port       int
	Encryption smtpconn.Encryption
	Username   string
	Password   string
	FromEmail  string
	FromName   string
}

// Template is a stored message with an optional footer fragment that is
// appended to the body before composition.
type Template struct {
	ID         uuid.UUID
	Subject    string
	BodyHTML   string
	FooterHTML string
}

// Recipient is one target address with its personalization values.
// Emails are unique within a batch; batches are never deduplicated
// against each other.
type Recipient struct {
	Email     string
	FirstName string
	LastName  string
	UserID    string
	Variables map[string]string
}

// MessageSource names the content of a dispatch request: either a stored
// template by id or caller-supplied subject and HTML.
type MessageSource interface {
	messageSource()
}

// TemplateRef selects a stored template.
type TemplateRef struct {
	ID uuid.UUID
}

func (TemplateRef) messageSource() {}

// Custom carries caller-supplied content directly.
type Custom struct {
	Subject string
	HTML    string
}

func (Custom) messageSource() {}

// Message is resolved content ready for personalization.
type Message struct {
	Subject string
	HTML    string
}

// Attempt records one try to deliver the message to one recipient.
type Attempt struct {
	Email     string
	UserID    string
	Subject   string
	Status    string
	Error     string
	Timestamp time.Time
}

// SendError pairs a recipient with the error that failed its attempt.
type SendError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Outcome classifies a finished batch.
type Outcome int

const (
	AllSent Outcome = iota
	PartialFailure
	TotalFailure
)

// Batch is the result of one dispatch run. Partial success is a valid
// terminal state; the batch is populated incrementally and finalized when
// the recipient list is exhausted.
type Batch struct {
	ID         uuid.UUID
	Attempts   []Attempt
	SentCount  int
	TotalCount int
}

// Outcome applies the zero-successes rule: a batch with recipients but no
// successful sends is a total failure, anything else with failures is
// partial.
func (b *Batch) Outcome() Outcome {
	switch {
	case b.SentCount == 0 && b.TotalCount > 0:
		return TotalFailure
	case b.SentCount < b.TotalCount:
		return PartialFailure
	default:
		return AllSent
	}
}

// Errors returns one entry per failed attempt, in batch order.
func (b *Batch) Errors() []SendError {
	var errs []SendError
	for _, a := range b.Attempts {
		if a.Status == StatusFailed {
			errs = append(errs, SendError{Email: a.Email, Error: a.Error})
		}
	}
	return errs
}

// ConfigurationError aborts a batch before any socket is opened: missing
// or inactive relay config, unresolvable template, or an empty audience.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dispatch not started: %s", e.Reason)
}

// ConfigStore yields the active relay configuration. Credential CRUD is
// owned elsewhere; the dispatcher only reads a snapshot.
type ConfigStore interface {
	ActiveServer(ctx context.Context) (*ServerConfig, error)
}

// TemplateStore resolves stored templates by id. A nil template with a nil
// error means not found.
type TemplateStore interface {
	TemplateByID(ctx context.Context, id uuid.UUID) (*Template, error)
}

// RecipientResolver turns audience role tags into concrete recipients.
// Role and activity filtering is the directory service's concern.
type RecipientResolver interface {
	Resolve(ctx context.Context, roles []string) ([]Recipient, error)
}

// DeliveryRecord is what the external delivery log persists per attempt.
type DeliveryRecord struct {
	BatchID  uuid.UUID
	Email    string
	UserID   string
	Subject  string
	Status   string
	Error    string
	SentAt   *time.Time
	Metadata map[string]interface{}
}

// DeliveryLog persists one record per attempt.
type DeliveryLog interface {
	RecordAttempt(ctx context.Context, rec *DeliveryRecord) error
}

// Transport delivers one composed message. The production implementation
// is a single-use smtpconn.Session.
type Transport interface {
	Send(ctx context.Context, from, to string, msg []byte) error
}

// TransportFactory builds a fresh Transport per recipient.
type TransportFactory func(cfg ServerConfig) Transport
