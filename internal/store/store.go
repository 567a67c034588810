// Package store implements the dispatcher's collaborator interfaces on
// PostgreSQL: relay configuration, templates, the member directory, and
// the delivery log.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Cobiozo/essential-gem-clone-sub008/internal/mailer"
	"github.com/Cobiozo/essential-gem-clone-sub008/internal/smtpconn"
)

// JSON maps onto JSONB columns.
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, j)
}

// Store provides database operations for the mailing core.
type Store struct {
	db *sql.DB
}

// New creates a store on an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ActiveServer returns the newest active relay configuration, or nil when
// none is active. The dispatcher treats nil as a configuration error.
func (s *Store) ActiveServer(ctx context.Context) (*mailer.ServerConfig, error) {
	query := `SELECT id, host, port, encryption, username, password, from_email, from_name
		FROM smtp_servers WHERE is_active = true ORDER BY updated_at DESC LIMIT 1`

	var cfg mailer.ServerConfig
	var encryption string
	err := s.db.QueryRowContext(ctx, query).Scan(&cfg.ID, &cfg.Host, &cfg.Port,
		&encryption, &cfg.Username, &cfg.Password, &cfg.FromEmail, &cfg.FromName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Encryption = smtpconn.ParseEncryption(encryption)
	return &cfg, nil
}

// TemplateByID returns a stored template, or nil when it does not exist.
func (s *Store) TemplateByID(ctx context.Context, id uuid.UUID) (*mailer.Template, error) {
	query := `SELECT id, subject, body_html, COALESCE(footer_html, '')
		FROM mail_templates WHERE id = $1`

	var tpl mailer.Template
	err := s.db.QueryRowContext(ctx, query, id).Scan(&tpl.ID, &tpl.Subject,
		&tpl.BodyHTML, &tpl.FooterHTML)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Resolve returns the active members holding any of the given role tags.
func (s *Store) Resolve(ctx context.Context, roles []string) ([]mailer.Recipient, error) {
	query := `SELECT u.id, u.email, COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), u.custom_fields
		FROM users u
		WHERE u.status = 'active' AND u.roles && $1
		ORDER BY u.email`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(roles))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []mailer.Recipient
	for rows.Next() {
		var r mailer.Recipient
		var fields JSON
		if err := rows.Scan(&r.UserID, &r.Email, &r.FirstName, &r.LastName, &fields); err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			r.Variables = make(map[string]string, len(fields))
			for k, v := range fields {
				if s, ok := v.(string); ok {
					r.Variables[k] = s
				}
			}
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// RecordAttempt persists one delivery attempt.
func (s *Store) RecordAttempt(ctx context.Context, rec *mailer.DeliveryRecord) error {
	query := `INSERT INTO mail_delivery_log (id, batch_id, recipient_email, user_id,
		subject, status, error_text, sent_at, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var sentAt sql.NullTime
	if rec.SentAt != nil {
		sentAt = sql.NullTime{Time: *rec.SentAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query, uuid.New(), rec.BatchID, rec.Email,
		nullString(rec.UserID), rec.Subject, rec.Status, nullString(rec.Error),
		sentAt, JSON(rec.Metadata), time.Now().UTC())
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
