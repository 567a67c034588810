//go:build ignore
// +build ignore

package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const demoTemplateHTML = `<p>Witaj {{imię}},</p>
<p>Zapraszamy na spotkanie partnerskie w najbliższy piątek o 18:00.</p>
<p>Szczegóły znajdziesz w swoim panelu.</p>`

const demoFooterHTML = `<hr><p style="font-size:12px;color:#888">Wiadomość wysłana automatycznie. Prosimy nie odpowiadać.</p>`

// Seeds a local database with an active relay, one template, and a few
// role-tagged members. Intended for development only.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	serverID := uuid.New()
	_, err = db.Exec(`INSERT INTO smtp_servers (id, host, port, encryption, username, password, from_email, from_name, is_active)
		VALUES ($1, 'localhost', 1025, 'none', '', '', 'biuro@example.com', 'Biuro', true)`, serverID)
	if err != nil {
		log.Fatalf("seed smtp server: %v", err)
	}

	tplID := uuid.New()
	_, err = db.Exec(`INSERT INTO mail_templates (id, subject, body_html, footer_html)
		VALUES ($1, 'Spotkanie partnerskie', $2, $3)`, tplID, demoTemplateHTML, demoFooterHTML)
	if err != nil {
		log.Fatalf("seed template: %v", err)
	}

	members := []struct {
		id, email, first, last string
		roles                  []string
	}{
		{"u-1001", "anna.kowalska@example.com", "Anna", "Kowalska", []string{"partner"}},
		{"u-1002", "jan.nowak@example.com", "Jan", "Nowak", []string{"partner", "leader"}},
		{"u-1003", "maria.wisniewska@example.com", "Maria", "Wiśniewska", []string{"leader"}},
	}
	for _, m := range members {
		_, err = db.Exec(`INSERT INTO users (id, email, first_name, last_name, status, roles)
			VALUES ($1, $2, $3, $4, 'active', $5)
			ON CONFLICT (id) DO NOTHING`, m.id, m.email, m.first, m.last, pq.Array(m.roles))
		if err != nil {
			log.Fatalf("seed user %s: %v", m.id, err)
		}
	}

	log.Printf("Seeded server=%s template=%s members=%d", serverID, tplID, len(members))
}
