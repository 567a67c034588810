package mailer

import "testing"

func TestSubstitute(t *testing.T) {
	rcpt := Recipient{
		Email:     "anna.kowalska@example.com",
		FirstName: "Anna",
		LastName:  "Kowalska",
	}

	tests := []struct {
		name   string
		text   string
		custom map[string]string
		want   string
	}{
		{
			name: "polish first name token",
			text: "Cześć {{imię}}!",
			want: "Cześć Anna!",
		},
		{
			name: "ascii alias",
			text: "Hello {{first_name}} {{last_name}}",
			want: "Hello Anna Kowalska",
		},
		{
			name: "case insensitive",
			text: "Hello {{First_Name}} and {{EMAIL}}",
			want: "Hello Anna and anna.kowalska@example.com",
		},
		{
			name: "all occurrences replaced",
			text: "{{imie}} {{imie}} {{imie}}",
			want: "Anna Anna Anna",
		},
		{
			name: "unresolved token left verbatim",
			text: "Your code is {{kod_rabatowy}}",
			want: "Your code is {{kod_rabatowy}}",
		},
		{
			name:   "custom variable",
			text:   "Code: {{kod_rabatowy}}",
			custom: map[string]string{"kod_rabatowy": "GEM-15"},
			want:   "Code: GEM-15",
		},
		{
			name:   "custom overwrites builtin",
			text:   "Hello {{first_name}}",
			custom: map[string]string{"first_name": "Friend"},
			want:   "Hello Friend",
		},
		{
			name: "no tokens",
			text: "plain text",
			want: "plain text",
		},
		{
			name: "empty text",
			text: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.text, rcpt, tt.custom); got != tt.want {
				t.Errorf("Substitute(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSubstituteRecipientVariables(t *testing.T) {
	rcpt := Recipient{
		Email:     "jan@example.com",
		FirstName: "Jan",
		Variables: map[string]string{"Miasto": "Warszawa"},
	}

	got := Substitute("{{imię}} z {{miasto}}", rcpt, nil)
	if got != "Jan z Warszawa" {
		t.Errorf("got %q", got)
	}

	// Caller variables win over per-recipient values.
	got = Substitute("{{miasto}}", rcpt, map[string]string{"miasto": "Kraków"})
	if got != "Kraków" {
		t.Errorf("got %q, want caller override", got)
	}
}
