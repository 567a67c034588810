package mailer

import (
	"regexp"
	"strings"
)

// Built-in token aliases. The platform predates any naming convention for
// template tokens, so the common Polish and English spellings all resolve
// to the same recipient fields.
var firstNameAliases = []string{"first_name", "firstname", "imie", "imię"}
var lastNameAliases = []string{"last_name", "lastname", "nazwisko"}
var emailAliases = []string{"email", "e-mail", "adres_email"}

// Substitute replaces {{key}} tokens in text with recipient and
// caller-supplied values. Matching is case-insensitive and global.
// Resolution order: built-in recipient fields, then per-recipient values,
// then caller-supplied variables; later sources overwrite earlier ones on
// key collision. Tokens with no matching key are left verbatim — that is
// policy, not an error.
func Substitute(text string, r Recipient, custom map[string]string) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}

	values := make(map[string]string)
	for _, k := range firstNameAliases {
		values[k] = r.FirstName
	}
	for _, k := range lastNameAliases {
		values[k] = r.LastName
	}
	for _, k := range emailAliases {
		values[k] = r.Email
	}
	for k, v := range r.Variables {
		values[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for k, v := range custom {
		values[strings.ToLower(strings.TrimSpace(k))] = v
	}

	for key, val := range values {
		if key == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta("{{"+key+"}}"))
		text = re.ReplaceAllLiteralString(text, val)
	}
	return text
}
