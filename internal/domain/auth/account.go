package auth

import (
	"strings"

	"golang.org/x/net/idna"
)

// Credential is a stored password login for a principal.
type Credential struct {
	PrincipalID  string
	Email        string
	PasswordHash string
}

// Registration is a request to create a pending account in one directory.
type Registration struct {
	Kind         DirectoryKind
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CompanyRef   string
}

// NormalizeEmail produces the key under which email-keyed directories store an
// address: trimmed, lower-cased, with the domain in its ASCII (punycode) form.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return email
	}
	domain, err := idna.Lookup.ToASCII(email[at+1:])
	if err != nil {
		return email
	}
	return email[:at+1] + domain
}
