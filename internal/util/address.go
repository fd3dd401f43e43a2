package util

import (
	"net/mail"
	"strings"
)

// NormalizeAddress accepts "user@host" or "Name <user@host>" and returns the bare address.
func NormalizeAddress(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", false
	}
	return a.Address, true
}
