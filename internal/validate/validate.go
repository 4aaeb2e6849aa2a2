// Package validate holds the local syntax rules applied before any panel command is sent.
package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxHostNameLength = 255
	minPasswordLength = 8
)

var hostNameRE = regexp.MustCompile(`(?i)^([a-z0-9]|[a-z0-9][a-z0-9\-]{0,61}[a-z0-9])(\.([a-z0-9]|[a-z0-9][a-z0-9\-]{0,61}[a-z0-9]))+$`)

var (
	ErrHostName     = errors.New("invalid host name")
	ErrTestDomain   = errors.New("domain must not start with \"test\"")
	ErrPasswordSize = errors.New("password must be at least 8 characters")
	ErrRequired     = errors.New("required")
)

// HostName checks RFC 1123 label syntax with at least two labels.
func HostName(s string) error {
	if s == "" || len(s) > maxHostNameLength || !hostNameRE.MatchString(s) {
		return ErrHostName
	}
	return nil
}

// Domain is HostName plus the rule that reserved test domains are refused.
func Domain(s string) error {
	if err := HostName(s); err != nil {
		return err
	}
	if strings.HasPrefix(strings.ToLower(s), "test") {
		return ErrTestDomain
	}
	return nil
}

func Password(s string) error {
	if utf8.RuneCountInString(s) < minPasswordLength {
		return ErrPasswordSize
	}
	return nil
}

func Required(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrRequired
	}
	return nil
}
