package utils

import (
	"errors"
	"strings"
)

var (
	ErrOutsideOrganization = errors.New("address is outside the organization domain")
	ErrPublicDomain        = errors.New("public mail domains are not allowed")
)

// DefaultBlockedDomains are the public providers rejected unless configured otherwise
var DefaultBlockedDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}

// AddressPolicy is the advisory, client-side check on addresses typed into the
// auth screen and the compose form. It is a plain suffix/substring test.
type AddressPolicy struct {
	Domain         string
	BlockedDomains []string
}

// Suffix returns "@domain", or "" when no organization domain is set
func (p AddressPolicy) Suffix() string {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p.Domain)), "@")
	if d == "" {
		return ""
	}
	return "@" + d
}

// Check returns nil when addr passes the policy
func (p AddressPolicy) Check(addr string) error {
	addr = NormalizeAddress(addr)

	for _, blocked := range p.BlockedDomains {
		blocked = strings.ToLower(strings.TrimSpace(blocked))
		if blocked != "" && strings.Contains(addr, blocked) {
			return ErrPublicDomain
		}
	}

	if suffix := p.Suffix(); suffix != "" && !strings.HasSuffix(addr, suffix) {
		return ErrOutsideOrganization
	}
	return nil
}
