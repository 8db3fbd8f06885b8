package classification

import (
	"regexp"
	"strings"
)

var senderAddressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)

// SenderDomain returns the lowercased domain of the first address in from, or "".
func SenderDomain(from string) string {
	m := senderAddressPattern.FindStringSubmatch(from)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}

// DomainSet matches a domain and all of its subdomains.
type DomainSet struct {
	domains []string
}

// NewDomainSet builds a set from the listed domains, ignoring blanks.
func NewDomainSet(domains []string) DomainSet {
	set := DomainSet{domains: make([]string, 0, len(domains))}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set.domains = append(set.domains, d)
		}
	}
	return set
}

// Contains reports whether domain equals a listed domain or is a subdomain of one.
func (s DomainSet) Contains(domain string) bool {
	if domain == "" {
		return false
	}
	domain = strings.ToLower(domain)
	for _, d := range s.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// ContainsSender reports whether the sender's domain is in the set.
func (s DomainSet) ContainsSender(from string) bool {
	return s.Contains(SenderDomain(from))
}
