package blocklist

import (
	"fmt"
	"regexp"
	"strings"
)

const maxDomainLength = 253

var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// ValidationError describes why a user-supplied domain was rejected. It is
// returned before any file mutation takes place.
type ValidationError struct {
	Domain string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid domain %q: %s", e.Domain, e.Reason)
}

// Sanitize strips scheme, www. prefix, path, query, fragment and port from a
// raw user-supplied domain string.
func Sanitize(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))

	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")

	for _, sep := range []string{"/", "?", "#", ":"} {
		if idx := strings.Index(domain, sep); idx >= 0 {
			domain = domain[:idx]
		}
	}

	return strings.TrimSpace(domain)
}

// Validate checks a sanitized domain for basic syntax and unsafe targets.
// Loopback addresses and localhost are rejected so a policy entry can never
// clobber local name resolution.
func Validate(domain string) error {
	domain = Normalize(domain)

	if domain == "" {
		return &ValidationError{Domain: domain, Reason: "domain cannot be empty"}
	}
	if len(domain) > maxDomainLength {
		return &ValidationError{Domain: domain, Reason: fmt.Sprintf("domain too long (max %d characters)", maxDomainLength)}
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return &ValidationError{Domain: domain, Reason: "domain cannot start or end with a dot"}
	}
	if strings.Contains(domain, "..") {
		return &ValidationError{Domain: domain, Reason: "domain cannot contain consecutive dots"}
	}
	if strings.HasPrefix(domain, "127.") || strings.HasPrefix(domain, "localhost") {
		return &ValidationError{Domain: domain, Reason: "cannot block localhost or loopback addresses"}
	}
	if !domainPattern.MatchString(domain) {
		return &ValidationError{Domain: domain, Reason: "invalid domain format"}
	}

	return nil
}

// Variations expands a domain into the set of forms written to the hosts
// file: the exact domain, its www. form and, for domains with more than two
// labels, the registrable root domain plus that root's www. form. The hosts
// mechanism blocks whole names only, so adding the root closes the common
// bypass of navigating to the bare domain.
func Variations(domain string) Set {
	domain = Normalize(domain)
	variations := NewSet(domain)
	if domain == "" {
		return variations
	}

	if !strings.HasPrefix(domain, "www.") {
		variations.Add("www." + domain)
	}

	labels := strings.Split(domain, ".")
	if len(labels) > 2 {
		root := strings.Join(labels[len(labels)-2:], ".")
		variations.Add(root)
		variations.Add("www." + root)
	}

	return variations
}
