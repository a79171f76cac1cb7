package prepare

import "strings"

// PickEmail selects one address from a possibly comma-separated list. When
// preferDomain is set, the first address on that domain wins; otherwise the
// first address is used. The result is lowercased.
func PickEmail(raw, preferDomain string) string {
	candidates := splitEmails(raw)
	if len(candidates) == 0 {
		return ""
	}
	if preferDomain != "" {
		for _, email := range candidates {
			if strings.EqualFold(emailDomain(email), preferDomain) {
				return strings.ToLower(email)
			}
		}
	}
	return strings.ToLower(candidates[0])
}

// ReplaceEmailDomain rewrites the domain part of email to newDomain (given
// with or without the leading "@"). Malformed addresses pass through
// unchanged.
func ReplaceEmailDomain(email, newDomain string) string {
	if email == "" || newDomain == "" {
		return email
	}
	local, _, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	return local + "@" + strings.TrimPrefix(newDomain, "@")
}

func splitEmails(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func emailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return domain
}
