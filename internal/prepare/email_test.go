package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		raw          string
		preferDomain string
		want         string
	}{
		{"single address", "jane@acme.com", "", "jane@acme.com"},
		{"lowercased", "Jane@Acme.COM", "", "jane@acme.com"},
		{"first wins without preference", "jane@acme.com, jane@other.com", "", "jane@acme.com"},
		{"preferred domain wins", "jane@other.com, jane@acme.com", "acme.com", "jane@acme.com"},
		{"preference case insensitive", "jane@ACME.com", "acme.com", "jane@acme.com"},
		{"falls back to first when no match", "jane@other.com", "acme.com", "jane@other.com"},
		{"empty", "  , ", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickEmail(tt.raw, tt.preferDomain))
		})
	}
}

func TestReplaceEmailDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		email     string
		newDomain string
		want      string
	}{
		{"plain domain", "jane@old.com", "new.com", "jane@new.com"},
		{"leading at stripped", "jane@old.com", "@new.com", "jane@new.com"},
		{"empty domain is a no-op", "jane@old.com", "", "jane@old.com"},
		{"malformed address passes through", "not-an-email", "new.com", "not-an-email"},
		{"empty address", "", "new.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceEmailDomain(tt.email, tt.newDomain))
		})
	}
}
