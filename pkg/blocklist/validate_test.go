package blocklist

import (
	"errors"
	"reflect"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "example.com", "example.com"},
		{"scheme and path", "https://example.com/some/path", "example.com"},
		{"www prefix", "www.example.com", "example.com"},
		{"query and fragment", "example.com?utm=1#top", "example.com"},
		{"port", "example.com:8080", "example.com"},
		{"full url", "HTTPS://WWW.App.Example.com:443/login?next=/#x", "app.example.com"},
		{"whitespace", "  example.com  ", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.raw); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		wantErr bool
	}{
		{"valid", "example.com", false},
		{"valid subdomain", "app.example.com", false},
		{"empty", "", true},
		{"loopback", "127.0.0.1", true},
		{"localhost", "localhost", true},
		{"consecutive dots", "bad..example.com", true},
		{"leading dot", ".example.com", true},
		{"no tld", "example", true},
		{"underscore", "bad_domain.com", true},
		{"too long", longDomain(260), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.domain)
			if tt.wantErr && err == nil {
				t.Errorf("Validate(%q) succeeded, want error", tt.domain)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.domain, err)
			}
		})
	}
}

func TestValidateReturnsValidationError(t *testing.T) {
	err := Validate("127.0.0.1")
	if err == nil {
		t.Fatal("expected error for loopback address")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Reason == "" {
		t.Error("expected a specific reason string")
	}
}

func TestVariations(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   []string
	}{
		{
			"two labels",
			"example.com",
			[]string{"example.com", "www.example.com"},
		},
		{
			"subdomain expands to root",
			"app.example.com",
			[]string{"app.example.com", "example.com", "www.app.example.com", "www.example.com"},
		},
		{
			"www form keeps root",
			"www.example.com",
			[]string{"example.com", "www.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variations(tt.domain).Sorted()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Variations(%q) = %v, want %v", tt.domain, got, tt.want)
			}
		})
	}
}

func longDomain(length int) string {
	label := make([]byte, 0, length)
	for len(label) < length-4 {
		label = append(label, 'a')
	}
	return string(label) + ".com"
}
