package mailcheck

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestIsDisposable(t *testing.T) {
	c := newTestChecker(t)

	tests := []struct {
		domain string
		want   bool
	}{
		{"mailinator.com", true},
		{"MAILINATOR.COM", true},
		{"Yopmail.com", true},
		{"example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			if got := c.IsDisposable(tt.domain); got != tt.want {
				t.Errorf("IsDisposable(%q) = %v, want %v", tt.domain, got, tt.want)
			}
		})
	}
}

func TestExtraDomainsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.txt")
	content := "# comment\nburner.example\n\n  Padded.Example  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := New(Options{ExtraDomainsFile: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !c.IsDisposable("burner.example") {
		t.Error("burner.example should be disposable")
	}
	if !c.IsDisposable("padded.example") {
		t.Error("padded.example should be disposable (trimmed, lowercased)")
	}
	// Embedded defaults still apply.
	if !c.IsDisposable("mailinator.com") {
		t.Error("embedded defaults should still load")
	}
}

func TestExtraDomainsFile_Missing(t *testing.T) {
	_, err := New(Options{ExtraDomainsFile: "/does/not/exist"})
	if err == nil {
		t.Fatal("New() expected error for missing domains file")
	}
}

func TestCheck(t *testing.T) {
	notFound := &net.DNSError{Err: "no such host", IsNotFound: true}
	timeout := &net.DNSError{Err: "i/o timeout", IsTimeout: true}

	tests := []struct {
		name       string
		lookupHost func(context.Context, string) ([]string, error)
		lookupMX   func(context.Context, string) ([]*net.MX, error)
		wantErr    error
		wantOK     bool
	}{
		{
			name:       "resolves with MX",
			lookupHost: func(context.Context, string) ([]string, error) { return []string{"1.2.3.4"}, nil },
			lookupMX: func(context.Context, string) ([]*net.MX, error) {
				return []*net.MX{{Host: "mx.example.com"}}, nil
			},
			wantOK: true,
		},
		{
			name:       "host not found",
			lookupHost: func(context.Context, string) ([]string, error) { return nil, notFound },
			wantErr:    ErrNoSuchDomain,
		},
		{
			name:       "host lookup timeout",
			lookupHost: func(context.Context, string) ([]string, error) { return nil, timeout },
		},
		{
			name:       "mx not found",
			lookupHost: func(context.Context, string) ([]string, error) { return []string{"1.2.3.4"}, nil },
			lookupMX:   func(context.Context, string) ([]*net.MX, error) { return nil, notFound },
			wantErr:    ErrNoSuchDomain,
		},
		{
			name:       "zero mx records",
			lookupHost: func(context.Context, string) ([]string, error) { return []string{"1.2.3.4"}, nil },
			lookupMX:   func(context.Context, string) ([]*net.MX, error) { return nil, nil },
			wantErr:    ErrNoMailExchange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChecker(t)
			c.lookupHost = tt.lookupHost
			if tt.lookupMX != nil {
				c.lookupMX = tt.lookupMX
			}

			err := c.Check(context.Background(), "example.com")
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Check() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Check() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Check() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (errors.Is(err, ErrNoSuchDomain) || errors.Is(err, ErrNoMailExchange)) {
				t.Errorf("Check() error = %v, want generic lookup failure", err)
			}
		})
	}
}
