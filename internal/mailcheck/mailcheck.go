// Package mailcheck verifies email domains before a row is allowed to
// provision credentials. It answers two questions: is the domain a known
// disposable-address provider, and does it resolve with a mail exchange
// record. The disposable set is loaded once at startup and never mutated.
package mailcheck

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

//go:embed disposable_domains.txt
var embeddedDomains string

// ErrNoSuchDomain indicates the domain does not exist in DNS.
var ErrNoSuchDomain = errors.New("domain does not exist")

// ErrNoMailExchange indicates the domain resolves but publishes no MX records.
var ErrNoMailExchange = errors.New("no MX records found")

// Checker validates email domains. Safe for concurrent use; the disposable
// set is immutable after construction.
type Checker struct {
	disposable map[string]struct{}
	timeout    time.Duration

	// Lookup functions are fields so tests can run without a network.
	lookupHost func(ctx context.Context, host string) ([]string, error)
	lookupMX   func(ctx context.Context, name string) ([]*net.MX, error)
}

// Options configures a Checker.
type Options struct {
	// ExtraDomainsFile is an optional newline-separated domain list loaded
	// in addition to the embedded default set.
	ExtraDomainsFile string

	// LookupTimeout bounds each DNS lookup. Zero means 5s.
	LookupTimeout time.Duration
}

// New builds a Checker with the embedded disposable-domain set plus any
// extra domains from opts.ExtraDomainsFile.
func New(opts Options) (*Checker, error) {
	set := make(map[string]struct{})
	loadDomains(set, strings.NewReader(embeddedDomains))

	if opts.ExtraDomainsFile != "" {
		f, err := os.Open(opts.ExtraDomainsFile)
		if err != nil {
			return nil, fmt.Errorf("open disposable domains file: %w", err)
		}
		defer f.Close()
		loadDomains(set, f)
	}

	timeout := opts.LookupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	resolver := net.DefaultResolver
	return &Checker{
		disposable: set,
		timeout:    timeout,
		lookupHost: resolver.LookupHost,
		lookupMX:   resolver.LookupMX,
	}, nil
}

func loadDomains(set map[string]struct{}, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		domain := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if domain == "" || strings.HasPrefix(domain, "#") {
			continue
		}
		set[domain] = struct{}{}
	}
}

// IsDisposable reports whether the domain belongs to a known
// disposable-address provider. Case-insensitive, no network round trip.
func (c *Checker) IsDisposable(domain string) bool {
	_, ok := c.disposable[strings.ToLower(domain)]
	return ok
}

// Check verifies that the domain has an address record and at least one
// mail exchange record.
//
// Returns ErrNoSuchDomain when DNS says the domain does not exist,
// ErrNoMailExchange when it resolves without MX records, and a wrapped
// lookup error for transient failures. Failures are not retried; the
// caller folds them into the row's validation outcome.
func (c *Checker) Check(ctx context.Context, domain string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.lookupHost(ctx, domain); err != nil {
		return classifyLookupError(err)
	}

	mx, err := c.lookupMX(ctx, domain)
	if err != nil {
		return classifyLookupError(err)
	}
	if len(mx) == 0 {
		return ErrNoMailExchange
	}
	return nil
}

// classifyLookupError distinguishes "domain does not exist" from transient
// lookup failures.
func classifyLookupError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return ErrNoSuchDomain
	}
	return fmt.Errorf("lookup failed: %w", err)
}
