package storage

import (
	"net/url"
	"sort"
	"strings"

	"fundtrace/internal/domain"
)

// URLPolicy decides which evidence URLs the ledger accepts. Files are owned by
// the evidence store; the ledger only checks that references point at it.
type URLPolicy struct {
	hosts map[string]bool
}

// NewURLPolicy allows the host of baseURL plus every extra host. An empty
// policy accepts any http(s) URL.
func NewURLPolicy(baseURL string, extra []string) *URLPolicy {
	p := &URLPolicy{hosts: map[string]bool{}}
	if u, err := url.Parse(strings.TrimSpace(baseURL)); err == nil && u.Hostname() != "" {
		p.hosts[strings.ToLower(u.Hostname())] = true
	}
	for _, h := range extra {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			p.hosts[h] = true
		}
	}
	return p
}

// Hosts returns the allowed hosts in sorted order.
func (p *URLPolicy) Hosts() []string {
	out := make([]string, 0, len(p.hosts))
	for h := range p.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Allowed reports whether raw is an absolute http(s) URL on an allowed host.
func (p *URLPolicy) Allowed(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if p == nil || len(p.hosts) == 0 {
		return true
	}
	return p.hosts[strings.ToLower(u.Hostname())]
}

// CheckAll returns a *domain.ValidationError naming field when any URL is
// missing or not allowed.
func (p *URLPolicy) CheckAll(field string, urls []string) error {
	if len(urls) == 0 {
		return domain.NewValidationError(field, "required")
	}
	for _, raw := range urls {
		if !p.Allowed(raw) {
			return domain.NewValidationError(field, "evidence_host")
		}
	}
	return nil
}
