package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type countryContextKey struct{}

var CountryKey = countryContextKey{}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// OriginCountry stores the caller's ISO 3166 alpha-2 country in the request
// context. Donations recorded without an explicit origin fall back to it.
func OriginCountry(lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if country := ResolveCountry(r, lookup); country != "" {
				r = r.WithContext(context.WithValue(r.Context(), CountryKey, country))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry prefers country hints set by the edge proxy and falls back to
// a GeoIP lookup of the client address.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"} {
		if code := normalizeCountry(r.Header.Get(key)); code != "" {
			return code
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return normalizeCountry(country)
}

// normalizeCountry accepts two-letter codes only. CF-IPCountry reports "XX"
// and "T1" for unknown and Tor traffic.
func normalizeCountry(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 2 || code == "XX" || code == "T1" {
		return ""
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return code
}

// ClientIP returns the first valid address in X-Forwarded-For, else the
// remote host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
