package geoip

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when no database is loaded.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// Resolver maps donor IP addresses to ISO 3166 alpha-2 country codes using a
// MaxMind country database.
type Resolver struct {
	reader *geoip2.Reader
}

// Open loads the database at path. An empty path yields a nil resolver, which
// answers every lookup with ErrUnavailable.
func Open(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Country returns the upper-case country code of ip. Private, loopback and
// unspecified addresses resolve to an empty code without consulting the
// database.
func (r *Resolver) Country(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	addr, ok := routable(ip)
	if !ok {
		return "", nil
	}
	record, err := r.reader.Country(addr.AsSlice())
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Lookup adapts the resolver to a plain lookup function. A nil resolver
// yields a nil function so callers fall back to header hints only.
func (r *Resolver) Lookup() func(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.Country
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

func routable(ip string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return netip.Addr{}, false
	}
	return addr, true
}
