// Package geo resolves a source address into geolocation fields, fronting a
// MaxMind GeoLite2 database reader with a bounded LRU+TTL cache and a
// concurrency-limiting semaphore so enrichment never stalls ingest. Adapted
// from the collector's original services.GeoIPService, which held its own
// RWMutex-guarded country-range tables refreshed on a background goroutine
// and explicitly called out "In production, use MaxMind GeoLite2 with
// license key" -- this package wires that upgrade path.
package geo

import (
	"context"
	"net"
	"time"

	"honeytrack-collector/internal/logging"
)

// Fields mirrors the geo.* attributes of §3 of the spec.
type Fields struct {
	Country      string
	Region       string
	City         string
	Latitude     float64
	Longitude    float64
	ISP          string
	Organization string
	Timezone     string
	IsPrivate    bool
}

// Reader abstracts the underlying MaxMind lookup so tests can substitute a
// fake without a real .mmdb file. github.com/oschwald/geoip2-golang's
// *geoip2.Reader satisfies this shape via a thin adapter in reader.go.
type Reader interface {
	City(ip net.IP) (Fields, error)
}

// Config controls cache sizing, lookup concurrency and timeouts (§4.2, §6).
type Config struct {
	Timeout      time.Duration
	Concurrency  int
	CacheSize    int
	PositiveTTL  time.Duration
	NegativeTTL  time.Duration
	SemaphoreWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:       2 * time.Second,
		Concurrency:   16,
		CacheSize:     50000,
		PositiveTTL:   24 * time.Hour,
		NegativeTTL:   5 * time.Minute,
		SemaphoreWait: 500 * time.Millisecond,
	}
}

// Enricher resolves addresses into Fields. Never fails the caller; failures
// and timeouts degrade to an unresolved result.
type Enricher struct {
	reader Reader
	cache  *cache
	sem    chan struct{}
	cfg    Config
}

func NewEnricher(reader Reader, cfg Config) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	return &Enricher{
		reader: reader,
		cache:  newCache(cfg.CacheSize),
		sem:    make(chan struct{}, cfg.Concurrency),
		cfg:    cfg,
	}
}

// CacheSize reports the current number of cached entries, for the /health
// endpoint (§4.8).
func (e *Enricher) CacheSize() int {
	return e.cache.len()
}

// Enrich resolves address into Fields. It never returns an error: on any
// failure, timeout, or saturation it returns an unresolved Fields value.
func (e *Enricher) Enrich(ctx context.Context, address string) Fields {
	ip := net.ParseIP(address)
	if ip == nil {
		return Fields{}
	}

	if isPrivate(ip) {
		return Fields{IsPrivate: true}
	}

	if fields, status, ok := e.cache.get(address); ok {
		if status == StatusUnresolved {
			return Fields{}
		}
		return fields
	}

	if e.reader == nil {
		e.cache.set(address, Fields{}, StatusUnresolved, e.cfg.NegativeTTL)
		return Fields{}
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-time.After(e.cfg.SemaphoreWait):
		return Fields{}
	case <-ctx.Done():
		return Fields{}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type result struct {
		fields Fields
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		fields, err := e.reader.City(ip)
		resultCh <- result{fields: fields, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			logging.Warn("geo lookup failed", logging.F("address", address), logging.F("error", r.err.Error()))
			e.cache.set(address, Fields{}, StatusUnresolved, e.cfg.NegativeTTL)
			return Fields{}
		}
		e.cache.set(address, r.fields, StatusResolved, e.cfg.PositiveTTL)
		return r.fields
	case <-lookupCtx.Done():
		e.cache.set(address, Fields{}, StatusUnresolved, e.cfg.NegativeTTL)
		return Fields{}
	}
}

// isPrivate short-circuits RFC1918, loopback, link-local, and IPv6
// unique-local ranges without any external call (§4.2).
func isPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		for _, cidr := range privateIPv4Ranges {
			if cidr.Contains(ip4) {
				return true
			}
		}
		return false
	}
	for _, cidr := range privateIPv6Ranges {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

var privateIPv4Ranges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"127.0.0.0/8",
)

var privateIPv6Ranges = mustParseCIDRs(
	"fc00::/7", // unique-local
	"fe80::/10",
	"::1/128",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}
