package retrieval

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/crawlpoint/connector/internal/logger"
)

// TrustConfig decides which callers are the indexer (full content, no
// authorization) versus end users (authorization required).
type TrustConfig struct {
	// Secure selects certificate-based classification: the TLS peer
	// certificate's common name must be in AllowedNames.
	Secure bool

	// AllowedNames are the certificate common names trusted in secure mode.
	AllowedNames []string

	// SkipCertNames are common names exempted from certificate checks while
	// still treated as trusted. Opt-in escape hatch for legacy indexers.
	SkipCertNames []string

	// AllowedIPs are source addresses trusted in non-secure mode.
	AllowedIPs []string

	// AllowedCIDRs are source ranges trusted in non-secure mode.
	AllowedCIDRs []string
}

// Classifier answers "is this request from the indexer?".
type Classifier struct {
	secure    bool
	names     map[string]bool
	skipNames map[string]bool
	ips       map[string]bool
	cidrs     []*net.IPNet
}

// NewClassifier validates and compiles the trust configuration.
func NewClassifier(cfg TrustConfig) (*Classifier, error) {
	c := &Classifier{
		secure:    cfg.Secure,
		names:     map[string]bool{},
		skipNames: map[string]bool{},
		ips:       map[string]bool{},
	}
	for _, n := range cfg.AllowedNames {
		c.names[strings.ToLower(n)] = true
	}
	for _, n := range cfg.SkipCertNames {
		c.skipNames[strings.ToLower(n)] = true
	}
	for _, raw := range cfg.AllowedIPs {
		ip := net.ParseIP(raw)
		if ip == nil {
			return nil, fmt.Errorf("retrieval: invalid trusted IP %q", raw)
		}
		c.ips[ip.String()] = true
	}
	for _, raw := range cfg.AllowedCIDRs {
		_, ipnet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("retrieval: invalid trusted CIDR %q: %w", raw, err)
		}
		c.cidrs = append(c.cidrs, ipnet)
	}
	return c, nil
}

// Trusted classifies one request.
func (c *Classifier) Trusted(r *http.Request) bool {
	if c.secure {
		return c.trustedByCert(r)
	}
	return c.trustedByAddr(r)
}

func (c *Classifier) trustedByCert(r *http.Request) bool {
	if r.TLS == nil {
		return false
	}
	for _, cert := range r.TLS.PeerCertificates {
		cn := strings.ToLower(cert.Subject.CommonName)
		if c.names[cn] || c.skipNames[cn] {
			return true
		}
	}
	if len(r.TLS.PeerCertificates) > 0 {
		logger.Debug("Peer certificate not in trust set",
			"common_name", r.TLS.PeerCertificates[0].Subject.CommonName)
	}
	return false
}

func (c *Classifier) trustedByAddr(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if c.ips[ip.String()] {
		return true
	}
	for _, n := range c.cidrs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
