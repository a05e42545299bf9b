package retrieval

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustByAddress(t *testing.T) {
	c, err := NewClassifier(TrustConfig{
		AllowedIPs:   []string{"10.1.2.3"},
		AllowedCIDRs: []string{"172.16.0.0/12"},
	})
	require.NoError(t, err)

	tests := []struct {
		remote string
		want   bool
	}{
		{"10.1.2.3:9999", true},
		{"10.1.2.4:9999", false},
		{"172.16.0.1:1", true},
		{"172.31.255.254:1", true},
		{"172.32.0.1:1", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/doc/x", nil)
		r.RemoteAddr = tt.remote
		assert.Equal(t, tt.want, c.Trusted(r), tt.remote)
	}
}

func TestTrustByCertificate(t *testing.T) {
	c, err := NewClassifier(TrustConfig{
		Secure:       true,
		AllowedNames: []string{"gsa.example.com"},
	})
	require.NoError(t, err)

	withCN := func(cn string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/doc/x", nil)
		r.TLS = &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{
				{Subject: pkix.Name{CommonName: cn}},
			},
		}
		return r
	}

	assert.True(t, c.Trusted(withCN("gsa.example.com")))
	assert.True(t, c.Trusted(withCN("GSA.Example.Com")))
	assert.False(t, c.Trusted(withCN("rogue.example.com")))

	// No TLS state at all → untrusted in secure mode.
	bare := httptest.NewRequest(http.MethodGet, "/doc/x", nil)
	assert.False(t, c.Trusted(bare))
}

func TestInvalidTrustConfig(t *testing.T) {
	_, err := NewClassifier(TrustConfig{AllowedIPs: []string{"999.1.1.1"}})
	assert.Error(t, err)

	_, err = NewClassifier(TrustConfig{AllowedCIDRs: []string{"10.0.0.0/40"}})
	assert.Error(t, err)
}
