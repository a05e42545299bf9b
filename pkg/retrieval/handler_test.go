package retrieval

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/adaptor"
	"github.com/crawlpoint/connector/pkg/authz"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/journal"
	"github.com/crawlpoint/connector/pkg/metadata"
	"github.com/crawlpoint/connector/pkg/transform"
)

type retrieverFunc func(ctx context.Context, req *adaptor.Request, resp *adaptor.Response) error

func (f retrieverFunc) GetDocContent(ctx context.Context, req *adaptor.Request, resp *adaptor.Response) error {
	return f(ctx, req, resp)
}

// httptest.NewRequest sets RemoteAddr to 192.0.2.1:1234.
const testClientIP = "192.0.2.1"

func newTestHandler(t *testing.T, retriever adaptor.Retriever, mutate func(*Config)) *Handler {
	t.Helper()
	codec, err := docid.NewCodec("http://localhost:5678/doc/", false)
	require.NoError(t, err)
	trust, err := NewClassifier(TrustConfig{AllowedIPs: []string{testClientIP}})
	require.NoError(t, err)

	cfg := Config{
		Codec:     codec,
		DocPath:   "/doc/",
		Trust:     trust,
		Retriever: retriever,
		Journal:   journal.New(false),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHandler(cfg)
}

func get(h *Handler, target string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestServeBody(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, req *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.SetContentType("text/plain"))
		require.NoError(t, resp.SetLastModified(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
		require.NoError(t, resp.AddMetadata("author", "alice"))
		w, err := resp.Body()
		require.NoError(t, err)
		_, err = io.WriteString(w, "hello indexer")
		return err
	})
	h := newTestHandler(t, retriever, nil)

	rec := get(h, "/doc/report%2F2024")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello indexer", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Wed, 01 May 2024 12:00:00 GMT", rec.Header().Get("Last-Modified"))
	assert.Equal(t, "author=alice", rec.Header().Get("X-Gsa-External-Metadata"))
	assert.Equal(t, "public", rec.Header().Get("X-Gsa-Serve-Security"))
}

func TestIdentifierReachesAdaptor(t *testing.T) {
	var got docid.DocID
	retriever := retrieverFunc(func(_ context.Context, req *adaptor.Request, resp *adaptor.Response) error {
		got = req.ID
		return resp.RespondNotFound()
	})
	h := newTestHandler(t, retriever, nil)

	rec := get(h, "/doc/foo%2Fbar%20baz")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, docid.DocID("foo/bar baz"), got)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		return resp.RespondNotFound()
	}), nil)

	req := httptest.NewRequest(http.MethodPost, "/doc/x", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNotModified(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, req *adaptor.Request, resp *adaptor.Response) error {
		require.False(t, req.LastAccess.IsZero())
		return resp.RespondNotModified()
	})
	h := newTestHandler(t, retriever, nil)

	rec := get(h, "/doc/x", func(r *http.Request) {
		r.Header.Set("If-Modified-Since", "Wed, 01 May 2024 12:00:00 GMT")
	})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestNoContentSetsSkipHeader(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		return resp.RespondNoContent()
	})
	h := newTestHandler(t, retriever, nil)

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Gsa-Skip-Updating-Content"))
}

func TestHeadSuppressesBody(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.SetContentType("text/plain"))
		w, err := resp.Body()
		require.NoError(t, err)
		_, err = io.WriteString(w, "invisible")
		return err
	})
	h := newTestHandler(t, retriever, nil)

	req := httptest.NewRequest(http.MethodHead, "/doc/x", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestGzipNegotiation(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		w, err := resp.Body()
		require.NoError(t, err)
		_, err = io.WriteString(w, "compressed payload")
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		cfg.UseCompression = true
	})

	rec := get(h, "/doc/x", func(r *http.Request) {
		r.Header.Set("Accept-Encoding", "gzip")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "compressed payload", string(body))
}

func TestACLLegacyMetadataKeys(t *testing.T) {
	docACL := acl.NewBuilder().
		PermitUsers(acl.MustUser("alice")).
		DenyGroups(acl.MustGroup("contractors")).
		MustBuild()
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.SetACL(docACL))
		_, err := resp.Body()
		return err
	})
	h := newTestHandler(t, retriever, nil)

	rec := get(h, "/doc/x")
	md := rec.Header().Get("X-Gsa-External-Metadata")
	assert.Contains(t, md, "google%3Aaclusers=")
	assert.Contains(t, md, "google%3Aacldenygroups=")
	assert.Equal(t, "secure", rec.Header().Get("X-Gsa-Serve-Security"))
}

func TestACLDocControlsHeader(t *testing.T) {
	docACL := acl.NewBuilder().
		PermitUsers(acl.MustUser("alice")).
		MustBuild()
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.SetACL(docACL))
		require.NoError(t, resp.SetDisplayURL("http://wiki/page"))
		require.NoError(t, resp.SetCrawlOnce(true))
		_, err := resp.Body()
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		cfg.UseDocControlsHeader = true
		cfg.ScoringType = "content"
	})

	rec := get(h, "/doc/x")
	dc := rec.Header().Get("X-Gsa-Doc-Controls")
	assert.Contains(t, dc, "acl=")
	assert.Contains(t, dc, "display_url=")
	assert.Contains(t, dc, "crawl_once=true")
	assert.Contains(t, dc, "scoring=content")
	assert.Empty(t, rec.Header().Get("X-Gsa-External-Metadata"))
}

func TestUntrustedGetsNoCrawlHeaders(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.AddMetadata("secret", "value"))
		_, err := resp.Body()
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		trust, err := NewClassifier(TrustConfig{AllowedIPs: []string{"10.0.0.1"}})
		require.NoError(t, err)
		cfg.Trust = trust
		cfg.MarkAllDocsPublic = true
	})

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Gsa-External-Metadata"))
	assert.Empty(t, rec.Header().Get("X-Gsa-Serve-Security"))
}

func TestForwardedForDoesNotGrantTrust(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.AddMetadata("secret", "internal-value"))
		_, err := resp.Body()
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		trust, err := NewClassifier(TrustConfig{AllowedIPs: []string{"9.9.9.9"}})
		require.NoError(t, err)
		cfg.Trust = trust
	})

	// Only the socket peer address counts; a client naming a trusted
	// indexer IP in proxy headers stays untrusted and hits authorization.
	for _, header := range []string{"X-Forwarded-For", "X-Real-IP", "True-Client-IP"} {
		rec := get(h, "/doc/x", func(r *http.Request) {
			r.Header.Set(header, "9.9.9.9")
		})
		assert.Equal(t, http.StatusForbidden, rec.Code, header)
		assert.Empty(t, rec.Header().Get("X-Gsa-External-Metadata"), header)
	}
}

func TestAuthorizationDecisions(t *testing.T) {
	tests := []struct {
		name     string
		decision acl.Decision
		want     int
	}{
		{"permit", acl.Permit, http.StatusOK},
		{"deny", acl.Deny, http.StatusForbidden},
		{"indeterminate", acl.Indeterminate, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
				_, err := resp.Body()
				return err
			})
			h := newTestHandler(t, retriever, func(cfg *Config) {
				trust, err := NewClassifier(TrustConfig{AllowedIPs: []string{"10.0.0.1"}})
				require.NoError(t, err)
				cfg.Trust = trust
				cfg.Authorizer = authz.AuthorizerFunc(func(_ context.Context, _ acl.Identity, ids []docid.DocID) (map[docid.DocID]acl.Decision, error) {
					out := map[docid.DocID]acl.Decision{}
					for _, d := range ids {
						out[d] = tt.decision
					}
					return out, nil
				})
			})

			rec := get(h, "/doc/x")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDenyRedirectsToSSO(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		_, err := resp.Body()
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		trust, err := NewClassifier(TrustConfig{AllowedIPs: []string{"10.0.0.1"}})
		require.NoError(t, err)
		cfg.Trust = trust
		cfg.SSORedirectURL = "https://sso.example.com/login"
		cfg.Authorizer = authz.DenyAll{}
	})

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://sso.example.com/login", rec.Header().Get("Location"))
}

func TestTransformDoNotIndex(t *testing.T) {
	adaptorBytes := "should never reach the client"
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.SetContentType("text/plain"))
		w, err := resp.Body()
		require.NoError(t, err)
		_, err = io.WriteString(w, adaptorBytes)
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		cfg.MetadataTransforms = transform.NewPipeline().Add("suppress",
			transform.MetadataTransformFunc(func(_ *metadata.Metadata, params map[string]string) error {
				params[transform.KeyTransmissionDecision] = "do-not-index"
				return nil
			}))
	})

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), adaptorBytes)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

func TestWatchdogCoversSuppressedBody(t *testing.T) {
	retriever := retrieverFunc(func(ctx context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		w, err := resp.Body()
		require.NoError(t, err)
		// Keep writing after suppression until the content watchdog fires.
		for ctx.Err() == nil {
			_, _ = io.WriteString(w, "stuck")
			time.Sleep(5 * time.Millisecond)
		}
		return ctx.Err()
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		cfg.ContentTimeout = 50 * time.Millisecond
		cfg.MetadataTransforms = transform.NewPipeline().Add("suppress",
			transform.MetadataTransformFunc(func(_ *metadata.Metadata, params map[string]string) error {
				params[transform.KeyTransmissionDecision] = "do-not-index"
				return nil
			}))
	})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- get(h, "/doc/x") }()

	select {
	case rec := <-done:
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotContains(t, rec.Body.String(), "stuck")
	case <-time.After(2 * time.Second):
		t.Fatal("suppressed-body request never finished")
	}
}

func TestTransformDoNotIndexContent(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		require.NoError(t, resp.SetContentType("text/plain"))
		w, err := resp.Body()
		require.NoError(t, err)
		_, err = io.WriteString(w, "body to strip")
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		cfg.MetadataTransforms = transform.NewPipeline().Add("strip",
			transform.MetadataTransformFunc(func(_ *metadata.Metadata, params map[string]string) error {
				params[transform.KeyTransmissionDecision] = "do-not-index-content"
				return nil
			}))
	})

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestTransformsSkippedForUntrusted(t *testing.T) {
	ran := false
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		w, err := resp.Body()
		require.NoError(t, err)
		_, err = io.WriteString(w, "plain")
		return err
	})
	h := newTestHandler(t, retriever, func(cfg *Config) {
		trust, err := NewClassifier(TrustConfig{AllowedIPs: []string{"10.0.0.1"}})
		require.NoError(t, err)
		cfg.Trust = trust
		cfg.MarkAllDocsPublic = true
		cfg.MetadataTransforms = transform.NewPipeline().Add("marker",
			transform.MetadataTransformFunc(func(_ *metadata.Metadata, _ map[string]string) error {
				ran = true
				return nil
			}))
	})

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plain", rec.Body.String())
	assert.False(t, ran)
}

func TestAdaptorNeverResponded(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, _ *adaptor.Response) error {
		return nil
	})
	h := newTestHandler(t, retriever, nil)

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTransientErrorMapsTo503(t *testing.T) {
	retriever := retrieverFunc(func(_ context.Context, _ *adaptor.Request, _ *adaptor.Response) error {
		return adaptor.Transient(io.ErrUnexpectedEOF)
	})
	h := newTestHandler(t, retriever, nil)

	rec := get(h, "/doc/x")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSleepEndpoint(t *testing.T) {
	h := newTestHandler(t, retrieverFunc(func(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
		return resp.RespondNotFound()
	}), nil)

	rec := get(h, "/sleep")
	assert.Equal(t, http.StatusOK, rec.Code)
}
