package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlpoint/connector/pkg/adaptor"
	"github.com/crawlpoint/connector/pkg/config"
	"github.com/crawlpoint/connector/pkg/feed"
	"github.com/crawlpoint/connector/pkg/journal"
)

// fakeAdaptor is a minimal in-process retriever.
type fakeAdaptor struct {
	initErr   error
	initCalls atomic.Int32
	destroyed atomic.Bool
	body      string
}

func (f *fakeAdaptor) Init(_ context.Context, _ *adaptor.Context) error {
	f.initCalls.Add(1)
	return f.initErr
}

func (f *fakeAdaptor) Destroy(context.Context) error {
	f.destroyed.Store(true)
	return nil
}

func (f *fakeAdaptor) GetDocContent(_ context.Context, _ *adaptor.Request, resp *adaptor.Response) error {
	if err := resp.SetContentType("text/plain"); err != nil {
		return err
	}
	w, err := resp.Body()
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(f.body))
	return err
}

// listingAdaptor adds a full lister on top of the fake retriever.
type listingAdaptor struct {
	fakeAdaptor
	records []feed.Record
}

func (l *listingAdaptor) GetDocIDs(_ context.Context, pusher adaptor.RecordPusher) error {
	for _, rec := range l.records {
		for !pusher.Push(rec) {
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil
}

// initOnly implements the lifecycle but not retrieval.
type initOnly struct{}

func (initOnly) Init(context.Context, *adaptor.Context) error { return nil }
func (initOnly) Destroy(context.Context) error                { return nil }

func testConfig(feedURL string) *config.Config {
	return &config.Config{
		ShutdownTimeout: 5 * time.Second,
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			DocPath: "/doc/",
		},
		Feed: config.FeedConfig{
			DestinationURL:  feedURL,
			Datasource:      "test-source",
			MaxBatchLatency: 50 * time.Millisecond,
			MaxAttempts:     1,
			InitialBackoff:  10 * time.Millisecond,
		},
		Trust: config.TrustConfig{
			AllowedIPs: []string{"127.0.0.1", "::1"},
		},
	}
}

func retrievalPort(t *testing.T, app *Application) int {
	t.Helper()
	addr, ok := app.RetrievalAddr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}

func TestNewRequiresRetriever(t *testing.T) {
	_, err := New(Options{
		Config:  testConfig("http://127.0.0.1:1/feed"),
		Adaptor: initOnly{},
		Journal: journal.New(false),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval")
}

func TestServeDocumentAndStop(t *testing.T) {
	adpt := &fakeAdaptor{body: "hello from the repository"}
	app, err := New(Options{
		Config:  testConfig("http://127.0.0.1:1/feed"),
		Adaptor: adpt,
		Journal: journal.New(false),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))

	url := fmt.Sprintf("http://127.0.0.1:%d/doc/report-7", retrievalPort(t, app))
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello from the repository", string(body))
	assert.Equal(t, int64(1), app.Journal().Snapshot().RequestsTotal)

	require.NoError(t, app.Stop(2*time.Second))
	assert.True(t, adpt.destroyed.Load())

	// Second stop is a no-op.
	require.NoError(t, app.Stop(2*time.Second))
}

func TestStartupRetryInterruptedByStop(t *testing.T) {
	adpt := &fakeAdaptor{initErr: adaptor.Transient(errors.New("repository down"))}
	app, err := New(Options{
		Config:  testConfig("http://127.0.0.1:1/feed"),
		Adaptor: adpt,
		Journal: journal.New(false),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return adpt.initCalls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, app.Stop(time.Second))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestFatalInitAbortsStart(t *testing.T) {
	adpt := &fakeAdaptor{initErr: errors.New("bad credentials")}
	app, err := New(Options{
		Config:  testConfig("http://127.0.0.1:1/feed"),
		Adaptor: adpt,
		Journal: journal.New(false),
	})
	require.NoError(t, err)

	err = app.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adaptor init")
	assert.Equal(t, int32(1), adpt.initCalls.Load())
}

func TestPushOnStartDeliversListing(t *testing.T) {
	feeds := make(chan string, 4)
	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		feeds <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer indexer.Close()

	adpt := &listingAdaptor{
		fakeAdaptor: fakeAdaptor{body: "x"},
		records:     []feed.Record{{ID: "doc-1"}, {ID: "doc-2"}},
	}
	cfg := testConfig(indexer.URL)
	cfg.Adaptor.PushOnStart = true

	app, err := New(Options{
		Config:  cfg,
		Adaptor: adpt,
		Journal: journal.New(false),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	defer func() { _ = app.Stop(2 * time.Second) }()

	select {
	case body := <-feeds:
		assert.Contains(t, body, "doc-1")
		assert.Contains(t, body, "doc-2")
	case <-time.After(5 * time.Second):
		t.Fatal("no feed delivered after push-on-start listing")
	}

	require.Eventually(t, func() bool {
		return app.Journal().Snapshot().FullListings == 1
	}, 2*time.Second, 10*time.Millisecond)
}
