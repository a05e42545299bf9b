package feed

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
)

// Backoff is the retry policy for feed delivery.
type Backoff struct {
	// MaxAttempts bounds total tries, first attempt included. Default: 12.
	MaxAttempts int

	// Initial is the first sleep. Default: 5s.
	Initial time.Duration

	// Multiplier scales the sleep after each failure. Default: 2.
	Multiplier float64
}

// DefaultBackoff returns the default delivery retry policy.
func DefaultBackoff() Backoff {
	return Backoff{MaxAttempts: 12, Initial: 5 * time.Second, Multiplier: 2}
}

func (b Backoff) normalized() Backoff {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 12
	}
	if b.Initial <= 0 {
		b.Initial = 5 * time.Second
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	return b
}

// SenderConfig configures the feed Sender.
type SenderConfig struct {
	// Endpoint is the indexer's feed port URL, e.g.
	// "http://gsa.example.com:19900/xmlfeed".
	Endpoint string

	// Timeout is the per-attempt connect+read timeout. Default: 60s.
	Timeout time.Duration

	// Backoff is the retry policy for transient failures.
	Backoff Backoff
}

// Sender POSTs serialized feeds to the indexer with retry on transient
// failures.
type Sender struct {
	cfg    SenderConfig
	client *http.Client

	// sleep is stubbed in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSender creates a Sender for the configured endpoint.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.Backoff = cfg.Backoff.normalized()
	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sleep:  sleepCtx,
	}
}

// Send delivers one serialized feed document. On transient failure it
// retries per the backoff policy; on fatal refusal (a non-retriable 4xx) it
// returns immediately.
func (s *Sender) Send(ctx context.Context, datasource, feedType string, data []byte) error {
	var lastErr error
	delay := s.cfg.Backoff.Initial

	for attempt := 1; attempt <= s.cfg.Backoff.MaxAttempts; attempt++ {
		err := s.post(ctx, datasource, feedType, data)
		if err == nil {
			if attempt > 1 {
				logger.Info("Feed delivered after retry",
					logger.KeyDatasource, datasource, logger.KeyAttempt, attempt)
			}
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err

		logger.Warn("Feed delivery failed, will retry",
			logger.KeyDatasource, datasource,
			"endpoint", s.cfg.Endpoint,
			logger.KeyAttempt, attempt,
			logger.KeyMaxRetries, s.cfg.Backoff.MaxAttempts,
			logger.KeyError, err.Error())

		if attempt == s.cfg.Backoff.MaxAttempts {
			break
		}
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * s.cfg.Backoff.Multiplier)
	}
	return fmt.Errorf("feed: delivery to %s failed after %d attempts: %w",
		s.cfg.Endpoint, s.cfg.Backoff.MaxAttempts, lastErr)
}

// post performs one delivery attempt as a multipart form with the fields the
// feed port expects: datasource, feedtype and the document itself.
func (s *Sender) post(ctx context.Context, datasource, feedType string, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("datasource", datasource); err != nil {
		return fmt.Errorf("feed: build form: %w", err)
	}
	if err := mw.WriteField("feedtype", feedType); err != nil {
		return fmt.Errorf("feed: build form: %w", err)
	}
	fw, err := mw.CreateFormField("data")
	if err != nil {
		return fmt.Errorf("feed: build form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("feed: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("feed: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, &body)
	if err != nil {
		return fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return &transientError{fmt.Errorf("feed: post: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return &transientError{fmt.Errorf("feed: indexer returned %s", resp.Status)}
	default:
		return fmt.Errorf("feed: indexer refused feed: %s", resp.Status)
	}
}

// transientError marks a failure worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err is worth retrying: connection and timeout
// errors, TLS handshake failures, and 5xx responses.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var re tls.RecordHeaderError
	return errors.As(err, &re)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
