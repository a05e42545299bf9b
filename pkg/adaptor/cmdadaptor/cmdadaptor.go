// Package cmdadaptor runs repository adaptors as external commands
// speaking the framed command stream: one command lists identifiers, one
// retrieves a document, and an optional one answers authorization queries.
// It is the out-of-process counterpart to implementing the adaptor
// interfaces in Go.
package cmdadaptor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/adaptor"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/feed"
	"github.com/crawlpoint/connector/pkg/wire"
)

// pushRetryDelay paces re-offers while the feed queue is full.
const pushRetryDelay = time.Second

// Config names the external commands. RetrieverCommand receives the
// identifier as its final argument; AuthorizerCommand receives the query
// stream on stdin.
type Config struct {
	ListerCommand     []string
	RetrieverCommand  []string
	AuthorizerCommand []string
}

// Adaptor bridges the external commands to the adaptor interfaces.
type Adaptor struct {
	cfg Config
}

// New validates the command wiring. At minimum the retriever command must
// be configured; a missing lister command only disables listing.
func New(cfg Config) (*Adaptor, error) {
	if len(cfg.RetrieverCommand) == 0 {
		return nil, fmt.Errorf("cmdadaptor: retriever command is required")
	}
	return &Adaptor{cfg: cfg}, nil
}

var (
	_ adaptor.Adaptor   = (*Adaptor)(nil)
	_ adaptor.Lister    = (*Adaptor)(nil)
	_ adaptor.Retriever = (*Adaptor)(nil)
)

// Init verifies the commands resolve to executables.
func (a *Adaptor) Init(_ context.Context, _ *adaptor.Context) error {
	for _, cmd := range [][]string{a.cfg.ListerCommand, a.cfg.RetrieverCommand, a.cfg.AuthorizerCommand} {
		if len(cmd) == 0 {
			continue
		}
		if _, err := exec.LookPath(cmd[0]); err != nil {
			return fmt.Errorf("cmdadaptor: %w", err)
		}
	}
	return nil
}

// Destroy has nothing to release; each invocation is its own process.
func (a *Adaptor) Destroy(_ context.Context) error { return nil }

// GetDocIDs runs the lister command and pushes every record it emits.
// Records refused by a full queue are re-offered until accepted or the
// context ends.
func (a *Adaptor) GetDocIDs(ctx context.Context, pusher adaptor.RecordPusher) error {
	if len(a.cfg.ListerCommand) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, a.cfg.ListerCommand[0], a.cfg.ListerCommand[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cmdadaptor: lister: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return adaptor.Transient(fmt.Errorf("cmdadaptor: lister: %w", err))
	}

	readErr := wire.ReadListing(stdout, func(rec feed.Record) error {
		for !pusher.Push(rec) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pushRetryDelay):
			}
		}
		return nil
	})

	waitErr := cmd.Wait()
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return adaptor.Transient(fmt.Errorf("cmdadaptor: lister exited: %w", waitErr))
	}
	return nil
}

// GetDocContent runs the retriever command for one identifier and replays
// the resulting document into the response.
func (a *Adaptor) GetDocContent(ctx context.Context, req *adaptor.Request, resp *adaptor.Response) error {
	args := append(append([]string(nil), a.cfg.RetrieverCommand[1:]...), string(req.ID))
	cmd := exec.CommandContext(ctx, a.cfg.RetrieverCommand[0], args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cmdadaptor: retriever: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return adaptor.Transient(fmt.Errorf("cmdadaptor: retriever: %w", err))
	}

	doc, readErr := wire.ReadRetrieval(stdout)
	waitErr := cmd.Wait()
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return adaptor.Transient(fmt.Errorf("cmdadaptor: retriever exited: %w", waitErr))
	}
	if doc.ID != req.ID {
		return fmt.Errorf("%w: retriever answered for %q, asked for %q",
			wire.ErrMalformedStream, doc.ID, req.ID)
	}
	return applyDocument(doc, req, resp)
}

// applyDocument maps a parsed document onto the response state machine.
func applyDocument(doc *wire.Document, req *adaptor.Request, resp *adaptor.Response) error {
	if doc.NotFound {
		return resp.RespondNotFound()
	}
	if doc.UpToDate && !req.LastAccess.IsZero() {
		return resp.RespondNotModified()
	}

	if doc.ContentType != "" {
		if err := resp.SetContentType(doc.ContentType); err != nil {
			return err
		}
	}
	if !doc.LastModified.IsZero() {
		if err := resp.SetLastModified(doc.LastModified); err != nil {
			return err
		}
	}
	if doc.DisplayURL != "" {
		if err := resp.SetDisplayURL(doc.DisplayURL); err != nil {
			return err
		}
	}
	if doc.Metadata != nil {
		var mdErr error
		doc.Metadata.Each(func(key, value string) {
			if err := resp.AddMetadata(key, value); err != nil && mdErr == nil {
				mdErr = err
			}
		})
		if mdErr != nil {
			return mdErr
		}
	}
	if doc.ACL != nil {
		if err := resp.SetACL(*doc.ACL); err != nil {
			return err
		}
	}
	for _, anchor := range doc.Anchors {
		if err := resp.AddAnchor(anchor.URI, anchor.Text); err != nil {
			return err
		}
	}
	for _, set := range []struct {
		enabled bool
		apply   func(bool) error
	}{
		{doc.CrawlOnce, resp.SetCrawlOnce},
		{doc.Lock, resp.SetLock},
		{doc.Secure, resp.SetSecure},
		{doc.NoIndex, resp.SetNoIndex},
		{doc.NoFollow, resp.SetNoFollow},
		{doc.NoArchive, resp.SetNoArchive},
	} {
		if !set.enabled {
			continue
		}
		if err := set.apply(true); err != nil {
			return err
		}
	}

	if doc.Content == nil {
		logger.Warn("Retriever stream carried no content", logger.DocID(string(doc.ID)))
		return resp.RespondNotFound()
	}
	w, err := resp.Body()
	if err != nil {
		return err
	}
	_, err = w.Write(doc.Content)
	return err
}

// Authorize runs the authorizer command over one query. Implements the
// authz Apply contract; callers without an authorizer command get
// Indeterminate for every identifier.
func (a *Adaptor) Authorize(ctx context.Context, id acl.Identity, ids []docid.DocID) (map[docid.DocID]acl.Decision, error) {
	if len(a.cfg.AuthorizerCommand) == 0 {
		return map[docid.DocID]acl.Decision{}, nil
	}

	var query bytes.Buffer
	if err := wire.WriteAuthzQuery(&query, []byte{0}, id, ids); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, a.cfg.AuthorizerCommand[0], a.cfg.AuthorizerCommand[1:]...)
	cmd.Stdin = &query
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cmdadaptor: authorizer: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, adaptor.Transient(fmt.Errorf("cmdadaptor: authorizer: %w", err))
	}

	decisions, readErr := wire.ReadAuthzResponse(stdout)
	waitErr := cmd.Wait()
	if readErr != nil {
		return nil, readErr
	}
	if waitErr != nil {
		return nil, adaptor.Transient(fmt.Errorf("cmdadaptor: authorizer exited: %w", waitErr))
	}
	return decisions, nil
}
