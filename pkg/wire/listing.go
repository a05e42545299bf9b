package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/feed"
)

// ReadListing parses a listing stream and calls emit once per record. The
// first command must be an identifier; modifier commands attach to the most
// recent identifier. emit returning an error aborts the read.
func ReadListing(r io.Reader, emit func(feed.Record) error) error {
	sc, err := NewScanner(r)
	if err != nil {
		return err
	}

	var (
		cur     feed.Record
		haveCur bool
	)
	flush := func() error {
		if !haveCur {
			return nil
		}
		haveCur = false
		return emit(cur)
	}

	for {
		cmd, err := sc.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, ErrEndOfList) {
			return flush()
		}
		if err != nil {
			return err
		}

		switch cmd.Name {
		case cmdID:
			if err := flush(); err != nil {
				return err
			}
			cur = feed.NewRecord(docid.DocID(cmd.Arg))
			haveCur = true
		case cmdRepositoryUnavailable:
			return ErrRepositoryUnavailable
		case cmdResultLink, cmdLastModified, cmdCrawlImmediately, cmdCrawlOnce, cmdLock, cmdDelete:
			if !haveCur {
				return fmt.Errorf("%w: %s before first identifier", ErrMalformedStream, cmd.Name)
			}
			if err := applyRecordCommand(&cur, cmd); err != nil {
				return err
			}
		default:
			logger.Warn("Skipping unknown listing command", "command", cmd.Name)
		}
	}
}

func applyRecordCommand(rec *feed.Record, cmd Command) error {
	switch cmd.Name {
	case cmdResultLink:
		rec.ResultLink = cmd.Arg
	case cmdLastModified:
		t, err := parseEpochMillis(cmd.Arg)
		if err != nil {
			return err
		}
		rec.LastModified = t
	case cmdCrawlImmediately:
		rec.CrawlImmediately = true
	case cmdCrawlOnce:
		rec.CrawlOnce = true
	case cmdLock:
		rec.Lock = true
	case cmdDelete:
		rec.Delete = true
	}
	return nil
}

// WriteListing emits records in the listing dialect. The out-of-process
// adaptor SDK and the round-trip tests are its callers.
func WriteListing(w io.Writer, delim []byte, records []feed.Record) error {
	sw, err := NewWriter(w, delim)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := sw.CommandArg(cmdID, string(rec.ID)); err != nil {
			return err
		}
		if rec.ResultLink != "" {
			if err := sw.CommandArg(cmdResultLink, rec.ResultLink); err != nil {
				return err
			}
		}
		if !rec.LastModified.IsZero() {
			if err := sw.CommandArg(cmdLastModified, formatEpochMillis(rec.LastModified)); err != nil {
				return err
			}
		}
		for _, f := range []struct {
			set  bool
			name string
		}{
			{rec.CrawlImmediately, cmdCrawlImmediately},
			{rec.CrawlOnce, cmdCrawlOnce},
			{rec.Lock, cmdLock},
			{rec.Delete, cmdDelete},
		} {
			if f.set {
				if err := sw.Command(f.name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// last-modified travels as decimal milliseconds since the Unix epoch.
func parseEpochMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: last-modified %q", ErrMalformedStream, s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func formatEpochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
