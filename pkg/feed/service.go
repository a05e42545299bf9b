package feed

import (
	"context"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/internal/telemetry"
)

// Service wires the file maker, sender and archiver into a BatchSender for
// the AsyncPusher, and exposes direct pushes for group feeds.
type Service struct {
	maker    *FileMaker
	sender   *Sender
	archiver Archiver // nil disables archival
}

// NewService creates the delivery backend. archiver may be nil.
func NewService(maker *FileMaker, sender *Sender, archiver Archiver) *Service {
	return &Service{maker: maker, sender: sender, archiver: archiver}
}

var _ BatchSender = (*Service)(nil)

// SendBatch serializes one record batch as a metadata-and-url feed and
// delivers it.
func (s *Service) SendBatch(ctx context.Context, records []Record) error {
	data, err := s.maker.MakeURLListFeed(records)
	if err != nil {
		return err
	}
	return s.deliver(ctx, TypeMetadataAndURL, data)
}

// PushGroups serializes and delivers one group-membership feed.
func (s *Service) PushGroups(ctx context.Context, groups []GroupMembers, caseSensitive bool) error {
	data, err := s.maker.MakeGroupsFeed(groups, caseSensitive)
	if err != nil {
		return err
	}
	return s.deliver(ctx, TypeFull, data)
}

// PushContent serializes and delivers one content feed.
func (s *Service) PushContent(ctx context.Context, entries []ContentEntry) error {
	data, err := s.maker.MakeContentFeed(entries)
	if err != nil {
		return err
	}
	return s.deliver(ctx, TypeIncremental, data)
}

func (s *Service) deliver(ctx context.Context, feedType string, data []byte) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFeedPush)
	span.SetAttributes(
		telemetry.Datasource(s.maker.Datasource()),
		telemetry.FeedType(feedType),
	)
	defer span.End()

	sendErr := s.sender.Send(ctx, s.maker.Datasource(), feedType, data)
	if sendErr != nil {
		telemetry.RecordError(ctx, sendErr)
	}

	if s.archiver != nil {
		// Archive after the send so failed deliveries are tagged.
		if err := s.archiver.Archive(ctx, s.maker.Datasource(), data, sendErr != nil); err != nil {
			logger.Warn("Feed archival failed",
				logger.KeyDatasource, s.maker.Datasource(), logger.KeyError, err.Error())
		}
	}
	return sendErr
}
