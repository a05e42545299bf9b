package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/crawlpoint/connector/internal/logger"
)

// Archiver stores a copy of each feed document for diagnosis. Archive
// failures are logged by the caller and never fail the send.
type Archiver interface {
	// Archive stores one feed. failed tags feeds whose delivery failed.
	Archive(ctx context.Context, datasource string, data []byte, failed bool) error
}

// archiveName mints a timestamped unique filename for one feed.
func archiveName(datasource string, failed bool) string {
	name := fmt.Sprintf("%s-%s-%s.xml",
		datasource,
		time.Now().UTC().Format("20060102T150405Z"),
		uuid.NewString()[:8])
	if failed {
		name = "FAILED-" + name
	}
	return name
}

// DirArchiver writes feeds into a local directory.
type DirArchiver struct {
	dir string
}

// NewDirArchiver creates the directory if needed.
func NewDirArchiver(dir string) (*DirArchiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("feed: create archive dir: %w", err)
	}
	return &DirArchiver{dir: dir}, nil
}

func (a *DirArchiver) Archive(_ context.Context, datasource string, data []byte, failed bool) error {
	path := filepath.Join(a.dir, archiveName(datasource, failed))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("feed: write archive %s: %w", path, err)
	}
	logger.Debug("Archived feed", "path", path, logger.KeyBatchBytes, len(data))
	return nil
}

// S3Archiver writes feeds into an S3 bucket under an optional key prefix.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver archives into bucket; prefix may be empty.
func NewS3Archiver(client *s3.Client, bucket, prefix string) *S3Archiver {
	prefix = strings.TrimSuffix(prefix, "/")
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

func (a *S3Archiver) Archive(ctx context.Context, datasource string, data []byte, failed bool) error {
	key := archiveName(datasource, failed)
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(string(data)),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		return fmt.Errorf("feed: archive to s3://%s/%s: %w", a.bucket, key, err)
	}
	logger.Debug("Archived feed", "bucket", a.bucket, "key", key, logger.KeyBatchBytes, len(data))
	return nil
}
