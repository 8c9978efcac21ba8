// Package export copies conversation archives to S3-compatible object
// storage.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/szaher/contextd/internal/namespace"
	"github.com/szaher/contextd/internal/store"
)

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the default AWS credential chain
// (environment, shared config, instance role).
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Result is the outcome of exporting one conversation.
type Result struct {
	Key     namespace.Key
	Object  string
	Bytes   int
	Skipped bool
	Err     error
}

// Exporter uploads archives under bucket/prefix.
type Exporter struct {
	client  ObjectPutter
	archive *store.ArchiveStore
	bucket  string
	prefix  string
	logger  *slog.Logger
}

// New creates an exporter. A nil logger discards output.
func New(client ObjectPutter, archive *store.ArchiveStore, bucket, prefix string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exporter{client: client, archive: archive, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectKey returns the object name for a conversation's archive:
// <prefix>/<tenant>/<conversation>/archive.txt.
func (e *Exporter) ObjectKey(key namespace.Key) string {
	return path.Join(e.prefix,
		strconv.FormatInt(key.TenantID, 10),
		strconv.FormatInt(key.ConversationID, 10),
		namespace.ResourceArchive.Filename())
}

// Export uploads one conversation's archive. An empty archive is skipped.
func (e *Exporter) Export(ctx context.Context, key namespace.Key) Result {
	res := Result{Key: key, Object: e.ObjectKey(key)}

	data, err := e.archive.Read(ctx, key)
	if err != nil {
		res.Err = err
		return res
	}
	if data == "" {
		res.Skipped = true
		return res
	}

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(res.Object),
		Body:        bytes.NewReader([]byte(data)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		res.Err = fmt.Errorf("put s3://%s/%s: %w", e.bucket, res.Object, err)
		return res
	}
	res.Bytes = len(data)
	return res
}

// ExportAll uploads every discovered conversation's archive. Failures are
// recorded per conversation; the returned error is only for discovery.
func (e *Exporter) ExportAll(ctx context.Context, r *namespace.Resolver) ([]Result, error) {
	keys, err := r.Discover()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(keys))
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		res := e.Export(ctx, key)
		log := e.logger.With("tenant", key.TenantID, "conversation", key.ConversationID)
		switch {
		case res.Err != nil:
			log.Error("archive export failed", "error", res.Err)
		case res.Skipped:
			log.Debug("archive empty, not exported")
		default:
			log.Info("archive exported", "object", res.Object, "bytes", res.Bytes)
		}
		results = append(results, res)
	}
	return results, nil
}
