// Package s3store keeps the remote session collection in a single JSON
// object in S3 (or an S3 compatible service).
//
// Writes are read-modify-write cycles guarded by the object's ETag: the
// write carries If-Match (or If-None-Match: * for the first write) and is
// retried on a precondition failure, so concurrent kiosks cannot silently
// overwrite each other's changes.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// DefaultKey is the object key used when Config.Key is empty.
const DefaultKey = "gastmeting/scans.json"

// maxWriteAttempts bounds retries after a concurrent modification.
const maxWriteAttempts = 3

// ErrConcurrentModification is returned when every write attempt lost the
// race against another writer.
var ErrConcurrentModification = errors.New("s3store: object modified concurrently")

// ObjectAPI is the subset of the S3 client used by Store.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Config contains S3 backend configuration.
type Config struct {
	Bucket string
	Key    string

	// Region overrides the region from the shared AWS config.
	Region string

	// Endpoint points at an S3 compatible service such as MinIO.
	Endpoint string

	// UsePathStyle is required by most S3 compatible services.
	UsePathStyle bool
}

// Store implements remote.Store on one S3 object.
type Store struct {
	client ObjectAPI
	bucket string
	key    string
	logger logger.Logger
}

// New loads the default AWS configuration and returns a Store.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(client, cfg, log)
}

// NewWithClient returns a Store using client.
func NewWithClient(client ObjectAPI, cfg Config, log logger.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Store{client: client, bucket: cfg.Bucket, key: cfg.Key, logger: log}, nil
}

// read returns the object body and its ETag. A missing object reads as
// nil data and an empty ETag.
func (s *Store) read(ctx context.Context) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", scan.E(scan.ErrRemote, "get object", s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, remote.MaxPayloadSize+1))
	if err != nil {
		return nil, "", scan.E(scan.ErrRemote, "get object", s.key, err)
	}
	if len(data) > remote.MaxPayloadSize {
		return nil, "", scan.E(scan.ErrRemote, "get object", s.key, remote.ErrPayloadTooLarge)
	}
	return data, aws.ToString(out.ETag), nil
}

// load decodes the object leniently for reads.
func (s *Store) load(ctx context.Context) (*remote.Collection, error) {
	data, _, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return &remote.Collection{Sessions: remote.DecodeSessions(data, s.logger)}, nil
}

// loadDocument decodes the object for modification. An object that is
// not a session list is never overwritten.
func (s *Store) loadDocument(ctx context.Context) (*remote.Document, string, error) {
	data, etag, err := s.read(ctx)
	if err != nil {
		return nil, "", err
	}
	doc, err := remote.LoadDocument(data)
	if err != nil {
		return nil, "", scan.E(scan.ErrMalformedPayload, "load", s.key, err)
	}
	if doc.Kept() > 0 {
		s.logger.Warn("keeping undecodable records unchanged", "key", s.key, "records", doc.Kept())
	}
	return doc, etag, nil
}

func (s *Store) save(ctx context.Context, doc *remote.Document, etag string) error {
	data, err := doc.Encode()
	if err != nil {
		return err
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if etag == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(etag)
	}

	_, err = s.client.PutObject(ctx, in)
	return err
}

// mutate applies fn to the collection, retrying when another writer
// changed the object between read and write.
func (s *Store) mutate(ctx context.Context, fn func(doc *remote.Document) error) error {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		doc, etag, err := s.loadDocument(ctx)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}

		err = s.save(ctx, doc, etag)
		if err == nil {
			return nil
		}
		if !isPreconditionFailed(err) {
			return scan.E(scan.ErrRemote, "put object", s.key, err)
		}
		s.logger.Debug("object changed during write, retrying", "key", s.key, "attempt", attempt)
	}
	return scan.E(scan.ErrRemote, "put object", s.key, ErrConcurrentModification)
}

// ListSessions implements remote.Store.ListSessions.
func (s *Store) ListSessions(ctx context.Context) ([]scan.Session, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.List(), nil
}

// CreateSession implements remote.Store.CreateSession.
func (s *Store) CreateSession(ctx context.Context, sess scan.Session) (scan.Session, error) {
	var created scan.Session
	err := s.mutate(ctx, func(doc *remote.Document) error {
		var err error
		created, err = doc.Create(sess)
		return err
	})
	return created, err
}

// UpdateSession implements remote.Store.UpdateSession.
func (s *Store) UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error) {
	var updated scan.Session
	err := s.mutate(ctx, func(doc *remote.Document) error {
		var err error
		updated, err = doc.Update(id, p)
		return err
	})
	return updated, err
}

// DeleteSession implements remote.Store.DeleteSession.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.mutate(ctx, func(doc *remote.Document) error {
		return doc.Delete(id)
	})
}

// FindActiveByTag implements remote.Store.FindActiveByTag.
func (s *Store) FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.FindActiveByTag(tagID), nil
}

// Ping implements remote.Store.Ping.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return scan.E(scan.ErrRemote, "head bucket", s.bucket, err)
	}
	return nil
}

// Close implements remote.Store.Close.
func (s *Store) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
