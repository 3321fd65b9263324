package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xmhha/gastmeting/pkg/config"
	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/remote/filestore"
	"github.com/0xmhha/gastmeting/pkg/remote/httpapi"
	"github.com/0xmhha/gastmeting/pkg/remote/pgstore"
	"github.com/0xmhha/gastmeting/pkg/remote/redisstore"
	"github.com/0xmhha/gastmeting/pkg/remote/s3store"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// newRemote builds the remote store selected by cfg.Remote.Backend.
func newRemote(ctx context.Context, cfg *config.Config, log logger.Logger) (remote.Store, error) {
	rc := cfg.Remote
	log = logger.Named(log, "remote").With("backend", rc.Backend)

	switch rc.Backend {
	case config.BackendMemory:
		log.Warn("memory backend keeps sessions in this process only")
		return remote.NewMemory(), nil

	case config.BackendHTTP:
		return httpapi.New(httpapi.Config{
			BaseURL:    rc.HTTP.BaseURL,
			Timeout:    rc.HTTP.Timeout,
			SigningKey: rc.HTTP.SigningKey,
			KioskID:    cfg.Kiosk.ID,
		}, log)

	case config.BackendFile:
		return filestore.New(rc.File.Path, log)

	case config.BackendS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:       rc.S3.Bucket,
			Key:          rc.S3.Key,
			Region:       rc.S3.Region,
			Endpoint:     rc.S3.Endpoint,
			UsePathStyle: rc.S3.UsePathStyle,
		}, log)

	case config.BackendPostgres:
		return pgstore.New(ctx, pgstore.Config{
			DSN:      rc.Postgres.DSN,
			Table:    rc.Postgres.Table,
			MaxConns: rc.Postgres.MaxConns,
		}, log)

	case config.BackendRedis:
		return redisstore.New(redisstore.Config{
			URL:    rc.Redis.URL,
			Prefix: rc.Redis.Prefix,
		}, log)

	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidBackend, rc.Backend)
	}
}

// lazyRemote connects on first use so that the kiosk starts while the
// backend is unreachable. A failed connect is retried on the next call.
type lazyRemote struct {
	connect func(ctx context.Context) (remote.Store, error)

	mu sync.Mutex
	rs remote.Store
}

func newLazyRemote(connect func(ctx context.Context) (remote.Store, error)) *lazyRemote {
	return &lazyRemote{connect: connect}
}

func (l *lazyRemote) get(ctx context.Context) (remote.Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rs != nil {
		return l.rs, nil
	}
	rs, err := l.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote store unavailable: %w", err)
	}
	l.rs = rs
	return rs, nil
}

func (l *lazyRemote) ListSessions(ctx context.Context) ([]scan.Session, error) {
	rs, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return rs.ListSessions(ctx)
}

func (l *lazyRemote) CreateSession(ctx context.Context, s scan.Session) (scan.Session, error) {
	rs, err := l.get(ctx)
	if err != nil {
		return scan.Session{}, err
	}
	return rs.CreateSession(ctx, s)
}

func (l *lazyRemote) UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error) {
	rs, err := l.get(ctx)
	if err != nil {
		return scan.Session{}, err
	}
	return rs.UpdateSession(ctx, id, p)
}

func (l *lazyRemote) DeleteSession(ctx context.Context, id string) error {
	rs, err := l.get(ctx)
	if err != nil {
		return err
	}
	return rs.DeleteSession(ctx, id)
}

func (l *lazyRemote) FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error) {
	rs, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return rs.FindActiveByTag(ctx, tagID)
}

func (l *lazyRemote) Ping(ctx context.Context) error {
	rs, err := l.get(ctx)
	if err != nil {
		return err
	}
	return rs.Ping(ctx)
}

func (l *lazyRemote) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rs == nil {
		return nil
	}
	err := l.rs.Close()
	l.rs = nil
	return err
}
