// Package redisstore keeps the remote session collection in Redis.
//
// Layout, for the default prefix:
//
//	gastmeting:session:<sessionId>  JSON session
//	gastmeting:sessions             set of session ids
//
// Writes run in WATCH/MULTI transactions and are retried when a watched
// key changes underneath them.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

const (
	// DefaultPrefix namespaces every key.
	DefaultPrefix = "gastmeting"

	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	maxTxAttempts = 3
)

// Config contains Redis backend configuration.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	Prefix string
}

// Store implements remote.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

// New returns a Store. It does not contact the server, so a kiosk can
// start while Redis is unreachable.
func New(cfg Config, log logger.Logger) (*Store, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("redisstore: url is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return NewWithClient(redis.NewClient(opts), cfg.Prefix, log), nil
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(client *redis.Client, prefix string, log logger.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Store{client: client, prefix: prefix, logger: log}
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + ":session:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + ":sessions"
}

// watch runs fn in an optimistic transaction over keys, retrying when a
// watched key is modified concurrently.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("redis transaction conflict, retrying", "keys", keys, "attempt", attempt+1)
	}
	return err
}

func (s *Store) get(ctx context.Context, cmd redis.Cmdable, id string) (scan.Session, error) {
	data, err := cmd.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return scan.Session{}, scan.E(scan.ErrNotFound, "get", id, nil)
	}
	if err != nil {
		return scan.Session{}, scan.E(scan.ErrRemote, "get", id, err)
	}
	return remote.DecodeSession(data)
}

// ListSessions implements remote.Store.ListSessions.
func (s *Store) ListSessions(ctx context.Context) ([]scan.Session, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, scan.E(scan.ErrRemote, "list", "", err)
	}
	if len(ids) == 0 {
		return []scan.Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, scan.E(scan.ErrRemote, "list", "", err)
	}

	out := make([]scan.Session, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		sess, err := remote.DecodeSession([]byte(str))
		if err != nil {
			s.logger.Warn("dropping remote record", "session_id", ids[i], "error", err)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// CreateSession implements remote.Store.CreateSession.
func (s *Store) CreateSession(ctx context.Context, sess scan.Session) (scan.Session, error) {
	if err := sess.Validate(); err != nil {
		return scan.Session{}, err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return scan.Session{}, fmt.Errorf("failed to marshal session: %w", err)
	}

	key := s.sessionKey(sess.SessionID)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return scan.E(scan.ErrRemote, "create", sess.SessionID, err)
		}
		if n > 0 {
			return scan.E(scan.ErrConflict, "create", sess.SessionID, nil)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey(), sess.SessionID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return scan.Session{}, wrap("create", sess.SessionID, err)
	}
	return sess.Clone(), nil
}

// UpdateSession implements remote.Store.UpdateSession.
func (s *Store) UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error) {
	key := s.sessionKey(id)
	var updated scan.Session
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = p.Apply(current)
		if err := updated.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return scan.Session{}, wrap("update", id, err)
	}
	return updated, nil
}

// DeleteSession implements remote.Store.DeleteSession.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	key := s.sessionKey(id)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return scan.E(scan.ErrNotFound, "delete", id, nil)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.indexKey(), id)
			return nil
		})
		return err
	}, key)
	return wrap("delete", id, err)
}

// FindActiveByTag implements remote.Store.FindActiveByTag.
func (s *Store) FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error) {
	all, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	c := remote.Collection{Sessions: all}
	return c.FindActiveByTag(tagID), nil
}

// Ping implements remote.Store.Ping.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return scan.E(scan.ErrRemote, "ping", "", err)
	}
	return nil
}

// Close implements remote.Store.Close.
func (s *Store) Close() error {
	return s.client.Close()
}

// wrap leaves classified errors alone and marks the rest as remote failures.
func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *scan.Error
	if errors.As(err, &se) {
		return err
	}
	return scan.E(scan.ErrRemote, op, id, err)
}
