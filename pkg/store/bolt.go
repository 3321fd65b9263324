package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Bucket names.
var (
	bucketSessions   = []byte("sessions")    // sessionId -> Session
	bucketQueue      = []byte("queue")       // operationId -> Operation
	bucketQueueOrder = []byte("queue_order") // orderKey -> operationId
)

type boltStore struct {
	db     *bolt.DB
	logger logger.Logger
}

// NewBolt opens (or creates) a bbolt database at cfg.Path.
//
// Parameters:
//   - cfg: Store configuration (database path and file lock timeout)
//   - log: Logger instance
//
// Returns:
//   - Store backed by the database file
//   - Error if the directory cannot be created, the file lock is not
//     acquired within cfg.Timeout or the buckets cannot be initialized
func NewBolt(cfg Config, log logger.Logger) (Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := expandHome(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSessions, bucketQueue, bucketQueueOrder} {
			if _, createErr := tx.CreateBucketIfNotExists(name); createErr != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, createErr)
			}
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error", "error", closeErr)
		}
		return nil, err
	}

	log.Info("local store opened", "engine", EngineBolt, "db_path", dbPath)

	return &boltStore{db: db, logger: log}, nil
}

// Sessions implements Store.Sessions.
func (s *boltStore) Sessions() ([]scan.Session, error) {
	var out []scan.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			sess, err := decodeSession(v)
			if err != nil {
				s.logger.Warn("skipping unreadable session", "key", string(k), "error", err)
				return nil
			}
			out = append(out, sess)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Session implements Store.Session.
func (s *boltStore) Session(id string) (*scan.Session, error) {
	var found *scan.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return scan.E(ErrNotFound, "get session", id, nil)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		found = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// PutSession implements Store.PutSession.
func (s *boltStore) PutSession(sess scan.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if putErr := tx.Bucket(bucketSessions).Put([]byte(sess.SessionID), data); putErr != nil {
			return fmt.Errorf("failed to store session: %w", putErr)
		}
		return nil
	})
}

// DeleteSession implements Store.DeleteSession.
func (s *boltStore) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(id))
	})
}

// ReplaceSessions implements Store.ReplaceSessions.
func (s *boltStore) ReplaceSessions(sessions []scan.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSessions); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("failed to clear sessions: %w", err)
		}
		b, err := tx.CreateBucket(bucketSessions)
		if err != nil {
			return fmt.Errorf("failed to recreate sessions bucket: %w", err)
		}
		for _, sess := range sessions {
			data, encErr := encodeSession(sess)
			if encErr != nil {
				return encErr
			}
			if putErr := b.Put([]byte(sess.SessionID), data); putErr != nil {
				return fmt.Errorf("failed to store session: %w", putErr)
			}
		}
		return nil
	})
}

// Enqueue implements Store.Enqueue.
func (s *boltStore) Enqueue(op scan.Operation) error {
	data, err := encodeOperation(op)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		order := tx.Bucket(bucketQueueOrder)

		// Drop the old order entry when an operation is rewritten.
		if prev := queue.Get([]byte(op.ID)); prev != nil {
			if old, decErr := decodeOperation(prev); decErr == nil {
				if delErr := order.Delete(orderKey(old)); delErr != nil {
					return delErr
				}
			}
		}

		if putErr := queue.Put([]byte(op.ID), data); putErr != nil {
			return fmt.Errorf("failed to store operation: %w", putErr)
		}
		if putErr := order.Put(orderKey(op), []byte(op.ID)); putErr != nil {
			return fmt.Errorf("failed to index operation: %w", putErr)
		}
		return nil
	})
}

// Queue implements Store.Queue.
func (s *boltStore) Queue() ([]scan.Operation, error) {
	var ops []scan.Operation
	err := s.db.View(func(tx *bolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		c := tx.Bucket(bucketQueueOrder).Cursor()
		for k, id := c.First(); k != nil; k, id = c.Next() {
			data := queue.Get(id)
			if data == nil {
				continue
			}
			op, err := decodeOperation(data)
			if err != nil {
				s.logger.Warn("skipping unreadable operation", "id", string(id), "error", err)
				continue
			}
			ops = append(ops, op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// RemoveOperation implements Store.RemoveOperation.
func (s *boltStore) RemoveOperation(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		data := queue.Get([]byte(id))
		if data == nil {
			return nil
		}
		if op, err := decodeOperation(data); err == nil {
			if delErr := tx.Bucket(bucketQueueOrder).Delete(orderKey(op)); delErr != nil {
				return delErr
			}
		}
		return queue.Delete([]byte(id))
	})
}

// ReplaceQueue implements Store.ReplaceQueue.
func (s *boltStore) ReplaceQueue(ops []scan.Operation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketQueue, bucketQueueOrder} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return fmt.Errorf("failed to clear %s: %w", name, err)
			}
		}
		queue, err := tx.CreateBucket(bucketQueue)
		if err != nil {
			return err
		}
		order, err := tx.CreateBucket(bucketQueueOrder)
		if err != nil {
			return err
		}
		for _, op := range ops {
			data, encErr := encodeOperation(op)
			if encErr != nil {
				return encErr
			}
			if putErr := queue.Put([]byte(op.ID), data); putErr != nil {
				return putErr
			}
			if putErr := order.Put(orderKey(op), []byte(op.ID)); putErr != nil {
				return putErr
			}
		}
		return nil
	})
}

// PendingCount implements Store.PendingCount.
func (s *boltStore) PendingCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	return n, err
}

// Close implements Store.Close.
func (s *boltStore) Close() error {
	return s.db.Close()
}
