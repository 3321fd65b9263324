package store

import (
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Key prefixes.
var (
	prefixSession = []byte("s/") // s/<sessionId> -> Session
	prefixOp      = []byte("q/") // q/<operationId> -> Operation
	prefixOrder   = []byte("o/") // o/<orderKey> -> operationId
)

type badgerStore struct {
	db     *badger.DB
	logger logger.Logger
}

// NewBadger opens (or creates) a badger database in the directory cfg.Path.
func NewBadger(cfg Config, log logger.Logger) (Store, error) {
	dir := expandHome(cfg.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	log.Info("local store opened", "engine", EngineBadger, "db_path", dir)

	return &badgerStore{db: db, logger: log}, nil
}

func withPrefix(prefix []byte, id string) []byte {
	key := make([]byte, 0, len(prefix)+len(id))
	key = append(key, prefix...)
	return append(key, id...)
}

// scanPrefix calls fn for every value under prefix in key order.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Sessions implements Store.Sessions.
func (s *badgerStore) Sessions() ([]scan.Session, error) {
	var out []scan.Session
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixSession, func(key, val []byte) error {
			sess, err := decodeSession(val)
			if err != nil {
				s.logger.Warn("skipping unreadable session", "key", string(key), "error", err)
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
func (s *badgerStore) Session(id string) (*scan.Session, error) {
	var found *scan.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(withPrefix(prefixSession, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return scan.E(ErrNotFound, "get session", id, nil)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sess, decErr := decodeSession(val)
			if decErr != nil {
				return decErr
			}
			found = &sess
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// PutSession implements Store.PutSession.
func (s *badgerStore) PutSession(sess scan.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(withPrefix(prefixSession, sess.SessionID), data)
	})
}

// DeleteSession implements Store.DeleteSession.
func (s *badgerStore) DeleteSession(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(withPrefix(prefixSession, id))
	})
}

// ReplaceSessions implements Store.ReplaceSessions.
func (s *badgerStore) ReplaceSessions(sessions []scan.Session) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, prefixSession); err != nil {
			return fmt.Errorf("failed to clear sessions: %w", err)
		}
		for _, sess := range sessions {
			data, err := encodeSession(sess)
			if err != nil {
				return err
			}
			if err := txn.Set(withPrefix(prefixSession, sess.SessionID), data); err != nil {
				return fmt.Errorf("failed to store session: %w", err)
			}
		}
		return nil
	})
}

// Enqueue implements Store.Enqueue.
func (s *badgerStore) Enqueue(op scan.Operation) error {
	data, err := encodeOperation(op)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.dropOrder(txn, op.ID); err != nil {
			return err
		}
		if err := txn.Set(withPrefix(prefixOp, op.ID), data); err != nil {
			return fmt.Errorf("failed to store operation: %w", err)
		}
		return txn.Set(withPrefix(prefixOrder, string(orderKey(op))), []byte(op.ID))
	})
}

// dropOrder removes the order entry of the stored version of operation id.
func (s *badgerStore) dropOrder(txn *badger.Txn, id string) error {
	item, err := txn.Get(withPrefix(prefixOp, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		old, decErr := decodeOperation(val)
		if decErr != nil {
			return nil
		}
		return txn.Delete(withPrefix(prefixOrder, string(orderKey(old))))
	})
}

// Queue implements Store.Queue.
func (s *badgerStore) Queue() ([]scan.Operation, error) {
	var ops []scan.Operation
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixOrder, func(_, id []byte) error {
			item, err := txn.Get(withPrefix(prefixOp, string(id)))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				op, decErr := decodeOperation(val)
				if decErr != nil {
					s.logger.Warn("skipping unreadable operation", "id", string(id), "error", decErr)
					return nil
				}
				ops = append(ops, op)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// RemoveOperation implements Store.RemoveOperation.
func (s *badgerStore) RemoveOperation(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.dropOrder(txn, id); err != nil {
			return err
		}
		return txn.Delete(withPrefix(prefixOp, id))
	})
}

// ReplaceQueue implements Store.ReplaceQueue.
func (s *badgerStore) ReplaceQueue(ops []scan.Operation) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{prefixOp, prefixOrder} {
			if err := deletePrefix(txn, prefix); err != nil {
				return fmt.Errorf("failed to clear queue: %w", err)
			}
		}
		for _, op := range ops {
			data, err := encodeOperation(op)
			if err != nil {
				return err
			}
			if err := txn.Set(withPrefix(prefixOp, op.ID), data); err != nil {
				return err
			}
			if err := txn.Set(withPrefix(prefixOrder, string(orderKey(op))), []byte(op.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingCount implements Store.PendingCount.
func (s *badgerStore) PendingCount() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixOp
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefixOp); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close implements Store.Close.
func (s *badgerStore) Close() error {
	return s.db.Close()
}
