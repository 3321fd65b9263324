package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// orderKey sorts operations by enqueue time, then by id: 8 bytes of
// big-endian unix nanoseconds followed by the operation id.
func orderKey(op scan.Operation) []byte {
	key := make([]byte, 8, 8+len(op.ID))
	binary.BigEndian.PutUint64(key, uint64(op.EnqueuedAt.UnixNano()))
	return append(key, op.ID...)
}

func sortOperations(ops []scan.Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].EnqueuedAt.Equal(ops[j].EnqueuedAt) {
			return ops[i].EnqueuedAt.Before(ops[j].EnqueuedAt)
		}
		return ops[i].ID < ops[j].ID
	})
}

func encodeSession(s scan.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %w", s.SessionID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (scan.Session, error) {
	var s scan.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s, nil
}

// encodeOperation refuses malformed operations so that nothing the queue
// holds can fail validation on replay.
func encodeOperation(op scan.Operation) ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal operation %s: %w", op.ID, err)
	}
	return data, nil
}

func decodeOperation(data []byte) (scan.Operation, error) {
	var op scan.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return op, fmt.Errorf("failed to unmarshal operation: %w", err)
	}
	return op, nil
}

// expandHome expands ~ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
