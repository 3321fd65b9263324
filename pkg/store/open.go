package store

import (
	"fmt"
	"strings"

	"github.com/0xmhha/gastmeting/pkg/logger"
)

// Open opens the engine named in cfg.Engine.
func Open(cfg Config, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Noop()
	}

	switch strings.ToLower(cfg.Engine) {
	case "", EngineBolt:
		return NewBolt(cfg, log)
	case EngineBadger:
		return NewBadger(cfg, log)
	case EngineMemory:
		log.Info("local store opened", "engine", EngineMemory)
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// OpenOrMemory opens the configured engine and falls back to the in-memory
// store when that fails. The kiosk keeps working, but nothing written
// survives a restart.
//
// Returns the store and whether it is durable.
func OpenOrMemory(cfg Config, log logger.Logger) (Store, bool) {
	if log == nil {
		log = logger.Noop()
	}

	st, err := Open(cfg, log)
	if err != nil {
		log.Error("local store unavailable, falling back to memory",
			"engine", cfg.Engine, "path", cfg.Path, "error", err)
		return NewMemory(), false
	}
	return st, !strings.EqualFold(cfg.Engine, EngineMemory)
}
