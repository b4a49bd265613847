package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/harmony-svc/orchestrator/internal/interfaces"
)

// maintenanceLock is an advisory lock row keyed by loop name
type maintenanceLock struct {
	Name       string `badgerhold:"key"`
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// LockStorage implements advisory locks over Badger. A lock is an insert
// that fails when the key exists; expired locks are stolen. This keeps each
// maintenance loop on a single replica per tick.
type LockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLockStorage creates a new LockStorage instance
func NewLockStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LockStorage {
	return &LockStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LockStorage) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	lock := &maintenanceLock{
		Name:       name,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	err := s.db.Store().Insert(name, lock)
	if err == nil {
		return true, nil
	}
	if err != badgerhold.ErrKeyExists {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	// Key exists: steal it only if the holder's TTL has lapsed
	var existing maintenanceLock
	if err := s.db.Store().Get(name, &existing); err != nil {
		if err == badgerhold.ErrNotFound {
			// Raced with a release; let the next tick retry
			return false, nil
		}
		return false, fmt.Errorf("failed to read lock %s: %w", name, err)
	}
	if existing.ExpiresAt.After(now) {
		return false, nil
	}

	s.logger.Warn().
		Str("lock", name).
		Str("expired_at", existing.ExpiresAt.Format(time.RFC3339)).
		Msg("Stealing expired maintenance lock")

	if err := s.db.Store().Upsert(name, lock); err != nil {
		return false, fmt.Errorf("failed to steal lock %s: %w", name, err)
	}
	return true, nil
}

func (s *LockStorage) Release(ctx context.Context, name string) error {
	if err := s.db.Store().Delete(name, &maintenanceLock{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
