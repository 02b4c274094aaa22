package db

import (
	"errors"
	"hash/fnv"

	"gorm.io/gorm"
)

// AdvisoryLockKey maps a business identifier onto the signed 64-bit keyspace
// pg_advisory_xact_lock expects. FNV-1a keeps the mapping deterministic across
// processes so every writer to the same identifier contends on the same lock.
func AdvisoryLockKey(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}

// AdvisoryXactLock takes a transaction-scoped advisory lock keyed by the given
// identifier. The lock is released automatically on commit or rollback.
// Acquisition blocks until the lock is granted or the transaction's context is
// canceled. SQLite (tests) has no advisory locks; writers there already
// serialize on the database file.
func AdvisoryXactLock(tx *gorm.DB, id string) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", AdvisoryLockKey(id)).Error
}
