// Package dbsession wraps the durable store (component C2, spec §4.2): a
// gorm.DB with row-level locking helpers and PostgreSQL advisory locks for
// the rare cross-row critical sections the reservation saga needs around
// the fast store. Everything here is adapted from the teacher's
// internal/database package plus the advisory-lock behavior of
// original_source/app/core/database.go's DatabaseManager.
package dbsession

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/binary"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dialect distinguishes Postgres (advisory locks are real) from SQLite
// (used in tests, where advisory locks are a documented no-op).
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Session is the durable-store handle every repository and the saga
// orchestrator depend on.
type Session struct {
	db      *gorm.DB
	dialect Dialect
	logger  *zap.Logger
}

// New wraps an already-opened *gorm.DB. Callers open the DB (via
// gorm.Open with the postgres or sqlite driver) in cmd/server/main.go or
// in tests, matching the teacher's convention of constructing *gorm.DB at
// the composition root and injecting it downstream.
func New(db *gorm.DB, dialect Dialect, logger *zap.Logger) *Session {
	return &Session{db: db, dialect: dialect, logger: logger}
}

// DB returns the underlying *gorm.DB scoped to ctx, for repositories that
// need direct query building.
func (s *Session) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Transaction runs fn inside a database transaction, rolling back on any
// returned error, matching the teacher's Database.Transaction signature.
func (s *Session) Transaction(ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	return s.db.WithContext(ctx).Transaction(fn, opts...)
}

// LockForUpdate applies a SELECT ... FOR UPDATE row lock to query, the
// mechanism the booking and event repositories use to serialize seat
// writes within a single durable-store transaction (spec §4.2).
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// generateLockID derives a stable 32-bit signed integer lock id from a
// resource type and id, mirroring DatabaseManager.generate_lock_id.
func generateLockID(resourceType, resourceID string) int32 {
	sum := md5.Sum([]byte(resourceType + ":" + resourceID))
	return int32(binary.BigEndian.Uint32(sum[:4]))
}

// TryAdvisoryLock attempts pg_try_advisory_lock once, retrying with
// exponential backoff (10ms doubling to 1s) until timeout elapses. On
// SQLite it is a documented no-op that always succeeds, since SQLite has
// no cross-connection advisory lock primitive and tests run single-writer
// anyway.
func (s *Session) TryAdvisoryLock(ctx context.Context, tx *gorm.DB, resourceType, resourceID string, timeout time.Duration) (bool, error) {
	if s.dialect == DialectSQLite {
		return true, nil
	}

	lockID := generateLockID(resourceType, resourceID)
	acquired, err := s.tryAdvisoryLockOnce(ctx, tx, lockID)
	if err != nil {
		return false, err
	}
	if acquired || timeout <= 0 {
		return acquired, nil
	}

	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
		acquired, err = s.tryAdvisoryLockOnce(ctx, tx, lockID)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}
		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}

	s.logger.Warn("advisory lock timed out", zap.Int32("lock_id", lockID), zap.String("resource_type", resourceType), zap.String("resource_id", resourceID))
	return false, nil
}

func (s *Session) tryAdvisoryLockOnce(ctx context.Context, tx *gorm.DB, lockID int32) (bool, error) {
	var acquired bool
	if err := tx.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", lockID).Scan(&acquired).Error; err != nil {
		return false, err
	}
	return acquired, nil
}

// AdvisoryUnlock releases a lock taken by TryAdvisoryLock. No-op on
// SQLite for the same reason as above.
func (s *Session) AdvisoryUnlock(ctx context.Context, tx *gorm.DB, resourceType, resourceID string) error {
	if s.dialect == DialectSQLite {
		return nil
	}
	lockID := generateLockID(resourceType, resourceID)
	var released bool
	if err := tx.WithContext(ctx).Raw("SELECT pg_advisory_unlock(?)", lockID).Scan(&released).Error; err != nil {
		return err
	}
	if !released {
		s.logger.Warn("advisory lock was not held at release", zap.Int32("lock_id", lockID), zap.String("resource_type", resourceType), zap.String("resource_id", resourceID))
	}
	return nil
}

// WithAdvisoryLock runs fn while holding the advisory lock identified by
// (resourceType, resourceID), releasing it unconditionally afterward.
// ErrAdvisoryLockTimeout is returned if the lock could not be acquired
// within timeout.
var ErrAdvisoryLockTimeout = errors.New("dbsession: advisory lock acquisition timed out")

func (s *Session) WithAdvisoryLock(ctx context.Context, tx *gorm.DB, resourceType, resourceID string, timeout time.Duration, fn func() error) error {
	acquired, err := s.TryAdvisoryLock(ctx, tx, resourceType, resourceID, timeout)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrAdvisoryLockTimeout
	}
	defer func() {
		if uerr := s.AdvisoryUnlock(ctx, tx, resourceType, resourceID); uerr != nil {
			s.logger.Error("failed to release advisory lock", zap.Error(uerr), zap.String("resource_type", resourceType), zap.String("resource_id", resourceID))
		}
	}()
	return fn()
}

// Ping checks connectivity for health probes.
func (s *Session) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate runs gorm AutoMigrate for the given models, used by
// cmd/server/main.go at startup and by tests constructing an in-memory
// SQLite session.
func (s *Session) AutoMigrate(models ...interface{}) error {
	return s.db.AutoMigrate(models...)
}

// Dialect reports which database this session is backed by, so callers
// can skip database-specific DDL (advisory locks, triggers) that SQLite
// has no equivalent for.
func (s *Session) Dialect() Dialect {
	return s.dialect
}

// Exec runs raw DDL/DML outside of gorm's model mapping, for schema
// objects AutoMigrate doesn't know how to create (triggers, functions).
func (s *Session) Exec(ctx context.Context, sql string, args ...interface{}) error {
	return s.db.WithContext(ctx).Exec(sql, args...).Error
}
