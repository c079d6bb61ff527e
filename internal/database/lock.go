package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DistributedLock is a held row-based lock in the distributed_locks table.
type DistributedLock struct {
	db         *Database
	lockName   string
	instanceID string
	ttl        time.Duration
	stopCh     chan struct{}
}

// AcquireLock attempts to take lockName, stealing it if the prior holder's
// lease has expired. Used through PostgresLocker as the per-project mutex
// across orchestrator replicas.
func (d *Database) AcquireLock(ctx context.Context, lockName string, ttl time.Duration) (*DistributedLock, error) {
	instanceID := uuid.New().String()
	expiresAt := time.Now().Add(ttl)

	result, err := d.db.ExecContext(ctx, rebind(`
		INSERT INTO distributed_locks (lock_name, instance_id, expires_at, heartbeat_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (lock_name) DO NOTHING
	`), lockName, instanceID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking lock acquisition: %w", err)
	}

	if rows == 0 {
		var currentExpiry time.Time
		if err := d.db.QueryRowContext(ctx, rebind(`SELECT expires_at FROM distributed_locks WHERE lock_name = ?`), lockName).Scan(&currentExpiry); err != nil {
			return nil, fmt.Errorf("lock held by another instance")
		}
		if !time.Now().After(currentExpiry) {
			return nil, fmt.Errorf("lock held by another instance")
		}
		stolen, err := d.db.ExecContext(ctx, rebind(`
			UPDATE distributed_locks SET instance_id = ?, expires_at = ?, heartbeat_at = CURRENT_TIMESTAMP
			WHERE lock_name = ? AND expires_at < CURRENT_TIMESTAMP
		`), instanceID, expiresAt, lockName)
		if err != nil {
			return nil, fmt.Errorf("stealing expired lock: %w", err)
		}
		if n, _ := stolen.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("lock held by another instance")
		}
	}

	lock := &DistributedLock{db: d, lockName: lockName, instanceID: instanceID, ttl: ttl, stopCh: make(chan struct{})}
	go lock.heartbeat()
	return lock, nil
}

func (dl *DistributedLock) heartbeat() {
	ticker := time.NewTicker(dl.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			expiresAt := time.Now().Add(dl.ttl)
			_, err := dl.db.db.ExecContext(ctx, rebind(`
				UPDATE distributed_locks SET heartbeat_at = CURRENT_TIMESTAMP, expires_at = ?
				WHERE lock_name = ? AND instance_id = ?
			`), expiresAt, dl.lockName, dl.instanceID)
			cancel()
			if err != nil {
				return
			}
		case <-dl.stopCh:
			return
		}
	}
}

// Release drops the lock row and stops the heartbeat goroutine.
func (dl *DistributedLock) Release(ctx context.Context) error {
	close(dl.stopCh)
	_, err := dl.db.db.ExecContext(ctx, rebind(`DELETE FROM distributed_locks WHERE lock_name = ? AND instance_id = ?`), dl.lockName, dl.instanceID)
	if err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

// Locker serializes a critical section by key. InMemoryLocker is sufficient
// for a single-process deployment; PostgresLocker coordinates across
// replicas using the distributed_locks table.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// PostgresLocker implements Locker atop AcquireLock/Release.
type PostgresLocker struct {
	DB  *Database
	TTL time.Duration
}

func NewPostgresLocker(db *Database) *PostgresLocker {
	return &PostgresLocker{DB: db, TTL: 30 * time.Second}
}

func (l *PostgresLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock, err := l.DB.AcquireLock(ctx, key, l.TTL)
	if err != nil {
		return err
	}
	defer lock.Release(context.Background())
	return fn(ctx)
}
