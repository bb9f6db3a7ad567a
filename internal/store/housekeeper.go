package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

// runBackground drives the checkpoint and retention tickers until ctx is
// cancelled. Errors are logged; the next tick tries again.
func (s *Store) runBackground(ctx context.Context, done chan struct{}) {
	defer close(done)

	checkpoint := s.clock.NewTicker(s.checkpointInterval)
	defer checkpoint.Stop()
	housekeeper := s.clock.NewTicker(s.housekeeperInterval)
	defer housekeeper.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-checkpoint.C:
			if err := s.Checkpoint(ctx); err != nil {
				s.logger.Warn("checkpoint failed", "path", s.path, "error", err)
			}
		case <-housekeeper.C:
			if err := s.Housekeep(ctx); err != nil {
				s.logger.Warn("housekeeping failed", "path", s.path, "error", err)
			}
		}
	}
}

// Checkpoint commits the ambient transaction and opens a new one if any
// write happened since the previous checkpoint. It does nothing when the
// store is not ready.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.mutations == s.checkpointed {
		return nil
	}
	s.checkpointed = s.mutations
	return swapTx(ctx, s.conn)
}

// Housekeep enforces the retention bound. Without writes since the last
// run it does nothing, so an idle relay causes no disk activity. Otherwise
// it checkpoints and, while the file is at or above the maximum size,
// evicts the oldest items in read order and vacuums.
//
// Eviction silently drops telemetry.
func (s *Store) Housekeep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.mutations == s.housekept {
		return nil
	}
	s.housekept = s.mutations
	s.checkpointed = s.mutations
	if err := swapTx(ctx, s.conn); err != nil {
		return err
	}

	for {
		size, err := s.FileSize()
		if err != nil {
			return err
		}
		if size < s.maxFileSize {
			return nil
		}

		count, err := countRows(ctx, s.conn, "messages")
		if err != nil {
			return err
		}
		if count == 0 {
			s.logger.Warn("store above size limit with empty queue",
				"path", s.path, "size", size, "max_size", s.maxFileSize)
			return nil
		}

		n := int(math.Ceil(float64(count) * s.cleanupFactor))
		if n < 1 {
			n = 1
		}
		evicted, err := s.evictOldest(ctx, n)
		if err != nil {
			return err
		}
		s.logger.Warn("store size limit reached, evicted oldest items",
			"path", s.path,
			"size", size,
			"max_size", s.maxFileSize,
			"evicted", evicted,
			"remaining", count-evicted,
		)

		if err := s.compact(ctx); err != nil {
			return err
		}
	}
}

// evictOldest deletes the first n items in read order.
func (s *Store) evictOldest(ctx context.Context, n int) (int, error) {
	res, err := s.conn.ExecContext(ctx, `
		DELETE FROM messages WHERE id IN (
			SELECT id FROM messages ORDER BY `+orderClause(s.priority)+` LIMIT ?
		)
	`, n)
	if err != nil {
		return 0, fmt.Errorf("evict oldest: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict oldest: rows affected: %w", err)
	}
	s.mutations++
	s.housekept = s.mutations
	s.checkpointed = s.mutations
	return int(affected), nil
}

// compact commits, rebuilds the file without free pages, folds the WAL back
// into the database and reopens the ambient transaction.
func (s *Store) compact(ctx context.Context) error {
	if err := commitTx(ctx, s.conn); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return beginTx(ctx, s.conn)
}

// countRows returns the number of rows in table.
func countRows(ctx context.Context, conn *sql.Conn, table string) (int, error) {
	var n int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(id) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
