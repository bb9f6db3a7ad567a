package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLite messages for the two benign transaction races: a checkpoint
// reopening a transaction that is already open, and shutdown committing
// after the housekeeper already did.
const (
	errTxAlreadyOpen = "within a transaction"
	errTxNotOpen     = "no transaction is active"
)

// beginTx opens the ambient transaction.
func beginTx(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		if strings.Contains(err.Error(), errTxAlreadyOpen) {
			return nil
		}
		return fmt.Errorf("begin ambient transaction: %w", err)
	}
	return nil
}

// commitTx commits the ambient transaction.
func commitTx(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		if strings.Contains(err.Error(), errTxNotOpen) {
			return nil
		}
		return fmt.Errorf("commit ambient transaction: %w", err)
	}
	return nil
}

// swapTx commits pending writes and opens the next ambient transaction.
func swapTx(ctx context.Context, conn *sql.Conn) error {
	if err := commitTx(ctx, conn); err != nil {
		return err
	}
	return beginTx(ctx, conn)
}
