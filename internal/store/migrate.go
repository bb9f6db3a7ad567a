package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Schema version tracking:
// 0 - no schema, or a legacy layout written before versioning
// 1 - messages(id, data) without timestamps (never stamped, detected by shape)
// 2 - timestamped messages with priority indexes, configurations table
const currentSchemaVersion = 2

// legacyMessagesTable holds v1 rows while the current schema is created.
const legacyMessagesTable = "messages_legacy"

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(ctx context.Context, conn *sql.Conn, now time.Time) error {
	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < currentSchemaVersion {
		if err := setAsideLegacyMessages(ctx, conn); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if version < currentSchemaVersion {
		if err := migrateToV2(ctx, conn, now); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// setAsideLegacyMessages inspects an existing messages table. A table
// without an integer id column cannot be ordered and is dropped. A v1
// table is renamed so that the current layout can be created and filled
// from it.
func setAsideLegacyMessages(ctx context.Context, conn *sql.Conn) error {
	def, err := tableDefinition(ctx, conn, "messages")
	if err != nil || def == "" {
		return err
	}

	switch {
	case !strings.Contains(def, "id INTEGER"):
		if _, err := conn.ExecContext(ctx, "DROP TABLE messages"); err != nil {
			return fmt.Errorf("drop unversioned messages: %w", err)
		}
	case !strings.Contains(def, "ts INTEGER"):
		if _, err := conn.ExecContext(ctx, "ALTER TABLE messages RENAME TO "+legacyMessagesTable); err != nil {
			return fmt.Errorf("set aside v1 messages: %w", err)
		}
	}
	return nil
}

// migrateToV2 copies v1 rows into the current table, keeping their ids.
// Legacy rows carry no event time; they are stamped with the migration time
// and classified as non-events.
func migrateToV2(ctx context.Context, conn *sql.Conn, now time.Time) error {
	def, err := tableDefinition(ctx, conn, legacyMessagesTable)
	if err != nil || def == "" {
		return err
	}

	if _, err := conn.ExecContext(ctx, `
		INSERT INTO messages (id, ts, is_event, data)
		SELECT id, ?, 0, data FROM `+legacyMessagesTable+`
		WHERE data IS NOT NULL
		ORDER BY id ASC
	`, now.UnixMilli()); err != nil {
		return fmt.Errorf("migrate to v2: copy messages: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "DROP TABLE "+legacyMessagesTable); err != nil {
		return fmt.Errorf("migrate to v2: drop legacy table: %w", err)
	}
	return nil
}

// tableDefinition returns the CREATE statement of a table, or "" if the
// table does not exist.
func tableDefinition(ctx context.Context, conn *sql.Conn, name string) (string, error) {
	var def sql.NullString
	err := conn.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read definition of %s: %w", name, err)
	}
	return def.String, nil
}
