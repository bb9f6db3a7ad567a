package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/edgerelay/internal/model"
)

// ConfigGroup is the full pending set of one category in insertion order.
type ConfigGroup struct {
	Category model.Category
	Items    []json.RawMessage
}

// PendingConfig is the result of ReadAllPending. MinID and MaxID span the
// rows of all categories combined.
type PendingConfig struct {
	Groups []ConfigGroup
	MinID  int64
	MaxID  int64
}

// Empty reports whether nothing was pending.
func (p PendingConfig) Empty() bool {
	return len(p.Groups) == 0
}

// ConfigStore holds configuration snapshots waiting to be sent, on the
// same substrate as the telemetry queue.
//
// Deletion is by id range, not by id set: rows stored between
// ReadAllPending and the matching DeleteRange whose ids fall inside the
// range are removed without having been read.
type ConfigStore struct {
	s *Store
}

// Configs returns the configuration store backed by s.
func (s *Store) Configs() *ConfigStore {
	return &ConfigStore{s: s}
}

// StoreConfig appends one category group and returns the assigned ids.
func (c *ConfigStore) StoreConfig(ctx context.Context, category model.Category, items []json.RawMessage) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if !category.Valid() {
		return nil, fmt.Errorf("store config: unknown category %q", category)
	}

	conn, err := c.s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store config: %w", err)
	}
	defer c.s.mu.Unlock()

	ids := make([]int64, 0, len(items))
	for start := 0; start < len(items); start += insertChunkSize {
		chunk := items[start:min(start+insertChunkSize, len(items))]

		var b strings.Builder
		b.WriteString("INSERT INTO configurations (category, data) VALUES ")
		args := make([]any, 0, len(chunk)*2)
		for i, payload := range chunk {
			data, err := marshalPayload(payload)
			if err != nil {
				return ids, fmt.Errorf("store config: item %d: %w", start+i, err)
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?)")
			args = append(args, string(category), data)
		}

		res, err := conn.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return ids, fmt.Errorf("store config: %w", err)
		}
		last, err := res.LastInsertId()
		if err != nil {
			return ids, fmt.Errorf("store config: last insert id: %w", err)
		}
		for id := last - int64(len(chunk)) + 1; id <= last; id++ {
			ids = append(ids, id)
		}
		c.s.mutations++
	}
	return ids, nil
}

// ReadAllPending returns every category with pending rows, each with its
// full pending set in insertion order, plus the id span over all rows.
// Groups appear in order of their first pending row.
func (c *ConfigStore) ReadAllPending(ctx context.Context) (PendingConfig, error) {
	var pending PendingConfig

	conn, err := c.s.acquire(ctx)
	if err != nil {
		return pending, fmt.Errorf("read pending config: %w", err)
	}
	defer c.s.mu.Unlock()

	rows, err := conn.QueryContext(ctx, `
		SELECT id, category, data
		FROM configurations
		ORDER BY id ASC
	`)
	if err != nil {
		return pending, fmt.Errorf("read pending config: %w", err)
	}
	defer rows.Close()

	index := make(map[model.Category]int)
	for rows.Next() {
		var (
			id       int64
			category string
			data     string
		)
		if err := rows.Scan(&id, &category, &data); err != nil {
			return pending, fmt.Errorf("read pending config: scan: %w", err)
		}
		payload, err := unmarshalPayload(id, data)
		if err != nil {
			return pending, fmt.Errorf("read pending config: %w", err)
		}

		if pending.MinID == 0 || id < pending.MinID {
			pending.MinID = id
		}
		if id > pending.MaxID {
			pending.MaxID = id
		}

		cat := model.Category(category)
		i, ok := index[cat]
		if !ok {
			i = len(pending.Groups)
			index[cat] = i
			pending.Groups = append(pending.Groups, ConfigGroup{Category: cat})
		}
		pending.Groups[i].Items = append(pending.Groups[i].Items, payload)
	}
	if err := rows.Err(); err != nil {
		return pending, fmt.Errorf("read pending config: iterate: %w", err)
	}
	return pending, nil
}

// DeleteRange deletes every configuration row, of any category, whose id
// lies in [minID, maxID].
func (c *ConfigStore) DeleteRange(ctx context.Context, minID, maxID int64) error {
	if maxID < minID {
		return nil
	}

	conn, err := c.s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("delete config range: %w", err)
	}
	defer c.s.mu.Unlock()

	if _, err := conn.ExecContext(ctx,
		"DELETE FROM configurations WHERE id BETWEEN ? AND ?", minID, maxID,
	); err != nil {
		return fmt.Errorf("delete config range: %w", err)
	}
	c.s.mutations++
	return nil
}

// Count returns the number of pending configuration rows.
func (c *ConfigStore) Count(ctx context.Context) (int, error) {
	conn, err := c.s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.s.mu.Unlock()
	return countRows(ctx, conn, "configurations")
}
