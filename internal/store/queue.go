package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/edgerelay/internal/model"
)

const (
	// insertChunkSize bounds the rows written by a single INSERT.
	insertChunkSize = 100

	// deleteChunkSize bounds the IN-list of a single DELETE, well below
	// SQLite's host parameter limit.
	deleteChunkSize = 500
)

// Batch is the result of a queue read: the items in read order and their
// ids, which bound the matching Delete.
type Batch struct {
	Items []model.Item
	IDs   []int64
}

// Len returns the number of items in the batch.
func (b Batch) Len() int {
	return len(b.Items)
}

// Queue is the durable, ordered telemetry queue.
type Queue struct {
	s *Store
}

// Queue returns the telemetry queue backed by s.
func (s *Store) Queue() *Queue {
	return &Queue{s: s}
}

// orderClause returns the read order for a priority mode. The primary key
// is always the event time.
func orderClause(p model.PriorityMode) string {
	switch p {
	case model.PriorityEventsFirst:
		return "ts ASC, is_event DESC, id ASC"
	case model.PriorityEventsLast:
		return "ts ASC, is_event ASC, id ASC"
	default:
		return "ts ASC, id ASC"
	}
}

// Store appends items and returns their assigned ids in input order. Items
// without a timestamp are stamped with the insertion time. Rows are written
// in chunks of insertChunkSize; each chunk counts as one mutation.
//
// On error, chunks written before the failure stay in the ambient
// transaction.
func (q *Queue) Store(ctx context.Context, items []model.Item) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	conn, err := q.s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store items: %w", err)
	}
	defer q.s.mu.Unlock()

	now := q.s.clock.Now()
	ids := make([]int64, 0, len(items))
	for start := 0; start < len(items); start += insertChunkSize {
		end := min(start+insertChunkSize, len(items))
		chunkIDs, err := insertItems(ctx, conn, items[start:end], now)
		if err != nil {
			return ids, fmt.Errorf("store items: %w", err)
		}
		ids = append(ids, chunkIDs...)
		q.s.mutations++
	}
	return ids, nil
}

// insertItems writes one chunk with a single multi-row INSERT. The chunk's
// ids are contiguous because the connection is the only writer.
func insertItems(ctx context.Context, conn *sql.Conn, chunk []model.Item, now time.Time) ([]int64, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO messages (ts, is_event, data) VALUES ")
	args := make([]any, 0, len(chunk)*3)
	for i, item := range chunk {
		data, err := marshalPayload(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		ts := toMillis(now)
		if !item.Timestamp.IsZero() {
			ts = toMillis(item.Timestamp)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?)")
		args = append(args, ts, boolToInt(item.IsEvent), data)
	}

	res, err := conn.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert chunk: %w", err)
	}
	last, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert chunk: last insert id: %w", err)
	}

	ids := make([]int64, len(chunk))
	first := last - int64(len(chunk)) + 1
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids, nil
}

// ReadBatch returns up to limit items in (timestamp, priority tie-break)
// order. Items whose timestamp lies inside the delay window are left out.
// Reading does not consume anything.
//
// Returns an empty batch (not nil slices) if nothing is eligible.
func (q *Queue) ReadBatch(ctx context.Context, limit int) (Batch, error) {
	batch := Batch{Items: []model.Item{}, IDs: []int64{}}
	if limit <= 0 {
		return batch, nil
	}

	conn, err := q.s.acquire(ctx)
	if err != nil {
		return batch, fmt.Errorf("read batch: %w", err)
	}
	defer q.s.mu.Unlock()

	cutoff := toMillis(q.s.clock.Now().Add(-q.s.delayWindow))
	rows, err := conn.QueryContext(ctx, `
		SELECT id, ts, is_event, data
		FROM messages
		WHERE ts <= ?
		ORDER BY `+orderClause(q.s.priority)+`
		LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return batch, fmt.Errorf("read batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    model.Item
			ts      int64
			isEvent int
			data    string
		)
		if err := rows.Scan(&item.ID, &ts, &isEvent, &data); err != nil {
			return batch, fmt.Errorf("read batch: scan: %w", err)
		}
		item.Timestamp = fromMillis(ts)
		item.IsEvent = isEvent != 0
		if item.Payload, err = unmarshalPayload(item.ID, data); err != nil {
			return batch, fmt.Errorf("read batch: %w", err)
		}
		batch.Items = append(batch.Items, item)
		batch.IDs = append(batch.IDs, item.ID)
	}
	if err := rows.Err(); err != nil {
		return batch, fmt.Errorf("read batch: iterate: %w", err)
	}
	return batch, nil
}

// Delete removes exactly the given ids. Unknown ids are ignored. Large sets
// are deleted in chunks of deleteChunkSize.
func (q *Queue) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := q.s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	defer q.s.mu.Unlock()

	for start := 0; start < len(ids); start += deleteChunkSize {
		chunk := ids[start:min(start+deleteChunkSize, len(ids))]
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		if _, err := conn.ExecContext(ctx,
			"DELETE FROM messages WHERE id IN ("+placeholders+")", args...,
		); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
	}
	q.s.mutations++
	return nil
}

// Count returns the number of queued items, including delayed ones.
func (q *Queue) Count(ctx context.Context) (int, error) {
	conn, err := q.s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer q.s.mu.Unlock()
	return countRows(ctx, conn, "messages")
}
