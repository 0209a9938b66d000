// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is any cached entity keyed by a composite ID or a raw public
// identity. Every table has exactly one primary key, the record's ID.
type Record interface {
	RecordID() string
}

// Table is a generic record table: the full object, including its own ID, is
// stored as-is. Bulk operations replace-on-conflict and never fail on
// duplicate keys.
type Table[T Record] struct {
	db   *DB
	name string
}

// NewTable binds a record table by name. The table must be part of the
// schema created by Open.
func NewTable[T Record](db *DB, name string) *Table[T] {
	return &Table[T]{db: db, name: name}
}

// Name returns the table name, usable as a notifier subscription key.
func (t *Table[T]) Name() string { return t.name }

// Insert upserts a single record and returns its assigned key.
func (t *Table[T]) Insert(ctx context.Context, rec T) (string, error) {
	if err := t.BulkSave(ctx, []T{rec}); err != nil {
		return "", err
	}
	return rec.RecordID(), nil
}

// FindByID loads a record. Absence is exceptional here and reported as a
// RECORD_NOT_FOUND DatabaseError; use FindByIDOptional where absence is an
// expected outcome.
func (t *Table[T]) FindByID(ctx context.Context, id string) (T, error) {
	rec, ok, err := t.FindByIDOptional(ctx, id)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, dbError(CodeRecordNotFound, t.name, "findById", nil, "id", id)
	}
	return rec, nil
}

// FindByIDOptional loads a record, reporting ok=false when absent.
func (t *Table[T]) FindByIDOptional(ctx context.Context, id string) (rec T, ok bool, err error) {
	var data []byte
	row := t.db.sqlDB.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM "%s" WHERE id = ?`, t.name), id)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, false, nil
		}
		return rec, false, dbError(CodeQueryFailed, t.name, "findById", err, "id", id)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, dbError(CodeIntegrityError, t.name, "findById", err, "id", id)
	}
	return rec, true, nil
}

// TryFindByID is the fail-open variant: storage errors are logged and
// swallowed so that one corrupted peripheral read never blocks the primary
// content path. Only use it on read paths that can tolerate a miss.
func (t *Table[T]) TryFindByID(ctx context.Context, id string) (T, bool) {
	rec, ok, err := t.FindByIDOptional(ctx, id)
	if err != nil {
		t.db.logger.Warn("fail-open read error", "table", t.name, "id", id, "err", err)
		var zero T
		return zero, false
	}
	return rec, ok
}

// FindByIDs loads the subset of ids present in the table, keyed by ID.
func (t *Table[T]) FindByIDs(ctx context.Context, ids []string) (map[string]T, error) {
	out := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT id, data FROM "%s" WHERE id IN (%s)`,
		t.name, placeholders(len(ids)))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := t.db.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(CodeQueryFailed, t.name, "findByIds", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, dbError(CodeQueryFailed, t.name, "findByIds", err)
		}
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, dbError(CodeIntegrityError, t.name, "findByIds", err, "id", id)
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(CodeQueryFailed, t.name, "findByIds", err)
	}
	return out, nil
}

// BulkSave upserts many records atomically.
func (t *Table[T]) BulkSave(ctx context.Context, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	t.db.writeMu.Lock()
	defer t.db.writeMu.Unlock()

	tx, err := t.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return dbError(CodeBulkOperationFailed, t.name, "bulkSave", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO "%s" (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, t.name))
	if err != nil {
		return dbError(CodeBulkOperationFailed, t.name, "bulkSave", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		id := rec.RecordID()
		if id == "" {
			return dbError(CodeIntegrityError, t.name, "bulkSave", nil, "reason", "empty record id")
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return dbError(CodeSaveFailed, t.name, "bulkSave", err, "id", id)
		}
		if _, err := stmt.ExecContext(ctx, id, data); err != nil {
			return dbError(CodeSaveFailed, t.name, "bulkSave", err, "id", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return dbError(CodeBulkOperationFailed, t.name, "bulkSave", err)
	}
	t.db.notifier.notify(t.name)
	return nil
}

// Exists reports whether an ID is present.
func (t *Table[T]) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.db.sqlDB.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM "%s" WHERE id = ?)`, t.name), id).Scan(&exists)
	if err != nil {
		return false, dbError(CodeQueryFailed, t.name, "exists", err, "id", id)
	}
	return exists, nil
}

// DeleteByID removes a record. Deleting an absent ID is a no-op.
func (t *Table[T]) DeleteByID(ctx context.Context, id string) error {
	t.db.writeMu.Lock()
	defer t.db.writeMu.Unlock()
	if _, err := t.db.sqlDB.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM "%s" WHERE id = ?`, t.name), id); err != nil {
		return dbError(CodeQueryFailed, t.name, "deleteById", err, "id", id)
	}
	t.db.notifier.notify(t.name)
	return nil
}

// Clear removes every record in the table.
func (t *Table[T]) Clear(ctx context.Context) error {
	t.db.writeMu.Lock()
	defer t.db.writeMu.Unlock()
	if _, err := t.db.sqlDB.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM "%s"`, t.name)); err != nil {
		return dbError(CodeQueryFailed, t.name, "clear", err)
	}
	t.db.notifier.notify(t.name)
	return nil
}

// Tuple is the wire shape of tuple-table endpoints: a JSON pair
// ["id", {payload}].
type Tuple struct {
	ID      string
	Payload json.RawMessage
}

// UnmarshalJSON decodes the [id, payload] pair form.
func (tp *Tuple) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("tuple must have exactly 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &tp.ID); err != nil {
		return fmt.Errorf("tuple id: %w", err)
	}
	tp.Payload = pair[1]
	return nil
}

// ToSchema expands a tuple into a full record before storage.
type ToSchema[T Record] func(id string, payload json.RawMessage) (T, error)

// TupleTable is a record table whose remote endpoint delivers [id, payload]
// pairs. It composes a Table with a per-table ToSchema strategy; everything
// else behaves like a record table.
type TupleTable[T Record] struct {
	*Table[T]
	toSchema ToSchema[T]
}

// NewTupleTable binds a tuple table by name with its adaptation strategy.
func NewTupleTable[T Record](db *DB, name string, toSchema ToSchema[T]) *TupleTable[T] {
	return &TupleTable[T]{Table: NewTable[T](db, name), toSchema: toSchema}
}

// BulkSaveTuples adapts each pair via the table's ToSchema and upserts the
// resulting records.
func (t *TupleTable[T]) BulkSaveTuples(ctx context.Context, tuples []Tuple) error {
	recs := make([]T, 0, len(tuples))
	for _, tp := range tuples {
		rec, err := t.toSchema(tp.ID, tp.Payload)
		if err != nil {
			return dbError(CodeBulkOperationFailed, t.name, "bulkSaveTuples", err, "id", tp.ID)
		}
		recs = append(recs, rec)
	}
	return t.BulkSave(ctx, recs)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
