package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rxdoc/internal/ir"
)

// Collection is the storage adapter for one named collection.
//
// Each Persist* call runs in its own transaction: the revision check, the
// documents upsert and the revisions append either all commit or none do.
type Collection struct {
	store *Store
	name  string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// current is the stored row an optimistic write is checked against.
type current struct {
	rev     string
	deleted bool
}

// PersistInsert durably creates a document.
//
// Inserting over a tombstone is allowed and continues its revision chain.
// Inserting over a live document fails with ConflictExists.
func (c *Collection) PersistInsert(ctx context.Context, id string, data ir.Object) (ir.StoredDocument, error) {
	return c.write(ctx, "persist insert", id, data, false, func(cur *current) error {
		if cur != nil && !cur.deleted {
			return &ConflictError{Collection: c.name, ID: id, Reason: ConflictExists, ActualRev: cur.rev}
		}
		return nil
	})
}

// PersistUpdate durably writes a new revision derived from expectedRev.
func (c *Collection) PersistUpdate(ctx context.Context, id string, data ir.Object, expectedRev string) (ir.StoredDocument, error) {
	return c.write(ctx, "persist update", id, data, false, c.expectLive(id, expectedRev))
}

// PersistRemove durably marks the document removed. The last committed data is
// kept on the tombstone.
func (c *Collection) PersistRemove(ctx context.Context, id string, expectedRev string) (ir.StoredDocument, error) {
	return c.write(ctx, "persist remove", id, nil, true, c.expectLive(id, expectedRev))
}

func (c *Collection) expectLive(id, expectedRev string) func(*current) error {
	return func(cur *current) error {
		switch {
		case cur == nil:
			return &ConflictError{Collection: c.name, ID: id, Reason: ConflictMissing, ExpectedRev: expectedRev}
		case cur.deleted:
			return &ConflictError{Collection: c.name, ID: id, Reason: ConflictDeleted, ExpectedRev: expectedRev, ActualRev: cur.rev}
		case cur.rev != expectedRev:
			return &ConflictError{Collection: c.name, ID: id, Reason: ConflictRevision, ExpectedRev: expectedRev, ActualRev: cur.rev}
		}
		return nil
	}
}

// write performs one optimistic write inside a transaction.
// A nil data with deleted=true keeps the currently stored data.
func (c *Collection) write(
	ctx context.Context,
	op string,
	id string,
	data ir.Object,
	deleted bool,
	check func(*current) error,
) (ir.StoredDocument, error) {
	if id == "" {
		return ir.StoredDocument{}, fmt.Errorf("%s: empty document id", op)
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.StoredDocument{}, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		cur      *current
		prevData string
		row      current
	)
	err = tx.QueryRowContext(ctx, `
		SELECT rev, deleted, data FROM documents
		WHERE collection = ? AND id = ?
	`, c.name, id).Scan(&row.rev, &row.deleted, &prevData)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return ir.StoredDocument{}, fmt.Errorf("%s: read current: %w", op, err)
	default:
		cur = &row
	}

	if err := check(cur); err != nil {
		return ir.StoredDocument{}, err
	}

	if deleted && data == nil {
		data, err = unmarshalData(prevData)
		if err != nil {
			return ir.StoredDocument{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	prevRev := ""
	if cur != nil {
		prevRev = cur.rev
	}
	rev, err := ir.NextRevision(prevRev, data, deleted)
	if err != nil {
		return ir.StoredDocument{}, fmt.Errorf("%s: %w", op, err)
	}

	dataJSON, err := marshalData(data)
	if err != nil {
		return ir.StoredDocument{}, fmt.Errorf("%s: %w", op, err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM revisions`).Scan(&seq); err != nil {
		return ir.StoredDocument{}, fmt.Errorf("%s: next seq: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, rev, data, deleted, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			rev = excluded.rev,
			data = excluded.data,
			deleted = excluded.deleted,
			seq = excluded.seq
	`, c.name, id, rev, dataJSON, deleted, seq)
	if err != nil {
		return ir.StoredDocument{}, fmt.Errorf("%s: write document: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (collection, id, rev, data, deleted, seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.name, id, rev, dataJSON, deleted, seq)
	if err != nil {
		return ir.StoredDocument{}, fmt.Errorf("%s: write revision: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return ir.StoredDocument{}, fmt.Errorf("%s: commit: %w", op, err)
	}

	return ir.StoredDocument{
		ID:      id,
		Rev:     rev,
		Data:    data.Clone(),
		Deleted: deleted,
		Seq:     seq,
	}, nil
}
