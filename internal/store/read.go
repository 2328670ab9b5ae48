package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rxdoc/internal/ir"
)

// Get returns the stored row for id, tombstones included.
// Returns ErrNotFound if no row exists.
func (c *Collection) Get(ctx context.Context, id string) (ir.StoredDocument, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT id, rev, data, deleted, seq
		FROM documents
		WHERE collection = ? AND id = ?
	`, c.name, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.StoredDocument{}, ErrNotFound
	}
	if err != nil {
		return ir.StoredDocument{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns the live documents of the collection ordered by seq ASC, id ASC.
// Tombstones are included only when includeDeleted is set.
//
// Returns an empty slice (not nil) for an empty collection.
func (c *Collection) List(ctx context.Context, includeDeleted bool) ([]ir.StoredDocument, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT id, rev, data, deleted, seq
		FROM documents
		WHERE collection = ? AND (deleted = 0 OR ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, c.name, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	return collect(rows, "list documents")
}

// History returns every committed revision of id, oldest first.
func (c *Collection) History(ctx context.Context, id string) ([]ir.StoredDocument, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT id, rev, data, deleted, seq
		FROM revisions
		WHERE collection = ? AND id = ?
		ORDER BY seq ASC
	`, c.name, id)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	return collect(rows, "read history")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (ir.StoredDocument, error) {
	var (
		doc  ir.StoredDocument
		text string
	)
	if err := s.Scan(&doc.ID, &doc.Rev, &text, &doc.Deleted, &doc.Seq); err != nil {
		return ir.StoredDocument{}, err
	}
	data, err := unmarshalData(text)
	if err != nil {
		return ir.StoredDocument{}, err
	}
	doc.Data = data
	return doc, nil
}

func collect(rows *sql.Rows, op string) ([]ir.StoredDocument, error) {
	docs := []ir.StoredDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return docs, nil
}
