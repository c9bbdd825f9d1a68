package postgres

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/chronicle-lab/chronicle/internal/journal"
)

// entryCursor adapts *sql.Rows to journal.EntryCursor. Rows are pulled one
// at a time, so the consumer's demand bounds how much the backend streams.
type entryCursor struct {
	rows *sql.Rows
	cur  journal.Entry
	err  error
}

func (c *entryCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}

	var (
		e        journal.Entry
		tagIDs   pq.Int32Array
		metadata []byte
	)
	if err := c.rows.Scan(
		&e.PersistenceID,
		&e.SequenceNr,
		&e.Ordering,
		&e.Deleted,
		&e.Payload,
		&tagIDs,
		&metadata,
	); err != nil {
		c.err = fmt.Errorf("failed to scan journal row: %w", err)
		c.rows.Close()
		return false
	}

	e.TagIDs = []int32(tagIDs)
	e.Metadata = metadata
	c.cur = e
	return true
}

func (c *entryCursor) Entry() journal.Entry { return c.cur }

func (c *entryCursor) Err() error { return c.err }

func (c *entryCursor) Close() error { return c.rows.Close() }

// idCursor adapts *sql.Rows to journal.IDCursor.
type idCursor struct {
	rows *sql.Rows
	cur  string
	err  error
}

func (c *idCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	if err := c.rows.Scan(&c.cur); err != nil {
		c.err = fmt.Errorf("failed to scan persistence id: %w", err)
		c.rows.Close()
		return false
	}
	return true
}

func (c *idCursor) ID() string { return c.cur }

func (c *idCursor) Err() error { return c.err }

func (c *idCursor) Close() error { return c.rows.Close() }
