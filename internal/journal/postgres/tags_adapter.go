package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// TagAdapter implements journal.TagStore using PostgreSQL, sharing the
// journal adapter's connection.
type TagAdapter struct {
	db *sql.DB
}

func NewTagAdapter(db *sql.DB) *TagAdapter {
	return &TagAdapter{db: db}
}

// CreateOrFind allocates an id for name, or returns the existing one. The
// insert races against the UNIQUE(name) constraint: a loser gets no rows
// back and re-reads the winner's id, so exactly one id is ever associated
// with a name no matter how many writers contend.
func (a *TagAdapter) CreateOrFind(ctx context.Context, name string) (int32, error) {
	var id int32
	err := a.db.QueryRowContext(ctx, queryInsertTag, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("insert tag %q: %w", name, err)
	}

	// Lost the race (or the tag predates this process): read the winning id.
	if err := a.db.QueryRowContext(ctx, querySelectTag, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select tag %q after conflict: %w", name, err)
	}
	return id, nil
}
