// Package history keeps an append-only log of completed sync runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tasktally/internal/tally"
)

var ErrNoRuns = errors.New("no runs recorded")

type Writer struct {
	DB *sql.DB
}

// Run is one recorded sync run.
type Run struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
	TS        string `json:"ts"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// AppendRun records one completed sync run.
func (w Writer) AppendRun(ctx context.Context, res tally.Result) error {
	_, err := w.DB.ExecContext(ctx,
		`INSERT INTO runs(run_id,project_id,ts,total,completed) VALUES (?,?,?,?,?)`,
		res.RunID, res.ProjectID, res.Timestamp.UTC().Format(time.RFC3339), res.Total, res.Completed)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	return nil
}

// Page is a cursor-paginated slice of the run log, newest first.
type Page struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Runs lists recorded runs newest first. projectID narrows to one project;
// cursor is the opaque value from a previous page.
func (w Writer) Runs(ctx context.Context, projectID string, limit int, cursor string) (Page, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	before := int64(0)
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		before = v
	}

	query := `SELECT id,run_id,project_id,ts,total,completed FROM runs`
	var args []any
	var where []string
	if projectID != "" {
		where = append(where, `project_id=?`)
		args = append(args, projectID)
	}
	if before > 0 {
		where = append(where, `id<?`)
		args = append(args, before)
	}
	for i, cond := range where {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var page Page
	var lastID int64
	for rows.Next() {
		var id int64
		var r Run
		if err := rows.Scan(&id, &r.RunID, &r.ProjectID, &r.TS, &r.Total, &r.Completed); err != nil {
			return Page{}, err
		}
		if len(page.Items) == limit {
			page.NextCursor = strconv.FormatInt(lastID, 10)
			break
		}
		page.Items = append(page.Items, r)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return page, nil
}

// Latest returns the most recent run for a project.
func (w Writer) Latest(ctx context.Context, projectID string) (Run, error) {
	var r Run
	err := w.DB.QueryRowContext(ctx,
		`SELECT run_id,project_id,ts,total,completed FROM runs WHERE project_id=? ORDER BY id DESC LIMIT 1`,
		projectID).Scan(&r.RunID, &r.ProjectID, &r.TS, &r.Total, &r.Completed)
	if err == sql.ErrNoRows {
		return Run{}, ErrNoRuns
	}
	return r, err
}
