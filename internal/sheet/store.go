// Package sheet persists sync results as a spreadsheet-like cell grid.
// Each project's result occupies one row: timestamp in column A, total in
// column C, completed in column D.
package sheet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"tasktally/internal/tally"
)

const (
	ColTimestamp = "A"
	ColTotal     = "C"
	ColCompleted = "D"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

// WriteResult writes the run triple into the result's target row. The three
// cells are written in one transaction so a row is never half-updated.
func (s Store) WriteResult(ctx context.Context, res tally.Result) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	cells := []struct {
		col   string
		value string
	}{
		{ColTimestamp, res.Timestamp.UTC().Format(time.RFC3339)},
		{ColTotal, strconv.Itoa(res.Total)},
		{ColCompleted, strconv.Itoa(res.Completed)},
	}
	for _, c := range cells {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cells(sheet,row,col,value,updated_at) VALUES (?,?,?,?,?)
			 ON CONFLICT(sheet,row,col) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			res.Sheet, res.Row, c.col, c.value, now); err != nil {
			return fmt.Errorf("write cell %s%d!%s: %w", res.Sheet, res.Row, c.col, err)
		}
	}
	return tx.Commit()
}

// Row returns the cells of one row keyed by column.
func (s Store) Row(ctx context.Context, sheet string, row int) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT col,value FROM cells WHERE sheet=? AND row=?`, sheet, row)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var col, value string
		if err := rows.Scan(&col, &value); err != nil {
			return nil, err
		}
		out[col] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// RowRef is one populated row of a sheet.
type RowRef struct {
	Row   int               `json:"row"`
	Cells map[string]string `json:"cells"`
}

// Rows returns every populated row of a sheet in row order.
func (s Store) Rows(ctx context.Context, sheet string) ([]RowRef, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT row,col,value FROM cells WHERE sheet=? ORDER BY row`, sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byRow := map[int]map[string]string{}
	for rows.Next() {
		var row int
		var col, value string
		if err := rows.Scan(&row, &col, &value); err != nil {
			return nil, err
		}
		if byRow[row] == nil {
			byRow[row] = map[string]string{}
		}
		byRow[row][col] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var out []RowRef
	for row, cells := range byRow {
		out = append(out, RowRef{Row: row, Cells: cells})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}
