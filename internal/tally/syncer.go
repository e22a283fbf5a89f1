package tally

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tasktally/internal/config"
	"tasktally/internal/taskapi"
)

// Result is the triple handed to the destination sink, plus run bookkeeping.
type Result struct {
	RunID     string    `json:"run_id"`
	ProjectID string    `json:"project_id"`
	Label     string    `json:"label,omitempty"`
	Sheet     string    `json:"sheet"`
	Row       int       `json:"row"`
	Timestamp time.Time `json:"timestamp"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
}

// Sink receives one result per project per run.
type Sink interface {
	WriteResult(ctx context.Context, res Result) error
}

// History records completed runs.
type History interface {
	AppendRun(ctx context.Context, res Result) error
}

// Syncer runs one full sync cycle per configured project.
type Syncer struct {
	Source  TaskSource
	Sink    Sink
	History History
	Logger  *log.Logger
	Now     func() time.Time
}

// SyncProject fetches the project's top-level tasks, expands every subtask
// at any depth, aggregates the combined collection, and hands the result to
// the sink. Fetch failures have already been absorbed upstream, so the sink
// always receives a (possibly undercounted) triple; only a structural cycle
// or a sink failure surfaces.
func (s Syncer) SyncProject(ctx context.Context, proj config.Project) (Result, error) {
	top := s.Source.ProjectTasks(ctx, proj.ID)
	walker := Walker{Source: s.Source, Logger: s.Logger}

	combined := append([]taskapi.Task(nil), top...)
	for _, t := range top {
		if t.GID == "" {
			s.logger().Printf("WARNING: top-level task in project %s has no identifier; not expanding it", proj.ID)
			continue
		}
		desc, err := walker.Descendants(ctx, t.GID)
		if err != nil {
			return Result{}, fmt.Errorf("project %s: expand task %s: %w", proj.ID, t.GID, err)
		}
		combined = append(combined, desc...)
	}

	sum := Count(combined)
	res := Result{
		RunID:     uuid.NewString(),
		ProjectID: proj.ID,
		Label:     proj.Label,
		Sheet:     proj.Sheet,
		Row:       proj.Row,
		Timestamp: s.now().UTC(),
		Total:     sum.Total,
		Completed: sum.Completed,
	}
	if s.Sink != nil {
		if err := s.Sink.WriteResult(ctx, res); err != nil {
			return Result{}, fmt.Errorf("project %s: write result: %w", proj.ID, err)
		}
	}
	if s.History != nil {
		if err := s.History.AppendRun(ctx, res); err != nil {
			return Result{}, fmt.Errorf("project %s: record run: %w", proj.ID, err)
		}
	}
	return res, nil
}

// SyncAll syncs every configured project sequentially. Projects are
// independent: a failing project is logged and the loop continues.
func (s Syncer) SyncAll(ctx context.Context, projects []config.Project) []Result {
	var results []Result
	for _, p := range projects {
		res, err := s.SyncProject(ctx, p)
		if err != nil {
			s.logger().Printf("sync project %s failed: %v", p.ID, err)
			continue
		}
		results = append(results, res)
	}
	return results
}

func (s Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Syncer) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}
