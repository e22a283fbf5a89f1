package tally

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tasktally/internal/taskapi"
)

// ErrCycle reports a task hierarchy that is not a tree. The upstream API is
// trusted to return a tree; a repeated identifier on one root-to-leaf path
// aborts the walk instead of recursing forever.
var ErrCycle = errors.New("task hierarchy contains a cycle")

// TaskSource lists tasks from the upstream API. Both listings are fail-soft:
// they return whatever could be fetched, never an error.
type TaskSource interface {
	ProjectTasks(ctx context.Context, projectID string) []taskapi.Task
	Subtasks(ctx context.Context, taskID string) []taskapi.Task
}

// Walker expands a task into its full descendant set.
type Walker struct {
	Source TaskSource
	Logger *log.Logger
}

// Descendants returns every task reachable from taskID through the subtask
// relation, at any depth, excluding the task itself. Order is pre-order
// depth-first with siblings in API-response order. A record without an
// identifier is included but never expanded. An empty taskID is the base
// case and yields an empty sequence.
func (w Walker) Descendants(ctx context.Context, taskID string) ([]taskapi.Task, error) {
	if taskID == "" {
		return nil, nil
	}
	path := map[string]bool{taskID: true}
	return w.walk(ctx, taskID, path)
}

// walk keeps the set of identifiers on the current root-to-leaf path. The
// same task appearing under two different parents is fetched and counted
// again (upstream duplicates are not deduplicated); only a repeat on the
// current path is a cycle.
func (w Walker) walk(ctx context.Context, taskID string, path map[string]bool) ([]taskapi.Task, error) {
	var out []taskapi.Task
	for _, sub := range w.Source.Subtasks(ctx, taskID) {
		out = append(out, sub)
		if sub.GID == "" {
			w.logger().Printf("WARNING: subtask of %s has no identifier; not expanding it", taskID)
			continue
		}
		if path[sub.GID] {
			return out, fmt.Errorf("task %s revisited under %s: %w", sub.GID, taskID, ErrCycle)
		}
		path[sub.GID] = true
		rest, err := w.walk(ctx, sub.GID, path)
		delete(path, sub.GID)
		out = append(out, rest...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (w Walker) logger() *log.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return log.Default()
}
