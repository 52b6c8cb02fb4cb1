package escrowflow

import (
	"context"
	"slices"
	"time"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/observability"
)

// Compile reduces the element graph to a task graph.
//
// For every task, in declaration order, a breadth-first walk starts at the
// task's outgoing edges. Tasks reached by the walk become next tasks and are
// not expanded further; events and gateways are expanded through their own
// outgoing edges; unknown ids are dead ends. Each discovered edge is recorded
// on both ends in the same pass, so B is in A's next tasks exactly when A is
// in B's previous tasks.
//
// The first task is the first task reached by the same walk from the first
// start event. If there is no start event, or it reaches no task, the task
// with no predecessors and the lexicographically smallest id is used. If no
// task qualifies the graph has no first task and WarnNoEntryTask is recorded.
//
// Returns ErrNoTasksFound if the graph has no tasks. A partially built graph
// is never returned.
func (g *ElementGraph) Compile() (*TaskGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start := time.Now()
	ctx, span := g.cfg.spans.StartCompileSpan(context.Background(), len(g.order))

	tg, err := g.reduce()

	duration := time.Since(start)
	g.cfg.spans.EndSpanWithError(span, err)
	g.cfg.metrics.RecordCompile(ctx, tg.Len(), duration, err)
	if err != nil {
		observability.LogCompileError(g.cfg.logger, len(g.order), err)
		return nil, err
	}
	observability.LogCompile(g.cfg.logger, len(g.order), tg.Len(), len(tg.warnings), float64(duration.Microseconds())/1000)
	return tg, nil
}

func (g *ElementGraph) reduce() (*TaskGraph, error) {
	tasks := make(map[string]*Task)
	var order []string
	for _, id := range g.order {
		e := g.elements[id]
		if !e.Kind.IsTask() {
			continue
		}
		tasks[id] = &Task{ID: e.ID, Kind: e.Kind, Name: e.Name}
		order = append(order, id)
	}
	if len(order) == 0 {
		return nil, ErrNoTasksFound
	}

	for _, id := range order {
		from := tasks[id]
		for _, next := range g.nearestTasks(g.elements[id].Outgoing) {
			from.NextTasks = append(from.NextTasks, next)
			tasks[next].PreviousTasks = append(tasks[next].PreviousTasks, id)
		}
	}

	warnings := slices.Clone(g.warnings)
	first := g.entryTask(tasks, order)
	if first == "" {
		w := Warning{Kind: WarnNoEntryTask}
		warnings = append(warnings, w)
		observability.LogBuildWarning(g.cfg.logger, w.Kind.String(), "", w.String())
	}

	return &TaskGraph{
		tasks:    tasks,
		order:    order,
		first:    first,
		warnings: warnings,
	}, nil
}

// nearestTasks walks breadth-first from frontier and returns the tasks it
// reaches, in the order they are dequeued. Tasks are boundaries.
func (g *ElementGraph) nearestTasks(frontier []string) []string {
	visited := make(map[string]bool)
	queue := slices.Clone(frontier)
	var found []string

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}
		visited[id] = true

		e, ok := g.elements[id]
		if !ok {
			continue
		}
		if e.Kind.IsTask() {
			found = append(found, id)
			continue
		}
		queue = append(queue, e.Outgoing...)
	}

	return found
}

// entryTask picks the first task. See Compile for the rules.
func (g *ElementGraph) entryTask(tasks map[string]*Task, order []string) string {
	for _, id := range g.order {
		if e := g.elements[id]; e.Kind == KindStart {
			if reached := g.nearestTasks(e.Outgoing); len(reached) > 0 {
				return reached[0]
			}
			break
		}
	}

	first := ""
	for _, id := range order {
		if len(tasks[id].PreviousTasks) > 0 {
			continue
		}
		if first == "" || id < first {
			first = id
		}
	}
	return first
}
