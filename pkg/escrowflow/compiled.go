package escrowflow

import "slices"

// Task is a node of the reduced task graph.
type Task struct {
	ID   string
	Kind ElementKind
	Name string
	// PreviousTasks are the nearest tasks that can precede this one, in
	// discovery order.
	PreviousTasks []string
	// NextTasks are the nearest tasks that can follow this one, in the
	// order the reducer reached them.
	NextTasks []string
}

func (t *Task) clone() Task {
	c := *t
	c.PreviousTasks = slices.Clone(t.PreviousTasks)
	c.NextTasks = slices.Clone(t.NextTasks)
	return c
}

// Navigator is the read-only query surface over a compiled workflow.
// Unknown ids are an expected query outcome: lookups report false and list
// queries return an empty slice.
type Navigator interface {
	FirstTask() (Task, bool)
	Task(id string) (Task, bool)
	NextTasks(id string) []Task
	PreviousTasks(id string) []Task
}

var _ Navigator = (*TaskGraph)(nil)

// TaskGraph is an immutable task-level workflow created by Compile.
// It is safe for concurrent use. All returned Tasks are copies.
type TaskGraph struct {
	tasks    map[string]*Task
	order    []string
	first    string
	warnings []Warning
}

// FirstTask returns the task a workflow begins with.
func (tg *TaskGraph) FirstTask() (Task, bool) {
	if tg == nil || tg.first == "" {
		return Task{}, false
	}
	return tg.Task(tg.first)
}

// Task returns the task with the given id.
func (tg *TaskGraph) Task(id string) (Task, bool) {
	if tg == nil {
		return Task{}, false
	}
	t, ok := tg.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// NextTasks returns the tasks that can follow id. Empty if id is unknown or
// terminal.
func (tg *TaskGraph) NextTasks(id string) []Task {
	t, ok := tg.lookup(id)
	if !ok {
		return []Task{}
	}
	return tg.resolve(t.NextTasks)
}

// PreviousTasks returns the tasks that can precede id. Empty if id is unknown
// or has no predecessors.
func (tg *TaskGraph) PreviousTasks(id string) []Task {
	t, ok := tg.lookup(id)
	if !ok {
		return []Task{}
	}
	return tg.resolve(t.PreviousTasks)
}

// Edges returns the ids of the previous and next tasks of id.
func (tg *TaskGraph) Edges(id string) (previous, next []string) {
	t, ok := tg.lookup(id)
	if !ok {
		return nil, nil
	}
	return slices.Clone(t.PreviousTasks), slices.Clone(t.NextTasks)
}

// HasEdge reports whether to is a next task of from.
func (tg *TaskGraph) HasEdge(from, to string) bool {
	t, ok := tg.lookup(from)
	if !ok {
		return false
	}
	return slices.Contains(t.NextTasks, to)
}

// IsTerminal reports whether id is a known task with no next tasks.
func (tg *TaskGraph) IsTerminal(id string) bool {
	t, ok := tg.lookup(id)
	return ok && len(t.NextTasks) == 0
}

// Tasks returns all tasks in declaration order.
func (tg *TaskGraph) Tasks() []Task {
	if tg == nil {
		return nil
	}
	out := make([]Task, 0, len(tg.order))
	for _, id := range tg.order {
		out = append(out, tg.tasks[id].clone())
	}
	return out
}

// TaskIDs returns all task ids in declaration order.
func (tg *TaskGraph) TaskIDs() []string {
	if tg == nil {
		return nil
	}
	return slices.Clone(tg.order)
}

// Len returns the number of tasks.
func (tg *TaskGraph) Len() int {
	if tg == nil {
		return 0
	}
	return len(tg.order)
}

// Warnings returns the build and reduction diagnostics.
func (tg *TaskGraph) Warnings() []Warning {
	if tg == nil {
		return nil
	}
	return slices.Clone(tg.warnings)
}

func (tg *TaskGraph) lookup(id string) (*Task, bool) {
	if tg == nil {
		return nil, false
	}
	t, ok := tg.tasks[id]
	return t, ok
}

// resolve maps ids to tasks, skipping ids that are not in the graph.
func (tg *TaskGraph) resolve(ids []string) []Task {
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := tg.tasks[id]; ok {
			out = append(out, t.clone())
		}
	}
	return out
}
