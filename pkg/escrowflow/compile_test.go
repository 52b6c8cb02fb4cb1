package escrowflow

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskIDs(tasks []Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

// assertMutualEdges checks that every next edge has its previous counterpart
// and the other way round.
func assertMutualEdges(t *testing.T, tg *TaskGraph) {
	t.Helper()
	for _, a := range tg.Tasks() {
		for _, b := range a.NextTasks {
			bt, ok := tg.Task(b)
			require.True(t, ok, "next task %s of %s must exist", b, a.ID)
			assert.Contains(t, bt.PreviousTasks, a.ID, "%s -> %s missing reverse edge", a.ID, b)
		}
		for _, b := range a.PreviousTasks {
			bt, ok := tg.Task(b)
			require.True(t, ok)
			assert.Contains(t, bt.NextTasks, a.ID, "%s <- %s missing forward edge", a.ID, b)
		}
	}
}

func TestCompile_SingleTask(t *testing.T) {
	tg, err := NewElementGraph().
		AddElement("S", KindStart, "").
		AddElement("T", KindTask, "only").
		AddElement("E", KindEnd, "").
		AddFlow("S", "T").
		AddFlow("T", "E").
		Compile()
	require.NoError(t, err)

	first, ok := tg.FirstTask()
	require.True(t, ok)
	assert.Equal(t, "T", first.ID)
	assert.Equal(t, "only", first.Name)
	assert.Empty(t, tg.NextTasks("T"))
	assert.Empty(t, tg.PreviousTasks("T"))
	assert.True(t, tg.IsTerminal("T"))
	assert.Equal(t, 1, tg.Len())
}

func TestCompile_GatewayFlattening(t *testing.T) {
	tg, err := NewElementGraph().
		AddElement("S", KindStart, "").
		AddElement("T1", KindTask, "").
		AddElement("G", KindGateway, "").
		AddElement("T2", KindTask, "").
		AddElement("T3", KindTask, "").
		AddElement("E", KindEnd, "").
		AddFlow("S", "T1").
		AddFlow("T1", "G").
		AddFlow("G", "T2").
		AddFlow("G", "E").
		AddFlow("G", "T3").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"T2", "T3"}, taskIDs(tg.NextTasks("T1")))
	assert.Equal(t, []string{"T1"}, taskIDs(tg.PreviousTasks("T2")))
	assert.Equal(t, []string{"T1"}, taskIDs(tg.PreviousTasks("T3")))
	assert.True(t, tg.HasEdge("T1", "T3"))
	assert.False(t, tg.HasEdge("T2", "T3"))
	assert.False(t, tg.IsTerminal("T1"))
	assert.True(t, tg.IsTerminal("T2"))
	assertMutualEdges(t, tg)

	_, ok := tg.Task("G")
	assert.False(t, ok, "gateways are not tasks")
}

func TestCompile_FirstTaskThroughGateway(t *testing.T) {
	tg, err := NewElementGraph().
		AddElement("Start", KindStart, "").
		AddElement("G", KindGateway, "").
		AddElement("A", KindTask, "").
		AddElement("B", KindTask, "").
		AddFlow("Start", "G").
		AddFlow("G", "A").
		AddFlow("G", "B").
		Compile()
	require.NoError(t, err)

	first, ok := tg.FirstTask()
	require.True(t, ok)
	assert.Equal(t, "A", first.ID)
}

func TestCompile_Fixture(t *testing.T) {
	tg, err := parseFixture(t, "purchase.bpmn").Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"Task_Order", "Task_Ship", "Task_Refund"}, tg.TaskIDs())

	first, ok := tg.FirstTask()
	require.True(t, ok)
	assert.Equal(t, "Task_Order", first.ID)
	assert.Equal(t, KindChoreographyTask, first.Kind)
	assert.Equal(t, []string{"Task_Ship", "Task_Refund"}, first.NextTasks)
	assertMutualEdges(t, tg)
}

func TestCompile_NoTasks(t *testing.T) {
	tg, err := NewElementGraph().
		AddElement("S", KindStart, "").
		AddElement("E", KindEnd, "").
		AddFlow("S", "E").
		Compile()

	assert.ErrorIs(t, err, ErrNoTasksFound)
	assert.Nil(t, tg)
}

func TestCompile_DanglingReferences(t *testing.T) {
	g := NewElementGraph().
		AddElement("S", KindStart, "").
		AddElement("T1", KindTask, "").
		AddElement("G", KindGateway, "").
		AddElement("T2", KindTask, "").
		AddFlow("S", "T1").
		AddFlow("T1", "G").
		AddFlow("G", "Missing").
		AddFlow("G", "T2")

	tg, err := g.Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"T2"}, taskIDs(tg.NextTasks("T1")))
	require.Len(t, tg.Warnings(), 1)
	assert.Equal(t, WarnDanglingTarget, tg.Warnings()[0].Kind)
}

func TestCompile_GatewayCycleTerminates(t *testing.T) {
	tg, err := NewElementGraph().
		AddElement("S", KindStart, "").
		AddElement("T1", KindTask, "").
		AddElement("G1", KindGateway, "").
		AddElement("G2", KindGateway, "").
		AddElement("T2", KindTask, "").
		AddFlow("S", "T1").
		AddFlow("T1", "G1").
		AddFlow("G1", "G2").
		AddFlow("G2", "G1").
		AddFlow("G2", "T1").
		AddFlow("G2", "T2").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"T1", "T2"}, taskIDs(tg.NextTasks("T1")))
	assert.Equal(t, []string{"T1"}, taskIDs(tg.PreviousTasks("T1")))
	assertMutualEdges(t, tg)
}

func TestCompile_NoDuplicateEdges(t *testing.T) {
	tg, err := NewElementGraph().
		AddElement("T1", KindTask, "").
		AddElement("G1", KindGateway, "").
		AddElement("G2", KindGateway, "").
		AddElement("T2", KindTask, "").
		AddFlow("T1", "G1").
		AddFlow("T1", "G2").
		AddFlow("G1", "T2").
		AddFlow("G2", "T2").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"T2"}, taskIDs(tg.NextTasks("T1")))
	assert.Equal(t, []string{"T1"}, taskIDs(tg.PreviousTasks("T2")))
}

func TestCompile_FirstTaskFallback(t *testing.T) {
	tests := []struct {
		name      string
		graph     *ElementGraph
		wantFirst string
		wantOK    bool
	}{
		{
			name: "no start event picks smallest id without predecessors",
			graph: NewElementGraph().
				AddElement("Zeta", KindTask, "").
				AddElement("Beta", KindTask, "").
				AddElement("Alpha", KindTask, "").
				AddFlow("Zeta", "Beta").
				AddFlow("Alpha", "Beta"),
			wantFirst: "Alpha",
			wantOK:    true,
		},
		{
			name: "start reaching no task falls back",
			graph: NewElementGraph().
				AddElement("S", KindStart, "").
				AddElement("E", KindEnd, "").
				AddElement("T2", KindTask, "").
				AddElement("T1", KindTask, "").
				AddFlow("S", "E").
				AddFlow("T1", "T2"),
			wantFirst: "T1",
			wantOK:    true,
		},
		{
			name: "every task has a predecessor",
			graph: NewElementGraph().
				AddElement("T1", KindTask, "").
				AddElement("T2", KindTask, "").
				AddFlow("T1", "T2").
				AddFlow("T2", "T1"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, err := tt.graph.Compile()
			require.NoError(t, err)

			first, ok := tg.FirstTask()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFirst, first.ID)

			hasNoEntry := false
			for _, w := range tg.Warnings() {
				if w.Kind == WarnNoEntryTask {
					hasNoEntry = true
				}
			}
			assert.Equal(t, !tt.wantOK, hasNoEntry)
		})
	}
}

func TestCompile_Deterministic(t *testing.T) {
	build := func() *TaskGraph {
		tg, err := parseFixture(t, "purchase.bpmn").Compile()
		require.NoError(t, err)
		return tg
	}

	a, b := build(), build()
	assert.Equal(t, a.Tasks(), b.Tasks())
	assert.Equal(t, a.TaskIDs(), b.TaskIDs())
}

func TestCompile_MutualInvariantLargeGraph(t *testing.T) {
	// Ten tasks joined through a mesh of gateways, with back edges.
	g := NewElementGraph().AddElement("S", KindStart, "")
	for i := 0; i < 10; i++ {
		g.AddElement(fmt.Sprintf("T%d", i), KindTask, "")
		g.AddElement(fmt.Sprintf("G%d", i), KindGateway, "")
	}
	g.AddFlow("S", "G0")
	for i := 0; i < 10; i++ {
		g.AddFlow(fmt.Sprintf("G%d", i), fmt.Sprintf("T%d", i))
		g.AddFlow(fmt.Sprintf("T%d", i), fmt.Sprintf("G%d", (i+1)%10))
		g.AddFlow(fmt.Sprintf("G%d", i), fmt.Sprintf("G%d", (i+3)%10))
	}

	tg, err := g.Compile()
	require.NoError(t, err)
	assertMutualEdges(t, tg)

	first, ok := tg.FirstTask()
	require.True(t, ok)
	assert.Equal(t, "T0", first.ID)
}

func TestTaskGraph_UnknownIDs(t *testing.T) {
	tg, err := parseFixture(t, "purchase.bpmn").Compile()
	require.NoError(t, err)

	_, ok := tg.Task("nope")
	assert.False(t, ok)
	assert.NotNil(t, tg.NextTasks("nope"))
	assert.Empty(t, tg.NextTasks("nope"))
	assert.Empty(t, tg.PreviousTasks("nope"))
	assert.False(t, tg.IsTerminal("nope"))
	assert.False(t, tg.HasEdge("nope", "Task_Ship"))

	prev, next := tg.Edges("nope")
	assert.Nil(t, prev)
	assert.Nil(t, next)
}

func TestTaskGraph_ReturnsCopies(t *testing.T) {
	tg, err := parseFixture(t, "purchase.bpmn").Compile()
	require.NoError(t, err)

	task, ok := tg.Task("Task_Order")
	require.True(t, ok)
	task.NextTasks[0] = "mutated"
	task.Name = "mutated"

	again, _ := tg.Task("Task_Order")
	assert.Equal(t, "Task_Ship", again.NextTasks[0])
	assert.Equal(t, "Place order", again.Name)

	ids := tg.TaskIDs()
	ids[0] = "mutated"
	assert.Equal(t, "Task_Order", tg.TaskIDs()[0])
}

func TestTaskGraph_NilSafe(t *testing.T) {
	var tg *TaskGraph

	_, ok := tg.FirstTask()
	assert.False(t, ok)
	assert.Equal(t, 0, tg.Len())
	assert.Empty(t, tg.NextTasks("x"))
	assert.Nil(t, tg.Tasks())
}

func TestTaskGraph_ConcurrentReads(t *testing.T) {
	tg, err := parseFixture(t, "purchase.bpmn").Compile()
	require.NoError(t, err)

	var nav Navigator = tg
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				first, _ := nav.FirstTask()
				for _, next := range nav.NextTasks(first.ID) {
					_ = nav.PreviousTasks(next.ID)
				}
			}
		}()
	}
	wg.Wait()
}
