package otq

import (
	"testing"
)

func testSorter(fields ...FieldDef) *sorter {
	table := newFieldTable(fields)
	ev := newEvaluator(table, DefaultStatuses, DefaultPriorities, nil)
	return newSorter(ev, table, DefaultStatuses)
}

func titles(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func assertOrder(t *testing.T, tasks []*Task, want ...string) {
	t.Helper()
	got := titles(tasks)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSortByDue(t *testing.T) {
	s := testSorter()
	tasks := []*Task{
		{Title: "c"},
		{Title: "a", Due: "2025-03-01"},
		{Title: "b", Due: "2025-02-01"},
	}

	sorted := s.Sort(tasks, SortByDue, SortAsc)
	assertOrder(t, sorted, "b", "a", "c") // no due date sorts last

	desc := s.Sort(tasks, SortByDue, SortDesc)
	assertOrder(t, desc, "c", "a", "b")
}

func TestSortDoesNotMutateInput(t *testing.T) {
	s := testSorter()
	tasks := []*Task{
		{Title: "a", Due: "2025-03-01"},
		{Title: "b", Due: "2025-02-01"},
	}
	s.Sort(tasks, SortByDue, SortAsc)
	assertOrder(t, tasks, "a", "b")
}

func TestSortByPriorityMostUrgentFirst(t *testing.T) {
	s := testSorter()
	tasks := []*Task{
		{Title: "low", Priority: "low"},
		{Title: "highest", Priority: "highest"},
		{Title: "none"},
		{Title: "normal", Priority: "normal"},
	}

	sorted := s.Sort(tasks, SortByPriority, SortAsc)
	assertOrder(t, sorted, "highest", "normal", "low", "none")
}

func TestFallbackChain(t *testing.T) {
	s := testSorter()

	// Same due date: scheduled breaks the tie.
	tasks := []*Task{
		{Title: "b", Due: "2025-03-01", Scheduled: "2025-02-20"},
		{Title: "a", Due: "2025-03-01", Scheduled: "2025-02-10"},
	}
	sorted := s.Sort(tasks, SortByDue, SortAsc)
	assertOrder(t, sorted, "a", "b")

	// Same due and scheduled: priority breaks the tie.
	tasks = []*Task{
		{Title: "b", Due: "2025-03-01", Priority: "low"},
		{Title: "a", Due: "2025-03-01", Priority: "high"},
	}
	sorted = s.Sort(tasks, SortByDue, SortAsc)
	assertOrder(t, sorted, "a", "b")

	// Everything equal: title breaks the tie.
	tasks = []*Task{
		{Title: "zebra", Due: "2025-03-01"},
		{Title: "apple", Due: "2025-03-01"},
	}
	sorted = s.Sort(tasks, SortByDue, SortAsc)
	assertOrder(t, sorted, "apple", "zebra")
}

func TestFallbackSkipsPrimary(t *testing.T) {
	s := testSorter()

	// Primary is priority; both tie there, and the chain must not consult
	// priority again. Scheduled (the first fallback) decides.
	tasks := []*Task{
		{Title: "b", Priority: "high", Scheduled: "2025-03-02"},
		{Title: "a", Priority: "high", Scheduled: "2025-03-01"},
	}
	sorted := s.Sort(tasks, SortByPriority, SortAsc)
	assertOrder(t, sorted, "a", "b")
}

func TestDescReversesWholeChain(t *testing.T) {
	s := testSorter()
	tasks := []*Task{
		{Title: "apple", Due: "2025-03-01"},
		{Title: "zebra", Due: "2025-03-01"},
	}

	// Ties resolved by title flip along with the primary key in desc.
	sorted := s.Sort(tasks, SortByDue, SortDesc)
	assertOrder(t, sorted, "zebra", "apple")
}

func TestSortStability(t *testing.T) {
	s := testSorter()
	// Exact duplicates on every chain key keep their input order.
	tasks := []*Task{
		{Title: "same", Due: "2025-03-01", Path: "a.md:1"},
		{Title: "same", Due: "2025-03-01", Path: "a.md:2"},
		{Title: "same", Due: "2025-03-01", Path: "a.md:3"},
	}

	sorted := s.Sort(tasks, SortByDue, SortAsc)
	for i, task := range sorted {
		if task.Path != tasks[i].Path {
			t.Fatalf("stable sort reordered duplicates: %v", sorted)
		}
	}
}

func TestSortByStatusDeclaredOrder(t *testing.T) {
	s := testSorter()
	tasks := []*Task{
		{Title: "done", Status: "done"},
		{Title: "odd", Status: "someday"},
		{Title: "open", Status: "open"},
		{Title: "wip", Status: "in-progress"},
	}

	sorted := s.Sort(tasks, SortByStatus, SortAsc)
	assertOrder(t, sorted, "open", "wip", "done", "odd") // undeclared last
}

func TestSortByUserField(t *testing.T) {
	s := testSorter(FieldDef{ID: "effort", Kind: FieldNumber})
	tasks := []*Task{
		{Title: "big", UserFields: map[string]string{"effort": "8"}},
		{Title: "none"},
		{Title: "small", UserFields: map[string]string{"effort": "2"}},
	}

	sorted := s.Sort(tasks, SortKey("user:effort"), SortAsc)
	assertOrder(t, sorted, "small", "big", "none")
}

func TestSortByOrderAndPoints(t *testing.T) {
	s := testSorter()
	one, two := 1.0, 2.0
	tasks := []*Task{
		{Title: "second", Order: &two},
		{Title: "unordered"},
		{Title: "first", Order: &one},
	}

	sorted := s.Sort(tasks, SortByOrder, SortAsc)
	assertOrder(t, sorted, "first", "second", "unordered")
}
