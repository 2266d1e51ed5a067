package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elcuervo/otq"
)

func conditionAt(t *testing.T, q otq.Query, i int) *otq.Condition {
	t.Helper()
	if i >= len(q.Root.Children) {
		t.Fatalf("root has %d children, want index %d", len(q.Root.Children), i)
	}
	c, ok := q.Root.Children[i].(*otq.Condition)
	if !ok {
		t.Fatalf("child %d is %T, want condition", i, q.Root.Children[i])
	}
	return c
}

func TestParseQueryContentClauses(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		property otq.Property
		operator otq.Operator
		value    string
	}{
		{"status is", "status is open", otq.PropStatus, otq.OpIs, "open"},
		{"status is not", "status is not done", otq.PropStatus, otq.OpIsNot, "done"},
		{"title includes", "title includes call mom", otq.PropTitle, otq.OpContains, "call mom"},
		{"tag excludes", "tag excludes someday", otq.PropTags, otq.OpNotContains, "someday"},
		{"due before", "due before today", otq.PropDue, otq.OpBefore, "today"},
		{"due on or before", "due on or before 2025-06-01", otq.PropDue, otq.OpOnOrBefore, "2025-06-01"},
		{"scheduled on", "scheduled on tomorrow", otq.PropScheduled, otq.OpIs, "tomorrow"},
		{"user field", "effort is 8", otq.UserProperty("effort"), otq.OpIs, "8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := parseQueryContent(tt.line)
			if err != nil {
				t.Fatal(err)
			}
			c := conditionAt(t, q, 0)
			if c.Property != tt.property || c.Operator != tt.operator {
				t.Errorf("parsed (%s, %s), want (%s, %s)", c.Property, c.Operator, tt.property, tt.operator)
			}
			if got := c.Value.Text; got != tt.value {
				t.Errorf("value = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestParseQueryContentEmptyClauses(t *testing.T) {
	q, err := parseQueryContent("due is empty\npriority is not empty")
	if err != nil {
		t.Fatal(err)
	}

	first := conditionAt(t, q, 0)
	if first.Property != otq.PropDue || first.Operator != otq.OpEmpty {
		t.Errorf("first = (%s, %s)", first.Property, first.Operator)
	}
	second := conditionAt(t, q, 1)
	if second.Property != otq.PropPriority || second.Operator != otq.OpNotEmpty {
		t.Errorf("second = (%s, %s)", second.Property, second.Operator)
	}
}

func TestParseQueryContentQuickFilters(t *testing.T) {
	q, err := parseQueryContent("not done\nhide archived\nstatus is open")
	if err != nil {
		t.Fatal(err)
	}

	var quick int
	for _, child := range q.Root.Children {
		switch child.NodeID() {
		case "quick:hide-completed", "quick:hide-archived":
			quick++
		}
	}
	if quick != 2 {
		t.Errorf("quick-filter conditions = %d, want 2", quick)
	}
	if len(q.Root.Children) != 3 {
		t.Errorf("root children = %d, want 3", len(q.Root.Children))
	}
}

func TestParseQueryContentAnyOf(t *testing.T) {
	q, err := parseQueryContent("status is open\nany of:\ntag includes urgent\npriority is highest")
	if err != nil {
		t.Fatal(err)
	}

	if len(q.Root.Children) != 2 {
		t.Fatalf("root children = %d, want condition plus or-group", len(q.Root.Children))
	}
	group, ok := q.Root.Children[1].(*otq.Group)
	if !ok {
		t.Fatalf("second child is %T, want group", q.Root.Children[1])
	}
	if group.Conjunction != otq.ConjOr || len(group.Children) != 2 {
		t.Errorf("or-group = (%s, %d children)", group.Conjunction, len(group.Children))
	}
}

func TestParseQueryContentSortAndGroup(t *testing.T) {
	q, err := parseQueryContent("group by project\nsort by priority desc")
	if err != nil {
		t.Fatal(err)
	}
	if q.GroupKey != otq.GroupByProject {
		t.Errorf("GroupKey = %q", q.GroupKey)
	}
	if q.SortKey != otq.SortByPriority || q.SortDirection != otq.SortDesc {
		t.Errorf("sort = (%q, %q)", q.SortKey, q.SortDirection)
	}

	q, err = parseQueryContent("sort by title")
	if err != nil {
		t.Fatal(err)
	}
	if q.SortKey != otq.SortByTitle || q.SortDirection != otq.SortAsc {
		t.Errorf("sort = (%q, %q), want title ascending", q.SortKey, q.SortDirection)
	}
}

func TestParseQueryContentSemicolons(t *testing.T) {
	q, err := parseQueryContent("status is open; due before tomorrow; group by status")
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Root.Children) != 2 {
		t.Errorf("root children = %d, want 2", len(q.Root.Children))
	}
	if q.GroupKey != otq.GroupByStatus {
		t.Errorf("GroupKey = %q", q.GroupKey)
	}
}

func TestParseQueryContentSkipsCommentsAndBlanks(t *testing.T) {
	q, err := parseQueryContent("# overdue report\n\nstatus is open\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Root.Children) != 1 {
		t.Errorf("root children = %d, want 1", len(q.Root.Children))
	}
}

func TestParseQueryContentBadClause(t *testing.T) {
	_, err := parseQueryContent("status is open\nwhat even is this")
	if err == nil {
		t.Fatal("unparsable clause did not fail")
	}
}

func TestParseQueryFile(t *testing.T) {
	dir := t.TempDir()
	content := "# Dashboard\n\n" +
		"## Today\n\n" +
		"```tasks\nnot done\ndue on today\n```\n\n" +
		"## Backlog\n\n" +
		"```tasks\nstatus is open\ndue is empty\n```\n"
	path := filepath.Join(dir, "dashboard.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sections, err := parseQueryFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(sections))
	}
	if sections[0].Name != "Today" || sections[1].Name != "Backlog" {
		t.Errorf("section names = %q, %q", sections[0].Name, sections[1].Name)
	}
	if len(sections[1].Query.Root.Children) != 2 {
		t.Errorf("Backlog children = %d, want 2", len(sections[1].Query.Root.Children))
	}
}

func TestParseQueryFileWithoutBlocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.md")
	if err := os.WriteFile(path, []byte("just prose\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseQueryFile(path); err == nil {
		t.Fatal("file without tasks blocks did not fail")
	}
}

func TestResolveQueryInline(t *testing.T) {
	sections, err := resolveQuery("status is open", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 1 || sections[0].Name != "" {
		t.Fatalf("sections = %+v", sections)
	}
}

func TestResolveQueryVaultRelativeFile(t *testing.T) {
	vault := t.TempDir()
	content := "```tasks\nstatus is open\n```\n"
	if err := os.WriteFile(filepath.Join(vault, "queries.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sections, err := resolveQuery("queries.md", vault)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(sections))
	}
	if len(sections[0].Query.Root.Children) != 1 {
		t.Errorf("children = %d, want 1", len(sections[0].Query.Root.Children))
	}
}
