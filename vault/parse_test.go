package vault

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/elcuervo/otq"
)

func TestParseTaskLineStatuses(t *testing.T) {
	tests := []struct {
		mark string
		want string
	}{
		{" ", "open"},
		{"x", "done"},
		{"X", "done"},
		{"/", "in-progress"},
		{"-", "cancelled"},
	}
	for _, tt := range tests {
		if got := parseTaskLine(tt.mark, "anything").Status; got != tt.want {
			t.Errorf("mark %q: status = %q, want %q", tt.mark, got, tt.want)
		}
	}
}

func TestParseTaskLineMetadata(t *testing.T) {
	task := parseTaskLine(" ",
		"Buy milk 📅 2025-03-10 ⏳ 2025-03-08 ➕ 2025-03-01 ⏫ #errand #home/chores @store [[Groceries]] [points:: 3]")

	if task.Title != "Buy milk" {
		t.Errorf("Title = %q, want stripped text", task.Title)
	}
	if task.Due != "2025-03-10" || task.Scheduled != "2025-03-08" {
		t.Errorf("dates = (%q, %q)", task.Due, task.Scheduled)
	}
	if task.CreatedAt.Format("2006-01-02") != "2025-03-01" {
		t.Errorf("CreatedAt = %v", task.CreatedAt)
	}
	if task.Priority != "high" {
		t.Errorf("Priority = %q, want high", task.Priority)
	}
	if !slices.Equal(task.Tags, []string{"errand", "home/chores"}) {
		t.Errorf("Tags = %v", task.Tags)
	}
	if !slices.Equal(task.Contexts, []string{"store"}) {
		t.Errorf("Contexts = %v", task.Contexts)
	}
	if !slices.Equal(task.Projects, []string{"Groceries"}) {
		t.Errorf("Projects = %v", task.Projects)
	}
	if task.Points == nil || *task.Points != 3 {
		t.Errorf("Points = %v", task.Points)
	}
}

func TestParseTaskLineRecurrence(t *testing.T) {
	task := parseTaskLine("x", "Water plants 🔁 every 3 days 📅 2025-03-10 ✅ 2025-03-07 ✅ 2025-03-10")

	if task.Recurrence != "every 3 days" {
		t.Errorf("Recurrence = %q", task.Recurrence)
	}
	if !slices.Equal(task.CompleteInstances, []string{"2025-03-07", "2025-03-10"}) {
		t.Errorf("CompleteInstances = %v", task.CompleteInstances)
	}
}

func TestParseTaskLineProjectAlias(t *testing.T) {
	task := parseTaskLine(" ", "Draft copy [[Website Redesign|the redesign]]")
	if !slices.Equal(task.Projects, []string{"Website Redesign"}) {
		t.Errorf("Projects = %v", task.Projects)
	}
	if task.Title != "Draft copy" {
		t.Errorf("Title = %q", task.Title)
	}
}

func TestParseTaskLineFields(t *testing.T) {
	task := parseTaskLine(" ", "Plan sprint [order:: 2.5] [archived:: true] [effort:: 8] [owner:: ana]")

	if task.Order == nil || *task.Order != 2.5 {
		t.Errorf("Order = %v", task.Order)
	}
	if !task.Archived {
		t.Error("Archived = false, want true")
	}
	if task.UserFields["effort"] != "8" || task.UserFields["owner"] != "ana" {
		t.Errorf("UserFields = %v", task.UserFields)
	}
	if _, ok := task.UserFields["order"]; ok {
		t.Error("order leaked into UserFields")
	}
}

func TestParseTaskLinePriorityFirstMarkWins(t *testing.T) {
	task := parseTaskLine(" ", "Oddly marked 🔺 ⏬")
	if task.Priority != "highest" {
		t.Errorf("Priority = %q, want highest", task.Priority)
	}
}

func TestTaskPath(t *testing.T) {
	if got := taskPath("notes/work.md", 12); got != otq.Path("notes/work.md:12") {
		t.Errorf("taskPath = %q", got)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	content := `# Inbox

- [ ] First task 📅 2025-03-10
Some prose in between.
- [x] Second task
	- [ ] Indented subtask
not a task - [ ] mid-line text
`
	abs := filepath.Join(dir, "inbox.md")
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := parseFile(abs, "inbox.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("parsed %d tasks, want 3", len(tasks))
	}

	if tasks[0].Path != "inbox.md:3" || tasks[1].Path != "inbox.md:5" || tasks[2].Path != "inbox.md:6" {
		t.Errorf("paths = %v, %v, %v", tasks[0].Path, tasks[1].Path, tasks[2].Path)
	}
	if tasks[2].Title != "Indented subtask" {
		t.Errorf("indented task title = %q", tasks[2].Title)
	}
	if tasks[0].CreatedAt.IsZero() || tasks[0].ModifiedAt.IsZero() {
		t.Error("file times not applied to tasks")
	}
}

func TestScanVault(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"inbox.md",
		"projects/work.md",
		"projects/deep/nested.md",
	}
	for _, f := range files {
		abs := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte("- [ ] x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Hidden directories and non-markdown files stay out.
	if err := os.MkdirAll(filepath.Join(dir, ".obsidian"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".obsidian", "cache.md"), []byte("- [ ] x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("- [ ] x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := scanVault(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 3 {
		t.Errorf("found %d files, want 3: %v", len(found), found)
	}
}

func TestLinkResolver(t *testing.T) {
	var r LinkResolver
	tests := []struct {
		in   string
		want string
	}{
		{"[[Website Redesign]]", "website redesign"},
		{"[[Website Redesign|the redesign]]", "website redesign"},
		{"[[projects/Website Redesign]]", "website redesign"},
		{"[[Website Redesign.md]]", "website redesign"},
		{"Website Redesign", "website redesign"},
		{"  website redesign  ", "website redesign"},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
