package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/savioxavier/termlink"

	"github.com/elcuervo/otq"
)

const defaultTheme = "dracula"

var glamourRenderer *glamour.TermRenderer

func init() {
	initRenderer(defaultTheme)
}

func initRenderer(theme string) {
	if theme == "" {
		theme = defaultTheme
	}
	glamourRenderer, _ = glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme),
		glamour.WithWordWrap(0),
	)
}

var statusMarks = map[string]string{
	"open":        " ",
	"in-progress": "/",
	"done":        "x",
	"cancelled":   "-",
}

var prioritySymbols = map[string]string{
	"highest": "!!",
	"high":    "!",
	"low":     "v",
	"lowest":  "vv",
}

// renderTask renders a full task line with checkbox using Glamour
func renderTask(task *otq.Task) string {
	mark, ok := statusMarks[task.Status]
	if !ok {
		mark = " "
	}

	taskLine := fmt.Sprintf("- [%s] %s", mark, task.Title)

	if glamourRenderer == nil {
		return taskLine
	}

	rendered, err := glamourRenderer.Render(taskLine)
	if err != nil {
		return taskLine
	}

	// Keep as single line
	rendered = strings.TrimSpace(rendered)
	return rendered
}

// taskDetail builds the trailing metadata shown next to a task line.
func taskDetail(task *otq.Task, ref time.Time) string {
	var parts []string

	if sym, ok := prioritySymbols[task.Priority]; ok {
		parts = append(parts, sym)
	}
	if task.Due != "" {
		due := "due " + task.Due
		if otq.IsOverdue(task.Due, ref) {
			parts = append(parts, overdueStyle.Render(due))
		} else {
			parts = append(parts, dueStyle.Render(due))
		}
	}
	if task.Recurrence != "" {
		parts = append(parts, countStyle.Render("repeats"))
	}

	return strings.Join(parts, " ")
}

// taskLink renders the source location as a clickable terminal hyperlink
// when the terminal supports it, falling back to the plain path.
func taskLink(vaultPath string, path otq.Path) string {
	rel := string(path)
	label := fileStyle.Render(rel)

	if !termlink.SupportsHyperlinks() {
		return label
	}

	file := rel
	if i := strings.LastIndexByte(file, ':'); i >= 0 {
		file = file[:i]
	}
	return termlink.Link(label, "file://"+vaultPath+"/"+file)
}
