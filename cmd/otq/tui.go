package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/elcuervo/otq"
	"github.com/elcuervo/otq/vault"
)

const (
	defaultWindowHeight = 24
	defaultWindowWidth  = 80
	reservedUILines     = 4
	minVisibleHeight    = 3
	maxInputWidth       = 70
	refreshDebounce     = 250 * time.Millisecond
	sweepInterval       = time.Minute
)

// sectionResult is one evaluated query section ready for display.
type sectionResult struct {
	Name     string
	Query    otq.Query
	Grouping *otq.Grouping
}

// viewLine is a renderable line; taskIndex is -1 for header lines.
type viewLine struct {
	content   string
	taskIndex int
}

type refreshMsg struct{}

type resultsMsg struct {
	results []sectionResult
}

type sweepMsg struct{}

type model struct {
	engine    *otq.Engine
	index     *vault.Index
	sections  []Section
	results   []sectionResult
	tasks     []*otq.Task
	cursor    int
	vaultPath string
	queryName string

	editing   bool
	textInput textinput.Model
	spin      spinner.Model
	loading   bool

	events chan struct{}
	err    error

	quitting     bool
	windowHeight int
	windowWidth  int
}

func newModel(engine *otq.Engine, index *vault.Index, sections []Section, vaultPath, queryName string) model {
	ti := textinput.New()
	ti.Placeholder = "not done; due before tomorrow; group by status"
	ti.CharLimit = 200
	ti.Width = maxInputWidth
	ti.PromptStyle = queryInputStyle
	ti.TextStyle = queryInputStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = cursorStyle

	m := model{
		engine:       engine,
		index:        index,
		sections:     sections,
		vaultPath:    vaultPath,
		queryName:    queryName,
		textInput:    ti,
		spin:         sp,
		loading:      true,
		events:       make(chan struct{}, 1),
		windowHeight: defaultWindowHeight,
		windowWidth:  defaultWindowWidth,
	}
	m.subscribe()
	return m
}

// subscribe forwards index mutations into the program as a coalesced
// refresh signal. The channel holds at most one pending notification.
func (m *model) subscribe() {
	notify := func(otq.Event) {
		select {
		case m.events <- struct{}{}:
		default:
		}
	}
	for _, kind := range []otq.EventKind{
		otq.EventRecordAdded, otq.EventRecordUpdated, otq.EventRecordDeleted,
		otq.EventRecordRenamed, otq.EventIndexRebuilt,
	} {
		m.index.Subscribe(kind, notify)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tea.WindowSize(), m.spin.Tick, m.evaluateCmd(), m.waitForChange(), sweepCmd())
}

func (m model) waitForChange() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		<-events
		time.Sleep(refreshDebounce)
		// Drain anything that piled up during the debounce window.
		select {
		case <-events:
		default:
		}
		return refreshMsg{}
	}
}

func sweepCmd() tea.Cmd {
	return tea.Tick(sweepInterval, func(time.Time) tea.Msg { return sweepMsg{} })
}

func (m model) evaluateCmd() tea.Cmd {
	engine := m.engine
	sections := m.sections
	return func() tea.Msg {
		now := time.Now()
		results := make([]sectionResult, 0, len(sections))
		for _, s := range sections {
			results = append(results, sectionResult{
				Name:     s.Name,
				Query:    s.Query,
				Grouping: engine.Evaluate(context.Background(), s.Query, now),
			})
		}
		return resultsMsg{results: results}
	}
}

// applyResults installs fresh results and rebuilds the flat navigation
// list, clamping the cursor.
func (m *model) applyResults(results []sectionResult) {
	m.results = results
	m.tasks = nil
	for _, r := range results {
		for _, name := range r.Grouping.Names() {
			m.tasks = append(m.tasks, r.Grouping.Tasks(name)...)
		}
	}
	if m.cursor >= len(m.tasks) {
		m.cursor = len(m.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *model) applyQueryInput(input string) {
	sections, err := resolveQuery(input, m.vaultPath)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.sections = sections
	m.queryName = input
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowHeight = msg.Height
		m.windowWidth = msg.Width

	case refreshMsg:
		m.loading = true
		return m, tea.Batch(m.evaluateCmd(), m.waitForChange())

	case resultsMsg:
		m.loading = false
		m.applyResults(msg.results)

	case sweepMsg:
		m.engine.Sweep()
		return m, sweepCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.editing {
			switch msg.String() {
			case "enter":
				m.editing = false
				m.applyQueryInput(m.textInput.Value())
				m.loading = true
				return m, m.evaluateCmd()
			case "esc":
				m.editing = false
				return m, nil
			default:
				var cmd tea.Cmd
				m.textInput, cmd = m.textInput.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}

		case "g":
			m.cursor = 0

		case "G":
			if len(m.tasks) > 0 {
				m.cursor = len(m.tasks) - 1
			}

		case "/":
			m.editing = true
			m.textInput.SetValue(strings.ReplaceAll(m.queryName, "\n", "; "))
			m.textInput.Focus()
			return m, textinput.Blink

		case "d":
			m.toggleQuick(otq.QuickHideCompleted)
			m.loading = true
			return m, m.evaluateCmd()

		case "a":
			m.toggleQuick(otq.QuickHideArchived)
			m.loading = true
			return m, m.evaluateCmd()

		case "r":
			m.loading = true
			return m, m.evaluateCmd()
		}
	}

	return m, nil
}

// toggleQuick flips a quick filter on every section. The filter counts as
// active when the first section carries it.
func (m *model) toggleQuick(kind otq.QuickFilter) {
	active := false
	if len(m.sections) > 0 {
		active = quickActive(m.sections[0].Query, kind)
	}
	for i := range m.sections {
		m.sections[i].Query = otq.ToggleQuickFilter(m.sections[i].Query, kind, !active)
	}
}

func quickActive(q otq.Query, kind otq.QuickFilter) bool {
	if q.Root == nil {
		return false
	}
	for _, child := range q.Root.Children {
		if child.NodeID() == "quick:"+string(kind) {
			return true
		}
	}
	return false
}

func (m model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	title := titleStyle.Render("otq ") + titleNameStyle.Render(m.vaultPath)
	if m.loading {
		title += " " + m.spin.View()
	}
	b.WriteString(title + "\n")

	if m.editing {
		b.WriteString(queryModeStyle.Render("QUERY") + " " + m.textInput.View() + "\n\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}

	lines := m.buildLines()

	if len(m.tasks) == 0 && !m.loading {
		b.WriteString("\nNo tasks found.\n")
	} else {
		visibleHeight := m.windowHeight - reservedUILines
		if m.editing {
			visibleHeight -= 2
		}
		if visibleHeight < minVisibleHeight {
			visibleHeight = minVisibleHeight
		}

		cursorLine := 0
		for i, line := range lines {
			if line.taskIndex == m.cursor {
				cursorLine = i
				break
			}
		}

		start, end := visibleRange(cursorLine, len(lines), visibleHeight)
		for i := start; i < end; i++ {
			b.WriteString(lines[i].content + "\n")
		}
	}

	b.WriteString("\n" + m.helpBar())
	return b.String()
}

// buildLines flattens the evaluated sections into display lines.
func (m model) buildLines() []viewLine {
	var lines []viewLine
	now := time.Now()
	taskIndex := 0

	for _, r := range m.results {
		if r.Name != "" {
			count := countStyle.Render(fmt.Sprintf(" (%d)", r.Grouping.Total()))
			lines = append(lines, viewLine{
				content:   sectionStyle.Render("## "+r.Name) + count,
				taskIndex: -1,
			})
		}
		if r.Grouping.Total() == 0 {
			lines = append(lines, viewLine{
				content:   fileStyle.Render("  (no matching tasks)"),
				taskIndex: -1,
			})
			continue
		}

		for _, name := range r.Grouping.Names() {
			if r.Query.GroupKey != otq.GroupByNone && name != "" {
				lines = append(lines, viewLine{
					content:   groupStyle.Render("  ### " + name),
					taskIndex: -1,
				})
			}
			for _, task := range r.Grouping.Tasks(name) {
				cursor := "  "
				line := renderTask(task)
				if m.taskDone(task) {
					line = doneStyle.Render(task.Title)
				}
				if m.cursor == taskIndex {
					cursor = cursorStyle.Render("> ")
					line = selectedStyle.Render(task.Title)
				}
				if detail := taskDetail(task, now); detail != "" {
					line += " " + detail
				}
				fileInfo := fileStyle.Render(" (" + string(task.Path) + ")")
				lines = append(lines, viewLine{
					content:   cursor + line + fileInfo,
					taskIndex: taskIndex,
				})
				taskIndex++
			}
		}
	}
	return lines
}

func (m model) taskDone(task *otq.Task) bool {
	for _, s := range otq.DefaultStatuses {
		if s.Key == task.Status {
			return s.Done
		}
	}
	return false
}

func (m model) helpBar() string {
	keys := [][2]string{
		{"↑/k", "up"},
		{"↓/j", "down"},
		{"/", "query"},
		{"d", "not done"},
		{"a", "archived"},
		{"r", "refresh"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, helpBarKeyStyle.Render(k[0])+" "+helpBarDescStyle.Render(k[1]))
	}
	sep := helpBarSeparatorStyle.Render(" • ")
	return helpBarStyle.Render(strings.Join(parts, sep))
}

// visibleRange keeps the cursor line visible, roughly centered.
func visibleRange(cursorLine, total, height int) (start, end int) {
	if total <= height {
		return 0, total
	}
	start = cursorLine - height/2
	if start < 0 {
		start = 0
	}
	end = start + height
	if end > total {
		end = total
		start = end - height
	}
	return start, end
}
