package vault

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/elcuervo/otq"
)

var (
	taskRe      = regexp.MustCompile(`^\s*-\s*\[([ xX/\-])\]\s*(.*)$`)
	dueRe       = regexp.MustCompile(`📅\s*(\d{4}-\d{2}-\d{2})`)
	scheduledRe = regexp.MustCompile(`⏳\s*(\d{4}-\d{2}-\d{2})`)
	createdRe   = regexp.MustCompile(`➕\s*(\d{4}-\d{2}-\d{2})`)
	doneRe      = regexp.MustCompile(`✅\s*(\d{4}-\d{2}-\d{2})`)
	recurRe     = regexp.MustCompile(`🔁\s*([^📅⏳✅➕🔺⏫🔼🔽⏬\[#@]+)`)
	tagRe       = regexp.MustCompile(`#([\w/-]+)`)
	contextRe   = regexp.MustCompile(`@([\w-]+)`)
	projectRe   = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)
	fieldRe     = regexp.MustCompile(`\[(\w+)::\s*([^\]]*)\]`)
	metaStripRe = regexp.MustCompile(`📅\s*\S+|⏳\s*\S+|✅\s*\S+|➕\s*\S+|🔁\s*[^📅⏳✅➕🔺⏫🔼🔽⏬\[#@]+|[🔺⏫🔼🔽⏬]|#[\w/-]+|@[\w-]+|\[\[[^\]]+\]\]|\[\w+::[^\]]*\]`)
)

// Checkbox state characters map to status keys.
var statusByMark = map[string]string{
	" ": "open",
	"x": "done",
	"X": "done",
	"/": "in-progress",
	"-": "cancelled",
}

// Priority emoji map to priority keys, Tasks-plugin style.
var priorityByMark = []struct {
	mark string
	key  string
}{
	{"🔺", "highest"},
	{"⏫", "high"},
	{"🔼", "normal"},
	{"🔽", "low"},
	{"⏬", "lowest"},
}

// taskPath builds the record key for a checkbox line.
func taskPath(rel string, line int) otq.Path {
	return otq.Path(fmt.Sprintf("%s:%d", rel, line))
}

// parseFile extracts task records from a markdown file. rel is the
// vault-relative path used for record keys.
func parseFile(absPath, rel string) ([]*otq.Task, error) {
	file, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	var tasks []*otq.Task
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		matches := taskRe.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		task := parseTaskLine(matches[1], strings.TrimSpace(matches[2]))
		task.Path = taskPath(rel, lineNum)
		task.ModifiedAt = info.ModTime()
		if task.CreatedAt.IsZero() {
			task.CreatedAt = info.ModTime()
		}
		tasks = append(tasks, task)
	}

	return tasks, scanner.Err()
}

// parseTaskLine builds a task snapshot from a checkbox mark and the text
// after it.
func parseTaskLine(mark, text string) *otq.Task {
	task := &otq.Task{
		Status: statusByMark[mark],
	}
	if task.Status == "" {
		task.Status = "open"
	}

	if m := dueRe.FindStringSubmatch(text); m != nil {
		task.Due = m[1]
	}
	if m := scheduledRe.FindStringSubmatch(text); m != nil {
		task.Scheduled = m[1]
	}
	if m := createdRe.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			task.CreatedAt = t
		}
	}
	for _, m := range doneRe.FindAllStringSubmatch(text, -1) {
		task.CompleteInstances = append(task.CompleteInstances, m[1])
	}
	if m := recurRe.FindStringSubmatch(text); m != nil {
		task.Recurrence = strings.TrimSpace(m[1])
	}
	for _, p := range priorityByMark {
		if strings.Contains(text, p.mark) {
			task.Priority = p.key
			break
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		task.Tags = append(task.Tags, m[1])
	}
	for _, m := range contextRe.FindAllStringSubmatch(text, -1) {
		task.Contexts = append(task.Contexts, m[1])
	}
	for _, m := range projectRe.FindAllStringSubmatch(text, -1) {
		task.Projects = append(task.Projects, strings.TrimSpace(m[1]))
	}
	for _, m := range fieldRe.FindAllStringSubmatch(text, -1) {
		key, value := m[1], strings.TrimSpace(m[2])
		switch key {
		case "order":
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				task.Order = &n
			}
		case "points":
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				task.Points = &n
			}
		case "archived":
			task.Archived = value == "true" || value == "yes"
		default:
			if task.UserFields == nil {
				task.UserFields = make(map[string]string)
			}
			task.UserFields[key] = value
		}
	}

	task.Title = strings.TrimSpace(metaStripRe.ReplaceAllString(text, ""))
	return task
}

// scanVault recursively finds all .md files in a directory, skipping
// hidden directories.
func scanVault(vaultPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(vaultPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && strings.HasPrefix(info.Name(), ".") && path != vaultPath {
			return filepath.SkipDir
		}

		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".md") {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

// LinkResolver canonicalizes note-link project references: "[[Page|alias]]",
// "[[folder/Page]]", "Page" and "page" all resolve to the same identity.
type LinkResolver struct{}

func (LinkResolver) Resolve(reference string) string {
	ref := strings.TrimSpace(reference)
	ref = strings.TrimPrefix(ref, "[[")
	ref = strings.TrimSuffix(ref, "]]")
	if i := strings.IndexByte(ref, '|'); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimSuffix(ref, ".md")
	ref = filepath.Base(ref)
	return strings.ToLower(strings.TrimSpace(ref))
}
