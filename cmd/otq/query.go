package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/elcuervo/otq"
)

var (
	blockRe  = regexp.MustCompile("(?s)```tasks\\s*\\n(.+?)```")
	headerRe = regexp.MustCompile(`(?m)^##\s+(.+)$`)
	dateRe   = regexp.MustCompile(`^(due|scheduled|created|modified)\s+(on or before|on or after|before|after|on)\s+(\S+)$`)
	propRe   = regexp.MustCompile(`^(\S+)\s+(is not|is|includes|excludes)\s+(.+)$`)
	groupRe  = regexp.MustCompile(`^group by (\S+)$`)
	sortRe   = regexp.MustCompile(`^sort by (\S+)(\s+(?:desc|reverse))?$`)
)

// Section pairs a parsed query with the heading it appeared under.
type Section struct {
	Name  string
	Query otq.Query
}

// dslProperties maps query keywords to engine properties. Anything not
// listed here or in dslDateProperties is treated as a user field.
var dslProperties = map[string]otq.Property{
	"title":      otq.PropTitle,
	"status":     otq.PropStatus,
	"priority":   otq.PropPriority,
	"tag":        otq.PropTags,
	"context":    otq.PropContexts,
	"project":    otq.PropProjects,
	"recurrence": otq.PropRecurrence,
}

var dslDateProperties = map[string]otq.Property{
	"due":       otq.PropDue,
	"scheduled": otq.PropScheduled,
	"created":   otq.PropCreated,
	"modified":  otq.PropModified,
}

var dslQuickFilters = map[string]otq.QuickFilter{
	"not done":       otq.QuickHideCompleted,
	"hide archived":  otq.QuickHideArchived,
	"hide recurring": otq.QuickHideRecurring,
}

// resolveQuery treats the input as a file path when one exists with
// ```tasks blocks inside, and as an inline query otherwise.
func resolveQuery(input, vaultPath string) ([]Section, error) {
	expanded, err := expandPath(input)
	if err != nil {
		return parseInline(input)
	}

	var filePath string
	if filepath.IsAbs(expanded) {
		filePath = expanded
	} else if vaultPath != "" {
		filePath = filepath.Join(vaultPath, expanded)
	} else {
		filePath = expanded
	}

	if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
		return parseQueryFile(filePath)
	}

	return parseInline(input)
}

func parseInline(input string) ([]Section, error) {
	q, err := parseQueryContent(input)
	if err != nil {
		return nil, err
	}
	return []Section{{Query: q}}, nil
}

// parseQueryFile extracts every ```tasks block, naming each after the
// closest preceding ## header.
func parseQueryFile(filePath string) ([]Section, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	matches := blockRe.FindAllStringSubmatchIndex(string(content), -1)
	if matches == nil {
		return nil, fmt.Errorf("no ```tasks block found in %s", filePath)
	}

	headers := headerRe.FindAllStringSubmatchIndex(string(content), -1)

	var sections []Section

	for _, match := range matches {
		blockStart := match[0]
		body := string(content[match[2]:match[3]])

		sectionName := ""
		for _, header := range headers {
			if header[1] < blockStart {
				sectionName = string(content[header[2]:header[3]])
			} else {
				break
			}
		}

		q, err := parseQueryContent(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filePath, err)
		}
		sections = append(sections, Section{Name: sectionName, Query: q})
	}

	return sections, nil
}

// parseQueryContent parses one query body, one clause per line, with
// semicolons accepted as line breaks for inline queries. Clauses combine
// with AND; a line reading "any of:" switches the remaining filter
// clauses into an OR sub-group.
func parseQueryContent(body string) (otq.Query, error) {
	q := otq.DefaultQuery()

	var andNodes, orNodes []otq.Node
	orMode := false
	lineNo := 0

	body = strings.ReplaceAll(body, ";", "\n")
	for _, raw := range strings.Split(body, "\n") {
		lineNo++
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if kind, ok := dslQuickFilters[line]; ok {
			q = otq.ToggleQuickFilter(q, kind, true)
			continue
		}
		if line == "any of:" {
			orMode = true
			continue
		}

		if m := groupRe.FindStringSubmatch(line); m != nil {
			q.GroupKey = otq.GroupKey(m[1])
			continue
		}
		if m := sortRe.FindStringSubmatch(line); m != nil {
			q.SortKey = otq.SortKey(m[1])
			if strings.TrimSpace(m[2]) != "" {
				q.SortDirection = otq.SortDesc
			} else {
				q.SortDirection = otq.SortAsc
			}
			continue
		}

		cond, err := parseClause(line)
		if err != nil {
			return q, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if orMode {
			orNodes = append(orNodes, cond)
		} else {
			andNodes = append(andNodes, cond)
		}
	}

	q.Root.Children = append(q.Root.Children, andNodes...)
	if len(orNodes) > 0 {
		q.Root.Children = append(q.Root.Children, otq.NewGroup(otq.ConjOr, orNodes...))
	}
	return q, nil
}

func parseClause(line string) (*otq.Condition, error) {
	if m := dateRe.FindStringSubmatch(line); m != nil {
		op := map[string]otq.Operator{
			"before":       otq.OpBefore,
			"after":        otq.OpAfter,
			"on or before": otq.OpOnOrBefore,
			"on or after":  otq.OpOnOrAfter,
			"on":           otq.OpIs,
		}[m[2]]
		return otq.NewCondition(dslDateProperties[m[1]], op, otq.DateValue(m[3])), nil
	}

	if prop, ok := dslDateProperties[firstWord(line)]; ok {
		rest := strings.TrimSpace(strings.TrimPrefix(line, firstWord(line)))
		switch rest {
		case "is empty":
			return otq.NewCondition(prop, otq.OpEmpty, otq.Value{}), nil
		case "is not empty":
			return otq.NewCondition(prop, otq.OpNotEmpty, otq.Value{}), nil
		}
	}

	if m := propRe.FindStringSubmatch(line); m != nil {
		keyword, verb, value := m[1], m[2], strings.TrimSpace(m[3])

		prop, ok := dslProperties[keyword]
		if !ok {
			prop = otq.UserProperty(keyword)
		}

		var op otq.Operator
		switch verb {
		case "is":
			op = otq.OpIs
		case "is not":
			op = otq.OpIsNot
		case "includes":
			op = otq.OpContains
		case "excludes":
			op = otq.OpNotContains
		}

		if value == "empty" && (op == otq.OpIs || op == otq.OpIsNot) {
			if op == otq.OpIs {
				return otq.NewCondition(prop, otq.OpEmpty, otq.Value{}), nil
			}
			return otq.NewCondition(prop, otq.OpNotEmpty, otq.Value{}), nil
		}

		return otq.NewCondition(prop, op, otq.TextValue(value)), nil
	}

	return nil, fmt.Errorf("cannot parse query clause %q", line)
}

func firstWord(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}
