package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/elcuervo/otq"
	"github.com/elcuervo/otq/rrule"
	"github.com/elcuervo/otq/vault"
)

func main() {
	vaultFlag := flag.String("vault", "", "Path to Obsidian vault")
	listOnly := flag.Bool("list", false, "List tasks without TUI (non-interactive)")
	profileFlag := flag.String("profile", "", "Profile name from config (optional)")
	debug := flag.Bool("debug", false, "Verbose logging")
	flag.Parse()

	args := flag.Args()
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	profileName, profile, err := selectProfile(*profileFlag, cfg)
	if err != nil {
		fmt.Printf("Error: %v (config: %s)\n", err, cfgPath)
		os.Exit(1)
	}

	var queryInput string
	queryFromProfile := false
	if len(args) > 0 {
		queryInput = args[0]
	} else if profile != nil {
		queryInput = profile.Query
		queryFromProfile = true
	}

	var resolvedVault string
	vaultFromProfile := false
	if profile != nil {
		resolvedVault = profile.Vault
		vaultFromProfile = true
	}
	if *vaultFlag != "" {
		resolvedVault = *vaultFlag
		vaultFromProfile = false
	}

	if resolvedVault != "" {
		var err error
		if vaultFromProfile {
			resolvedVault, err = resolveVaultPath(resolvedVault)
		} else {
			resolvedVault, err = expandPath(resolvedVault)
		}
		if err != nil {
			fmt.Printf("Error expanding vault path: %v\n", err)
			os.Exit(1)
		}
	}

	if resolvedVault == "" {
		usage(cfgPath)
		os.Exit(1)
	}
	resolvedVault = filepath.Clean(resolvedVault)
	if resolved, err := filepath.EvalSymlinks(resolvedVault); err == nil {
		resolvedVault = resolved
	}
	if err := validateVault(profileName, resolvedVault); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	initRenderer(cfg.Theme)

	idx, err := vault.Open(resolvedVault, logger)
	if err != nil {
		fmt.Printf("Error opening vault: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()

	opts := cfg.Engine.EngineOptions()
	opts.Recurrence = rrule.NewChecker()
	opts.Projects = vault.LinkResolver{}
	opts.Logger = logger
	engine := otq.New(idx, opts)
	defer engine.Close()

	var sections []Section
	if queryInput != "" {
		queryPath := queryInput
		if queryFromProfile {
			queryPath, err = expandPath(queryInput)
			if err == nil && !filepath.IsAbs(queryPath) {
				queryPath = filepath.Join(resolvedVault, queryPath)
			}
			queryInput = queryPath
		}
		sections, err = resolveQuery(queryInput, resolvedVault)
		if err != nil {
			fmt.Printf("Error parsing query: %v\n", err)
			os.Exit(1)
		}
	} else {
		q := otq.ToggleQuickFilter(otq.DefaultQuery(), otq.QuickHideCompleted, true)
		sections = []Section{{Query: q}}
	}

	if *listOnly {
		listTasks(engine, sections, resolvedVault)
		return
	}

	p := tea.NewProgram(newModel(engine, idx, sections, resolvedVault, queryInput), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

// listTasks evaluates every section and prints the grouped results.
func listTasks(engine *otq.Engine, sections []Section, vaultPath string) {
	ctx := context.Background()
	now := time.Now()

	total := 0
	for _, section := range sections {
		grouping := engine.Evaluate(ctx, section.Query, now)
		total += grouping.Total()

		if section.Name != "" {
			fmt.Println(sectionStyle.Render("## "+section.Name) +
				countStyle.Render(fmt.Sprintf(" (%d)", grouping.Total())))
		}
		if grouping.Total() == 0 {
			fmt.Println(fileStyle.Render("  (no matching tasks)"))
			fmt.Println()
			continue
		}

		for _, name := range grouping.Names() {
			if section.Query.GroupKey != otq.GroupByNone && name != "" {
				fmt.Println(groupStyle.Render("### " + name))
			}
			for _, task := range grouping.Tasks(name) {
				line := renderTask(task)
				if detail := taskDetail(task, now); detail != "" {
					line += " " + detail
				}
				fmt.Printf("%s %s\n", line, taskLink(vaultPath, task.Path))
			}
		}
		fmt.Println()
	}

	if total == 0 {
		fmt.Println("No tasks found matching any query.")
	}
}

func usage(cfgPath string) {
	fmt.Println("Usage: otq [query.md | inline query] --vault <path>")
	fmt.Println("\nOptions:")
	fmt.Println("  --vault <path>    Path to Obsidian vault (required)")
	fmt.Println("  --list            List tasks without TUI")
	fmt.Println("  --profile <name>  Use profile from config")
	fmt.Println("\nSupported query clauses (one per line):")
	fmt.Println("  not done                    Hide completed tasks")
	fmt.Println("  hide archived               Hide archived tasks")
	fmt.Println("  hide recurring              Hide recurring tasks")
	fmt.Println("  status is <key>             Filter by status")
	fmt.Println("  priority is not <key>       Negated filters")
	fmt.Println("  tag includes <text>         Substring and membership match")
	fmt.Println("  due before today            Date comparisons")
	fmt.Println("  scheduled on or after <d>   Inclusive date comparisons")
	fmt.Println("  <field> is <value>          User-defined fields")
	fmt.Println("  any of:                     OR the remaining clauses")
	fmt.Println("  sort by due [desc]          Sort key and direction")
	fmt.Println("  group by status             Group results")
	fmt.Println("\nDate values: today, tomorrow, yesterday, or YYYY-MM-DD")
	fmt.Println("\nExample:")
	fmt.Println("  otq --vault ~/obsidian-vault query.md")
	if cfgPath != "" {
		fmt.Println("\nConfig:")
		fmt.Printf("  %s\n", cfgPath)
		fmt.Println("  Define profiles with vault/query and set default_profile to skip flags.")
	}
}
