package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/floegence/judgebot/internal/rules"
)

func rulesCmd(args []string) {
	if len(args) == 0 {
		printRulesUsage()
		os.Exit(2)
	}
	switch strings.TrimSpace(strings.ToLower(args[0])) {
	case "parse":
		rulesParseCmd(args[1:])
	case "search":
		rulesSearchCmd(args[1:])
	case "fetch":
		rulesFetchCmd(args[1:])
	default:
		printRulesUsage()
		os.Exit(2)
	}
}

func printRulesUsage() {
	fmt.Fprintf(os.Stderr, `judgebot rules

Usage:
  judgebot rules parse <file>
  judgebot rules search [flags] <question>
  judgebot rules fetch [flags]

Commands:
  parse       Parse a rules text file and print corpus stats.
  search      Print the rules most relevant to a question.
  fetch       Download the published rules text and print corpus stats.

`)
}

func rulesParseCmd(args []string) {
	fs := flag.NewFlagSet("rules parse", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	store := rules.NewStore(rules.StoreOptions{})
	st, err := store.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(st)
}

func rulesSearchCmd(args []string) {
	fs := flag.NewFlagSet("rules search", flag.ExitOnError)
	common := addCommonFlags(fs)
	file := fs.String("file", "", "Rules text file (default: rules_path from config)")
	format := fs.String("format", "text", "Output format: json|text (default: text)")
	_ = fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fs.Usage()
		os.Exit(2)
	}
	cfg, _, logger := common.load()

	ctx, cancel := signalContext()
	defer cancel()

	path := firstNonEmpty(*file, cfg.RulesPath)
	store := rules.NewStore(rules.StoreOptions{Logger: logger})
	var err error
	if path != "" {
		_, err = store.LoadFile(path)
	} else {
		_, err = store.Fetch(ctx, cfg.RulesURL)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load rules failed: %v\n", err)
		os.Exit(1)
	}

	matches := store.Snapshot().FindRelevantRules(question)
	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(matches)
	case "", "text":
		if len(matches) == 0 {
			fmt.Println("no matching rules")
			return
		}
		for _, r := range matches {
			fmt.Printf("%s %s\n", r.Number, r.Text)
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid --format: %q (want json|text)\n", *format)
		os.Exit(2)
	}
}

func rulesFetchCmd(args []string) {
	fs := flag.NewFlagSet("rules fetch", flag.ExitOnError)
	url := fs.String("url", "", "Rules text URL (default: the published comprehensive rules)")
	timeout := fs.Duration("timeout", 60*time.Second, "Fetch timeout")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	store := rules.NewStore(rules.StoreOptions{})
	fetchCtx, fetchCancel := context.WithTimeout(ctx, *timeout)
	defer fetchCancel()
	st, err := store.Fetch(fetchCtx, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(st)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", string(b))
}
