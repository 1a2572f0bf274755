package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/floegence/judgebot/internal/auditlog"
)

// auditCmd reads the answer log. It does not take the state directory lock so
// it can run next to a live repl.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 50, "Maximum entries to read (max: 1000)")
	status := fs.String("status", "", "Only entries with this status (answered|hedged|no_ruling|duplicate|failed)")
	tier := fs.String("tier", "", "Only entries answered from this tier")
	summary := fs.Bool("summary", false, "Print counts instead of entries")
	_ = fs.Parse(args)

	cfg, _, logger := common.load()
	store, err := auditlog.New(auditlog.Options{Logger: logger, StateDir: cfg.ResolvedStateDir()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open audit log: %v\n", err)
		os.Exit(1)
	}
	entries, err := store.Find(auditlog.Query{Limit: *limit, Status: *status, Tier: *tier})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read audit log: %v\n", err)
		os.Exit(1)
	}
	if *summary {
		printJSON(auditlog.Summarize(entries))
		return
	}
	printJSON(entries)
}
