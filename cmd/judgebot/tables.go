package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/floegence/judgebot/internal/knowledge"
)

func tablesCmd(args []string) {
	fs := flag.NewFlagSet("tables", flag.ExitOnError)
	dir := fs.String("dir", "", "Validate an on-disk tables directory instead of the embedded set")
	_ = fs.Parse(args)

	var (
		m   knowledge.Manifest
		err error
	)
	if d := strings.TrimSpace(*dir); d != "" {
		m, err = knowledge.BuildManifest(os.DirFS(d))
	} else {
		m, err = knowledge.EmbeddedManifest()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tables invalid: %v\n", err)
		os.Exit(1)
	}
	b, err := m.JSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode manifest: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", string(b))
}
