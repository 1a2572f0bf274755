package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/floegence/judgebot/internal/settings"
)

func keysCmd(args []string) {
	if len(args) == 0 {
		printKeysUsage()
		os.Exit(2)
	}
	sub := strings.TrimSpace(strings.ToLower(args[0]))
	fs := flag.NewFlagSet("keys "+sub, flag.ExitOnError)
	common := addCommonFlags(fs)
	scope := fs.String("scope", string(settings.ScopeGeneration), "Key scope: generation|web_search")
	provider := fs.String("provider", "", "Provider name (e.g. anthropic, openai, brave)")
	_ = fs.Parse(args[1:])

	_, secretsPath := common.paths()
	store := settings.NewSecretsStore(secretsPath)

	switch sub {
	case "list":
		names, err := store.Configured()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load secrets: %v\n", err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
	case "set":
		if strings.TrimSpace(*provider) == "" {
			fs.Usage()
			os.Exit(2)
		}
		key, err := readKey(os.Stdin, os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read key: %v\n", err)
			os.Exit(1)
		}
		if err := store.SetAPIKey(settings.Scope(*scope), *provider, key); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved %s key for %s in %s\n", *scope, *provider, store.Path())
	case "clear":
		if strings.TrimSpace(*provider) == "" {
			fs.Usage()
			os.Exit(2)
		}
		if err := store.ClearAPIKey(settings.Scope(*scope), *provider); err != nil {
			fmt.Fprintf(os.Stderr, "failed to clear key: %v\n", err)
			os.Exit(1)
		}
	default:
		printKeysUsage()
		os.Exit(2)
	}
}

func printKeysUsage() {
	fmt.Fprintf(os.Stderr, `judgebot keys

Usage:
  judgebot keys set -provider <name> [-scope generation|web_search]
  judgebot keys clear -provider <name> [-scope generation|web_search]
  judgebot keys list

The key is read from stdin so it never appears in shell history. Environment
variables named JUDGEBOT_<PROVIDER>_API_KEY override stored keys.

`)
}

// readKey reads one key from stdin without echo when stdin is a terminal.
func readKey(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "API key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
