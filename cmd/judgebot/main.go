package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/floegence/judgebot/internal/config"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "ask":
		askCmd(os.Args[2:])
	case "repl":
		replCmd(os.Args[2:])
	case "rules":
		rulesCmd(os.Args[2:])
	case "tables":
		tablesCmd(os.Args[2:])
	case "keys":
		keysCmd(os.Args[2:])
	case "audit":
		auditCmd(os.Args[2:])
	case "version":
		fmt.Printf("judgebot %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `judgebot

Usage:
  judgebot ask [flags] <question>
  judgebot repl [flags]
  judgebot rules <parse|search|fetch> [flags]
  judgebot tables [flags]
  judgebot keys <set|clear|list> [flags]
  judgebot audit [flags]
  judgebot version

Commands:
  ask         Answer one rules question.
  repl        Answer questions read line by line from stdin.
  rules       Inspect the comprehensive rules corpus.
  tables      Print the manifest of the curated keyword, interaction and topic tables.
  keys        Manage provider API keys in the secrets file.
  audit       Print recent answers from the audit log.
  version     Print build information.

`)
}

// commonFlags are shared by every command that loads the config.
type commonFlags struct {
	configPath  *string
	secretsPath *string
	logFormat   *string
	logLevel    *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath:  fs.String("config-path", "", "Config path (default: ~/.judgebot/config.json)"),
		secretsPath: fs.String("secrets-path", "", "Secrets path (default: <config dir>/secrets.json)"),
		logFormat:   fs.String("log-format", "", "Log format: json|text (empty: from config)"),
		logLevel:    fs.String("log-level", "", "Log level: debug|info|warn|error (empty: from config)"),
	}
}

func (c commonFlags) paths() (string, string) {
	cfgPath := strings.TrimSpace(*c.configPath)
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	secrets := strings.TrimSpace(*c.secretsPath)
	if secrets == "" {
		secrets = config.SecretsPath(cfgPath)
	}
	return cfgPath, secrets
}

// load reads the config and builds the logger, exiting on failure.
func (c commonFlags) load() (*config.Config, string, *slog.Logger) {
	cfgPath, secrets := c.paths()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	format := firstNonEmpty(*c.logFormat, cfg.LogFormat)
	level := firstNonEmpty(*c.logLevel, cfg.LogLevel)
	logger, err := newLogger(os.Stderr, format, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging flags: %v\n", err)
		os.Exit(2)
	}
	return cfg, secrets, logger
}

// newLogger writes to w, which is stderr for the CLI so answers on stdout stay
// clean.
func newLogger(w io.Writer, format string, level string) (*slog.Logger, error) {
	var h slog.Handler

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
