package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/floegence/judgebot/internal/answer"
	"github.com/floegence/judgebot/internal/settings"
)

func askCmd(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	common := addCommonFlags(fs)
	card := fs.String("card", "", "Card the question is known to be about")
	id := fs.String("id", "", "Request ID for duplicate suppression (default: random)")
	format := fs.String("format", "text", "Output format: json|text (default: text)")
	_ = fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fs.Usage()
		os.Exit(2)
	}
	if err := validateFormat(*format); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	cfg, secretsPath, logger := common.load()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, appOptions{Config: cfg, Secrets: settings.NewSecretsStore(secretsPath), Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	res, err := a.service.Answer(ctx, answer.Request{ID: *id, Question: question, KnownCard: *card})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeResult(os.Stdout, res, *format); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write answer: %v\n", err)
		os.Exit(1)
	}
}

func replCmd(args []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	common := addCommonFlags(fs)
	watch := fs.Bool("watch", false, "Reload the rules file when it changes (requires rules_path)")
	format := fs.String("format", "text", "Output format: json|text (default: text)")
	_ = fs.Parse(args)

	if err := validateFormat(*format); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	cfg, secretsPath, logger := common.load()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, appOptions{Config: cfg, Secrets: settings.NewSecretsStore(secretsPath), Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	if *watch {
		if err := a.watchRules(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to watch rules: %v\n", err)
			os.Exit(1)
		}
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if err := runREPL(ctx, a.service, os.Stdin, os.Stdout, replOptions{Interactive: interactive, Format: *format}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "repl failed: %v\n", err)
		os.Exit(1)
	}
}

type replOptions struct {
	// Interactive prints a prompt before each line.
	Interactive bool
	Format      string
}

type answerer interface {
	Answer(ctx context.Context, req answer.Request) (answer.Result, error)
}

// runREPL answers one question per input line. "/card NAME" pins a card for
// the following questions, "/card" alone unpins it and "/quit" exits.
func runREPL(ctx context.Context, svc answerer, in io.Reader, out io.Writer, opts replOptions) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)

	var card string
	prompt := func() {
		if !opts.Interactive {
			return
		}
		if card != "" {
			fmt.Fprintf(out, "[%s] > ", card)
			return
		}
		fmt.Fprint(out, "> ")
	}

	prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/card" || strings.HasPrefix(line, "/card "):
			card = strings.TrimSpace(strings.TrimPrefix(line, "/card"))
		default:
			res, err := svc.Answer(ctx, answer.Request{Question: line, KnownCard: card})
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			if err := writeResult(out, res, opts.Format); err != nil {
				return err
			}
		}
		prompt()
	}
	return sc.Err()
}

func writeResult(w io.Writer, res answer.Result, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	case "", "text":
		_, err := io.WriteString(w, renderText(res))
		return err
	default:
		return fmt.Errorf("invalid format %q", format)
	}
}

func renderText(res answer.Result) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(res.PrimaryText))
	b.WriteString("\n")
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "\nWarning: %s", w)
	}
	if len(res.Warnings) > 0 {
		b.WriteString("\n")
	}
	if len(res.ReferencedCards) > 0 {
		names := make([]string, 0, len(res.ReferencedCards))
		for _, c := range res.ReferencedCards {
			names = append(names, c.Name)
		}
		fmt.Fprintf(&b, "\nCards: %s\n", strings.Join(names, ", "))
	}
	if len(res.Sources) > 0 {
		fmt.Fprintf(&b, "Sources: %s\n", strings.Join(res.Sources, "; "))
	}
	b.WriteString("\n")
	return b.String()
}

func validateFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json", "text":
		return nil
	default:
		return errors.New("invalid --format: want json|text")
	}
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
