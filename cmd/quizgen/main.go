// Command quizgen turns a text file into a validated multiple choice quiz
// using the configured Gemini key pool, and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/emandor/kelas_service/internal/config"
	"github.com/emandor/kelas_service/internal/quizgen"
	"github.com/emandor/kelas_service/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quizgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "-", "source text file, - for stdin")
	pretty := fs.Bool("pretty", false, "indent the JSON output")
	dryRun := fs.Bool("dry-run", false, "use canned replies instead of calling Gemini")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.LoadGemini()
	if *dryRun {
		cfg.GeminiDryRun = true
	}
	lc := telemetry.FromEnv(config.GetEnv)
	lc.File = ""
	lc.JSON = false
	lc.Out = stderr
	telemetry.Init(lc)

	src, err := readSource(*file, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "quizgen: %v\n", err)
		return 1
	}

	gen, err := quizgen.FromConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "quizgen: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.GenerateTimeout)
	defer cancel()

	qs, err := gen.Generate(ctx, string(src))
	if err != nil {
		kind := quizgen.KindOf(err)
		if kind == "" {
			kind = "error"
		}
		fmt.Fprintf(stderr, "quizgen: %s: %v\n", kind, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(map[string]any{"questions": qs}); err != nil {
		fmt.Fprintf(stderr, "quizgen: %v\n", err)
		return 1
	}
	return 0
}

func readSource(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
