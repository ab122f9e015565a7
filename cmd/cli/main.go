// MBFlow CLI - Command-line tool for running notebook cell directories
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/infrastructure/tracing"
)

const (
	version = "1.0.0"
	usage   = `MBFlow CLI - Notebook execution tool

USAGE:
    mbflow-cli <command> [options]

COMMANDS:
    run <directory>       Load markdown cell sources and play them to quiescence
    version               Show version information
    help                  Show this help message

RUN OPTIONS:
    -openai-key <key>     OpenAI API key for Prompt/CodeGen/Embedding cells
                          (default: $OPENAI_API_KEY)

EXAMPLES:
    # Load and run every cell under ./notebook
    mbflow-cli run ./notebook

    # Run with an explicit provider key
    mbflow-cli run -openai-key sk-... ./notebook

ENVIRONMENT VARIABLES:
    OPENAI_API_KEY        OpenAI API key (overridden by -openai-key)
`
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(logger.New(cfg.Logging))

	ctx := context.Background()
	tracer, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start tracing: %v\n", err)
		os.Exit(1)
	}
	if tracer != nil {
		defer tracer.Shutdown(ctx)
	}

	command := os.Args[1]

	switch command {
	case "run":
		handleRun(os.Args[2:])

	case "version":
		fmt.Printf("MBFlow CLI v%s\n", version)

	case "help", "-h", "--help":
		fmt.Print(usage)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
