package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smilemakc/mbflow/internal/application/loader"
	"github.com/smilemakc/mbflow/internal/application/orchestrator"
	"github.com/smilemakc/mbflow/internal/application/wsevents"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/infrastructure/tracing"
	"github.com/smilemakc/mbflow/pkg/compiler"
	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/scripthost"
	"github.com/smilemakc/mbflow/pkg/scripthost/lua"
)

// handleRun loads every markdown cell under a directory, commits it to a
// fresh Instance, and plays it to quiescence. SIGINT/SIGTERM request a
// cooperative Shutdown rather than killing the process outright.
func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	openaiKey := fs.String("openai-key", getEnv("OPENAI_API_KEY", ""), "OpenAI API key for Prompt/CodeGen/Embedding cells")
	wsAddr := fs.String("ws-addr", getEnv("MBFLOW_WS_ADDR", ""), "address to serve the /ws/events runtime event stream on (disabled if empty)")
	storeDSN := fs.String("store-dsn", getEnv("MBFLOW_STORE_DSN", ":memory:"), "Postgres DSN to durably persist execution nodes to, or \":memory:\" to keep state in-process only")
	redisURL := fs.String("redis-url", getEnv("MBFLOW_REDIS_URL", ""), "Redis URL for Schedule cell next-fire bookkeeping (disabled if empty)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: run requires a directory of markdown cell sources")
		os.Exit(1)
	}
	dir := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, span := tracing.StartSpan(ctx, "cli.run")
	defer span.End()

	log := logger.Default().With("directory", dir)
	log.Info("loading cell sources")

	cells, err := loader.LoadDirectory(dir)
	if err != nil {
		tracing.RecordError(ctx, err)
		fmt.Fprintf(os.Stderr, "Error: failed to load %s: %v\n", dir, err)
		os.Exit(1)
	}
	log.Info("cell sources loaded", "count", len(cells))

	hosts := scripthost.NewRegistry()
	luaHost := lua.New()
	hosts.Register(models.LanguagePython, luaHost)
	hosts.Register(models.LanguageJavaScript, luaHost)

	var llm compiler.LLMClient
	var embed compiler.EmbeddingClient
	if *openaiKey != "" {
		client := compiler.NewOpenAIClient(*openaiKey)
		llm, embed = client, client
	}

	var triggerStore compiler.TriggerStore
	if *redisURL != "" {
		store, err := compiler.NewRedisTriggerStore(*redisURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to connect schedule trigger store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		triggerStore = store
	}

	inst, err := orchestrator.NewWithStoreDSN(ctx, *storeDSN, compiler.Dependencies{
		ScriptHosts:  hosts,
		LLM:          llm,
		Embeddings:   embed,
		TriggerStore: triggerStore,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		fmt.Fprintf(os.Stderr, "Error: failed to start execution store: %v\n", err)
		os.Exit(1)
	}

	events := inst.Subscribe()
	go streamEvents(events)

	if *wsAddr != "" {
		if _, err := wsevents.Serve(ctx, *wsAddr, inst); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start websocket event listener: %v\n", err)
			os.Exit(1)
		}
	}

	if err := inst.Handle(ctx, orchestrator.ReloadCellsMsg{Cells: cells}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to commit cells: %v\n", err)
		os.Exit(1)
	}
	if err := inst.Handle(ctx, orchestrator.PlayMsg{Mode: engine.PlayUntilQuiescent}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: run failed: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = inst.Handle(shutdownCtx, orchestrator.ShutdownMsg{})
}

func streamEvents(events <-chan orchestrator.RuntimeEvent) {
	log := logger.Default()
	for evt := range events {
		switch evt.Type {
		case orchestrator.EventDefinitionGraphUpdated:
			log.Info("definition graph updated", "node_id", evt.NodeID.String())
		case orchestrator.EventExecutionStateChange:
			log.Info("execution state changed", "steps_applied", len(evt.History))
		case orchestrator.EventPlaybackState:
			log.Info("playback state changed", "mode", evt.PlaybackMode)
		}
	}
}
