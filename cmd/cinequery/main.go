// Command cinequery answers a natural language question about a movie
// catalogue stored in SQLite.
//
//	OPENAI_API_KEY=... cinequery -db movies.db "What was the budget of Example Film?"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cinequery"
	"cinequery/internal/cache"
	"cinequery/internal/engine"
	"cinequery/internal/store"
	"cinequery/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	dbPath := flag.String("db", "", "path to the SQLite catalogue (overrides config)")
	table := flag.String("table", "", "catalogue table name (overrides config)")
	verbose := flag.Bool("verbose", false, "print the full conversation after the answer")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] \"question\"\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	question := flag.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *table != "" {
		cfg.Store.Table = *table
	}

	if cfg.Engine.APIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	reasoner, err := engine.New(cfg.Engine)
	if err != nil {
		log.Fatalf("engine setup failed: %v", err)
	}

	st := store.New(cfg.Store.Path)

	var narrativeCache cinequery.Cache
	if cfg.Agent.EnableNarrativeCache {
		if cfg.Store.CacheFile != "" {
			fc := cache.NewFileCache(cfg.CacheTTL.Std(), cfg.Store.CacheFile, &cache.StdLogger{})
			defer fc.Close()
			narrativeCache = fc
		} else {
			mc := cache.NewNarrativeCache(cfg.CacheTTL.Std())
			defer mc.Close()
			narrativeCache = mc
		}
	}

	agent, err := cinequery.New(
		cinequery.WithConfig(cfg.Agent),
		cinequery.WithEngine(reasoner),
		cinequery.WithIntrospector(store.NewIntrospector(st, cfg.Store.Table)),
		cinequery.WithTools(tools.Setup(st)),
		cinequery.WithCache(narrativeCache),
	)
	if err != nil {
		log.Fatalf("agent setup failed: %v", err)
	}
	defer agent.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := agent.Ask(ctx, question)
	if err != nil {
		if session != nil && session.ErrorStage != "" {
			log.Fatalf("session failed during %s: %v", session.ErrorStage, err)
		}
		log.Fatalf("session failed: %v", err)
	}

	fmt.Println(session.FinalAnswer)

	if *verbose {
		printConversation(session)
	}
}

func printConversation(s *cinequery.Session) {
	fmt.Fprintln(os.Stderr, strings.Repeat("-", 60))
	if narrative, ok := s.SchemaNarrative(); ok {
		fmt.Fprintf(os.Stderr, "schema narrative:\n%s\n", narrative)
		fmt.Fprintln(os.Stderr, strings.Repeat("-", 60))
	}
	for _, msg := range s.Messages {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", msg.Role, msg.Content)
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(os.Stderr, "[%s] -> %s(%s)\n", msg.Role, call.Name, call.Arguments)
		}
	}
	fmt.Fprintf(os.Stderr, "planner turns: %d, duration: %s\n", s.PlannerTurns, s.TotalDuration())
}
