// Command scriptbot is the server entry point: it has no conversation
// logic of its own (spec §6, "the core has none; the adapter is the
// entry point") — it loads the configured script, opens the variable
// store, and starts the HTTP adapter over the session runtime.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/scriptbot/internal/config"
	"github.com/ehrlich-b/scriptbot/internal/engine"
	"github.com/ehrlich-b/scriptbot/internal/httpapi"
	"github.com/ehrlich-b/scriptbot/internal/logger"
	"github.com/ehrlich-b/scriptbot/internal/session"
	"github.com/ehrlich-b/scriptbot/internal/store"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "scriptbot",
		Short: "scriptbot — scripted conversational server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "scriptbot.json", "path to the JSON configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel, ""); err != nil {
		return err
	}

	graph, schema, err := engine.LoadScript(cfg.Source)
	if err != nil {
		// GrammarError aborts startup per spec §7.
		return fmt.Errorf("scriptbot: load script: %w", err)
	}

	st, err := store.Open(cfg.DBPath, cfg.Fresh())
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Init(context.Background(), schema); err != nil {
		return err
	}

	registry := session.New(st, []byte(cfg.Key), cfg.TTL())
	defer registry.Close()

	machine := engine.New(graph, st)
	srv := httpapi.New(registry, machine)

	if cfg.Watch {
		w, err := config.WatchSources(cfg.Source, func() {
			newGraph, _, err := engine.LoadScript(cfg.Source)
			if err != nil {
				logger.Error("scriptbot: script reload failed, keeping previous graph", "err", err)
				return
			}
			srv.SwapMachine(engine.New(newGraph, st))
			logger.Info("scriptbot: reloaded script sources")
		})
		if err != nil {
			return fmt.Errorf("scriptbot: watch sources: %w", err)
		}
		defer w.Stop()
	}

	logger.Info("scriptbot: listening", "addr", cfg.ListenAddr())
	return http.ListenAndServe(cfg.ListenAddr(), srv)
}
