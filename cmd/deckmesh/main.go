package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/deckmesh"
	"github.com/hupe1980/deckmesh/core"
	"github.com/hupe1980/deckmesh/gateway"
	"github.com/hupe1980/deckmesh/internal/config"
	"github.com/hupe1980/deckmesh/logging"
	"github.com/hupe1980/deckmesh/model"
	modelanthropic "github.com/hupe1980/deckmesh/model/anthropic"
	modelopenai "github.com/hupe1980/deckmesh/model/openai"
	"github.com/hupe1980/deckmesh/server"
	"github.com/hupe1980/deckmesh/store"
	"github.com/hupe1980/deckmesh/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "deckmesh",
	Short: "DeckMesh presentation generation service",
	Long: `DeckMesh turns a topic into a multi-slide presentation through a
three-stage LLM pipeline (plan, select layout, render HTML) and streams
progress to clients as a versioned, replayable event log.

Commands:
- serve: run the HTTP API
- decks list: inspect stored decks
- log tail: inspect a deck's event log`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// .env carries provider API keys during local development.
	_ = godotenv.Load()
	viper.SetEnvPrefix("DECKMESH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "deckmesh.yml", "config file path")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(decksCmd())
	rootCmd.AddCommand(logCmd())
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if db := viper.GetString("db"); db != "" {
		cfg.Database.Path = db
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	level := logging.LogLevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

func openStore(cfg *config.Config) (core.Store, func() error, error) {
	if cfg.Database.Path == "" {
		return store.NewInMemoryStore(), func() error { return nil }, nil
	}
	st, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

func newCompleter(cfg *config.Config, tier core.Quality) (model.Completer, error) {
	name := cfg.Model(tier)
	switch cfg.LLM.Provider {
	case "openai":
		return modelopenai.NewCompleter(func(o *modelopenai.Options) {
			o.Model = name
			o.Temperature = cfg.LLM.Temperature
			o.MaxCompletionTokens = cfg.LLM.MaxTokens
		}), nil
	case "anthropic":
		return modelanthropic.NewCompleter(func(o *modelanthropic.Options) {
			o.Model = name
			o.Temperature = cfg.LLM.Temperature
			o.MaxTokens = cfg.LLM.MaxTokens
		}), nil
	case "mock":
		return model.NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
}

func buildMesh(cfg *config.Config, st core.Store, logger logging.Logger) (*deckmesh.DeckMesh, error) {
	standard, err := newCompleter(cfg, core.QualityStandard)
	if err != nil {
		return nil, err
	}
	tiers := make(map[core.Quality]model.Completer)
	for _, tier := range []core.Quality{core.QualityDraft, core.QualityPremium} {
		if cfg.Model(tier) == cfg.Model(core.QualityStandard) {
			continue
		}
		c, err := newCompleter(cfg, tier)
		if err != nil {
			return nil, err
		}
		tiers[tier] = c
	}

	return deckmesh.New(standard, func(o *deckmesh.Options) {
		o.Store = st
		o.TierCompleters = tiers
		o.Concurrency = cfg.Pipeline.Concurrency
		o.Logger = logger
		o.GatewayOptions = []func(g *gateway.Options){func(g *gateway.Options) {
			g.Timeout = cfg.LLM.Timeout.Std()
			g.MaxAttempts = cfg.LLM.MaxAttempts
			g.BaseDelay = cfg.LLM.BaseDelay.Std()
			g.MaxDelay = cfg.LLM.MaxDelay.Std()
			g.SchemaRetries = cfg.LLM.SchemaRetries
			g.Temperature = cfg.LLM.Temperature
			g.MaxTokens = cfg.LLM.MaxTokens
		}}
	}), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the DeckMesh HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			mesh, err := buildMesh(cfg, st, logger)
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Orchestrator:      mesh.Orchestrator(),
				Store:             st,
				Logger:            logger,
				HeartbeatInterval: cfg.Server.HeartbeatInterval.Std(),
				AllowedOrigins:    cfg.Server.AllowedOrigins,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening addr=%s db=%s provider=%s", cfg.Server.Addr, cfg.Database.Path, cfg.LLM.Provider)
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-stop:
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

func decksCmd() *cobra.Command {
	decks := &cobra.Command{Use: "decks", Short: "Inspect stored decks"}
	decks.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List decks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			items, err := st.ListDecks(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Title", "Status", "Slides", "Quality", "Version", "Created"})
			for _, d := range items {
				tw.AppendRow(table.Row{d.ID, d.Title, d.Status, d.SlideCount, d.Quality, d.Version, d.CreatedAt.Format(time.RFC3339)})
			}
			tw.Render()
			return nil
		},
	})
	return decks
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect deck event logs"}
	tail := &cobra.Command{
		Use:   "tail <deck-id>",
		Short: "Print a deck's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := cmd.Flags().GetInt64("from")
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			events, err := st.ReadFrom(cmd.Context(), args[0], from)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Version", "Type", "Timestamp", "Payload"})
			for _, ev := range events {
				tw.AppendRow(table.Row{ev.Version, ev.Type, ev.Timestamp.Format(time.RFC3339), string(ev.Payload)})
			}
			tw.Render()
			return nil
		},
	}
	tail.Flags().Int64("from", 0, "replay events with version greater than this watermark")
	logc.AddCommand(tail)
	return logc
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
