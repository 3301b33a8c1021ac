package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperengineering/simtracker/internal/api"
	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/generate"
	"github.com/hyperengineering/simtracker/internal/host"
	"github.com/hyperengineering/simtracker/internal/store"
	"github.com/hyperengineering/simtracker/internal/watch"
	"github.com/hyperengineering/simtracker/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

// eventBuffer bounds how many events may queue ahead of the dispatcher.
const eventBuffer = 64

var (
	configPath string
	chatPath   string
	dbPath     string
	chatID     string
)

var rootCmd = &cobra.Command{
	Use:   "simtracker",
	Short: "SimTracker - tracker block rendering for chat transcripts",
	Long: "Serves a chat transcript as HTML with its tracker blocks rendered as cards,\n" +
		"a sidebar or tabs. Run without a subcommand to start the server.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default $SIMTRACKER_CONFIG_PATH or config/simtracker.yaml)")
	rootCmd.PersistentFlags().StringVar(&chatPath, "chat", "",
		"JSONL chat file; selects the jsonl backend")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"SQLite chat database path")
	rootCmd.PersistentFlags().StringVar(&chatID, "chat-id", "",
		"Chat id inside the database; selects the sqlite backend")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration and applies the chat selection flags.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if chatPath != "" {
		cfg.Chat.Path = chatPath
		cfg.Chat.Backend = config.BackendJSONL
	}
	if dbPath != "" {
		cfg.Chat.DBPath = dbPath
	}
	if chatID != "" {
		cfg.Chat.ChatID = chatID
		cfg.Chat.Backend = config.BackendSQLite
	}
	return cfg, nil
}

// transcript is the chat store a command works on, plus the database behind
// it when the sqlite backend is selected.
type transcript struct {
	chat chat.Store
	db   store.Store
	path string
}

// Close releases the chat store and the database.
func (t *transcript) Close() error {
	err := t.chat.Close()
	if t.db != nil {
		err = errors.Join(err, t.db.Close())
	}
	return err
}

// openTranscript opens the configured chat backend.
func openTranscript(ctx context.Context, cfg *config.Config) (*transcript, error) {
	if cfg.Chat.Backend == config.BackendSQLite {
		if cfg.Chat.ChatID == "" {
			return nil, errors.New("chat_id is required for the sqlite backend")
		}
		db, err := store.NewSQLiteStore(cfg.Chat.DBPath)
		if err != nil {
			return nil, err
		}
		if _, err := db.GetChat(ctx, cfg.Chat.ChatID); err != nil {
			db.Close()
			return nil, fmt.Errorf("chat %s: %w", cfg.Chat.ChatID, err)
		}
		return &transcript{chat: db.ForChat(cfg.Chat.ChatID), db: db}, nil
	}

	fs, err := chat.OpenFile(cfg.Chat.Path)
	if err != nil {
		return nil, err
	}
	return &transcript{chat: fs, path: cfg.Chat.Path}, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	tr, err := openTranscript(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "backend", cfg.Chat.Backend)

	d := dispatch.New(eventBuffer)
	h, err := host.New(tr.chat, d, cfg.Tracker)
	if err != nil {
		tr.Close()
		return err
	}
	live := config.NewLive(cfg.Tracker)

	var gen api.Regenerator
	if cfg.Generation.Enabled {
		opts, err := generate.OptionsFrom(cfg.Generation, cfg.Tracker)
		if err != nil {
			tr.Close()
			return err
		}
		completer := generate.NewOpenAI(cfg.Generation.APIKey, cfg.Generation.BaseURL, cfg.Generation.Model)
		gen = generate.New(completer, tr.chat, h.Session(), d, opts)
		slog.Info("generator initialized", "model", completer.ModelName())
	}

	handler := api.NewHandler(d, h, live, gen, tr.db, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)

	startWorker(gctx, g, "dispatcher", func(ctx context.Context) error {
		d.Run(ctx, h)
		return nil
	})
	if err := d.Publish(gctx, dispatch.Event{Kind: dispatch.Refresh, MessageID: -1}); err != nil {
		slog.Warn("initial render not queued", "error", err)
	}

	if tr.path != "" {
		watched, err := chat.OpenFile(tr.path)
		if err != nil {
			cancel()
			g.Wait()
			tr.Close()
			return err
		}
		w := watch.New(tr.path, watched, d, watch.Options{Debounce: time.Duration(cfg.Chat.Debounce)})
		if err := w.Prime(gctx); err != nil {
			slog.Warn("watcher prime failed", "error", err)
		}
		startWorker(gctx, g, "watcher", w.Run)
	}

	if tr.db != nil && cfg.Chat.CompactInterval > 0 {
		c := worker.NewCompactor(tr.db, time.Duration(cfg.Chat.CompactInterval), cfg.Chat.RevisionKeep)
		startWorker(gctx, g, "revision-compaction", c.Run)
	}

	g.Go(func() error {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown initiated")

		shutdownCtx, shutdownCancel := context.WithTimeout(
			context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout))
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})

	runErr := g.Wait()

	if err := tr.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return runErr
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker in g. Context cancellation stops
// it; a worker error cancels the group.
func startWorker(ctx context.Context, g *errgroup.Group, name string, fn func(ctx context.Context) error) {
	g.Go(func() error {
		slog.Info("worker started", "worker", name)
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker failed", "worker", name, "error", err)
			slog.Info("worker stopped", "worker", name)
			return fmt.Errorf("%s: %w", name, err)
		}
		slog.Info("worker stopped", "worker", name)
		return nil
	})
}
