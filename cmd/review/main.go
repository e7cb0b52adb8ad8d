// Command review is a terminal client for the vocabulary store: it adds and
// edits words, runs review sessions and reports sync state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vytor/wordflash/internal/changequeue"
	"github.com/vytor/wordflash/internal/config"
	"github.com/vytor/wordflash/internal/conflict"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/remote"
	"github.com/vytor/wordflash/internal/services"
	"github.com/vytor/wordflash/internal/session"
	"github.com/vytor/wordflash/internal/storage"
	"github.com/vytor/wordflash/internal/syncer"
	"github.com/vytor/wordflash/internal/vocabulary"
)

const usage = `usage: review <command> [args]

commands:
  add <word> <translation> [example...]   add a word
  edit <id> <word> <translation>          change a word
  delete <id>                             delete a word
  list                                    list all words
  due                                     list words due today
  study [-limit n]                        run a review session
  history                                 show recent sessions
  sync                                    run a sync pass now
  status                                  show sync status
  conflicts                               list outstanding conflicts
  resolve <id> local|remote|merge         resolve a conflict
  retry <change-id>                       retry a stuck change
  discard <change-id>                     drop a queued change
`

type app struct {
	cfg      config.Config
	backend  *storage.Backend
	store    *vocabulary.Store
	vocab    services.VocabularyService
	sessions *session.Manager
	queue    *changequeue.Queue
	engine   *syncer.Engine
	resolver *conflict.Resolver
	log      *logger.Logger
}

func main() {
	cfg := config.Load()

	log := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithColors(true),
		logger.WithOutput(os.Stderr),
	)
	logger.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration: %v", err)
		os.Exit(1)
	}
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.NewContext(ctx, log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed: %v", err)
		os.Exit(1)
	}

	err = a.run(ctx, os.Args[1], os.Args[2:])
	a.close(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	backend, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if !backend.Durable {
		log.Warn("running without durable storage")
	}

	store := vocabulary.NewStore(backend.Repositories, cfg.OwnerID, backend.Durable)
	queue := changequeue.New(backend.Changes)
	a := &app{cfg: cfg, backend: backend, store: store, queue: queue, log: log}

	opts := services.VocabularyOptions{OfflineAuthoritative: cfg.OfflineAuthoritative()}
	if cfg.OfflineAuthoritative() {
		registry := conflict.NewRegistry()
		a.engine = syncer.New(store, queue, remote.NewClient(cfg.RemoteURL, cfg.SyncApplyTimeout), registry, syncer.Options{
			ApplyTimeout: cfg.SyncApplyTimeout,
			Debounce:     cfg.SyncDebounce,
			Interval:     cfg.SyncInterval,
			Retry: syncer.RetryPolicy{
				MaxRetries: cfg.SyncMaxRetries,
				Backoff:    syncer.ExponentialBackoff(cfg.SyncBackoffBase, 5*time.Minute),
			},
		})
		if err := a.engine.Start(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("start sync engine: %w", err)
		}
		a.resolver = conflict.NewResolver(registry, store, queue, a.engine)
		opts.Notifier = a.engine
	}

	a.vocab = services.NewVocabularyService(store, queue, opts)
	a.sessions = session.NewManager(a.vocab, backend.Sessions, cfg.OwnerID)
	return a, nil
}

// close flushes queued changes once before exit, then releases everything.
func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.SyncApplyTimeout)
		if res, err := a.engine.Pass(flushCtx); err != nil {
			a.log.Warn("final sync failed: %v", err)
		} else if res.Attempted > 0 {
			a.log.Info("final sync: %d applied, %d conflicts, %d failed", res.Applied, res.Conflicts, res.Failed)
		}
		cancel()
		a.engine.Stop()
	}
	if err := a.backend.Close(); err != nil {
		a.log.Error("close storage: %v", err)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		return a.add(ctx, args)
	case "edit":
		return a.edit(ctx, args)
	case "delete":
		return a.remove(ctx, args)
	case "list":
		return a.list(ctx)
	case "due":
		return a.due(ctx)
	case "study":
		fs := flag.NewFlagSet("study", flag.ContinueOnError)
		limit := fs.Int("limit", a.cfg.SessionCardLimit, "maximum cards in the session")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return a.study(ctx, *limit, os.Stdin, os.Stdout)
	case "history":
		return a.history(ctx)
	case "sync":
		return a.sync(ctx)
	case "status":
		return a.status(ctx, os.Stdout)
	case "conflicts":
		return a.listConflicts(ctx)
	case "resolve":
		return a.resolve(ctx, args)
	case "retry":
		return a.retry(ctx, args)
	case "discard":
		return a.discard(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
