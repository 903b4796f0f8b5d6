// Command maintenance runs one operator task against the chessticulate
// database and exits non-zero on failure.
//
//	maintenance -sweep
//	maintenance -reconcile
//	maintenance -abort <game-id> -reason "stuck after worker outage"
//	maintenance -migrate up|down|status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/config"
	"github.com/HammerMeetNail/chessticulate/internal/database"
	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/services"
	"github.com/HammerMeetNail/chessticulate/internal/services/worker"
)

type options struct {
	sweep     bool
	reconcile bool
	abort     string
	reason    string
	migrate   string
}

var errUsage = errors.New("exactly one of -sweep, -reconcile, -abort or -migrate is required")

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.sweep, "sweep", false, "expire stale invitations and idle games, then reconcile")
	fs.BoolVar(&opts.reconcile, "reconcile", false, "resolve recorded move inconsistencies")
	fs.StringVar(&opts.abort, "abort", "", "abort the game with this id")
	fs.StringVar(&opts.reason, "reason", "", "reason recorded with -abort")
	fs.StringVar(&opts.migrate, "migrate", "", "run migrations: up, down or status")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	selected := 0
	for _, on := range []bool{opts.sweep, opts.reconcile, opts.abort != "", opts.migrate != ""} {
		if on {
			selected++
		}
	}
	if selected != 1 {
		return opts, errUsage
	}
	if opts.abort != "" {
		if _, err := uuid.Parse(opts.abort); err != nil {
			return opts, fmt.Errorf("invalid game id %q: %w", opts.abort, err)
		}
		if opts.reason == "" {
			return opts, errors.New("-abort requires -reason")
		}
	}
	switch opts.migrate {
	case "", "up", "down", "status":
	default:
		return opts, fmt.Errorf("unknown -migrate action %q", opts.migrate)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(opts, os.Stdout); err != nil {
		logging.Error("Maintenance task failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(opts options, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.LogLevel))

	if opts.migrate != "" {
		return runMigrate(cfg, opts.migrate, out)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	// Redis only holds the fallback journal here, so run without it if it is down.
	var journal services.RedisClient
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logging.Warn("Redis unavailable, skipping journal drain", map[string]interface{}{"error": err.Error()})
	} else {
		defer func() { _ = redisDB.Close() }()
		journal = services.NewRedisAdapter(redisDB.Client)
	}

	dbAdapter := services.NewPoolAdapter(db.Pool)
	ttl := services.TTLPolicy{InvitationTTL: cfg.Game.InvitationTTL, MoveTimeout: cfg.Game.MoveTimeout}
	repo := services.NewGameRepository(dbAdapter)
	dispatcher := services.NewMoveDispatcher(worker.NewClient(cfg.Worker.BaseURL), nil, services.DispatcherConfig{
		CallTimeout:    cfg.Worker.CallTimeout,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BackoffInitial: cfg.Worker.BackoffInitial,
		BackoffMax:     cfg.Worker.BackoffMax,
	})
	games := services.NewGameService(repo, dispatcher, ttl, services.GameServiceOptions{Journal: journal})
	invitations := services.NewInvitationService(dbAdapter, ttl, cfg.Game.OneActiveGamePerUser, nil)
	reconciler := services.NewReconciler(repo, journal, nil, nil)

	switch {
	case opts.sweep:
		report, err := services.NewSweeper(invitations, games, reconciler, nil, cfg.Game.SweepInterval).RunOnce(ctx)
		if werr := writeJSON(out, report); werr != nil && err == nil {
			err = werr
		}
		return err
	case opts.reconcile:
		report, err := reconciler.Run(ctx)
		if werr := writeJSON(out, report); werr != nil && err == nil {
			err = werr
		}
		return err
	default:
		g, err := games.Abort(ctx, uuid.MustParse(opts.abort), opts.reason)
		if err != nil {
			return fmt.Errorf("aborting game %s: %w", opts.abort, err)
		}
		return writeJSON(out, g)
	}
}

func runMigrate(cfg *config.Config, action string, out io.Writer) error {
	migrator, err := database.NewMigrator(cfg.Database.DSN(), database.DefaultMigrationsPath)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	switch action {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}
	case "down":
		if err := migrator.Steps(-1); err != nil {
			return err
		}
	}

	version, err := migrator.Status()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "migration version: %s\n", version)
	return err
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
