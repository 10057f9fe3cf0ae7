package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/histsess/internal/config"
	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/session"
	"github.com/roach88/histsess/internal/simserver"
	"github.com/roach88/histsess/internal/store"
)

// env is a session bound to a simulated server over one database.
type env struct {
	store   *store.Store
	server  *simserver.Server
	session *session.Session

	stop context.CancelFunc
	done chan error
}

type envOptions struct {
	now     func() time.Time
	metrics *correlate.Metrics
}

// openEnv opens dbPath, starts the server loop and binds a new session to
// it. The caller must call close.
func openEnv(ctx context.Context, cfg *config.Config, dbPath string, eo envOptions) (*env, error) {
	if dbPath == "" {
		dbPath = cfg.Database
	}
	if dbPath == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set database in the config file")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	logger := slog.Default()
	srvOpts := []simserver.Option{
		simserver.WithLogger(logger),
		simserver.WithPageSize(cfg.Server.PageSize),
		simserver.WithAdviseInterval(time.Duration(cfg.Server.AdviseInterval)),
	}
	if eo.now != nil {
		srvOpts = append(srvOpts, simserver.WithNow(eo.now))
	}
	srv := simserver.New(st, srvOpts...)

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() { done <- srv.Run(runCtx) }()

	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithResolver(reltime.Resolver{WeekStart: cfg.Weekday()}),
	}
	if eo.now != nil {
		sessOpts = append(sessOpts, session.WithClock(eo.now))
	}
	if eo.metrics != nil {
		sessOpts = append(sessOpts, session.WithRegistryOptions(correlate.WithMetrics(eo.metrics)))
	}
	sess := session.New(srv, sessOpts...)
	slog.Debug("session opened", "session_id", sess.ID(), "db", dbPath)

	return &env{store: st, server: srv, session: sess, stop: stop, done: done}, nil
}

// close ends the session, stops the server and closes the database. It
// returns the first failure.
func (e *env) close(ctx context.Context) error {
	err := e.session.Close(context.WithoutCancel(ctx))
	e.server.Close()
	e.stop()
	if runErr := <-e.done; runErr != nil && !errors.Is(runErr, context.Canceled) && err == nil {
		err = runErr
	}
	if cerr := e.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
