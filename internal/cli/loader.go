package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/ledgerd/internal/compiler"
	"github.com/roach88/ledgerd/internal/config"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/feed"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/registry"
	"github.com/roach88/ledgerd/internal/store"
	"github.com/roach88/ledgerd/internal/templates"
)

// memoryJournal is the store path used when no journal is configured.
const memoryJournal = ":memory:"

// loadRegistry builds the registry from the configured catalogue
// directory, or the embedded catalogue when none is set.
func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.Catalogue.Dir == "" {
		return templates.NewRegistry()
	}
	specs, err := compiler.LoadDir(cfg.Catalogue.Dir)
	if err != nil {
		return nil, err
	}
	return templates.NewRegistry(specs...)
}

// session is an engine recovered from the configured journal, with the
// feed publisher attached when one is configured.
type session struct {
	registry  *registry.Registry
	store     *store.Store
	engine    *engine.Engine
	publisher *feed.Publisher
	replay    store.ReplayResult
	logger    *slog.Logger

	cancel  context.CancelFunc
	runDone chan error
}

// sessionMode says whether a command may run without a durable journal.
type sessionMode int

const (
	requireJournal sessionMode = iota
	allowMemory
)

// openSession recovers the engine from the journal. A journal that fails
// verification exits with ExitFailure; anything else that stops the
// session from opening is a command error.
func openSession(ctx context.Context, opts *RootOptions, mode sessionMode) (*session, error) {
	cfg := opts.Config
	logger := opts.Logger

	path := cfg.Journal.Path
	if path == "" {
		if mode == requireJournal {
			return nil, NewExitError(ExitCommandError, "no journal configured: set journal.path or pass --db")
		}
		path = memoryJournal
	}

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load templates", err)
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if t, ok := cfg.FixedTime(); ok {
		engineOpts = append(engineOpts, engine.WithClock(engine.ClockFunc(func() time.Time { return t })))
	}

	var pub *feed.Publisher
	if cfg.Feed != nil {
		pub, err = openPublisher(ctx, cfg.Feed, logger)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect feed", err)
		}
		engineOpts = append(engineOpts, engine.WithObserver(pub))
	}

	eng, res, err := engine.Recover(ctx, reg, st, engineOpts...)
	if err != nil {
		if pub != nil {
			pub.Close()
		}
		st.Close()
		if errors.Is(err, ledger.ErrCorruptJournal) {
			return nil, WrapExitError(ExitFailure, "journal failed verification", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to recover ledger", err)
	}

	s := &session{
		registry:  reg,
		store:     st,
		engine:    eng,
		publisher: pub,
		replay:    res,
		logger:    logger,
	}
	if pub != nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		s.runDone = make(chan error, 1)
		go func() {
			s.runDone <- eng.Run(runCtx)
		}()
	}
	return s, nil
}

// openPublisher connects the feed and checks the server answers.
func openPublisher(ctx context.Context, cfg *config.FeedConfig, logger *slog.Logger) (*feed.Publisher, error) {
	pub, err := feed.NewPublisher(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, cfg.Namespace, feed.WithMaxLen(*cfg.MaxLen), feed.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := pub.Ping(ctx); err != nil {
		pub.Close()
		return nil, err
	}
	return pub, nil
}

// Close drains pending feed deliveries, then closes the feed and journal.
func (s *session) Close() error {
	if s.runDone != nil {
		s.engine.Close()
		if err := <-s.runDone; err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("feed delivery stopped early", "error", err)
		}
		s.cancel()
	}
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// parseContractID accepts "7" or "#7".
func parseContractID(s string) (ir.ContractID, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid contract id %q", s)
	}
	return ir.ContractID(n), nil
}

// parseRecord decodes a JSON object flag into a Record.
func parseRecord(flag, raw string) (ir.Record, error) {
	v, err := ir.DecodeValue([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s JSON: %w", flag, err)
	}
	rec, ok := v.(ir.Record)
	if !ok {
		return nil, fmt.Errorf("invalid --%s JSON: expected an object", flag)
	}
	return rec, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
