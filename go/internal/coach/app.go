package coach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ironclad/go/clients/coach_api_client"
	"github.com/mcdev12/ironclad/go/internal/anchor"
	"github.com/mcdev12/ironclad/go/internal/config"
	"github.com/mcdev12/ironclad/go/internal/countdown"
	"github.com/mcdev12/ironclad/go/internal/credential"
	"github.com/mcdev12/ironclad/go/internal/dbconfig"
	"github.com/mcdev12/ironclad/go/internal/events"
	"github.com/mcdev12/ironclad/go/internal/raceguard"
	"github.com/mcdev12/ironclad/go/internal/verification"
	"github.com/mcdev12/ironclad/go/internal/workout"
	"github.com/rs/zerolog/log"
)

// App owns the collaborators shared by every flow in the process
type App struct {
	cfg         config.Config
	clock       clockwork.Clock
	kv          anchor.KV
	anchors     *anchor.Store
	countdowns  *countdown.Controller
	guard       *raceguard.Guard
	credentials *credential.Store
	publisher   events.Publisher
	verifier    verification.Verifier
	committer   workout.Committer

	closers []func() error
}

type Option func(*App)

// WithClock replaces the wall clock, mainly for tests
func WithClock(clock clockwork.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// WithKV uses kv instead of opening the configured storage
func WithKV(kv anchor.KV) Option {
	return func(a *App) { a.kv = kv }
}

// WithPublisher uses pub instead of the configured event sink
func WithPublisher(pub events.Publisher) Option {
	return func(a *App) { a.publisher = pub }
}

// WithBackend replaces the HTTP client for verification and commits
func WithBackend(verifier verification.Verifier, committer workout.Committer) Option {
	return func(a *App) {
		a.verifier = verifier
		a.committer = committer
	}
}

// NewApp wires storage, the backend client and the event sink from cfg.
func NewApp(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, guard: raceguard.New()}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}

	if a.kv == nil {
		kv, err := a.openKV(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.kv = kv
	}
	if cfg.Storage.Profile != "" {
		a.kv = anchor.Scoped(a.kv, cfg.Storage.Profile)
	}

	a.anchors = anchor.NewStore(a.kv, a.clock)
	a.countdowns = countdown.NewController(a.anchors, a.clock)
	a.credentials = credential.NewStore(a.kv)

	if a.publisher == nil {
		a.publisher = a.openPublisher(ctx)
	}

	if a.verifier == nil || a.committer == nil {
		client := coach_api_client.NewCoachApiClient(cfg.API.BaseURL,
			coach_api_client.WithTokenSource(a.credentials),
			coach_api_client.WithCompletionDefaults(cfg.Completion.RPE, cfg.Completion.Notes),
		)
		if cfg.API.Timeout > 0 {
			client.SetTimeout(cfg.API.Timeout)
		}
		if a.verifier == nil {
			a.verifier = client
		}
		if a.committer == nil {
			a.committer = client
		}
	}

	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("profile", cfg.Storage.Profile).
		Str("api", cfg.API.BaseURL).
		Msg("coach app ready")
	return a, nil
}

func (a *App) openKV(ctx context.Context) (anchor.KV, error) {
	switch a.cfg.Storage.Driver {
	case config.StorageMemory:
		return anchor.NewMemoryKV(), nil
	case config.StorageFile, "":
		return anchor.NewFileKV(a.cfg.Storage.Path), nil
	case config.StoragePostgres, config.StoragePGX:
		db, err := dbconfig.Open(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		kv := anchor.NewPostgresKV(db)
		if err := kv.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare anchor table: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

// openPublisher connects to JetStream when configured. An unreachable broker
// falls back to logging, since events never gate a flow.
func (a *App) openPublisher(ctx context.Context) events.Publisher {
	if a.cfg.NATS.URL == "" {
		return events.LogPublisher{}
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = a.cfg.NATS.URL
	if a.cfg.NATS.Stream != "" {
		jsCfg.StreamName = a.cfg.NATS.Stream
	}

	pub, err := events.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Warn().Err(err).Str("url", jsCfg.URL).Msg("JetStream unavailable - logging events instead")
		return events.LogPublisher{}
	}
	a.closers = append(a.closers, pub.Close)
	return pub
}

// NewVerificationFlow opens verification for identity, or for the pending identity when empty.
func (a *App) NewVerificationFlow(ctx context.Context, identity string, onVerified func(identity string)) (*verification.Flow, error) {
	return verification.NewFlow(ctx, verification.Deps{
		Verifier:      a.verifier,
		Credentials:   a.credentials,
		Anchors:       a.anchors,
		Countdowns:    a.countdowns,
		KV:            a.kv,
		Guard:         a.guard,
		Publisher:     a.publisher,
		Clock:         a.clock,
		ResendSeconds: a.cfg.Timers.ResendSeconds,
		ExpirySeconds: a.cfg.Timers.ExpirySeconds,
		OnVerified:    onVerified,
	}, identity)
}

// NewSessionFlow opens a workout session seeded with initialSeconds.
func (a *App) NewSessionFlow(sessionID string, initialSeconds int, onCommitted func(sessionID string, seconds int)) (*workout.Flow, error) {
	return workout.NewFlow(workout.Deps{
		Committer:   a.committer,
		Guard:       a.guard,
		Publisher:   a.publisher,
		Clock:       a.clock,
		OnCommitted: onCommitted,
	}, sessionID, initialSeconds)
}

// SavePendingIdentity records identity for a later NewVerificationFlow("")
func (a *App) SavePendingIdentity(ctx context.Context, identity string) error {
	return verification.SavePendingIdentity(ctx, a.kv, identity)
}

// ForgetFlow releases the guard entry of a closed flow that is no longer referenced.
func (a *App) ForgetFlow(flowID uuid.UUID) {
	a.guard.Forget(flowID)
}

func (a *App) Guard() *raceguard.Guard           { return a.guard }
func (a *App) Countdowns() *countdown.Controller { return a.countdowns }
func (a *App) Credentials() *credential.Store    { return a.credentials }
func (a *App) Clock() clockwork.Clock            { return a.clock }
func (a *App) Publisher() events.Publisher       { return a.publisher }

// Close releases the database and broker connections
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
