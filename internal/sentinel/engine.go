package sentinel

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ferux/trafficsentinel/internal/config"
	"github.com/ferux/trafficsentinel/internal/gateway"
	"github.com/ferux/trafficsentinel/internal/model"
	"github.com/ferux/trafficsentinel/internal/registry"
	"github.com/ferux/trafficsentinel/internal/scanner"
	"github.com/ferux/trafficsentinel/internal/slack"
)

// enforceWorkers bounds the per-cycle fan-out of router calls. The router
// handles a handful of concurrent API requests fine; more buys nothing.
const enforceWorkers = 4

// Engine runs the reconciliation loop: scan the network, classify every
// visible address against the registry, enforce each record's intended
// state on the router and, every few cycles, audit the router blocklist
// for drift. The registry holds the intent; the router only reflects it.
type Engine struct {
	registry *registry.Registry
	gateway  gateway.Gateway
	scanner  scanner.Scanner
	notifier slack.Notifier
	logger   zerolog.Logger

	interval   time.Duration
	auditEvery uint64

	cycles uint64
}

// New creates an engine. auditEvery is the K in "audit every K cycles".
func New(
	reg *registry.Registry,
	gw gateway.Gateway,
	sc scanner.Scanner,
	notifier slack.Notifier,
	logger zerolog.Logger,
	cfg config.Sentinel,
) *Engine {
	auditEvery := cfg.AuditEvery
	if auditEvery <= 0 {
		auditEvery = 3
	}

	return &Engine{
		registry:   reg,
		gateway:    gw,
		scanner:    sc,
		notifier:   notifier,
		logger:     logger.With().Str("pkg", "sentinel").Logger(),
		interval:   cfg.ScanInterval.Std(),
		auditEvery: uint64(auditEvery),
	}
}

// Run executes cycles until ctx is cancelled. The first cycle starts
// immediately so stored intent is re-asserted on boot. Cycles never
// overlap: one that outlasts the interval delays the next tick instead of
// racing it. On cancellation, enforcement calls already in flight are
// allowed to finish before Run returns.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Str("interval", e.interval.String()).
		Uint64("audit_every", e.auditEvery).
		Msg("sentinel started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		e.Cycle(ctx)

		select {
		case <-ctx.Done():
			e.logger.Info().Msg("sentinel stopped")
			return
		case <-ticker.C:
		}
	}
}

// Cycle performs one scan/classify/enforce pass, plus the drift audit
// when due. Exported so the admin of a running process (and tests) can
// drive single passes.
func (e *Engine) Cycle(ctx context.Context) {
	e.cycles++
	start := time.Now()
	log := e.logger.With().Uint64("cycle", e.cycles).Logger()
	log.Info().Msg("starting reconciliation cycle")

	visible := e.observe(ctx, log)
	e.enforceAll(ctx, log)

	if e.cycles%e.auditEvery == 0 {
		e.audit(ctx, log)
	}

	log.Info().
		Int("visible", visible).
		Str("took", time.Since(start).String()).
		Msg("cycle done")
}

// observe scans the network and books every sighting. A failed scan is
// reduced visibility, not an error: the cycle goes on with an empty set so
// enforcement and audit still run.
func (e *Engine) observe(ctx context.Context, log zerolog.Logger) int {
	macs, err := e.scanner.Scan(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("scan failed, treating network as empty")
		macs = nil
	}

	now := time.Now().UTC()

	for _, mac := range macs {
		created, err := e.registry.UpsertSeen(ctx, mac, now)
		if err != nil {
			log.Error().Err(err).Str("mac", mac).Msg("can't book sighting")
			continue
		}

		if !created {
			continue
		}

		log.Warn().Str("mac", mac).Msg("new device detected, quarantined")

		event := model.DeviceEvent{
			MAC:       mac,
			Status:    model.StatusQuarantine,
			Name:      e.gateway.ResolveName(ctx, mac),
			Timestamp: now,
		}

		if err := e.notifier.Notify(ctx, event); err != nil {
			// best effort only
			log.Debug().Err(err).Str("mac", mac).Msg("can't deliver event")
		}
	}

	return len(macs)
}

// enforceAll applies every record's intent to the router, not only the
// newly seen ones: status can change out of band through the admin surface
// at any time. Calls run concurrently across distinct addresses and all
// finish, or fail individually, before the cycle moves on. Failures are
// retried next cycle.
func (e *Engine) enforceAll(ctx context.Context, log zerolog.Logger) {
	// Everything here runs on a context that survives shutdown: once
	// observe has booked sightings, every record gets its enforcement
	// attempt even when cancellation lands mid-cycle. Run returns only
	// after g.Wait.
	callCtx := context.WithoutCancel(ctx)

	devices, err := e.registry.List(callCtx)
	if err != nil {
		log.Error().Err(err).Msg("can't list devices, skipping enforcement")
		return
	}

	var g errgroup.Group
	g.SetLimit(enforceWorkers)

	for _, d := range devices {
		d := d
		g.Go(func() error {
			e.enforce(callCtx, log, d)
			return nil
		})
	}

	_ = g.Wait()
}

func (e *Engine) enforce(ctx context.Context, log zerolog.Logger, d model.Device) {
	var err error
	if d.Status.Blocked() {
		err = e.gateway.Block(ctx, d.MAC)
	} else {
		err = e.gateway.Unblock(ctx, d.MAC)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("mac", d.MAC).
			Str("status", string(d.Status)).
			Msg("enforcement failed, will retry next cycle")
	}
}

// EnforceDevice applies one record's stored status to the router right
// away. The admin surface calls it after a status write so an override
// takes effect without waiting for the next cycle.
func (e *Engine) EnforceDevice(ctx context.Context, mac string) error {
	d, err := e.registry.Get(ctx, mac)
	if err != nil {
		return err
	}

	if d.Status.Blocked() {
		return e.gateway.Block(ctx, d.MAC)
	}

	return e.gateway.Unblock(ctx, d.MAC)
}

// audit fetches the router blocklist and converges it with the registry:
// missing blocks are added, stale blocks on authorized devices removed.
// This catches manual edits made directly on the router and enforcement
// failures from earlier cycles. Blocklist entries for addresses the
// registry has never seen are reported but left alone: the registry owns
// intent only for its own records.
func (e *Engine) audit(ctx context.Context, log zerolog.Logger) {
	blocked, err := e.gateway.ListBlocked(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("can't fetch blocklist, audit deferred")
		return
	}

	onRouter := make(map[string]bool, len(blocked))
	for _, mac := range blocked {
		onRouter[mac] = true
	}

	wantBlocked, err := e.registry.ListByIntent(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("can't list blocked intent, audit deferred")
		return
	}

	wantUnblocked, err := e.registry.ListByIntent(ctx, false)
	if err != nil {
		log.Error().Err(err).Msg("can't list unblocked intent, audit deferred")
		return
	}

	known := make(map[string]bool, len(wantBlocked)+len(wantUnblocked))

	for _, d := range wantBlocked {
		known[d.MAC] = true
		if onRouter[d.MAC] {
			continue
		}

		log.Warn().Str("mac", d.MAC).Str("status", string(d.Status)).Msg("drift: should be blocked, correcting")
		if err := e.gateway.Block(ctx, d.MAC); err != nil {
			log.Warn().Err(err).Str("mac", d.MAC).Msg("drift correction failed")
		}
	}

	for _, d := range wantUnblocked {
		known[d.MAC] = true
		if !onRouter[d.MAC] {
			continue
		}

		log.Warn().Str("mac", d.MAC).Msg("drift: authorized device is blocked, correcting")
		if err := e.gateway.Unblock(ctx, d.MAC); err != nil {
			log.Warn().Err(err).Str("mac", d.MAC).Msg("drift correction failed")
		}
	}

	for mac := range onRouter {
		if !known[mac] {
			log.Info().Str("mac", mac).Msg("unmanaged blocklist entry on router, leaving as is")
		}
	}
}
