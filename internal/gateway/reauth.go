package gateway

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ferux/trafficsentinel/internal/model"
)

// WithReauth decorates gw so any call failing with model.ErrAuthExpired is
// retried exactly once after a session refresh. A second failure is passed
// through and handled like any other transient error by the caller.
func WithReauth(gw Gateway, r Refresher, logger zerolog.Logger) Gateway {
	return &reauth{
		gw:     gw,
		r:      r,
		logger: logger.With().Str("pkg", "gateway").Logger(),
	}
}

type reauth struct {
	gw     Gateway
	r      Refresher
	logger zerolog.Logger
}

func (g *reauth) Block(ctx context.Context, mac string) error {
	return g.retry(ctx, "block", func() error { return g.gw.Block(ctx, mac) })
}

func (g *reauth) Unblock(ctx context.Context, mac string) error {
	return g.retry(ctx, "unblock", func() error { return g.gw.Unblock(ctx, mac) })
}

func (g *reauth) ListBlocked(ctx context.Context) ([]string, error) {
	macs, err := g.gw.ListBlocked(ctx)
	if !errors.Is(err, model.ErrAuthExpired) {
		return macs, err
	}

	if rerr := g.refresh(ctx, "list_blocked"); rerr != nil {
		return nil, err
	}

	return g.gw.ListBlocked(ctx)
}

func (g *reauth) ResolveName(ctx context.Context, mac string) string {
	return g.gw.ResolveName(ctx, mac)
}

func (g *reauth) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if !errors.Is(err, model.ErrAuthExpired) {
		return err
	}

	if rerr := g.refresh(ctx, op); rerr != nil {
		return err
	}

	return fn()
}

func (g *reauth) refresh(ctx context.Context, op string) error {
	g.logger.Info().Str("op", op).Msg("session expired, refreshing")

	err := g.r.RefreshSession(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Str("op", op).Msg("session refresh failed, deferring to next cycle")
	}

	return err
}
