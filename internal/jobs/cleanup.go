package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/dbcart/internal/repository"
	"github.com/dukerupert/dbcart/internal/telemetry"
)

// JobTypeCartCleanup names the cart cleanup sweep in logs and schedules.
const JobTypeCartCleanup = "cleanup:carts"

// DefaultSessionLifetime is used when no session lifetime is configured.
const DefaultSessionLifetime = 120 * time.Minute

// CleanupConfig selects which cleanup steps run.
type CleanupConfig struct {
	// ExpireCart expires active session carts idle longer than SessionLifetime.
	ExpireCart bool

	// DeleteExpired deletes every expired cart with its lines.
	DeleteExpired bool

	SessionLifetime time.Duration
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	CartsExpired int64 `json:"carts_expired"`
	CartsDeleted int64 `json:"carts_deleted"`
}

// CartCleanup expires abandoned guest carts and deletes expired ones.
// Both steps are idempotent predicates over the cart table.
type CartCleanup struct {
	queries repository.Querier
	config  CleanupConfig
	metrics *telemetry.CartMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewCartCleanup creates the cleanup sweep.
func NewCartCleanup(queries repository.Querier, config CleanupConfig, metrics *telemetry.CartMetrics, logger *slog.Logger) *CartCleanup {
	if config.SessionLifetime <= 0 {
		config.SessionLifetime = DefaultSessionLifetime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CartCleanup{
		queries: queries,
		config:  config,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Name implements worker.Job.
func (c *CartCleanup) Name() string { return JobTypeCartCleanup }

// Run implements worker.Job.
func (c *CartCleanup) Run(ctx context.Context) error {
	_, err := c.Sweep(ctx)
	return err
}

// Sweep runs the enabled steps. A failing step does not stop the other;
// their errors are joined.
func (c *CartCleanup) Sweep(ctx context.Context) (*CleanupResult, error) {
	start := c.now()
	result := &CleanupResult{}
	var errs []error
	var failed []string

	if c.config.ExpireCart {
		n, err := c.Expire(ctx)
		if err != nil {
			errs = append(errs, err)
			failed = append(failed, "expire")
		}
		result.CartsExpired = n
	}

	if c.config.DeleteExpired {
		n, err := c.Delete(ctx)
		if err != nil {
			errs = append(errs, err)
			failed = append(failed, "delete")
		}
		result.CartsDeleted = n
	}

	c.metrics.RecordCleanup(result.CartsExpired, result.CartsDeleted, failed, c.now().Sub(start))

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}

	if result.CartsExpired > 0 || result.CartsDeleted > 0 {
		c.logger.Info("cart cleanup finished",
			"carts_expired", result.CartsExpired,
			"carts_deleted", result.CartsDeleted,
		)
	}
	return result, nil
}

// Expire marks active session carts not updated within the session
// lifetime as expired. User carts never expire here.
func (c *CartCleanup) Expire(ctx context.Context) (int64, error) {
	cutoff := pgtype.Timestamptz{Time: c.now().Add(-c.config.SessionLifetime), Valid: true}
	n, err := c.queries.ExpireSessionCarts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire session carts: %w", err)
	}
	return n, nil
}

// Delete removes every expired cart. Lines go with their cart.
func (c *CartCleanup) Delete(ctx context.Context) (int64, error) {
	n, err := c.queries.DeleteExpiredCarts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired carts: %w", err)
	}
	return n, nil
}
