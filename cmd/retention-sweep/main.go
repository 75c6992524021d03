// Command retention-sweep runs the scheduled data-retention sweeps once and
// prints a JSON summary.
//
// Exit codes: 0 when every item succeeded (or another run held the lock), 1
// when some items failed, 2 on configuration or systemic errors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-fitness-backend/internal/app"
	"github.com/tbourn/go-fitness-backend/internal/config"
	"github.com/tbourn/go-fitness-backend/internal/lock"
	"github.com/tbourn/go-fitness-backend/internal/observability"
	"github.com/tbourn/go-fitness-backend/internal/services"
	"github.com/tbourn/go-fitness-backend/internal/sysutil"
)

var version = "dev"

const (
	exitOK       = 0
	exitFailures = 1
	exitSystemic = 2

	lockPrefix = "fitness:lock:"
)

// sweepFunc runs the sweep with a loaded configuration.
type sweepFunc func(ctx context.Context, cfg config.Config, now time.Time, only string) (*services.SweepSummary, error)

// exitError carries the process exit code out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	sysutil.LoadLocalEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := newRootCmd(config.Load, runSweep)
	err := cmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCodeOf(err))
}

func newRootCmd(load func() (config.Config, error), sweep sweepFunc) *cobra.Command {
	var (
		nowFlag string
		only    string
	)

	cmd := &cobra.Command{
		Use:           "retention-sweep",
		Short:         "Purge due accounts and expired retention data",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return &exitError{code: exitSystemic, err: fmt.Errorf("config: %w", err)}
			}
			app.ConfigureLogging(cfg)

			now := time.Now().UTC()
			if nowFlag != "" {
				now, err = time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return &exitError{code: exitSystemic, err: fmt.Errorf("--now: %w", err)}
				}
			}

			sum, err := sweep(cmd.Context(), cfg, now, only)
			if sum != nil {
				if werr := writeSummary(cmd.OutOrStdout(), sum); werr != nil && err == nil {
					err = werr
				}
			}
			return classify(sum, err)
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "evaluate deadlines at this RFC3339 instant instead of the current time")
	cmd.Flags().StringVar(&only, "only", "", fmt.Sprintf("run a single sweep (one of %v)", services.Sweeps))
	return cmd
}

func writeSummary(w io.Writer, sum *services.SweepSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func classify(sum *services.SweepSummary, err error) error {
	if err != nil {
		return &exitError{code: exitSystemic, err: err}
	}
	if sum != nil && sum.Failed() {
		return &exitError{code: exitFailures, err: fmt.Errorf("%d item(s) failed", len(sum.Failures))}
	}
	return nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code == exitFailures {
			log.Warn().Err(err).Msg("retention sweep finished with failures")
		} else {
			log.Error().Err(err).Msg("retention sweep failed")
		}
		return ee.code
	}
	// cobra flag parsing errors
	log.Error().Err(err).Msg("retention sweep")
	return exitSystemic
}

func runSweep(ctx context.Context, cfg config.Config, now time.Time, only string) (*services.SweepSummary, error) {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.RoleSweep,
		sysutil.ServiceVersion(version))
	if err != nil {
		return nil, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close resources")
		}
	}()

	svc := services.NewRetentionService(a.Store, a.Accounts)
	svc.IdempotencyTTL = cfg.IdempotencyTTL
	svc.UnverifiedTTL = cfg.UnverifiedAccountTTL
	svc.LockTTL = cfg.SweepLockTTL
	if cfg.SweepLockRedisAddr != "" {
		client := lock.NewRedisClient(cfg.SweepLockRedisAddr)
		defer client.Close()
		svc.Locker = lock.NewRedis(client, lockPrefix)
	}

	log.Info().Time("now", now).Str("only", only).Msg("retention sweep starting")
	return svc.Run(ctx, now, services.SweepOptions{Only: only})
}
