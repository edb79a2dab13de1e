package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carbonlens/carbonlens-cli/internal/apierr"
	"github.com/carbonlens/carbonlens-cli/internal/config"
	"github.com/carbonlens/carbonlens-cli/internal/resilience"
	"github.com/carbonlens/carbonlens-cli/internal/session"
	"github.com/carbonlens/carbonlens-cli/internal/store"
	"github.com/carbonlens/carbonlens-cli/pkg/climate"
)

var (
	cfg  *config.Config
	sess *session.Session
)

var rootCmd = &cobra.Command{
	Use:   "carbonlens",
	Short: "Carbon pricing policy simulation client",
	Long:  "Runs carbon-pricing policy simulations against the CarbonLens backend, keeps a local history, compares policies, and exports CSV/XLSX/PDF reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		tokenPath, err := session.DefaultTokenPath()
		if err != nil {
			return fmt.Errorf("resolve session path: %w", err)
		}
		sess, err = session.Load(tokenPath)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initClient builds the backend API client from config and the current
// session.
func initClient() (*climate.Client, error) {
	if err := cfg.Validate("client"); err != nil {
		return nil, err
	}
	return climate.NewClient(
		climate.WithBaseURL(cfg.API.BaseURL),
		climate.WithTimeout(time.Duration(cfg.API.TimeoutSecs)*time.Second),
		climate.WithRateLimit(cfg.API.RatePerSec, cfg.API.RateBurst),
		climate.WithRetry(resilience.FromConfig(
			cfg.Retry.MaxRetries, cfg.Retry.DelayMs, cfg.Retry.Multiplier, cfg.Retry.JitterFraction)),
		climate.WithTokenSource(sess.Token),
		climate.WithLogger(zap.L()),
	), nil
}

// initStore opens the local history database per config.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// reportError folds a backend failure into the classified user-facing
// message while keeping the cause chain for debug logs.
func reportError(err error) error {
	if err == nil {
		return nil
	}
	ce := apierr.Classify(err)
	zap.L().Debug("request failed",
		zap.String("code", string(ce.Code)),
		zap.String("field", ce.Field),
		zap.Error(err))
	return eris.Wrap(err, ce.UserMessage())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
