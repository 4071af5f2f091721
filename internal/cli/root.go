// Package cli implements the merit command-line interface.
// `merit serve` runs the daemon; the remaining commands administer the
// local store directly, which is safe because the engine is single-node.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/merit-works/merit/internal/app/funding"
	"github.com/merit-works/merit/internal/app/ledger"
	"github.com/merit-works/merit/internal/app/participation"
	"github.com/merit-works/merit/internal/app/settlement"
	"github.com/merit-works/merit/internal/daemon"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "merit",
	Short: "merit points settlement engine",
	Long: `merit is the points settlement engine behind gamified business
engagement: mission funding, participation rewards, timed commitments
(appointments and referrals) and delayed reward settlement.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.merit/config.toml)")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// services bundles what the admin commands need against the local store.
type services struct {
	db             *sqlite.DB
	ledger         *ledger.Service
	missions       *funding.Manager
	participations *participation.Service
	sweeper        *settlement.Sweeper
}

// openServices loads config, opens the store and builds the services the
// admin commands use. Callers must Close.
func openServices() (*services, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &services{
		db:             db,
		ledger:         ledger.New(db),
		missions:       funding.New(db, nil),
		participations: participation.New(db, nil, nil),
		sweeper:        settlement.New(db, nil),
	}, nil
}

func (s *services) Close() { s.db.Close() }
