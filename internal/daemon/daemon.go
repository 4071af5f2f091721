package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/merit-works/merit/internal/api"
	"github.com/merit-works/merit/internal/app/commitment"
	"github.com/merit-works/merit/internal/app/funding"
	"github.com/merit-works/merit/internal/app/ledger"
	"github.com/merit-works/merit/internal/app/participation"
	"github.com/merit-works/merit/internal/app/ratelimit"
	"github.com/merit-works/merit/internal/app/settlement"
	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

// logNotifier is the single-node notification transport: it writes every
// notification to the process log. A real deployment swaps in a push or
// email transport behind the same interface.
type logNotifier struct{}

func (logNotifier) Notify(recipientID string, kind domain.NotificationKind, payload map[string]any) {
	log.Printf("[notify] %s → %s %v", kind, recipientID, payload)
}

// Daemon is the long-running merit process: store, services, HTTP API and
// the periodic settlement sweep.
type Daemon struct {
	cfg     Config
	db      *sqlite.DB
	sweeper *settlement.Sweeper
	httpSrv *http.Server
	cron    *cron.Cron
}

// New opens the store and wires every service per the configuration.
func New(cfg Config) (*Daemon, error) {
	if err := os.MkdirAll(HomeDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create home dir: %w", err)
	}
	db, err := sqlite.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier := logNotifier{}
	identity := domain.AllowAllIdentity{}

	ledgerSvc := ledger.New(db)
	missions := funding.New(db, notifier)
	participations := participation.New(db, identity, notifier)
	guard := ratelimit.New(db)
	commitments := commitment.New(db, guard, identity, notifier, commitment.Config{
		Window:       cfg.CommitmentWindow(),
		MaxPerWindow: cfg.Limits.CommitmentMax,
		JoinWindow:   cfg.JoinWindow(),
		TrustDelay:   cfg.TrustDelay(),
	})
	sweeper := settlement.New(db, notifier)

	srv := api.NewServer(ledgerSvc, missions, participations, commitments, sweeper)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}

	return &Daemon{
		cfg:     cfg,
		db:      db,
		sweeper: sweeper,
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		cron: cron.New(),
	}, nil
}

// Run serves until ctx is cancelled, then shuts down cleanly.
func (d *Daemon) Run(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", d.cfg.SweepInterval())
	if _, err := d.cron.AddFunc(spec, func() {
		if _, errs := d.sweeper.Sweep(context.Background()); len(errs) > 0 {
			for _, err := range errs {
				log.Printf("[daemon] sweep error: %v", err)
			}
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	d.cron.Start()
	log.Printf("[daemon] settlement sweep every %s", d.cfg.SweepInterval())

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] merit API listening on %s", d.httpSrv.Addr)
		if err := d.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.shutdown()
		return err
	case <-ctx.Done():
		log.Printf("[daemon] shutting down")
		d.shutdown()
		return nil
	}
}

func (d *Daemon) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.httpSrv.Shutdown(shutdownCtx)
	<-d.cron.Stop().Done()
	d.db.Close()
}
