package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/callback"
	"github.com/pesaplay/mpesa-sim/internal/credentials"
	"github.com/pesaplay/mpesa-sim/internal/crashtracker"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/domainevents"
	"github.com/pesaplay/mpesa-sim/internal/eventbus"
	"github.com/pesaplay/mpesa-sim/internal/ledger"
	"github.com/pesaplay/mpesa-sim/internal/monitor"
	"github.com/pesaplay/mpesa-sim/internal/sandbox"
	"github.com/pesaplay/mpesa-sim/internal/simulator"
	"github.com/pesaplay/mpesa-sim/internal/stkregistry"
)

type serveOptions struct {
	projectID int64
	host      string
}

// ServeCommand runs one project's sandbox in the foreground until it
// receives SIGINT/SIGTERM or the sandbox's HTTP server fails.
type ServeCommand struct{}

func (c *ServeCommand) Command() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a single project's Daraja sandbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), opts)
		},
	}

	cmd.Flags().Int64Var(&opts.projectID, "project-id", 0, "the project to serve")
	cmd.Flags().StringVar(&opts.host, "host", "0.0.0.0", "interface the sandbox listener binds to")
	_ = cmd.MarkFlagRequired("project-id")

	return cmd
}

func (c *ServeCommand) run(ctx context.Context, opts serveOptions) error {
	monitorService := &monitor.MonitorService{}
	if err := monitorService.Start(); err != nil {
		return fmt.Errorf("starting monitor service: %w", err)
	}

	dbConnectionPool, err := db.OpenDBConnectionPoolWithMetrics(ctx, globalOptions.databaseURL, monitorService)
	if err != nil {
		return fmt.Errorf("opening database connection pool: %w", err)
	}
	defer dbConnectionPool.Close()

	models, err := data.NewModels(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("creating data models: %w", err)
	}

	project, err := models.Projects.GetByID(ctx, dbConnectionPool, opts.projectID)
	if err != nil {
		return fmt.Errorf("loading project %d: %w", opts.projectID, err)
	}

	crashTracker, err := newCrashTracker()
	if err != nil {
		return fmt.Errorf("creating crash tracker: %w", err)
	}

	bus := eventbus.LoggingBus{Sink: func(line string) { log.Info(line) }}

	engine := ledger.NewEngine(models)
	credentialStore := credentials.NewStore(dbConnectionPool, models)
	cachedCredentials := credentials.NewCachedStore(credentialStore)
	dispatcher := callback.NewDispatcher(callback.DefaultDispatchConfig)
	orchestrator := callback.NewOrchestrator(dbConnectionPool, models, dispatcher, crashTracker)
	domainEventDispatcher := domainevents.NewDispatcher(bus)

	supervisor := sandbox.NewSupervisor(
		func(p *data.Project) http.Handler {
			state := &simulator.State{
				ProjectID:        p.ID,
				DBConnectionPool: dbConnectionPool,
				Models:           models,
				Ledger:           engine,
				Credentials:      cachedCredentials,
				Registry:         stkregistry.NewRegistry(),
				Callbacks:        orchestrator,
				Dispatcher:       dispatcher,
				DomainEvents:     domainEventDispatcher,
				CrashTracker:     crashTracker,
				MonitorService:   monitorService,
			}
			return simulator.NewRouter(state, bus)
		},
		models.Projects,
		dbConnectionPool,
		bus,
	).WithHost(opts.host)

	port, err := supervisor.StartSandbox(ctx, project)
	if err != nil {
		return fmt.Errorf("starting sandbox for project %d: %w", project.ID, err)
	}
	log.Infof("sandbox for project %d listening on %s:%d", project.ID, opts.host, port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Infof("stopping sandbox for project %d", project.ID)
	return supervisor.StopSandbox(ctx, project.ID)
}

func newCrashTracker() (crashtracker.Client, error) {
	if globalOptions.sentryDSN == "" {
		return crashtracker.NewDryRunClient()
	}
	return crashtracker.NewSentryClient(globalOptions.sentryDSN, globalOptions.environment, "")
}
