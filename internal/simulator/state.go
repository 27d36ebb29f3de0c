// Package simulator wires one project's dependencies into the chi router
// that becomes its sandbox's http.Handler.
package simulator

import (
	"context"
	"fmt"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/callback"
	"github.com/pesaplay/mpesa-sim/internal/credentials"
	"github.com/pesaplay/mpesa-sim/internal/crashtracker"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/domainevents"
	"github.com/pesaplay/mpesa-sim/internal/ledger"
	"github.com/pesaplay/mpesa-sim/internal/monitor"
	"github.com/pesaplay/mpesa-sim/internal/stkregistry"
)

// State bundles everything a project's httphandlers need, one instance per
// running sandbox.
type State struct {
	ProjectID        int64
	DBConnectionPool db.DBConnectionPool
	Models           *data.Models
	Ledger           *ledger.Engine
	Credentials      *credentials.CachedStore
	Registry         *stkregistry.Registry
	Callbacks        *callback.Orchestrator
	Dispatcher       *callback.Dispatcher
	DomainEvents     *domainevents.Dispatcher
	CrashTracker     crashtracker.Client
	MonitorService   monitor.MonitorServiceInterface
}

// Project loads the sandbox's own Project row, which may have been updated
// (simulation_mode, stk_delay_ms, callback_url) since the sandbox started.
func (s *State) Project(ctx context.Context) (*data.Project, error) {
	return s.Models.Projects.GetByID(ctx, s.DBConnectionPool, s.ProjectID)
}

// Business loads the Business owning this sandbox's Project.
func (s *State) Business(ctx context.Context, project *data.Project) (*data.Business, error) {
	business, err := s.Models.Businesses.GetByID(ctx, s.DBConnectionPool, project.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("loading business %d for project %d: %w", project.BusinessID, project.ID, err)
	}
	return business, nil
}
