// Package sandbox owns the lifecycle of the per-project HTTP servers that
// simulate the Daraja API: starting one on demand, tracking it while it
// runs, and shutting it down cleanly.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/data"
	"github.com/pesaplay/mpesa-sim/internal/eventbus"
)

// HandlerFactory builds the router for a project's sandbox. Kept as a
// function value rather than an import of the router package so this
// package never depends on the handlers it runs.
type HandlerFactory func(project *data.Project) http.Handler

// Status mirrors the lifecycle states surfaced over the event bus.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// StatusEvent is the payload sent with eventbus.EventSandboxStatus.
type StatusEvent struct {
	ProjectID int64  `json:"project_id"`
	Status    Status `json:"status"`
	Port      int    `json:"port,omitempty"`
	Error     string `json:"error,omitempty"`
}

var ErrAlreadyRunning = errors.New("sandbox already running for this project")
var ErrNotRunning = errors.New("no sandbox running for this project")

// runningSandbox is the bookkeeping for one live per-project listener.
type runningSandbox struct {
	port   int
	server *http.Server
	done   chan struct{}
}

// Supervisor tracks every project's running sandbox, guaranteeing at most
// one listener per project_id at a time.
type Supervisor struct {
	mu      sync.Mutex
	running map[int64]*runningSandbox

	handlerFactory   HandlerFactory
	projects         *data.ProjectModel
	dbConnectionPool db.DBConnectionPool
	bus              eventbus.Bus
	// host is the interface every sandbox listener binds to; empty means
	// all interfaces.
	host string
}

func NewSupervisor(handlerFactory HandlerFactory, projects *data.ProjectModel, dbConnectionPool db.DBConnectionPool, bus eventbus.Bus) *Supervisor {
	return &Supervisor{
		running:          make(map[int64]*runningSandbox),
		handlerFactory:   handlerFactory,
		projects:         projects,
		dbConnectionPool: dbConnectionPool,
		bus:              bus,
	}
}

// WithHost restricts every sandbox listener this Supervisor starts to a
// single interface, e.g. "127.0.0.1" for a developer machine that shouldn't
// expose sandboxes on the network.
func (s *Supervisor) WithHost(host string) *Supervisor {
	s.host = host
	return s
}

// StartSandbox binds a listener for project and serves it in the
// background. It tries the project's previously persisted port first (or
// 8000 + project_id mod 1000 if none is recorded yet), falling back to an
// OS-assigned port if that one is taken. Concurrent StartSandbox calls for
// the same project never race into two servers: the whole check-then-insert
// sequence runs under the supervisor's mutex.
func (s *Supervisor) StartSandbox(ctx context.Context, project *data.Project) (port int, err error) {
	s.mu.Lock()
	if _, exists := s.running[project.ID]; exists {
		s.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	// Reserve the slot before releasing the lock so a second concurrent
	// caller sees ErrAlreadyRunning instead of also reaching the bind step.
	s.running[project.ID] = &runningSandbox{done: make(chan struct{})}
	s.mu.Unlock()

	s.emitStatus(project.ID, StatusStarting, 0, "")

	listener, boundPort, err := bindListener(s.host, preferredPort(project))
	if err != nil {
		s.mu.Lock()
		delete(s.running, project.ID)
		s.mu.Unlock()
		s.emitStatus(project.ID, StatusFailed, 0, err.Error())
		return 0, fmt.Errorf("binding sandbox listener for project %d: %w", project.ID, err)
	}

	server := &http.Server{Handler: s.handlerFactory(project)}

	s.mu.Lock()
	entry := s.running[project.ID]
	entry.port = boundPort
	entry.server = server
	s.mu.Unlock()

	go func() {
		defer close(entry.done)
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Ctx(ctx).Errorf("sandbox for project %d exited: %s", project.ID, serveErr)
			s.emitStatus(project.ID, StatusFailed, boundPort, serveErr.Error())
		}
		s.mu.Lock()
		delete(s.running, project.ID)
		s.mu.Unlock()
	}()

	if err := s.projects.SetPort(ctx, s.dbConnectionPool, project.ID, boundPort); err != nil {
		log.Ctx(ctx).Errorf("persisting sandbox port for project %d: %s", project.ID, err)
	}

	s.emitStatus(project.ID, StatusRunning, boundPort, "")
	return boundPort, nil
}

// StopSandbox gracefully shuts down a running sandbox, waiting for
// in-flight requests to finish.
func (s *Supervisor) StopSandbox(ctx context.Context, projectID int64) error {
	s.mu.Lock()
	entry, exists := s.running[projectID]
	s.mu.Unlock()
	if !exists {
		return ErrNotRunning
	}

	s.emitStatus(projectID, StatusStopping, entry.port, "")

	if err := entry.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down sandbox for project %d: %w", projectID, err)
	}
	<-entry.done

	s.emitStatus(projectID, StatusStopped, entry.port, "")
	return nil
}

// SandboxStatus reports whether projectID currently has a running sandbox
// and, if so, on which port.
func (s *Supervisor) SandboxStatus(projectID int64) (running bool, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.running[projectID]
	if !exists {
		return false, 0
	}
	return true, entry.port
}

// ListRunningSandboxes returns the project_ids with an active listener.
func (s *Supervisor) ListRunningSandboxes() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

func (s *Supervisor) emitStatus(projectID int64, status Status, port int, errMsg string) {
	_ = s.bus.EmitAll(eventbus.EventSandboxStatus, StatusEvent{
		ProjectID: projectID,
		Status:    status,
		Port:      port,
		Error:     errMsg,
	})
}

func preferredPort(project *data.Project) int {
	if project.Port != nil && *project.Port != 0 {
		return *project.Port
	}
	return 8000 + int(project.ID%1000)
}

// bindListener tries preferredPort on host first and falls back to an
// OS-assigned port on the same host if that one is already taken.
func bindListener(host string, preferredPort int) (net.Listener, int, error) {
	addr := fmt.Sprintf("%s:%d", host, preferredPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		listener, err = net.Listen("tcp", fmt.Sprintf("%s:0", host))
		if err != nil {
			return nil, 0, err
		}
	}
	return listener, listener.Addr().(*net.TCPAddr).Port, nil
}
