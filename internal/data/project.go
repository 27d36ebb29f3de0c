package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

type SimulationMode string

const (
	SimulationAlwaysSuccess SimulationMode = "always_success"
	SimulationAlwaysFail    SimulationMode = "always_fail"
	SimulationRandom        SimulationMode = "random"
	SimulationRealistic     SimulationMode = "realistic"
)

// Project is the tenant scope for all simulated Daraja API calls: it owns
// exactly one ApiKey triple and controls how STK Push/B2C requests resolve.
type Project struct {
	ID             int64          `json:"id" db:"id"`
	BusinessID     int64          `json:"business_id" db:"business_id"`
	DisplayName    string         `json:"display_name" db:"display_name"`
	CallbackURL    *string        `json:"callback_url,omitempty" db:"callback_url"`
	SimulationMode SimulationMode `json:"simulation_mode" db:"simulation_mode"`
	StkDelayMs     int            `json:"stk_delay_ms" db:"stk_delay_ms"`
	// SafetyWindowMs extends how long the realistic-mode STK execute step
	// waits for a user response beyond StkDelayMs, per project instead of a
	// single global constant.
	SafetyWindowMs int     `json:"safety_window_ms" db:"safety_window_ms"`
	Prefix         *string `json:"prefix,omitempty" db:"prefix"`
	Port           *int    `json:"port,omitempty" db:"port"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// DefaultSafetyWindowMs is applied when a Project is created without an
// explicit safety window.
const DefaultSafetyWindowMs = 30_000

type ProjectModel struct {
	dbConnectionPool db.DBConnectionPool
}

const projectBaseQuery = `SELECT id, business_id, display_name, callback_url, simulation_mode, stk_delay_ms, safety_window_ms, prefix, port, created_at FROM projects`

type ProjectInsert struct {
	BusinessID     int64          `db:"business_id"`
	DisplayName    string         `db:"display_name"`
	CallbackURL    *string        `db:"callback_url"`
	SimulationMode SimulationMode `db:"simulation_mode"`
	StkDelayMs     int            `db:"stk_delay_ms"`
	SafetyWindowMs int            `db:"safety_window_ms"`
	Prefix         *string        `db:"prefix"`
}

func (p *ProjectInsert) Validate() error {
	if p.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	switch p.SimulationMode {
	case SimulationAlwaysSuccess, SimulationAlwaysFail, SimulationRandom, SimulationRealistic:
	default:
		return fmt.Errorf("invalid simulation_mode %q", p.SimulationMode)
	}
	if p.StkDelayMs < 0 {
		return fmt.Errorf("stk_delay_ms must be non-negative")
	}
	if p.SafetyWindowMs <= 0 {
		p.SafetyWindowMs = DefaultSafetyWindowMs
	}
	return nil
}

func (m *ProjectModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert ProjectInsert) (*Project, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating project insert: %w", err)
	}
	var project Project
	query := `INSERT INTO projects (business_id, display_name, callback_url, simulation_mode, stk_delay_ms, safety_window_ms, prefix)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, business_id, display_name, callback_url, simulation_mode, stk_delay_ms, safety_window_ms, prefix, port, created_at`
	err := sqlExec.GetContext(ctx, &project, query, insert.BusinessID, insert.DisplayName, insert.CallbackURL, insert.SimulationMode, insert.StkDelayMs, insert.SafetyWindowMs, insert.Prefix)
	if err != nil {
		return nil, fmt.Errorf("inserting project: %w", err)
	}
	return &project, nil
}

func (m *ProjectModel) GetByID(ctx context.Context, sqlExec db.SQLExecuter, id int64) (*Project, error) {
	var project Project
	query := projectBaseQuery + ` WHERE id = $1`
	if err := sqlExec.GetContext(ctx, &project, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting project by id %d: %w", id, err)
	}
	return &project, nil
}

func (m *ProjectModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter) ([]Project, error) {
	var projects []Project
	query := projectBaseQuery + ` ORDER BY id`
	if err := sqlExec.SelectContext(ctx, &projects, query); err != nil {
		return nil, fmt.Errorf("getting all projects: %w", err)
	}
	return projects, nil
}

// SetPort persists the port a sandbox actually bound to, so a restart can
// try the same port before falling back to an OS-assigned one.
func (m *ProjectModel) SetPort(ctx context.Context, sqlExec db.SQLExecuter, id int64, port int) error {
	query := `UPDATE projects SET port = $1 WHERE id = $2`
	_, err := sqlExec.ExecContext(ctx, query, port, id)
	if err != nil {
		return fmt.Errorf("setting project %d port: %w", id, err)
	}
	return nil
}

func (m *ProjectModel) Delete(ctx context.Context, sqlExec db.SQLExecuter, id int64) error {
	res, err := sqlExec.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project %d: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
