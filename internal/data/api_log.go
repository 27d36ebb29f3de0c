package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pesaplay/mpesa-sim/db"
)

// ApiLog is an append-only record of one inbound HTTP request handled by a
// project sandbox, written by the API request log middleware.
type ApiLog struct {
	ID              int64           `json:"id" db:"id"`
	ProjectID       int64           `json:"project_id" db:"project_id"`
	Method          string          `json:"method" db:"method"`
	Path            string          `json:"path" db:"path"`
	StatusCode      int             `json:"status_code" db:"status_code"`
	RequestBody     json.RawMessage `json:"request_body,omitempty" db:"request_body"`
	RequestHeaders  json.RawMessage `json:"request_headers,omitempty" db:"request_headers"`
	ResponseBody    json.RawMessage `json:"response_body,omitempty" db:"response_body"`
	ResponseHeaders json.RawMessage `json:"response_headers,omitempty" db:"response_headers"`
	DurationMs      int64           `json:"duration_ms" db:"duration_ms"`
	ErrorDesc       *string         `json:"error_desc,omitempty" db:"error_desc"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

type APILogModel struct {
	dbConnectionPool db.DBConnectionPool
}

const apiLogBaseQuery = `SELECT id, project_id, method, path, status_code, request_body, request_headers, response_body, response_headers, duration_ms, error_desc, created_at FROM api_logs`

type ApiLogInsert struct {
	ProjectID       int64
	Method          string
	Path            string
	StatusCode      int
	RequestBody     json.RawMessage
	RequestHeaders  json.RawMessage
	ResponseBody    json.RawMessage
	ResponseHeaders json.RawMessage
	DurationMs      int64
	ErrorDesc       *string
}

func (m *APILogModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert ApiLogInsert) (*ApiLog, error) {
	var apiLog ApiLog
	query := `INSERT INTO api_logs (project_id, method, path, status_code, request_body, request_headers, response_body, response_headers, duration_ms, error_desc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, project_id, method, path, status_code, request_body, request_headers, response_body, response_headers, duration_ms, error_desc, created_at`
	err := sqlExec.GetContext(ctx, &apiLog, query,
		insert.ProjectID, insert.Method, insert.Path, insert.StatusCode,
		insert.RequestBody, insert.RequestHeaders, insert.ResponseBody, insert.ResponseHeaders,
		insert.DurationMs, insert.ErrorDesc)
	if err != nil {
		return nil, fmt.Errorf("inserting api log: %w", err)
	}
	return &apiLog, nil
}

func (m *APILogModel) GetByID(ctx context.Context, sqlExec db.SQLExecuter, id int64) (*ApiLog, error) {
	var apiLog ApiLog
	query := apiLogBaseQuery + ` WHERE id = $1`
	if err := sqlExec.GetContext(ctx, &apiLog, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting api log %d: %w", id, err)
	}
	return &apiLog, nil
}

// GetByProject lists a project's request log, newest first, optionally
// filtered by HTTP method. Filtering is always applied against the method
// column — never path — since method and path carry independent meaning and
// conflating them would silently drop unrelated requests from the results.
func (m *APILogModel) GetByProject(ctx context.Context, sqlExec db.SQLExecuter, projectID int64, method string, limit int) ([]ApiLog, error) {
	var logs []ApiLog
	if method == "" {
		query := apiLogBaseQuery + ` WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`
		if err := sqlExec.SelectContext(ctx, &logs, query, projectID, limit); err != nil {
			return nil, fmt.Errorf("getting api logs for project %d: %w", projectID, err)
		}
		return logs, nil
	}

	query := apiLogBaseQuery + ` WHERE project_id = $1 AND method = $2 ORDER BY created_at DESC LIMIT $3`
	if err := sqlExec.SelectContext(ctx, &logs, query, projectID, method, limit); err != nil {
		return nil, fmt.Errorf("getting api logs for project %d filtered by method %s: %w", projectID, method, err)
	}
	return logs, nil
}
