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

type CallbackType string

const (
	CallbackTypeSTKPush          CallbackType = "stk_push"
	CallbackTypeB2CResult        CallbackType = "b2c_result"
	CallbackTypeC2BValidation    CallbackType = "c2b_validation"
	CallbackTypeC2BConfirmation  CallbackType = "c2b_confirmation"
)

type CallbackStatus string

const (
	CallbackPending   CallbackStatus = "pending"
	CallbackDelivered CallbackStatus = "delivered"
	CallbackFailed    CallbackStatus = "failed"
)

// CallbackLog tracks one asynchronous callback delivery attempt-set: created
// in pending, it transitions exactly once to delivered or failed once the
// dispatcher exhausts its retries.
type CallbackLog struct {
	ID              int64           `json:"id" db:"id"`
	ProjectID       int64           `json:"project_id" db:"project_id"`
	ConversationID  string          `json:"conversation_id" db:"conversation_id"`
	OriginatorID    *string         `json:"originator_id,omitempty" db:"originator_id"`
	TransactionID   *string         `json:"transaction_id,omitempty" db:"transaction_id"`
	URL             string          `json:"url" db:"url"`
	CallbackType    CallbackType    `json:"callback_type" db:"callback_type"`
	Payload         json.RawMessage `json:"payload" db:"payload"`
	ResponseStatus  *int            `json:"response_status,omitempty" db:"response_status"`
	ResponseBody    *string         `json:"response_body,omitempty" db:"response_body"`
	ResponseHeaders json.RawMessage `json:"response_headers,omitempty" db:"response_headers"`
	Status          CallbackStatus  `json:"status" db:"status"`
	Error           *string         `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

type CallbackLogModel struct {
	dbConnectionPool db.DBConnectionPool
}

const callbackLogBaseQuery = `SELECT id, project_id, conversation_id, originator_id, transaction_id, url, callback_type, payload, response_status, response_body, response_headers, status, error, created_at, updated_at FROM callback_logs`

type CallbackLogInsert struct {
	ProjectID      int64
	ConversationID string
	OriginatorID   *string
	TransactionID  *string
	URL            string
	CallbackType   CallbackType
	Payload        json.RawMessage
}

func (m *CallbackLogModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert CallbackLogInsert) (*CallbackLog, error) {
	var callbackLog CallbackLog
	query := `INSERT INTO callback_logs (project_id, conversation_id, originator_id, transaction_id, url, callback_type, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, project_id, conversation_id, originator_id, transaction_id, url, callback_type, payload, response_status, response_body, response_headers, status, error, created_at, updated_at`
	err := sqlExec.GetContext(ctx, &callbackLog, query,
		insert.ProjectID, insert.ConversationID, insert.OriginatorID, insert.TransactionID, insert.URL, insert.CallbackType, insert.Payload, CallbackPending)
	if err != nil {
		return nil, fmt.Errorf("inserting callback log: %w", err)
	}
	return &callbackLog, nil
}

// UpdateDeliveryOutcome records the dispatcher's final attempt outcome and
// transitions status out of pending exactly once.
func (m *CallbackLogModel) UpdateDeliveryOutcome(ctx context.Context, sqlExec db.SQLExecuter, id int64, status CallbackStatus, responseStatus *int, responseBody *string, responseHeaders json.RawMessage, deliveryErr *string) error {
	query := `UPDATE callback_logs
		SET status = $1, response_status = $2, response_body = $3, response_headers = $4, error = $5, updated_at = now()
		WHERE id = $6 AND status = 'pending'`
	res, err := sqlExec.ExecContext(ctx, query, status, responseStatus, responseBody, responseHeaders, deliveryErr, id)
	if err != nil {
		return fmt.Errorf("updating callback log %d delivery outcome: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *CallbackLogModel) GetByID(ctx context.Context, sqlExec db.SQLExecuter, id int64) (*CallbackLog, error) {
	var callbackLog CallbackLog
	query := callbackLogBaseQuery + ` WHERE id = $1`
	if err := sqlExec.GetContext(ctx, &callbackLog, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting callback log %d: %w", id, err)
	}
	return &callbackLog, nil
}

func (m *CallbackLogModel) GetByProject(ctx context.Context, sqlExec db.SQLExecuter, projectID int64, limit int) ([]CallbackLog, error) {
	var logs []CallbackLog
	query := callbackLogBaseQuery + ` WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`
	if err := sqlExec.SelectContext(ctx, &logs, query, projectID, limit); err != nil {
		return nil, fmt.Errorf("getting callback logs for project %d: %w", projectID, err)
	}
	return logs, nil
}
