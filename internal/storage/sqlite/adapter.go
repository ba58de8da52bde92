// Package sqlite implements the storage interfaces on SQLite. Nested
// documents (conditions, actions, payloads) are stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/models"
	"church-automation/internal/storage"
)

// Adapter is a SQLite-backed implementation of storage.Storage.
type Adapter struct {
	db     *sql.DB
	logger logging.Logger
}

// NewAdapter opens (or creates) the database file and runs migrations.
func NewAdapter(path string, logger logging.Logger) (*Adapter, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.ConnectionError("failed to open sqlite database", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.ConnectionError("failed to ping sqlite database", err)
	}

	a := &Adapter{db: db, logger: logger}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite storage ready", logging.String("path", path))
	return a, nil
}

// Close closes the underlying database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Health verifies the connection is alive.
func (a *Adapter) Health() error {
	if err := a.db.Ping(); err != nil {
		return errors.ConnectionError("sqlite health check failed", err)
	}
	return nil
}

func (a *Adapter) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS automation_rules (
			id TEXT PRIMARY KEY,
			church_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			trigger_types TEXT NOT NULL,
			conditions TEXT NOT NULL,
			actions TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			bypass_approval INTEGER NOT NULL DEFAULT 0,
			urgent_mode_24x7 INTEGER NOT NULL DEFAULT 0,
			retry_config TEXT,
			fallback_channels TEXT,
			business_hours TEXT,
			escalation TEXT,
			create_manual_task_on_fail INTEGER NOT NULL DEFAULT 0,
			max_executions INTEGER NOT NULL DEFAULT 0,
			execute_once INTEGER NOT NULL DEFAULT 0,
			execution_count INTEGER NOT NULL DEFAULT 0,
			last_executed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_church_active ON automation_rules(church_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			church_id TEXT NOT NULL,
			trigger_event TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			action_results TEXT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_church ON executions(church_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_rule ON executions(rule_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			church_id TEXT NOT NULL,
			status TEXT NOT NULL,
			assigned_to TEXT NOT NULL DEFAULT '',
			decided_by TEXT NOT NULL DEFAULT '',
			trigger_event TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			decided_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_church_status ON approvals(church_id, status)`,
		`CREATE TABLE IF NOT EXISTS manual_tasks (
			id TEXT PRIMARY KEY,
			church_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			action_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			action_config TEXT,
			payload TEXT,
			assigned_to TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'NORMAL',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS follow_ups (
			id TEXT PRIMARY KEY,
			church_id TEXT NOT NULL,
			follow_up_type TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			assigned_to TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'NORMAL',
			status TEXT NOT NULL DEFAULT 'pending',
			scheduled_at TIMESTAMP NOT NULL,
			notified INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_follow_ups_due ON follow_ups(scheduled_at) WHERE notified = 0 AND status = 'pending'`,
		`CREATE TABLE IF NOT EXISTS acknowledgments (
			id TEXT PRIMARY KEY,
			church_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			action_id TEXT NOT NULL,
			requested_at TIMESTAMP NOT NULL,
			acknowledged_at TIMESTAMP,
			acknowledged_by TEXT NOT NULL DEFAULT '',
			escalation_count INTEGER NOT NULL DEFAULT 0,
			next_escalation_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_acks_due ON acknowledgments(next_escalation_at) WHERE acknowledged_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS deferred_firings (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			church_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			trigger_event TEXT NOT NULL,
			resume_at TIMESTAMP NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deferred_due ON deferred_firings(resume_at) WHERE processed = 0`,
		`CREATE TABLE IF NOT EXISTS staff (
			id TEXT PRIMARY KEY,
			church_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staff_church_role ON staff(church_id, role)`,
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			church_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			birth_date TIMESTAMP,
			anniversary_date TIMESTAMP,
			joined_at TIMESTAMP NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_church ON members(church_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			church_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT '',
			meta TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_church ON notifications(church_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return errors.InternalError("migration failed", err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, errors.InternalError("failed to encode document", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON(s sql.NullString, v interface{}) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return errors.InternalError("failed to decode document", err)
	}
	return nil
}

// CreateRule inserts a new automation rule.
func (a *Adapter) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	triggers, err := marshalJSON(rule.TriggerTypes)
	if err != nil {
		return err
	}
	conditions, err := marshalJSON(rule.Conditions)
	if err != nil {
		return err
	}
	actions, err := marshalJSON(rule.Actions)
	if err != nil {
		return err
	}
	retry, err := marshalJSON(rule.RetryConfig)
	if err != nil {
		return err
	}
	fallbacks, err := marshalJSON(rule.FallbackChannels)
	if err != nil {
		return err
	}
	hours, err := marshalJSON(rule.BusinessHours)
	if err != nil {
		return err
	}
	escalation, err := marshalJSON(rule.Escalation)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO automation_rules (
			id, church_id, name, description, trigger_types, conditions, actions,
			priority, is_active, bypass_approval, urgent_mode_24x7,
			retry_config, fallback_channels, business_hours, escalation,
			create_manual_task_on_fail, max_executions, execute_once,
			execution_count, last_executed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.ChurchID, rule.Name, rule.Description, triggers, conditions, actions,
		rule.Priority, rule.IsActive, rule.BypassApproval, rule.UrgentMode24x7,
		retry, fallbacks, hours, escalation,
		rule.CreateManualTaskOnFail, rule.MaxExecutions, rule.ExecuteOnce,
		rule.ExecutionCount, rule.LastExecutedAt, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert rule", err)
	}
	return nil
}

const ruleColumns = `id, church_id, name, description, trigger_types, conditions, actions,
	priority, is_active, bypass_approval, urgent_mode_24x7,
	retry_config, fallback_channels, business_hours, escalation,
	create_manual_task_on_fail, max_executions, execute_once,
	execution_count, last_executed_at, created_at, updated_at`

func scanRule(row interface{ Scan(...interface{}) error }) (*models.AutomationRule, error) {
	var (
		rule                                 models.AutomationRule
		triggers, conditions, actions        sql.NullString
		retry, fallbacks, hours, escalation  sql.NullString
		lastExecuted                         sql.NullTime
	)
	err := row.Scan(
		&rule.ID, &rule.ChurchID, &rule.Name, &rule.Description, &triggers, &conditions, &actions,
		&rule.Priority, &rule.IsActive, &rule.BypassApproval, &rule.UrgentMode24x7,
		&retry, &fallbacks, &hours, &escalation,
		&rule.CreateManualTaskOnFail, &rule.MaxExecutions, &rule.ExecuteOnce,
		&rule.ExecutionCount, &lastExecuted, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(triggers, &rule.TriggerTypes); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(conditions, &rule.Conditions); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(actions, &rule.Actions); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(retry, &rule.RetryConfig); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(fallbacks, &rule.FallbackChannels); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(hours, &rule.BusinessHours); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(escalation, &rule.Escalation); err != nil {
		return nil, err
	}
	if lastExecuted.Valid {
		t := lastExecuted.Time
		rule.LastExecutedAt = &t
	}
	return &rule, nil
}

// GetRule fetches a rule by ID.
func (a *Adapter) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(fmt.Sprintf("rule %s", id))
	}
	if err != nil {
		return nil, errors.InternalError("failed to load rule", err)
	}
	return rule, nil
}

// UpdateRule replaces all mutable rule fields except the execution
// counter, which only ReserveExecution may advance.
func (a *Adapter) UpdateRule(ctx context.Context, rule *models.AutomationRule) error {
	triggers, err := marshalJSON(rule.TriggerTypes)
	if err != nil {
		return err
	}
	conditions, err := marshalJSON(rule.Conditions)
	if err != nil {
		return err
	}
	actions, err := marshalJSON(rule.Actions)
	if err != nil {
		return err
	}
	retry, err := marshalJSON(rule.RetryConfig)
	if err != nil {
		return err
	}
	fallbacks, err := marshalJSON(rule.FallbackChannels)
	if err != nil {
		return err
	}
	hours, err := marshalJSON(rule.BusinessHours)
	if err != nil {
		return err
	}
	escalation, err := marshalJSON(rule.Escalation)
	if err != nil {
		return err
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE automation_rules SET
			name = ?, description = ?, trigger_types = ?, conditions = ?, actions = ?,
			priority = ?, is_active = ?, bypass_approval = ?, urgent_mode_24x7 = ?,
			retry_config = ?, fallback_channels = ?, business_hours = ?, escalation = ?,
			create_manual_task_on_fail = ?, max_executions = ?, execute_once = ?,
			updated_at = ?
		WHERE id = ?`,
		rule.Name, rule.Description, triggers, conditions, actions,
		rule.Priority, rule.IsActive, rule.BypassApproval, rule.UrgentMode24x7,
		retry, fallbacks, hours, escalation,
		rule.CreateManualTaskOnFail, rule.MaxExecutions, rule.ExecuteOnce,
		rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return errors.InternalError("failed to update rule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundError(fmt.Sprintf("rule %s", rule.ID))
	}
	return nil
}

// DeleteRule removes a rule permanently.
func (a *Adapter) DeleteRule(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = ?`, id)
	if err != nil {
		return errors.InternalError("failed to delete rule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundError(fmt.Sprintf("rule %s", id))
	}
	return nil
}

// ListRules returns every rule for the church.
func (a *Adapter) ListRules(ctx context.Context, churchID string) ([]*models.AutomationRule, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules
		 WHERE church_id = ?
		 ORDER BY priority DESC, created_at ASC, id ASC`, churchID)
	if err != nil {
		return nil, errors.InternalError("failed to list rules", err)
	}
	defer rows.Close()

	var rules []*models.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan rule", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// FindActiveRules returns active rules responding to the trigger type,
// ordered by priority descending with creation time then ID as
// tie-breaks. Trigger membership is filtered in Go since the trigger set
// is stored as a JSON document.
func (a *Adapter) FindActiveRules(ctx context.Context, churchID string, triggerType models.TriggerType) ([]*models.AutomationRule, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules
		 WHERE church_id = ? AND is_active = 1
		 ORDER BY priority DESC, created_at ASC, id ASC`, churchID)
	if err != nil {
		return nil, errors.InternalError("failed to query active rules", err)
	}
	defer rows.Close()

	var rules []*models.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan rule", err)
		}
		if rule.RespondsTo(triggerType) {
			rules = append(rules, rule)
		}
	}
	return rules, rows.Err()
}

// ReserveExecution atomically claims one execution slot. The guard in
// the WHERE clause makes concurrent firings of a capped rule race for
// the remaining budget instead of both winning.
func (a *Adapter) ReserveExecution(ctx context.Context, ruleID string, now time.Time) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET execution_count = execution_count + 1, last_executed_at = ?, updated_at = ?
		WHERE id = ?
		  AND (execute_once = 0 OR execution_count = 0)
		  AND (max_executions <= 0 OR execution_count < max_executions)`,
		now, now, ruleID,
	)
	if err != nil {
		return false, errors.InternalError("failed to reserve execution", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to reserve execution", err)
	}
	return n > 0, nil
}

// CreateExecution inserts a new ledger entry.
func (a *Adapter) CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	event, err := marshalJSON(rec.TriggerEvent)
	if err != nil {
		return err
	}
	results, err := marshalJSON(rec.ActionResults)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO executions (id, rule_id, church_id, trigger_event, status, reason, action_results, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RuleID, rec.ChurchID, event, rec.Status, rec.Reason, results, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert execution", err)
	}
	return nil
}

// CompleteExecution finalizes a ledger entry. Entries that already carry
// a completion time are not rewritten.
func (a *Adapter) CompleteExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	results, err := marshalJSON(rec.ActionResults)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		UPDATE executions
		SET status = ?, reason = ?, action_results = ?, completed_at = ?
		WHERE id = ? AND completed_at IS NULL`,
		rec.Status, rec.Reason, results, rec.CompletedAt, rec.ID,
	)
	if err != nil {
		return errors.InternalError("failed to complete execution", err)
	}
	return nil
}

// UpdateExecutionResults stores interim action results while the record
// stays RUNNING.
func (a *Adapter) UpdateExecutionResults(ctx context.Context, id string, results []models.ActionResult) error {
	encoded, err := marshalJSON(results)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		UPDATE executions SET action_results = ?
		WHERE id = ? AND completed_at IS NULL`, encoded, id)
	if err != nil {
		return errors.InternalError("failed to update execution results", err)
	}
	return nil
}

func scanExecution(row interface{ Scan(...interface{}) error }) (*models.ExecutionRecord, error) {
	var (
		rec            models.ExecutionRecord
		event, results sql.NullString
		completed      sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.RuleID, &rec.ChurchID, &event, &rec.Status, &rec.Reason, &results, &rec.StartedAt, &completed)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(event, &rec.TriggerEvent); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(results, &rec.ActionResults); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// GetExecution fetches one ledger entry.
func (a *Adapter) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, rule_id, church_id, trigger_event, status, reason, action_results, started_at, completed_at
		FROM executions WHERE id = ?`, id)
	rec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(fmt.Sprintf("execution %s", id))
	}
	if err != nil {
		return nil, errors.InternalError("failed to load execution", err)
	}
	return rec, nil
}

// ListExecutions returns the church's ledger, newest first.
func (a *Adapter) ListExecutions(ctx context.Context, churchID string, limit, offset int) ([]*models.ExecutionRecord, error) {
	return a.listExecutions(ctx, `church_id`, churchID, limit, offset)
}

// ListExecutionsByRule returns one rule's ledger, newest first.
func (a *Adapter) ListExecutionsByRule(ctx context.Context, ruleID string, limit, offset int) ([]*models.ExecutionRecord, error) {
	return a.listExecutions(ctx, `rule_id`, ruleID, limit, offset)
}

func (a *Adapter) listExecutions(ctx context.Context, column, value string, limit, offset int) ([]*models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, rule_id, church_id, trigger_event, status, reason, action_results, started_at, completed_at
		FROM executions WHERE `+column+` = ?
		ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, value, limit, offset)
	if err != nil {
		return nil, errors.InternalError("failed to list executions", err)
	}
	defer rows.Close()

	var recs []*models.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan execution", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CreateApproval inserts a pending approval.
func (a *Adapter) CreateApproval(ctx context.Context, rec *models.ApprovalRecord) error {
	event, err := marshalJSON(rec.TriggerEvent)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO approvals (id, rule_id, execution_id, church_id, status, assigned_to, decided_by, trigger_event, created_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RuleID, rec.ExecutionID, rec.ChurchID, rec.Status, rec.AssignedTo, rec.DecidedBy, event, rec.CreatedAt, rec.DecidedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert approval", err)
	}
	return nil
}

func scanApproval(row interface{ Scan(...interface{}) error }) (*models.ApprovalRecord, error) {
	var (
		rec     models.ApprovalRecord
		event   sql.NullString
		decided sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.RuleID, &rec.ExecutionID, &rec.ChurchID, &rec.Status, &rec.AssignedTo, &rec.DecidedBy, &event, &rec.CreatedAt, &decided)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(event, &rec.TriggerEvent); err != nil {
		return nil, err
	}
	if decided.Valid {
		t := decided.Time
		rec.DecidedAt = &t
	}
	return &rec, nil
}

// GetApproval fetches one approval record.
func (a *Adapter) GetApproval(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, rule_id, execution_id, church_id, status, assigned_to, decided_by, trigger_event, created_at, decided_at
		FROM approvals WHERE id = ?`, id)
	rec, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(fmt.Sprintf("approval %s", id))
	}
	if err != nil {
		return nil, errors.InternalError("failed to load approval", err)
	}
	return rec, nil
}

// ListPendingApprovals returns pending approvals for the church.
func (a *Adapter) ListPendingApprovals(ctx context.Context, churchID string) ([]*models.ApprovalRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, rule_id, execution_id, church_id, status, assigned_to, decided_by, trigger_event, created_at, decided_at
		FROM approvals WHERE church_id = ? AND status = ?
		ORDER BY created_at ASC`, churchID, models.ApprovalPendingStatus)
	if err != nil {
		return nil, errors.InternalError("failed to list approvals", err)
	}
	defer rows.Close()

	var recs []*models.ApprovalRecord
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan approval", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// TransitionApproval moves a pending approval to a terminal status.
// Losing a decision race returns false, not an error.
func (a *Adapter) TransitionApproval(ctx context.Context, id string, status models.ApprovalStatus, decidedBy string, at time.Time) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE approvals SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		status, decidedBy, at, id, models.ApprovalPendingStatus,
	)
	if err != nil {
		return false, errors.InternalError("failed to transition approval", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to transition approval", err)
	}
	return n > 0, nil
}

// CreateManualTask inserts a human fallback task.
func (a *Adapter) CreateManualTask(ctx context.Context, task *models.ManualTask) error {
	config, err := marshalJSON(task.ActionConfig)
	if err != nil {
		return err
	}
	payload, err := marshalJSON(task.Payload)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO manual_tasks (id, church_id, rule_id, action_id, reason, action_config, payload, assigned_to, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ChurchID, task.RuleID, task.ActionID, task.Reason, config, payload, task.AssignedTo, task.Priority, task.Status, task.CreatedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert manual task", err)
	}
	return nil
}

// ListManualTasks returns the church's manual tasks, newest first.
func (a *Adapter) ListManualTasks(ctx context.Context, churchID string, limit, offset int) ([]*models.ManualTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, church_id, rule_id, action_id, reason, action_config, payload, assigned_to, priority, status, created_at
		FROM manual_tasks WHERE church_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, churchID, limit, offset)
	if err != nil {
		return nil, errors.InternalError("failed to list manual tasks", err)
	}
	defer rows.Close()

	var tasks []*models.ManualTask
	for rows.Next() {
		var (
			task            models.ManualTask
			config, payload sql.NullString
		)
		if err := rows.Scan(&task.ID, &task.ChurchID, &task.RuleID, &task.ActionID, &task.Reason, &config, &payload, &task.AssignedTo, &task.Priority, &task.Status, &task.CreatedAt); err != nil {
			return nil, errors.InternalError("failed to scan manual task", err)
		}
		if err := unmarshalJSON(config, &task.ActionConfig); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(payload, &task.Payload); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// CreateFollowUp inserts a scheduled follow-up task.
func (a *Adapter) CreateFollowUp(ctx context.Context, task *models.FollowUpTask) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO follow_ups (id, church_id, follow_up_type, notes, assigned_to, priority, status, scheduled_at, notified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ChurchID, task.FollowUpType, task.Notes, task.AssignedTo, task.Priority, task.Status, task.ScheduledAt, task.Notified, task.CreatedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert follow-up", err)
	}
	return nil
}

// ListFollowUps returns the church's follow-ups ordered by schedule.
func (a *Adapter) ListFollowUps(ctx context.Context, churchID string, limit, offset int) ([]*models.FollowUpTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, church_id, follow_up_type, notes, assigned_to, priority, status, scheduled_at, notified, created_at
		FROM follow_ups WHERE church_id = ?
		ORDER BY scheduled_at ASC, id ASC LIMIT ? OFFSET ?`, churchID, limit, offset)
	if err != nil {
		return nil, errors.InternalError("failed to list follow-ups", err)
	}
	defer rows.Close()
	return collectFollowUps(rows)
}

// ListDueFollowUps returns pending follow-ups whose schedule has elapsed and
// that have not yet produced a due notification.
func (a *Adapter) ListDueFollowUps(ctx context.Context, now time.Time) ([]*models.FollowUpTask, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, church_id, follow_up_type, notes, assigned_to, priority, status, scheduled_at, notified, created_at
		FROM follow_ups
		WHERE status = 'pending' AND notified = 0 AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC`, now)
	if err != nil {
		return nil, errors.InternalError("failed to list due follow-ups", err)
	}
	defer rows.Close()
	return collectFollowUps(rows)
}

// MarkFollowUpNotified flips the notified flag. Returns false when another
// sweep already claimed the task.
func (a *Adapter) MarkFollowUpNotified(ctx context.Context, id string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `UPDATE follow_ups SET notified = 1 WHERE id = ? AND notified = 0`, id)
	if err != nil {
		return false, errors.InternalError("failed to mark follow-up notified", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to read affected rows", err)
	}
	return n > 0, nil
}

func collectFollowUps(rows *sql.Rows) ([]*models.FollowUpTask, error) {
	var tasks []*models.FollowUpTask
	for rows.Next() {
		var task models.FollowUpTask
		if err := rows.Scan(&task.ID, &task.ChurchID, &task.FollowUpType, &task.Notes, &task.AssignedTo, &task.Priority, &task.Status, &task.ScheduledAt, &task.Notified, &task.CreatedAt); err != nil {
			return nil, errors.InternalError("failed to scan follow-up", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

// CreateAcknowledgment inserts a pending acknowledgment.
func (a *Adapter) CreateAcknowledgment(ctx context.Context, ack *models.Acknowledgment) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO acknowledgments (id, church_id, rule_id, execution_id, action_id, requested_at, acknowledged_at, acknowledged_by, escalation_count, next_escalation_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ack.ID, ack.ChurchID, ack.RuleID, ack.ExecutionID, ack.ActionID, ack.RequestedAt, ack.AcknowledgedAt, ack.AcknowledgedBy, ack.EscalationCount, ack.NextEscalationAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert acknowledgment", err)
	}
	return nil
}

func scanAcknowledgment(row interface{ Scan(...interface{}) error }) (*models.Acknowledgment, error) {
	var (
		ack        models.Acknowledgment
		ackedAt    sql.NullTime
		nextEscAt  sql.NullTime
	)
	err := row.Scan(&ack.ID, &ack.ChurchID, &ack.RuleID, &ack.ExecutionID, &ack.ActionID, &ack.RequestedAt, &ackedAt, &ack.AcknowledgedBy, &ack.EscalationCount, &nextEscAt)
	if err != nil {
		return nil, err
	}
	if ackedAt.Valid {
		t := ackedAt.Time
		ack.AcknowledgedAt = &t
	}
	if nextEscAt.Valid {
		t := nextEscAt.Time
		ack.NextEscalationAt = &t
	}
	return &ack, nil
}

// GetAcknowledgment fetches one acknowledgment.
func (a *Adapter) GetAcknowledgment(ctx context.Context, id string) (*models.Acknowledgment, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, church_id, rule_id, execution_id, action_id, requested_at, acknowledged_at, acknowledged_by, escalation_count, next_escalation_at
		FROM acknowledgments WHERE id = ?`, id)
	ack, err := scanAcknowledgment(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError(fmt.Sprintf("acknowledgment %s", id))
	}
	if err != nil {
		return nil, errors.InternalError("failed to load acknowledgment", err)
	}
	return ack, nil
}

// Acknowledge marks an entry acknowledged exactly once.
func (a *Adapter) Acknowledge(ctx context.Context, id, byStaffID string, at time.Time) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE acknowledgments SET acknowledged_at = ?, acknowledged_by = ?, next_escalation_at = NULL
		WHERE id = ? AND acknowledged_at IS NULL`,
		at, byStaffID, id,
	)
	if err != nil {
		return false, errors.InternalError("failed to acknowledge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to acknowledge", err)
	}
	return n > 0, nil
}

// ListDueEscalations returns unacknowledged entries whose escalation
// time has passed.
func (a *Adapter) ListDueEscalations(ctx context.Context, now time.Time) ([]*models.Acknowledgment, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, church_id, rule_id, execution_id, action_id, requested_at, acknowledged_at, acknowledged_by, escalation_count, next_escalation_at
		FROM acknowledgments
		WHERE acknowledged_at IS NULL AND next_escalation_at IS NOT NULL AND next_escalation_at <= ?
		ORDER BY next_escalation_at ASC`, now)
	if err != nil {
		return nil, errors.InternalError("failed to list due escalations", err)
	}
	defer rows.Close()

	var acks []*models.Acknowledgment
	for rows.Next() {
		ack, err := scanAcknowledgment(rows)
		if err != nil {
			return nil, errors.InternalError("failed to scan acknowledgment", err)
		}
		acks = append(acks, ack)
	}
	return acks, rows.Err()
}

// RecordEscalation stores the escalation progress for an entry.
func (a *Adapter) RecordEscalation(ctx context.Context, id string, count int, next *time.Time) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE acknowledgments SET escalation_count = ?, next_escalation_at = ? WHERE id = ?`,
		count, next, id,
	)
	if err != nil {
		return errors.InternalError("failed to record escalation", err)
	}
	return nil
}

// CreateDeferredFiring parks a firing for the next business window.
func (a *Adapter) CreateDeferredFiring(ctx context.Context, f *models.DeferredFiring) error {
	event, err := marshalJSON(f.TriggerEvent)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO deferred_firings (id, rule_id, church_id, execution_id, trigger_event, resume_at, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RuleID, f.ChurchID, f.ExecutionID, event, f.ResumeAt, f.Processed, f.CreatedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert deferred firing", err)
	}
	return nil
}

// ListDueDeferredFirings returns unprocessed firings whose resume time
// has passed.
func (a *Adapter) ListDueDeferredFirings(ctx context.Context, now time.Time) ([]*models.DeferredFiring, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, rule_id, church_id, execution_id, trigger_event, resume_at, processed, created_at
		FROM deferred_firings WHERE processed = 0 AND resume_at <= ?
		ORDER BY resume_at ASC`, now)
	if err != nil {
		return nil, errors.InternalError("failed to list deferred firings", err)
	}
	defer rows.Close()

	var firings []*models.DeferredFiring
	for rows.Next() {
		var (
			f     models.DeferredFiring
			event sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.RuleID, &f.ChurchID, &f.ExecutionID, &event, &f.ResumeAt, &f.Processed, &f.CreatedAt); err != nil {
			return nil, errors.InternalError("failed to scan deferred firing", err)
		}
		if err := unmarshalJSON(event, &f.TriggerEvent); err != nil {
			return nil, err
		}
		firings = append(firings, &f)
	}
	return firings, rows.Err()
}

// MarkDeferredProcessed claims a firing so it resumes exactly once even
// when two scheduler ticks overlap.
func (a *Adapter) MarkDeferredProcessed(ctx context.Context, id string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE deferred_firings SET processed = 1 WHERE id = ? AND processed = 0`, id)
	if err != nil {
		return false, errors.InternalError("failed to mark deferred firing", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to mark deferred firing", err)
	}
	return n > 0, nil
}

// CreateStaff inserts a staff member.
func (a *Adapter) CreateStaff(ctx context.Context, s *models.Staff) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO staff (id, church_id, name, email, phone, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ChurchID, s.Name, s.Email, s.Phone, s.Role, s.IsActive, s.CreatedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert staff", err)
	}
	return nil
}

// FindStaff returns active staff holding any of the given roles. An
// empty role set matches everyone.
func (a *Adapter) FindStaff(ctx context.Context, churchID string, roles []string) ([]*models.Staff, error) {
	query := `SELECT id, church_id, name, email, phone, role, is_active, created_at
		FROM staff WHERE church_id = ? AND is_active = 1`
	args := []interface{}{churchID}
	if len(roles) > 0 {
		query += ` AND role IN (?` + repeatPlaceholder(len(roles)-1) + `)`
		for _, r := range roles {
			args = append(args, r)
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.InternalError("failed to find staff", err)
	}
	defer rows.Close()

	var staff []*models.Staff
	for rows.Next() {
		var s models.Staff
		if err := rows.Scan(&s.ID, &s.ChurchID, &s.Name, &s.Email, &s.Phone, &s.Role, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, errors.InternalError("failed to scan staff", err)
		}
		staff = append(staff, &s)
	}
	return staff, rows.Err()
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

// CreateMember inserts a member record.
func (a *Adapter) CreateMember(ctx context.Context, m *models.Member) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO members (id, church_id, name, email, phone, birth_date, anniversary_date, joined_at, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChurchID, m.Name, m.Email, m.Phone, m.BirthDate, m.AnniversaryDate, m.JoinedAt, m.IsActive, m.CreatedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert member", err)
	}
	return nil
}

// ListMembers returns the church's members, oldest first.
func (a *Adapter) ListMembers(ctx context.Context, churchID string, limit, offset int) ([]*models.Member, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, church_id, name, email, phone, birth_date, anniversary_date, joined_at, is_active, created_at
		FROM members WHERE church_id = ?
		ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`, churchID, limit, offset)
	if err != nil {
		return nil, errors.InternalError("failed to list members", err)
	}
	return collectMembers(rows)
}

// ListMembersWithBirthday returns active members whose birth date falls
// on the given month and day, across all churches.
func (a *Adapter) ListMembersWithBirthday(ctx context.Context, month time.Month, day int) ([]*models.Member, error) {
	return a.listMembersByDate(ctx, "birth_date", month, day)
}

// ListMembersWithAnniversary is the anniversary-date counterpart.
func (a *Adapter) ListMembersWithAnniversary(ctx context.Context, month time.Month, day int) ([]*models.Member, error) {
	return a.listMembersByDate(ctx, "anniversary_date", month, day)
}

func (a *Adapter) listMembersByDate(ctx context.Context, column string, month time.Month, day int) ([]*models.Member, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, church_id, name, email, phone, birth_date, anniversary_date, joined_at, is_active, created_at
		FROM members
		WHERE is_active = 1 AND `+column+` IS NOT NULL AND strftime('%m-%d', `+column+`) = ?
		ORDER BY church_id ASC, id ASC`,
		fmt.Sprintf("%02d-%02d", int(month), day))
	if err != nil {
		return nil, errors.InternalError("failed to query members by date", err)
	}
	return collectMembers(rows)
}

func collectMembers(rows *sql.Rows) ([]*models.Member, error) {
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		var (
			m           models.Member
			birth, wedd sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ChurchID, &m.Name, &m.Email, &m.Phone, &birth, &wedd, &m.JoinedAt, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, errors.InternalError("failed to scan member", err)
		}
		if birth.Valid {
			t := birth.Time
			m.BirthDate = &t
		}
		if wedd.Valid {
			t := wedd.Time
			m.AnniversaryDate = &t
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

// CreateNotification inserts an in-app notification.
func (a *Adapter) CreateNotification(ctx context.Context, n *storage.Notification) error {
	meta, err := marshalJSON(n.Meta)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO notifications (id, church_id, user_id, role, title, body, priority, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ChurchID, n.UserID, n.Role, n.Title, n.Body, n.Priority, meta, n.CreatedAt,
	)
	if err != nil {
		return errors.InternalError("failed to insert notification", err)
	}
	return nil
}

// ListNotifications returns the church's notifications, newest first.
func (a *Adapter) ListNotifications(ctx context.Context, churchID string, limit, offset int) ([]*storage.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, church_id, user_id, role, title, body, priority, meta, created_at
		FROM notifications WHERE church_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, churchID, limit, offset)
	if err != nil {
		return nil, errors.InternalError("failed to list notifications", err)
	}
	defer rows.Close()

	var notes []*storage.Notification
	for rows.Next() {
		var (
			n    storage.Notification
			meta sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.ChurchID, &n.UserID, &n.Role, &n.Title, &n.Body, &n.Priority, &meta, &n.CreatedAt); err != nil {
			return nil, errors.InternalError("failed to scan notification", err)
		}
		if err := unmarshalJSON(meta, &n.Meta); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}
