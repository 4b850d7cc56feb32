package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// Store persists swarm run data in a DB. It satisfies the orchestrator's
// Store interface, so wiring it in is one option at construction time.
type Store struct {
	db *DB
}

// NewStore creates a Store over an opened, migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// SaveTask upserts the task row. Called on every status change, so the row
// always mirrors the in-memory task.
func (s *Store) SaveTask(task *models.Task) error {
	detectedType := ""
	confidence := 0.0
	if task.Classification != nil {
		detectedType = task.Classification.DetectedType
		confidence = task.Classification.Confidence
	}

	var startedAt, completedAt any
	if task.StartedAt != nil {
		startedAt = formatTime(*task.StartedAt)
	}
	if task.CompletedAt != nil {
		completedAt = formatTime(*task.CompletedAt)
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (
			id, title, description, declared_type, detected_type, confidence,
			priority, depends_on, status, assigned_agent, retry_count,
			max_retries, result, error, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			declared_type = excluded.declared_type,
			detected_type = excluded.detected_type,
			confidence = excluded.confidence,
			priority = excluded.priority,
			depends_on = excluded.depends_on,
			status = excluded.status,
			assigned_agent = excluded.assigned_agent,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`,
		task.ID, task.Title, task.Description, task.DeclaredType, detectedType,
		confidence, task.Priority, strings.Join(task.DependsOn, ","),
		string(task.Status), task.AssignedAgent, task.RetryCount,
		task.MaxRetries, task.Result, task.Error, formatTime(task.CreatedAt),
		startedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// SaveDecision appends a routing decision row. The log is append-only.
func (s *Store) SaveDecision(decision *models.RoutingDecision) error {
	_, err := s.db.Exec(`
		INSERT INTO routing_decisions (
			task_id, task_title, classification_type,
			classification_confidence, selected_agent, tier, tier_confidence,
			reason, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		decision.TaskID, decision.TaskTitle, decision.ClassificationType,
		decision.ClassificationConfidence, decision.SelectedAgent,
		string(decision.Tier), decision.TierConfidence, decision.Reason,
		formatTime(decision.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("save decision for task %s: %w", decision.TaskID, err)
	}
	return nil
}

// SaveFailure appends a failure event row.
func (s *Store) SaveFailure(event *models.FailureEvent) error {
	recovered := 0
	if event.Recovered {
		recovered = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO failure_events (
			agent_name, task_id, kind, message, strategy, recovered,
			retry_delay_ms, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.AgentName, event.TaskID, string(event.Kind), event.Message,
		string(event.Strategy), recovered, event.RetryDelay.Milliseconds(),
		formatTime(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("save failure event for task %s: %w", event.TaskID, err)
	}
	return nil
}

// GetTask loads one task row, or nil if absent.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, declared_type, detected_type,
		       confidence, priority, depends_on, status, assigned_agent,
		       retry_count, max_retries, result, error, created_at,
		       started_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return task, err
}

// ListTasks loads every task row ordered by creation time.
func (s *Store) ListTasks() ([]*models.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, declared_type, detected_type,
		       confidence, priority, depends_on, status, assigned_agent,
		       retry_count, max_retries, result, error, created_at,
		       started_at, completed_at
		FROM tasks ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DecisionsForTask loads the routing decisions recorded for one task in
// decision order.
func (s *Store) DecisionsForTask(taskID string) ([]*models.RoutingDecision, error) {
	rows, err := s.db.Query(`
		SELECT task_id, task_title, classification_type,
		       classification_confidence, selected_agent, tier,
		       tier_confidence, reason, decided_at
		FROM routing_decisions WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load decisions for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var decisions []*models.RoutingDecision
	for rows.Next() {
		d := &models.RoutingDecision{}
		var tier, decidedAt string
		if err := rows.Scan(
			&d.TaskID, &d.TaskTitle, &d.ClassificationType,
			&d.ClassificationConfidence, &d.SelectedAgent, &tier,
			&d.TierConfidence, &d.Reason, &decidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Tier = models.RoutingTier(tier)
		if t, err := parseTime(decidedAt); err == nil {
			d.Timestamp = t
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// FailuresForAgent loads the failure events recorded for one agent in
// occurrence order.
func (s *Store) FailuresForAgent(agentName string) ([]*models.FailureEvent, error) {
	rows, err := s.db.Query(`
		SELECT agent_name, task_id, kind, message, strategy, recovered,
		       retry_delay_ms, occurred_at
		FROM failure_events WHERE agent_name = ? ORDER BY id
	`, agentName)
	if err != nil {
		return nil, fmt.Errorf("load failures for agent %s: %w", agentName, err)
	}
	defer rows.Close()

	var events []*models.FailureEvent
	for rows.Next() {
		e := &models.FailureEvent{}
		var kind, strategy, occurredAt string
		var recovered, delayMS int64
		if err := rows.Scan(
			&e.AgentName, &e.TaskID, &kind, &e.Message, &strategy,
			&recovered, &delayMS, &occurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan failure event: %w", err)
		}
		e.Kind = models.FailureKind(kind)
		e.Strategy = models.RecoveryStrategy(strategy)
		e.Recovered = recovered != 0
		e.RetryDelay = time.Duration(delayMS) * time.Millisecond
		if t, err := parseTime(occurredAt); err == nil {
			e.Timestamp = t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row.
func scanTask(row scanner) (*models.Task, error) {
	task := &models.Task{}
	var description, declaredType, detectedType, dependsOn sql.NullString
	var assignedAgent, result, taskErr sql.NullString
	var confidence float64
	var status, createdAt string
	var startedAt, completedAt sql.NullString

	if err := row.Scan(
		&task.ID, &task.Title, &description, &declaredType, &detectedType,
		&confidence, &task.Priority, &dependsOn, &status, &assignedAgent,
		&task.RetryCount, &task.MaxRetries, &result, &taskErr, &createdAt,
		&startedAt, &completedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Description = description.String
	task.DeclaredType = declaredType.String
	task.Status = models.TaskStatus(status)
	task.AssignedAgent = assignedAgent.String
	task.Result = result.String
	task.Error = taskErr.String
	if dependsOn.String != "" {
		task.DependsOn = strings.Split(dependsOn.String, ",")
	}
	if detectedType.String != "" {
		task.Classification = &models.Classification{
			TaskID:       task.ID,
			DetectedType: detectedType.String,
			Confidence:   confidence,
		}
	}
	if t, err := parseTime(createdAt); err == nil {
		task.CreatedAt = t
	}
	task.StartedAt = parseNullableTime(startedAt)
	task.CompletedAt = parseNullableTime(completedAt)
	return task, nil
}
