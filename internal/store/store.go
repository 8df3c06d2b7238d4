// Package store is the audit log. Every observation, decision, and
// execution the daemon produces is recorded in SQLite; those rows are
// never updated or deleted, so the history of why something happened
// survives. Goals and tasks are the one exception: they carry an
// open/closed status so the CLI can track work.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vigil/internal/decision"
	"vigil/internal/logging"
	"vigil/internal/tactile"

	_ "github.com/mattn/go-sqlite3"
)

// LocalStore persists the audit trail in a local SQLite database.
type LocalStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open creates or opens the database at path, ensuring the schema.
func Open(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting synchronous: %w", err)
	}

	s := &LocalStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("opened %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *LocalStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS observations (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		source TEXT NOT NULL,
		category TEXT NOT NULL,
		summary TEXT NOT NULL,
		paths TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_observations_created ON observations(created_at);
	CREATE INDEX IF NOT EXISTS idx_observations_source ON observations(source);

	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		action TEXT NOT NULL,
		observation_id TEXT,
		outcome TEXT NOT NULL,
		should_execute INTEGER NOT NULL,
		confidence REAL NOT NULL,
		reasoning TEXT,
		prompt TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(action);
	CREATE INDEX IF NOT EXISTS idx_decisions_observation ON decisions(observation_id);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		decision_id TEXT,
		command TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		success INTEGER NOT NULL,
		killed INTEGER NOT NULL,
		kill_reason TEXT,
		duration_ms INTEGER NOT NULL,
		stdout TEXT,
		stderr TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_executions_decision ON executions(decision_id);
	CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at);

	CREATE TABLE IF NOT EXISTS goals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		closed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		goal_id INTEGER,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		closed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_goal ON tasks(goal_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS self_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_self_observations_created ON self_observations(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// migrate applies additive column migrations to existing databases.
func (s *LocalStore) migrate() error {
	// prompt was added to decisions after the first release.
	return s.ensureColumn("decisions", "prompt", "TEXT")
}

func (s *LocalStore) ensureColumn(table, column, colType string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logging.Store("migrating: adding %s.%s", table, column)
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, colType))
	return err
}

// AppendObservation records one observation.
func (s *LocalStore) AppendObservation(obs decision.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := json.Marshal(obs.Paths)
	if err != nil {
		return fmt.Errorf("encoding paths: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO observations (id, created_at, source, category, summary, paths)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.Time.Unix(), obs.Source, string(obs.Category), obs.Summary, string(paths),
	)
	if err != nil {
		return fmt.Errorf("inserting observation: %w", err)
	}
	return nil
}

// AppendDecision records one decision.
func (s *LocalStore) AppendDecision(d decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO decisions (id, created_at, action, observation_id, outcome, should_execute, confidence, reasoning, prompt, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Time.Unix(), d.Action, d.ObservationID, string(d.Outcome),
		boolToInt(d.ShouldExecute), d.Confidence, d.Reasoning, d.Prompt, d.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}
	return nil
}

// AppendExecution records one execution result.
func (s *LocalStore) AppendExecution(decisionID string, result *tactile.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	command := ""
	if result.Command != nil {
		command = result.Command.CommandString()
	}
	_, err := s.db.Exec(
		`INSERT INTO executions (created_at, decision_id, command, exit_code, success, killed, kill_reason, duration_ms, stdout, stderr, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.StartedAt.Unix(), decisionID, command, result.ExitCode,
		boolToInt(result.Success), boolToInt(result.Killed), result.KillReason,
		result.Duration.Milliseconds(), result.Stdout, result.Stderr, result.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// AppendSelfObservation records a heartbeat or other introspective note.
func (s *LocalStore) AppendSelfObservation(kind, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO self_observations (created_at, kind, detail) VALUES (?, ?, ?)`,
		time.Now().Unix(), kind, detail,
	)
	if err != nil {
		return fmt.Errorf("inserting self observation: %w", err)
	}
	return nil
}

// AddGoal opens a new goal and returns its id.
func (s *LocalStore) AddGoal(description string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO goals (created_at, description) VALUES (?, ?)`,
		time.Now().Unix(), description,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting goal: %w", err)
	}
	return res.LastInsertId()
}

// AddTask opens a new task, optionally under a goal (goalID 0 = none).
func (s *LocalStore) AddTask(goalID int64, description string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var gid any
	if goalID > 0 {
		gid = goalID
	}
	res, err := s.db.Exec(
		`INSERT INTO tasks (created_at, goal_id, description) VALUES (?, ?, ?)`,
		time.Now().Unix(), gid, description,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting task: %w", err)
	}
	return res.LastInsertId()
}

// GoalRecord is one row from the goals table.
type GoalRecord struct {
	ID          int64
	Time        time.Time
	Description string
	Status      string
}

// TaskRecord is one row from the tasks table.
type TaskRecord struct {
	ID          int64
	Time        time.Time
	GoalID      int64 // 0 when the task has no goal
	Description string
	Status      string
}

// OpenGoals returns all goals still open, oldest first.
func (s *LocalStore) OpenGoals() ([]GoalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, created_at, description, status FROM goals WHERE status = 'open' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying goals: %w", err)
	}
	defer rows.Close()

	var records []GoalRecord
	for rows.Next() {
		var r GoalRecord
		var createdAt int64
		if err := rows.Scan(&r.ID, &createdAt, &r.Description, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning goal: %w", err)
		}
		r.Time = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	return records, rows.Err()
}

// OpenTasks returns all tasks still open, oldest first.
func (s *LocalStore) OpenTasks() ([]TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, created_at, goal_id, description, status FROM tasks WHERE status = 'open' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var r TaskRecord
		var createdAt int64
		var goalID sql.NullInt64
		if err := rows.Scan(&r.ID, &createdAt, &goalID, &r.Description, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		r.Time = time.Unix(createdAt, 0)
		r.GoalID = goalID.Int64
		records = append(records, r)
	}
	return records, rows.Err()
}

// CloseGoal marks a goal done. Closing an unknown or already-closed goal
// is an error.
func (s *LocalStore) CloseGoal(id int64) error {
	return s.closeRow("goals", id)
}

// CloseTask marks a task done.
func (s *LocalStore) CloseTask(id int64) error {
	return s.closeRow("tasks", id)
}

func (s *LocalStore) closeRow(table string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		fmt.Sprintf(`UPDATE %s SET status = 'done', closed_at = ? WHERE id = ? AND status = 'open'`, table),
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("closing %s row: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no open row %d in %s", id, table)
	}
	return nil
}

// DecisionRecord is a decision row joined with whether it executed.
type DecisionRecord struct {
	decision.Decision
	Executed bool
}

// RecentDecisions returns up to limit decisions, newest first.
func (s *LocalStore) RecentDecisions(limit int) ([]DecisionRecord, error) {
	return s.queryDecisions(
		`SELECT d.id, d.created_at, d.action, d.observation_id, d.outcome,
		        d.should_execute, d.confidence, d.reasoning, d.prompt, d.error,
		        EXISTS(SELECT 1 FROM executions e WHERE e.decision_id = d.id)
		 FROM decisions d ORDER BY d.created_at DESC, d.rowid DESC LIMIT ?`, limit)
}

// DecisionsByAction returns up to limit decisions for one action, newest first.
func (s *LocalStore) DecisionsByAction(action string, limit int) ([]DecisionRecord, error) {
	return s.queryDecisions(
		`SELECT d.id, d.created_at, d.action, d.observation_id, d.outcome,
		        d.should_execute, d.confidence, d.reasoning, d.prompt, d.error,
		        EXISTS(SELECT 1 FROM executions e WHERE e.decision_id = d.id)
		 FROM decisions d WHERE d.action = ? ORDER BY d.created_at DESC, d.rowid DESC LIMIT ?`,
		action, limit)
}

// GetDecision returns one decision by id, or sql.ErrNoRows.
func (s *LocalStore) GetDecision(id string) (*DecisionRecord, error) {
	records, err := s.queryDecisions(
		`SELECT d.id, d.created_at, d.action, d.observation_id, d.outcome,
		        d.should_execute, d.confidence, d.reasoning, d.prompt, d.error,
		        EXISTS(SELECT 1 FROM executions e WHERE e.decision_id = d.id)
		 FROM decisions d WHERE d.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return &records[0], nil
}

func (s *LocalStore) queryDecisions(query string, args ...any) ([]DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var createdAt int64
		var shouldExecute, executed int
		var outcome string
		var reasoning, prompt, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &createdAt, &r.Action, &r.ObservationID, &outcome,
			&shouldExecute, &r.Confidence, &reasoning, &prompt, &errMsg, &executed); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		r.Time = time.Unix(createdAt, 0)
		r.Outcome = decision.Outcome(outcome)
		r.ShouldExecute = shouldExecute != 0
		r.Reasoning = reasoning.String
		r.Prompt = prompt.String
		r.Error = errMsg.String
		r.Executed = executed != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

// ExecutionRecord is one row from the executions table.
type ExecutionRecord struct {
	ID         int64
	Time       time.Time
	DecisionID string
	Command    string
	ExitCode   int
	Success    bool
	Killed     bool
	KillReason string
	Duration   time.Duration
	Stdout     string
	Stderr     string
	Error      string
}

// ExecutionsForDecision returns all executions triggered by a decision.
func (s *LocalStore) ExecutionsForDecision(decisionID string) ([]ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, created_at, decision_id, command, exit_code, success, killed,
		        kill_reason, duration_ms, stdout, stderr, error
		 FROM executions WHERE decision_id = ? ORDER BY id`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var r ExecutionRecord
		var createdAt, durationMs int64
		var success, killed int
		var killReason, stdout, stderr, errMsg sql.NullString
		var decID sql.NullString
		if err := rows.Scan(&r.ID, &createdAt, &decID, &r.Command, &r.ExitCode,
			&success, &killed, &killReason, &durationMs, &stdout, &stderr, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		r.Time = time.Unix(createdAt, 0)
		r.DecisionID = decID.String
		r.Success = success != 0
		r.Killed = killed != 0
		r.KillReason = killReason.String
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.Stdout = stdout.String
		r.Stderr = stderr.String
		r.Error = errMsg.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetObservation returns one observation by id, or sql.ErrNoRows.
func (s *LocalStore) GetObservation(id string) (*decision.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var obs decision.Observation
	var createdAt int64
	var category string
	var paths sql.NullString
	err := s.db.QueryRow(
		`SELECT id, created_at, source, category, summary, paths FROM observations WHERE id = ?`, id,
	).Scan(&obs.ID, &createdAt, &obs.Source, &category, &obs.Summary, &paths)
	if err != nil {
		return nil, err
	}
	obs.Time = time.Unix(createdAt, 0)
	obs.Category = decision.Category(category)
	if paths.Valid && paths.String != "" {
		if err := json.Unmarshal([]byte(paths.String), &obs.Paths); err != nil {
			return nil, fmt.Errorf("decoding paths: %w", err)
		}
	}
	return &obs, nil
}

// Stats summarizes the audit trail for status reporting.
type Stats struct {
	Observations     int64
	Decisions        int64
	Executions       int64
	OpenGoals        int64
	OpenTasks        int64
	SelfObservations int64
	LastDecisionAt   time.Time
}

// GetStats counts rows across the audit tables.
func (s *LocalStore) GetStats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM observations", &stats.Observations},
		{"SELECT COUNT(*) FROM decisions", &stats.Decisions},
		{"SELECT COUNT(*) FROM executions", &stats.Executions},
		{"SELECT COUNT(*) FROM goals WHERE status = 'open'", &stats.OpenGoals},
		{"SELECT COUNT(*) FROM tasks WHERE status = 'open'", &stats.OpenTasks},
		{"SELECT COUNT(*) FROM self_observations", &stats.SelfObservations},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("counting (%s): %w", c.query, err)
		}
	}

	var last sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(created_at) FROM decisions").Scan(&last); err != nil {
		return stats, err
	}
	if last.Valid {
		stats.LastDecisionAt = time.Unix(last.Int64, 0)
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
