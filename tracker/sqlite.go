package tracker

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const objectiveLogSchema = `
CREATE TABLE IF NOT EXISTS objective_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    tick       INTEGER NOT NULL,
    objective  REAL NOT NULL,
    created_at TEXT NOT NULL
);
`

const objectiveLogIndex = `
CREATE INDEX IF NOT EXISTS idx_objective_log_run
ON objective_log(run_id, tick);
`

// Recorder persists per-tick objective values to SQLite. Each Recorder
// represents one training run, identified by a fresh run ID, so histories
// of repeated runs against the same database stay separable
type Recorder struct {
	db      *sql.DB
	ownsDB  bool
	runID   string
	tick    int
	lastErr error
}

// NewRecorder initializes the objective_log table on an existing database
// handle and returns a Recorder for a new run
func NewRecorder(db *sql.DB) (*Recorder, error) {
	if _, err := db.Exec(objectiveLogSchema); err != nil {
		return nil, fmt.Errorf("failed to create objective_log table: %v", err)
	}
	if _, err := db.Exec(objectiveLogIndex); err != nil {
		return nil, fmt.Errorf("failed to create objective_log index: %v", err)
	}
	return &Recorder{db: db, runID: uuid.NewString()}, nil
}

// OpenRecorder opens (creating if necessary) an SQLite database at path
// and returns a Recorder for a new run. The Recorder owns the database
// handle; release it with Close
func OpenRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	rec, err := NewRecorder(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	rec.ownsDB = true
	return rec, nil
}

// RunID returns the identifier of the run this Recorder writes under
func (r *Recorder) RunID() string {
	return r.runID
}

// LogObjective records the objective value for the next tick. Write
// failures are remembered and reported through Err rather than interrupting
// the control loop
func (r *Recorder) LogObjective(value float64) {
	r.tick++
	_, err := r.db.Exec(`
		INSERT INTO objective_log (run_id, tick, objective, created_at)
		VALUES (?, ?, ?, ?)`,
		r.runID,
		r.tick,
		value,
		time.Now().Format(time.RFC3339),
	)
	if err != nil && r.lastErr == nil {
		r.lastErr = fmt.Errorf("failed to record objective: %v", err)
	}
}

// Err returns the first write failure encountered, if any
func (r *Recorder) Err() error {
	return r.lastErr
}

// Objectives returns the recorded values for a run in tick order
func (r *Recorder) Objectives(runID string) ([]float64, error) {
	rows, err := r.db.Query(`
		SELECT objective FROM objective_log
		WHERE run_id = ?
		ORDER BY tick`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query objectives: %v", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan objective row: %v", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Close releases the database handle if this Recorder owns it
func (r *Recorder) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}
