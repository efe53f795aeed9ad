// Package history records analysis driver runs in a local sqlite database.
package history

import (
	"database/sql"
	"embed"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/sbl8/histonet/analysis"
)

const (
	DataFileName = "history.db"

	StatusOK     = "ok"
	StatusFailed = "failed"

	// DefaultLimit caps ListRuns when no limit is given.
	DefaultLimit = 20

	// fixed width so stored times sort lexically
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Run is one recorded driver invocation.
type Run struct {
	ID         int64           `json:"id" yaml:"id"`
	Start      time.Time       `json:"start" yaml:"start"`
	End        time.Time       `json:"end" yaml:"end"`
	Elapsed    time.Duration   `json:"elapsed" yaml:"elapsed"`
	Executable string          `json:"executable" yaml:"executable"`
	Clock      string          `json:"clock" yaml:"clock"`
	Params     analysis.Params `json:"params" yaml:"params"`
	Status     string          `json:"status" yaml:"status"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewRun builds a history record from a driver report.
func NewRun(r analysis.Report, executable, clock string) Run {
	run := Run{
		Start:      r.Start,
		End:        r.End,
		Elapsed:    r.Elapsed,
		Executable: executable,
		Clock:      clock,
		Params:     r.Params,
		Status:     StatusOK,
	}
	if r.Error != "" {
		run.Status = StatusFailed
		run.Error = r.Error
	}
	return run
}

// Init creates the schema in the database at dbFilePath. It is safe to call
// on an existing database.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return errors.Wrapf(err, "error opening database: %s", dbFilePath)
	}
	defer db.Close()

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err := db.Exec(string(b)); err != nil {
		return errors.Wrapf(err, "failed to create database schema in: %s", dbFilePath)
	}
	slog.Debug("history schema ready", "path", dbFilePath)
	return nil
}

func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}
	return conn, nil
}

// SaveRun inserts run and returns its ID.
func SaveRun(db *sql.DB, run Run) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal run params")
	}

	res, err := db.Exec(`INSERT INTO run
		(started_at, ended_at, elapsed_ns, executable, clock, params, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Start.UTC().Format(timeFormat),
		run.End.UTC().Format(timeFormat),
		int64(run.Elapsed),
		run.Executable,
		run.Clock,
		string(params),
		run.Status,
		run.Error,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get run id")
	}
	return id, nil
}

// ListRuns returns up to limit runs, most recent first.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := db.Query(`SELECT id, started_at, ended_at, elapsed_ns, executable, clock, params, status, error
		FROM run ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	list := make([]Run, 0)
	for rows.Next() {
		var (
			r          Run
			start, end string
			elapsed    int64
			params     string
		)
		if err := rows.Scan(&r.ID, &start, &end, &elapsed, &r.Executable, &r.Clock, &params, &r.Status, &r.Error); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		if r.Start, err = time.Parse(timeFormat, start); err != nil {
			return nil, errors.Wrapf(err, "run %d: bad start time %q", r.ID, start)
		}
		if r.End, err = time.Parse(timeFormat, end); err != nil {
			return nil, errors.Wrapf(err, "run %d: bad end time %q", r.ID, end)
		}
		r.Elapsed = time.Duration(elapsed)
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, errors.Wrapf(err, "run %d: bad params", r.ID)
		}
		list = append(list, r)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate runs")
}
