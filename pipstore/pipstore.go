// Package pipstore keeps programs and the results of running them in a SQLite database.
package pipstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"pipdataplane.org/pip"
	"pipdataplane.org/pip/internal/dbutil"
	"pipdataplane.org/pip/pipeval"
	"pipdataplane.org/pip/pipsrc"
)

// DefaultCacheSize is the number of evaluators kept by a Store.
const DefaultCacheSize = 64

// Program is a stored program.
type Program struct {
	ID        pip.ProgramID
	Name      string
	Source    string
	CreatedAt time.Time
}

// Run is the recorded evaluation of one packet.
type Run struct {
	ID       int64
	Program  pip.ProgramID
	Arrival  time.Time
	InPort   uint32
	PhysPort uint32
	Input    []byte
	Output   []byte
	Verdict  pipeval.Verdict
	Port     uint32
	// Fault is the error which ended the run, or empty.
	Fault string
	Steps int
}

type evalKey struct {
	id  pip.ProgramID
	cfg pipeval.Config
}

// Store is a database of programs and runs.
type Store struct {
	db *sqlx.DB

	mu    sync.Mutex
	evals *simplelru.LRU[evalKey, *pipeval.Evaluator]
}

// New returns a Store using db.  SetupDB must have been called on db.
func New(db *sqlx.DB) *Store {
	evals, err := simplelru.NewLRU[evalKey, *pipeval.Evaluator](DefaultCacheSize, nil)
	if err != nil {
		panic(err)
	}
	return &Store{db: db, evals: evals}
}

// PutProgram parses and validates src, then stores it under name.
// The program is identified by the hash of src, so putting the same source twice is a no-op.
// A name refers to at most one program, and is moved to the new program if it was in use.
// name may be empty.
func (s *Store) PutProgram(ctx context.Context, name, src string) (pip.ProgramID, error) {
	if _, err := pipsrc.Parse(src); err != nil {
		return pip.ProgramID{}, ErrInvalidProgram{Err: err}
	}
	id := pip.ProgramHash([]byte(src))
	err := dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO programs (id, source, created_at) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`, id, src, time.Now().UnixNano()); err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE programs SET name = NULL WHERE name = ? AND id != ?`, name, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE programs SET name = ? WHERE id = ?`, name, id)
		return err
	})
	if err != nil {
		return pip.ProgramID{}, err
	}
	logctx.Info(ctx, "put program", zap.Stringer("id", id), zap.String("name", name))
	return id, nil
}

type programRow struct {
	ID        pip.ProgramID  `db:"id"`
	Name      sql.NullString `db:"name"`
	Source    string         `db:"source"`
	CreatedAt int64          `db:"created_at"`
}

func (r programRow) program() Program {
	return Program{
		ID:        r.ID,
		Name:      r.Name.String,
		Source:    r.Source,
		CreatedAt: time.Unix(0, r.CreatedAt),
	}
}

// GetProgram returns the program with id.
func (s *Store) GetProgram(ctx context.Context, id pip.ProgramID) (*Program, error) {
	var row programRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, name, source, created_at FROM programs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrProgramNotFound{ID: id}
		}
		return nil, err
	}
	p := row.program()
	return &p, nil
}

// Resolve finds a program by name, or by the String form of its ID.
func (s *Store) Resolve(ctx context.Context, x string) (pip.ProgramID, error) {
	var id pip.ProgramID
	err := s.db.GetContext(ctx, &id, `SELECT id FROM programs WHERE name = ?`, x)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return pip.ProgramID{}, err
	}
	id, err = pip.ParseProgramID(x)
	if err != nil {
		return pip.ProgramID{}, ErrProgramNotFound{Name: x}
	}
	if _, err := s.GetProgram(ctx, id); err != nil {
		return pip.ProgramID{}, err
	}
	return id, nil
}

// ListPrograms returns all the programs, oldest first.
func (s *Store) ListPrograms(ctx context.Context) ([]Program, error) {
	var rows []programRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, source, created_at FROM programs ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	ret := make([]Program, len(rows))
	for i, row := range rows {
		ret[i] = row.program()
	}
	return ret, nil
}

// Evaluator returns an evaluator for the program with id.
// Evaluators are cached by program and config.
func (s *Store) Evaluator(ctx context.Context, id pip.ProgramID, cfg pipeval.Config) (*pipeval.Evaluator, error) {
	k := evalKey{id: id, cfg: cfg}
	s.mu.Lock()
	ev, ok := s.evals.Get(k)
	s.mu.Unlock()
	if ok {
		return ev, nil
	}
	p, err := s.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	prog, err := pipsrc.Parse(p.Source)
	if err != nil {
		return nil, fmt.Errorf("stored program %v: %w", id, err)
	}
	ev, err = pipeval.New(prog, cfg)
	if err != nil {
		return nil, err
	}
	logctx.Debug(ctx, "compiled evaluator", zap.Stringer("id", id), zap.Int("tables", len(prog.Tables())))
	s.mu.Lock()
	s.evals.Add(k, ev)
	s.mu.Unlock()
	return ev, nil
}

type runRow struct {
	ID       int64         `db:"id"`
	Program  pip.ProgramID `db:"program_id"`
	Arrival  int64         `db:"arrival"`
	InPort   uint32        `db:"in_port"`
	PhysPort uint32        `db:"phys_port"`
	Input    []byte        `db:"input"`
	Output   []byte        `db:"output"`
	Verdict  string        `db:"verdict"`
	Port     uint32        `db:"port"`
	Fault    string        `db:"fault"`
	Steps    int           `db:"steps"`
}

// RecordRun stores the evaluation of pkt by the program with id.
// evalErr is the error returned by the evaluation, if any.
func (s *Store) RecordRun(ctx context.Context, id pip.ProgramID, pkt pipeval.Packet, res pipeval.Result, evalErr error) (int64, error) {
	var fault string
	if evalErr != nil {
		fault = evalErr.Error()
	}
	output := res.Output
	if output == nil {
		output = []byte{}
	}
	input := pkt.Data
	if input == nil {
		input = []byte{}
	}
	var runID int64
	err := s.db.GetContext(ctx, &runID, `INSERT INTO runs
		(program_id, arrival, in_port, phys_port, input, output, verdict, port, fault, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		id, pkt.Arrival.UnixNano(), pkt.InPort, pkt.PhysPort, input, output,
		res.Verdict.String(), res.Port, fault, res.Steps)
	if err != nil {
		return 0, err
	}
	return runID, nil
}

// ListRuns returns up to limit of the most recent runs of the program with id, oldest first.
// A limit <= 0 returns all of them.
func (s *Store) ListRuns(ctx context.Context, id pip.ProgramID, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM (
			SELECT id, program_id, arrival, in_port, phys_port, input, output, verdict, port, fault, steps
			FROM runs WHERE program_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, id, limit); err != nil {
		return nil, err
	}
	ret := make([]Run, len(rows))
	for i, row := range rows {
		v, err := pipeval.ParseVerdict(row.Verdict)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", row.ID, err)
		}
		ret[i] = Run{
			ID:       row.ID,
			Program:  row.Program,
			Arrival:  time.Unix(0, row.Arrival),
			InPort:   row.InPort,
			PhysPort: row.PhysPort,
			Input:    row.Input,
			Output:   row.Output,
			Verdict:  v,
			Port:     row.Port,
			Fault:    row.Fault,
			Steps:    row.Steps,
		}
	}
	return ret, nil
}
