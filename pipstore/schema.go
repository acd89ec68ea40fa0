package pipstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	"pipdataplane.org/pip/internal/dbutil"
	"pipdataplane.org/pip/internal/migrations"
)

func OpenDB(p string) (*sqlx.DB, error) {
	return dbutil.Open(p)
}

func SetupDB(ctx context.Context, db *sqlx.DB) error {
	return migrations.Migrate(ctx, db, currentSchema)
}

var currentSchema = func() *migrations.State {
	x := migrations.InitialState()
	x = x.ApplyStmt(`CREATE TABLE programs (
		id BLOB NOT NULL,
		name TEXT UNIQUE,
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL,

		PRIMARY KEY(id)
	) WITHOUT ROWID`)
	x = x.ApplyStmt(`CREATE TABLE runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		program_id BLOB NOT NULL,
		arrival INTEGER NOT NULL,
		in_port INTEGER NOT NULL,
		phys_port INTEGER NOT NULL,
		input BLOB NOT NULL,
		output BLOB NOT NULL,
		verdict TEXT NOT NULL,
		port INTEGER NOT NULL,
		fault TEXT NOT NULL DEFAULT '',
		steps INTEGER NOT NULL,

		FOREIGN KEY(program_id) REFERENCES programs(id)
	)`)
	x = x.ApplyStmt(`CREATE INDEX runs_program ON runs (program_id, id)`)
	return x
}()
