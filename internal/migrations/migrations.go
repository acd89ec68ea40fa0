// Package migrations brings a database schema up to date one statement at a time.
package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"pipdataplane.org/pip/internal/dbutil"
)

// State is a schema, described as the sequence of statements which create it.
// States are immutable.
type State struct {
	stmts []string
}

func InitialState() *State {
	return &State{}
}

// ApplyStmt returns a State with stmt applied after the statements in x.
func (x *State) ApplyStmt(stmt string) *State {
	stmts := make([]string, len(x.stmts), len(x.stmts)+1)
	copy(stmts, x.stmts)
	return &State{stmts: append(stmts, stmt)}
}

// Version is the number of statements in x.
func (x *State) Version() int {
	return len(x.stmts)
}

// Migrate applies any statements in desired which have not been applied to db.
// The number of applied statements is kept in the user_version pragma.
func Migrate(ctx context.Context, db *sqlx.DB, desired *State) error {
	return dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		var current int
		if err := tx.GetContext(ctx, &current, `PRAGMA user_version`); err != nil {
			return err
		}
		if current > desired.Version() {
			return fmt.Errorf("migrations: database is at version %d, newer than %d", current, desired.Version())
		}
		for i := current; i < desired.Version(); i++ {
			if _, err := tx.ExecContext(ctx, desired.stmts[i]); err != nil {
				return fmt.Errorf("migrations: statement %d: %w", i, err)
			}
		}
		if current != desired.Version() {
			// pragmas do not accept parameters
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, desired.Version())); err != nil {
				return err
			}
			logctx.Info(ctx, "migrated database", zap.Int("from", current), zap.Int("to", desired.Version()))
		}
		return nil
	})
}
