// Package postgres implements the experiment store on PostgreSQL using
// database/sql with the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database/common"
	"github.com/ConradKhakhria/robot-database-script/pkg/experiment"
)

// Store implements common.Store for PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing connection. Used by tests; production code
// goes through the factory.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Factory creates PostgreSQL stores from the loaded configuration.
type Factory struct{}

// Create connects to PostgreSQL and returns a ready store.
func (f *Factory) Create() (common.Store, error) {
	cfg := config.CFG.Database

	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PostgreSQL connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	connMaxLifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
	if err != nil {
		log.Printf("Warning: invalid connection max lifetime '%s', using default 5m: %v",
			cfg.ConnMaxLifetime, err)
		connMaxLifetime = 5 * time.Minute
	}
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to ping PostgreSQL server at %s:%s", cfg.Host, cfg.Port)
	}

	log.Printf("Connected to PostgreSQL experiments database at %s:%s", cfg.Host, cfg.Port)
	return &Store{db: db}, nil
}

func init() {
	common.RegisterStore(config.ProviderPostgres, &Factory{})
}

// quoteIdent wraps an identifier in double quotes so mixed-case column
// names keep their casing. Identifiers reaching this point have already
// been validated against the column name pattern.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// Name returns the provider name
func (s *Store) Name() string {
	return config.ProviderPostgres
}

// Ping verifies the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction. The transaction is always released:
// it commits only when fn returns nil and rolls back on any error, so a
// failure partway through leaves the database untouched.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("Error rolling back transaction: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// CreateExperiment inserts the experiment row and its parameter rows in a
// single transaction.
func (s *Store) CreateExperiment(ctx context.Context, def *experiment.Definition) (int64, error) {
	var experimentID int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lookupExperimentID(ctx, tx, def.UserDefinedID); err == nil {
			return errors.Wrapf(common.ErrDuplicateID, "%s %q", experiment.UserDefinedIDKey, def.UserDefinedID)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		query, values := insertExperimentSQL(def)
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return errors.Wrap(err, "failed to insert experiment")
		}

		id, err := lookupExperimentID(ctx, tx, def.UserDefinedID)
		if err != nil {
			return err
		}
		experimentID = id

		for _, name := range def.ParameterNames() {
			if _, err := tx.ExecContext(ctx, insertParameterSQL(),
				experimentID, name, experiment.SQLValue(def.Parameters[name])); err != nil {
				return errors.Wrapf(err, "failed to insert parameter %q", name)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return experimentID, nil
}

// querier covers both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func lookupExperimentID(ctx context.Context, q querier, userDefinedID string) (int64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		quoteIdent(common.ColumnExperimentID),
		quoteIdent(common.TableExperiments),
		quoteIdent(common.ColumnUserDefinedID))

	var id int64
	if err := q.QueryRowContext(ctx, query, userDefinedID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrapf(common.ErrNotFound, "%s %q", experiment.UserDefinedIDKey, userDefinedID)
		}
		return 0, errors.Wrap(err, "failed to look up experiment ID")
	}

	return id, nil
}

// GetExperimentID returns the database-assigned ID for a user-defined ID.
func (s *Store) GetExperimentID(ctx context.Context, userDefinedID string) (int64, error) {
	return lookupExperimentID(ctx, s.db, userDefinedID)
}

// insertExperimentSQL builds the INSERT for the Experiments row. Column
// names come from the validated definition, values are bound parameters.
func insertExperimentSQL(def *experiment.Definition) (string, []interface{}) {
	columns := def.InfoColumns()

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	values := make([]interface{}, len(columns))
	for i, column := range columns {
		quoted[i] = quoteIdent(column)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		values[i] = experiment.SQLValue(def.Info[column])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(common.TableExperiments),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))

	return query, values
}

func insertParameterSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3)",
		quoteIdent(common.TableParameters),
		quoteIdent(common.ColumnExperimentID),
		quoteIdent(common.ColumnParameterName),
		quoteIdent(common.ColumnParamValue))
}

// ListExperiments returns up to limit experiments, newest first.
func (s *Store) ListExperiments(ctx context.Context, limit int) ([]common.ExperimentRecord, error) {
	query := fmt.Sprintf(
		"SELECT e.%s, e.%s, COUNT(p.%s) FROM %s e LEFT JOIN %s p ON p.%s = e.%s GROUP BY e.%s, e.%s ORDER BY e.%s DESC",
		quoteIdent(common.ColumnExperimentID),
		quoteIdent(common.ColumnUserDefinedID),
		quoteIdent(common.ColumnParameterName),
		quoteIdent(common.TableExperiments),
		quoteIdent(common.TableParameters),
		quoteIdent(common.ColumnExperimentID),
		quoteIdent(common.ColumnExperimentID),
		quoteIdent(common.ColumnExperimentID),
		quoteIdent(common.ColumnUserDefinedID),
		quoteIdent(common.ColumnExperimentID))

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list experiments")
	}
	defer rows.Close()

	var records []common.ExperimentRecord
	for rows.Next() {
		var record common.ExperimentRecord
		if err := rows.Scan(&record.ExperimentID, &record.UserDefinedID, &record.ParameterCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan experiment row")
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// CountExperiments returns the number of rows in the Experiments table.
func (s *Store) CountExperiments(ctx context.Context) (int64, error) {
	return s.countTable(ctx, common.TableExperiments)
}

// CountParameters returns the number of rows in the ExperimentParameters table.
func (s *Store) CountParameters(ctx context.Context) (int64, error) {
	return s.countTable(ctx, common.TableParameters)
}

func (s *Store) countTable(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "failed to count rows in %s", table)
	}
	return count, nil
}
