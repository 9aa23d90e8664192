// Package mysql implements the experiment store on MySQL using GORM.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database/common"
	"github.com/ConradKhakhria/robot-database-script/pkg/experiment"
)

// Store implements common.Store for MySQL.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an existing GORM connection. Used by tests; production
// code goes through the factory.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Factory creates MySQL stores from the loaded configuration.
type Factory struct{}

// Create connects to MySQL and returns a ready store.
func (f *Factory) Create() (common.Store, error) {
	db, err := connect()
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func init() {
	common.RegisterStore(config.ProviderMySQL, &Factory{})
}

// connect opens the GORM connection and applies the pool settings from
// configuration.
func connect() (*gorm.DB, error) {
	cfg := config.CFG.Database

	// Configure GORM logger based on debug setting
	logLevel := logger.Silent
	if config.CFG.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(gormmysql.Open(cfg.MySQLDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MySQL")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database connection")
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	connMaxLifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
	if err != nil {
		log.Printf("Warning: invalid connection max lifetime '%s', using default 5m: %v",
			cfg.ConnMaxLifetime, err)
		connMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	log.Printf("Connected to MySQL experiments database at %s:%s", cfg.Host, cfg.Port)
	return db, nil
}

// quoteIdent wraps an identifier in backticks. Identifiers reaching this
// point have already been validated against the column name pattern.
func quoteIdent(name string) string {
	return "`" + name + "`"
}

// Name returns the provider name
func (s *Store) Name() string {
	return config.ProviderMySQL
}

// Ping verifies the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get database connection")
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get database connection")
	}
	return sqlDB.Close()
}

// CreateExperiment inserts the experiment row and its parameter rows in a
// single transaction. GORM rolls the transaction back when the closure
// returns an error, so a failure at any step leaves the database untouched.
func (s *Store) CreateExperiment(ctx context.Context, def *experiment.Definition) (int64, error) {
	var experimentID int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lookupExperimentID(tx, def.UserDefinedID); err == nil {
			return errors.Wrapf(common.ErrDuplicateID, "%s %q", experiment.UserDefinedIDKey, def.UserDefinedID)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		query, values := insertExperimentSQL(def)
		if err := tx.Exec(query, values...).Error; err != nil {
			return errors.Wrap(err, "failed to insert experiment")
		}

		// The experiment ID is assigned by the database; read it back
		// inside the same transaction before writing parameter rows.
		id, err := lookupExperimentID(tx, def.UserDefinedID)
		if err != nil {
			return err
		}
		experimentID = id

		for _, name := range def.ParameterNames() {
			if err := tx.Exec(insertParameterSQL(), experimentID, name, experiment.SQLValue(def.Parameters[name])).Error; err != nil {
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

// GetExperimentID returns the database-assigned ID for a user-defined ID.
func (s *Store) GetExperimentID(ctx context.Context, userDefinedID string) (int64, error) {
	return lookupExperimentID(s.db.WithContext(ctx), userDefinedID)
}

func lookupExperimentID(tx *gorm.DB, userDefinedID string) (int64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		quoteIdent(common.ColumnExperimentID),
		quoteIdent(common.TableExperiments),
		quoteIdent(common.ColumnUserDefinedID))

	row := tx.Raw(query, userDefinedID).Row()

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrapf(common.ErrNotFound, "%s %q", experiment.UserDefinedIDKey, userDefinedID)
		}
		return 0, errors.Wrap(err, "failed to look up experiment ID")
	}

	return id, nil
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
		placeholders[i] = "?"
		values[i] = experiment.SQLValue(def.Info[column])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(common.TableExperiments),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))

	return query, values
}

func insertParameterSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)",
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
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
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
	if err := s.db.WithContext(ctx).Raw(query).Row().Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "failed to count rows in %s", table)
	}
	return count, nil
}
