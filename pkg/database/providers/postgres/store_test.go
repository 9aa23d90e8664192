package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConradKhakhria/robot-database-script/pkg/database/common"
	"github.com/ConradKhakhria/robot-database-script/pkg/experiment"
)

const (
	lookupQuery     = `SELECT "ExperimentID" FROM "Experiments" WHERE "UserDefinedID" = $1`
	insertExpQuery  = `INSERT INTO "Experiments" ("UserDefinedID", "Note", "Repeats") VALUES ($1, $2, $3)`
	insertParmQuery = `INSERT INTO "ExperimentParameters" ("ExperimentID", "ParameterName", "ParamValueTxt") VALUES ($1, $2, $3)`
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewStore(sqlDB), mock
}

func testDefinition() *experiment.Definition {
	return &experiment.Definition{
		UserDefinedID: "EXP-2023-014",
		Info: map[string]interface{}{
			"UserDefinedID": "EXP-2023-014",
			"Note":          "plate growth sweep",
			"Repeats":       int64(3),
		},
		Parameters: map[string]interface{}{
			"voltage": 4.2,
			"stirred": true,
		},
	}
}

func TestCreateExperiment(t *testing.T) {
	store, mock := setupMockStore(t)
	def := testDefinition()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}))
	mock.ExpectExec(regexp.QuoteMeta(insertExpQuery)).
		WithArgs("EXP-2023-014", "plate growth sweep", "3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}).AddRow(17))
	mock.ExpectExec(regexp.QuoteMeta(insertParmQuery)).
		WithArgs(int64(17), "stirred", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertParmQuery)).
		WithArgs(int64(17), "voltage", "4.2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := store.CreateExperiment(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExperimentDuplicate(t *testing.T) {
	store, mock := setupMockStore(t)
	def := testDefinition()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}).AddRow(3))
	mock.ExpectRollback()

	_, err := store.CreateExperiment(context.Background(), def)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExperimentRollsBackOnInsertError(t *testing.T) {
	store, mock := setupMockStore(t)
	def := testDefinition()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}))
	mock.ExpectExec(regexp.QuoteMeta(insertExpQuery)).
		WithArgs("EXP-2023-014", "plate growth sweep", "3").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := store.CreateExperiment(context.Background(), def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert experiment")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.withTx(context.Background(), func(tx *sql.Tx) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.withTx(context.Background(), func(tx *sql.Tx) error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExperimentID(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}).AddRow(17))

	id, err := store.GetExperimentID(context.Background(), "EXP-2023-014")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
}

func TestListExperiments(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"ExperimentID", "UserDefinedID", "count"}).
		AddRow(9, "EXP-2023-020", 2).
		AddRow(8, "EXP-2023-019", 6)
	mock.ExpectQuery(`SELECT e\."ExperimentID", e\."UserDefinedID", COUNT`).
		WithArgs(25).
		WillReturnRows(rows)

	records, err := store.ListExperiments(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "EXP-2023-020", records[0].UserDefinedID)
	assert.Equal(t, int64(6), records[1].ParameterCount)
}

func TestCounts(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "Experiments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "ExperimentParameters"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	experiments, err := store.CountExperiments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), experiments)

	parameters, err := store.CountParameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11), parameters)
}
