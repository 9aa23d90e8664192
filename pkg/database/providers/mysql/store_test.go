package mysql

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ConradKhakhria/robot-database-script/pkg/database/common"
	"github.com/ConradKhakhria/robot-database-script/pkg/experiment"
)

const (
	lookupQuery     = "SELECT `ExperimentID` FROM `Experiments` WHERE `UserDefinedID` = ?"
	insertExpQuery  = "INSERT INTO `Experiments` (`UserDefinedID`, `Note`, `Repeats`) VALUES (?, ?, ?)"
	insertParmQuery = "INSERT INTO `ExperimentParameters` (`ExperimentID`, `ParameterName`, `ParamValueTxt`) VALUES (?, ?, ?)"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	dialector := gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewStore(db), mock
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
			"voltage":     4.2,
			"plate_count": int64(12),
			"stirred":     true,
			"medium":      "LB broth",
		},
	}
}

func TestCreateExperiment(t *testing.T) {
	store, mock := setupMockStore(t)
	def := testDefinition()

	mock.ExpectBegin()
	// Duplicate check finds nothing.
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}))
	mock.ExpectExec(regexp.QuoteMeta(insertExpQuery)).
		WithArgs("EXP-2023-014", "plate growth sweep", "3").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}).AddRow(42))
	// Parameter rows are written in name order.
	mock.ExpectExec(regexp.QuoteMeta(insertParmQuery)).
		WithArgs(int64(42), "medium", "LB broth").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertParmQuery)).
		WithArgs(int64(42), "plate_count", "12").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertParmQuery)).
		WithArgs(int64(42), "stirred", "1").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertParmQuery)).
		WithArgs(int64(42), "voltage", "4.2").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()

	id, err := store.CreateExperiment(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExperimentDuplicate(t *testing.T) {
	store, mock := setupMockStore(t)
	def := testDefinition()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}).AddRow(7))
	mock.ExpectRollback()

	_, err := store.CreateExperiment(context.Background(), def)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateID)
	assert.Contains(t, err.Error(), "EXP-2023-014")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExperimentRollsBackOnParameterError(t *testing.T) {
	store, mock := setupMockStore(t)
	def := testDefinition()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}))
	mock.ExpectExec(regexp.QuoteMeta(insertExpQuery)).
		WithArgs("EXP-2023-014", "plate growth sweep", "3").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta(insertParmQuery)).
		WithArgs(int64(42), "medium", "LB broth").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := store.CreateExperiment(context.Background(), def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert parameter")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExperimentID(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-2023-014").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}).AddRow(42))

	id, err := store.GetExperimentID(context.Background(), "EXP-2023-014")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestGetExperimentIDNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs("EXP-9999").
		WillReturnRows(sqlmock.NewRows([]string{"ExperimentID"}))

	_, err := store.GetExperimentID(context.Background(), "EXP-9999")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListExperiments(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"ExperimentID", "UserDefinedID", "count"}).
		AddRow(2, "EXP-2023-015", 4).
		AddRow(1, "EXP-2023-014", 0)
	mock.ExpectQuery("SELECT e.`ExperimentID`, e.`UserDefinedID`, COUNT").
		WithArgs(10).
		WillReturnRows(rows)

	records, err := store.ListExperiments(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].ExperimentID)
	assert.Equal(t, "EXP-2023-015", records[0].UserDefinedID)
	assert.Equal(t, int64(4), records[0].ParameterCount)
	assert.Equal(t, int64(0), records[1].ParameterCount)
}

func TestCounts(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `Experiments`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `ExperimentParameters`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(19))

	experiments, err := store.CountExperiments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), experiments)

	parameters, err := store.CountParameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(19), parameters)
}
