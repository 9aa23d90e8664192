// Package mysql_test exercises the MySQL experiment store against a
// real server. The tests are skipped unless TEST_DB_TYPE is set to
// "mysql"; connection details come from the TEST_DB_* variables.
package mysql_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database"
	"github.com/ConradKhakhria/robot-database-script/pkg/experiment"
)

const definitionDoc = `
[info]
UserDefinedID = "EXP-INTEGRATION-001"
Note = "integration round trip"

[parameters]
voltage = 4.2
stirred = true
medium = "LB broth"
`

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupDatabase points the global configuration at the test server and
// creates the experiment tables.
func setupDatabase(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("TEST_DB_TYPE") != "mysql" {
		t.Skip("Skipping MySQL tests")
	}

	config.CFG.Database = config.DatabaseConfig{
		Provider:        config.ProviderMySQL,
		Host:            envOr("TEST_DB_HOST", "localhost"),
		Port:            envOr("TEST_DB_PORT", "3306"),
		Name:            envOr("TEST_DB_NAME", "experiments_test"),
		Username:        envOr("TEST_DB_USER", "root"),
		Password:        envOr("TEST_DB_PASSWORD", "password"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: "5m",
	}

	db, err := sql.Open("mysql", config.CFG.Database.MySQLDSN())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "MySQL server is not reachable")

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS `Experiments` (" +
		"`ExperimentID` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
		"`UserDefinedID` VARCHAR(255) NOT NULL, " +
		"`Note` TEXT)")
	require.NoError(t, err)

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS `ExperimentParameters` (" +
		"`ExperimentID` BIGINT NOT NULL, " +
		"`ParameterName` VARCHAR(255) NOT NULL, " +
		"`ParamValueTxt` TEXT)")
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec("DROP TABLE IF EXISTS `ExperimentParameters`")
		_, _ = db.Exec("DROP TABLE IF EXISTS `Experiments`")
		_ = db.Close()
	})

	return db
}

func TestMySQLExperimentRoundTrip(t *testing.T) {
	setupDatabase(t)

	store, err := database.Connect()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	assert.Equal(t, "mysql", store.Name())

	def, err := experiment.Parse([]byte(definitionDoc))
	require.NoError(t, err)

	id, err := store.CreateExperiment(ctx, def)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	// The ID must be findable again by its user defined name.
	found, err := store.GetExperimentID(ctx, "EXP-INTEGRATION-001")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	// All three parameters must have been recorded.
	parameters, err := store.CountParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), parameters)

	experiments, err := store.CountExperiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), experiments)

	records, err := store.ListExperiments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "EXP-INTEGRATION-001", records[0].UserDefinedID)
	assert.Equal(t, int64(3), records[0].ParameterCount)
}

func TestMySQLDuplicateExperiment(t *testing.T) {
	setupDatabase(t)

	store, err := database.Connect()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	def, err := experiment.Parse([]byte(definitionDoc))
	require.NoError(t, err)

	_, err = store.CreateExperiment(ctx, def)
	require.NoError(t, err)

	// A second experiment with the same UserDefinedID must be rejected
	// and must not leave partial rows behind.
	_, err = store.CreateExperiment(ctx, def)
	require.Error(t, err)

	experiments, err := store.CountExperiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), experiments)

	parameters, err := store.CountParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), parameters)
}

func TestMySQLRollbackOnBadParameter(t *testing.T) {
	db := setupDatabase(t)

	// Recreate the parameters table without the value column so the
	// parameter insert fails after the experiment insert succeeded.
	_, err := db.Exec("DROP TABLE `ExperimentParameters`")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE `ExperimentParameters` (" +
		"`ExperimentID` BIGINT NOT NULL, " +
		"`ParameterName` VARCHAR(255) NOT NULL)")
	require.NoError(t, err)

	store, err := database.Connect()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	def, err := experiment.Parse([]byte(definitionDoc))
	require.NoError(t, err)

	_, err = store.CreateExperiment(ctx, def)
	require.Error(t, err)

	// The failed transaction must not have left the experiment row.
	experiments, err := store.CountExperiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), experiments)
}
