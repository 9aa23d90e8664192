package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigurationDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	LoadConfiguration()

	assert.Equal(t, ProviderMySQL, CFG.Database.Provider)
	assert.Equal(t, "3306", CFG.Database.Port)
	assert.Equal(t, 10, CFG.Database.MaxOpenConns)
	assert.Equal(t, "catalog.json", CFG.Backups.CatalogFile)
	assert.Equal(t, "8080", CFG.Server.Port)
	assert.Equal(t, "*/15 * * * *", CFG.Server.RescanSchedule)
	assert.Equal(t, "us-east-1", CFG.Backups.S3.Region)
}

func TestLoadConfigurationFromFile(t *testing.T) {
	content := `
database:
  provider: postgres
  host: db.lab.internal
  name: experiments
  username: labuser
  password: labsecret
backups:
  directory: /var/backups/experiments
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", path)

	LoadConfiguration()

	assert.Equal(t, ProviderPostgres, CFG.Database.Provider)
	assert.Equal(t, "db.lab.internal", CFG.Database.Host)
	assert.Equal(t, "experiments", CFG.Database.Name)
	// Provider-specific port default applies after the file is read.
	assert.Equal(t, "5432", CFG.Database.Port)
	assert.Equal(t, "/var/backups/experiments", CFG.Backups.Directory)
	assert.Equal(t, filepath.Join("/var/backups/experiments", "catalog.json"), CFG.Backups.CatalogPath())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	content := `
database:
  host: from-file
  password: filepass
backups:
  directory: /from-file
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_HOST", "from-env")
	t.Setenv("BACKUP_DIRECTORY", "/from-env")

	LoadConfiguration()

	assert.Equal(t, "from-env", CFG.Database.Host)
	assert.Equal(t, "/from-env", CFG.Backups.Directory)
	// Values the environment does not name keep their file values.
	assert.Equal(t, "filepass", CFG.Database.Password)
}

func TestValidateDatabaseConfig(t *testing.T) {
	CFG = AppConfig{}
	CFG.Database = DatabaseConfig{
		Provider: ProviderMySQL,
		Host:     "localhost",
		Name:     "experiments",
		Username: "labuser",
		Password: "labsecret",
	}
	assert.NoError(t, ValidateDatabaseConfig())

	CFG.Database.Password = ""
	err := ValidateDatabaseConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")

	CFG.Database.Password = "labsecret"
	CFG.Database.Provider = "oracle"
	err = ValidateDatabaseConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database provider")

	CFG.Database.Provider = ProviderMySQL
	CFG.Database.ConnMaxLifetime = "not-a-duration"
	assert.Error(t, ValidateDatabaseConfig())
}

func TestValidateBackupsConfig(t *testing.T) {
	CFG = AppConfig{}
	err := ValidateBackupsConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup directory")

	CFG.Backups.Directory = "/var/backups/experiments"
	assert.NoError(t, ValidateBackupsConfig())

	CFG.Backups.S3.Enabled = true
	err = ValidateBackupsConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 bucket")

	CFG.Backups.S3.Bucket = "lab-backups"
	CFG.Backups.S3.AccessKey = "key"
	CFG.Backups.S3.SecretKey = "secret"
	assert.NoError(t, ValidateBackupsConfig())
}

func TestDSNHelpers(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     "3306",
		Name:     "experiments",
		Username: "labuser",
		Password: "labsecret",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"labuser:labsecret@tcp(localhost:3306)/experiments?charset=utf8mb4&parseTime=True&loc=Local",
		db.MySQLDSN())

	db.Port = "5432"
	assert.Equal(t,
		"host=localhost port=5432 user=labuser password=labsecret dbname=experiments sslmode=disable",
		db.PostgresDSN())
}

func TestMaskSensitiveInfo(t *testing.T) {
	assert.Equal(t, "[not set]", maskSensitiveInfo(""))
	assert.Equal(t, "****", maskSensitiveInfo("abc"))
	assert.Equal(t, "la****et", maskSensitiveInfo("labsecret"))
}
