// Package config provides configuration loading and management for the
// experiments CLI. Settings come from an optional YAML file with
// environment variable overrides; credentials are never built in.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database providers understood by the store layer.
const (
	ProviderMySQL    = "mysql"
	ProviderPostgres = "postgres"
)

// DatabaseConfig defines connection settings for the experiments database.
type DatabaseConfig struct {
	Provider        string `yaml:"provider"`
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	Name            string `yaml:"name"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"sslmode"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime string `yaml:"connMaxLifetime"`
}

// MySQLDSN returns the go-sql-driver connection string.
func (d DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

// PostgresDSN returns the lib/pq connection string.
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Name, d.SSLMode)
}

// S3Config defines settings for the S3 backup archive.
type S3Config struct {
	Enabled            bool   `yaml:"enabled"`
	Bucket             string `yaml:"bucket"`
	Region             string `yaml:"region"`
	Endpoint           string `yaml:"endpoint"`
	AccessKey          string `yaml:"accessKey"`
	SecretKey          string `yaml:"secretKey"`
	Prefix             string `yaml:"prefix"`
	PathStyle          bool   `yaml:"pathStyle"`
	UseSSL             bool   `yaml:"useSSL"`
	CustomCAPath       string `yaml:"customCAPath"`
	SkipCertValidation bool   `yaml:"skipCertValidation"`
}

// BackupsConfig defines where database backup files live.
type BackupsConfig struct {
	Directory   string   `yaml:"directory"`
	CatalogFile string   `yaml:"catalogFile"`
	S3          S3Config `yaml:"s3"`
}

// CatalogPath returns the location of the backup catalog file.
func (b BackupsConfig) CatalogPath() string {
	return filepath.Join(b.Directory, b.CatalogFile)
}

// ServerConfig defines status server settings.
type ServerConfig struct {
	Port           string `yaml:"port"`
	RescanSchedule string `yaml:"rescanSchedule"` // Cron schedule format
}

// MetricsConfig defines metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AppConfig contains the complete application configuration.
type AppConfig struct {
	Database   DatabaseConfig `yaml:"database"`
	Backups    BackupsConfig  `yaml:"backups"`
	Server     ServerConfig   `yaml:"server"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Debug      bool           `yaml:"debug"`
	ConfigFile string         `yaml:"-"`
}

// CFG is the global configuration object
var CFG AppConfig

const defaultConfigFile = "config.yaml"

// LoadConfiguration loads configuration from the config file (if any)
// and then applies environment variable overrides.
func LoadConfiguration() {
	CFG = AppConfig{}

	path := getEnvOrDefault("CONFIG_FILE", defaultConfigFile)
	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(path); err != nil {
			log.Printf("Warning: could not load config file %s: %v", path, err)
		} else {
			log.Printf("Loaded configuration from %s", path)
		}
	} else if path != defaultConfigFile {
		log.Printf("Warning: config file %s is not accessible: %v", path, err)
	}

	loadFromEnvironment()
	setDefaults()

	if CFG.Debug {
		DisplayConfiguration()
	}
}

// loadFromFile reads a YAML configuration file into CFG.
func loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &CFG); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	CFG.ConfigFile = path
	return nil
}

// loadFromEnvironment applies environment variable overrides. Only
// variables that are actually set replace file values.
func loadFromEnvironment() {
	overrideEnvBool(&CFG.Debug, "DEBUG")

	// Database settings
	overrideEnvString(&CFG.Database.Provider, "DB_PROVIDER")
	overrideEnvString(&CFG.Database.Host, "DB_HOST")
	overrideEnvString(&CFG.Database.Port, "DB_PORT")
	overrideEnvString(&CFG.Database.Name, "DB_NAME")
	overrideEnvString(&CFG.Database.Username, "DB_USERNAME")
	overrideEnvString(&CFG.Database.Password, "DB_PASSWORD")
	overrideEnvString(&CFG.Database.SSLMode, "DB_SSLMODE")
	overrideEnvInt(&CFG.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	overrideEnvInt(&CFG.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")
	overrideEnvString(&CFG.Database.ConnMaxLifetime, "DB_CONN_MAX_LIFETIME")

	// Backup settings
	overrideEnvString(&CFG.Backups.Directory, "BACKUP_DIRECTORY")
	overrideEnvString(&CFG.Backups.CatalogFile, "BACKUP_CATALOG_FILE")

	// S3 archive settings
	overrideEnvBool(&CFG.Backups.S3.Enabled, "S3_ARCHIVE_ENABLED")
	overrideEnvString(&CFG.Backups.S3.Bucket, "S3_BUCKET")
	overrideEnvString(&CFG.Backups.S3.Region, "S3_REGION")
	overrideEnvString(&CFG.Backups.S3.Endpoint, "S3_ENDPOINT")
	overrideEnvString(&CFG.Backups.S3.AccessKey, "S3_ACCESS_KEY")
	overrideEnvString(&CFG.Backups.S3.SecretKey, "S3_SECRET_KEY")
	overrideEnvString(&CFG.Backups.S3.Prefix, "S3_PREFIX")
	overrideEnvBool(&CFG.Backups.S3.PathStyle, "S3_PATH_STYLE")
	overrideEnvBool(&CFG.Backups.S3.UseSSL, "S3_USE_SSL")
	overrideEnvString(&CFG.Backups.S3.CustomCAPath, "S3_CUSTOM_CA_PATH")
	overrideEnvBool(&CFG.Backups.S3.SkipCertValidation, "S3_SKIP_CERT_VALIDATION")

	// Status server settings
	overrideEnvString(&CFG.Server.Port, "SERVER_PORT")
	overrideEnvString(&CFG.Server.RescanSchedule, "RESCAN_SCHEDULE")
	overrideEnvBool(&CFG.Metrics.Enabled, "METRICS_ENABLED")
}

// setDefaults ensures all config fields have reasonable default values.
// Credentials deliberately have no defaults.
func setDefaults() {
	if CFG.Database.Provider == "" {
		CFG.Database.Provider = ProviderMySQL
	}

	if CFG.Database.Port == "" {
		switch CFG.Database.Provider {
		case ProviderPostgres:
			CFG.Database.Port = "5432"
		default:
			CFG.Database.Port = "3306"
		}
	}

	if CFG.Database.SSLMode == "" {
		CFG.Database.SSLMode = "disable"
	}

	if CFG.Database.MaxOpenConns == 0 {
		CFG.Database.MaxOpenConns = 10
	}
	if CFG.Database.MaxIdleConns == 0 {
		CFG.Database.MaxIdleConns = 5
	}
	if CFG.Database.ConnMaxLifetime == "" {
		CFG.Database.ConnMaxLifetime = "5m"
	}

	if CFG.Backups.CatalogFile == "" {
		CFG.Backups.CatalogFile = "catalog.json"
	}

	if CFG.Backups.S3.Region == "" {
		CFG.Backups.S3.Region = "us-east-1"
	}
	if CFG.Backups.S3.Prefix == "" {
		CFG.Backups.S3.Prefix = "experiment-backups"
	}

	if CFG.Server.Port == "" {
		CFG.Server.Port = "8080"
	}
	if CFG.Server.RescanSchedule == "" {
		CFG.Server.RescanSchedule = "*/15 * * * *"
	}
}

// Helper functions for environment variables

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func overrideEnvString(target *string, key string) {
	if value, exists := os.LookupEnv(key); exists {
		*target = value
	}
}

func overrideEnvInt(target *int, key string) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error parsing %s as int: %v. Keeping %d", key, err, *target)
		return
	}
	*target = parsed
}

func overrideEnvBool(target *bool, key string) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return
	}

	// Handle additional truthy and falsy values
	switch strings.ToLower(value) {
	case "1", "t", "true", "yes", "on", "enabled":
		*target = true
	case "0", "f", "false", "no", "off", "disabled":
		*target = false
	default:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Error parsing %s as bool: %v. Keeping %t", key, err, *target)
			return
		}
		*target = boolValue
	}
}

// ValidateDatabaseConfig checks the settings required by commands that
// touch the experiments database.
func ValidateDatabaseConfig() error {
	switch CFG.Database.Provider {
	case ProviderMySQL, ProviderPostgres:
	default:
		return fmt.Errorf("unsupported database provider %q (expected %q or %q)",
			CFG.Database.Provider, ProviderMySQL, ProviderPostgres)
	}

	if CFG.Database.Host == "" {
		return fmt.Errorf("database host is required (set database.host or DB_HOST)")
	}
	if CFG.Database.Name == "" {
		return fmt.Errorf("database name is required (set database.name or DB_NAME)")
	}
	if CFG.Database.Username == "" {
		return fmt.Errorf("database username is required (set database.username or DB_USERNAME)")
	}
	if CFG.Database.Password == "" {
		return fmt.Errorf("database password is required (set database.password or DB_PASSWORD)")
	}

	if CFG.Database.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(CFG.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid database connection max lifetime: %v", err)
		}
	}

	return nil
}

// ValidateBackupsConfig checks the settings required by the backup
// commands and the status server.
func ValidateBackupsConfig() error {
	if CFG.Backups.Directory == "" {
		return fmt.Errorf("backup directory is required (set backups.directory or BACKUP_DIRECTORY)")
	}

	if CFG.Backups.S3.Enabled {
		if CFG.Backups.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket must be specified when the S3 archive is enabled")
		}
		if CFG.Backups.S3.AccessKey == "" || CFG.Backups.S3.SecretKey == "" {
			return fmt.Errorf("S3 access key and secret key must be specified when the S3 archive is enabled")
		}

		if CFG.Backups.S3.CustomCAPath != "" {
			if _, err := os.Stat(CFG.Backups.S3.CustomCAPath); err != nil {
				return fmt.Errorf("custom CA path %s is not accessible: %w", CFG.Backups.S3.CustomCAPath, err)
			}
		}

		if CFG.Backups.S3.CustomCAPath != "" && CFG.Backups.S3.SkipCertValidation {
			log.Printf("Warning: Both custom CA path and skip certificate validation are set. Custom CA will be ignored.")
		}
	}

	return nil
}

// DisplayConfiguration outputs the current configuration in a readable
// format while masking sensitive information.
func DisplayConfiguration() {
	log.Println("========== Experiment Database Configuration ==========")

	log.Printf("Debug Mode: %t", CFG.Debug)
	if CFG.ConfigFile != "" {
		log.Printf("Config File: %s", CFG.ConfigFile)
	}

	log.Println("----- Database -----")
	log.Printf("Provider: %s", CFG.Database.Provider)
	log.Printf("Host: %s", CFG.Database.Host)
	log.Printf("Port: %s", CFG.Database.Port)
	log.Printf("Name: %s", CFG.Database.Name)
	log.Printf("Username: %s", CFG.Database.Username)
	log.Printf("Password: %s", maskSensitiveInfo(CFG.Database.Password))

	log.Println("----- Backups -----")
	log.Printf("Directory: %s", CFG.Backups.Directory)
	log.Printf("Catalog File: %s", CFG.Backups.CatalogFile)

	log.Printf("S3 Archive Enabled: %t", CFG.Backups.S3.Enabled)
	if CFG.Backups.S3.Enabled {
		log.Printf("Bucket: %s", CFG.Backups.S3.Bucket)
		log.Printf("Region: %s", CFG.Backups.S3.Region)
		log.Printf("Endpoint: %s", CFG.Backups.S3.Endpoint)
		log.Printf("Access Key: %s", maskSensitiveInfo(CFG.Backups.S3.AccessKey))
		log.Printf("Secret Key: %s", maskSensitiveInfo(CFG.Backups.S3.SecretKey))
		log.Printf("Prefix: %s", CFG.Backups.S3.Prefix)
		log.Printf("Use SSL: %t", CFG.Backups.S3.UseSSL)
	}

	log.Println("----- Status Server -----")
	log.Printf("Port: %s", CFG.Server.Port)
	log.Printf("Rescan Schedule: %s", CFG.Server.RescanSchedule)
	log.Printf("Metrics Enabled: %t", CFG.Metrics.Enabled)

	log.Println("=======================================================")
}

// maskSensitiveInfo masks sensitive information for logging
func maskSensitiveInfo(info string) string {
	if info == "" {
		return "[not set]"
	}

	if len(info) <= 4 {
		return "****"
	}

	// Show first and last character, mask the rest
	return info[:2] + "****" + info[len(info)-2:]
}
