// Package common defines the store interface shared by all database providers.
package common

import (
	"context"
	"errors"

	"github.com/ConradKhakhria/robot-database-script/pkg/experiment"
)

// Table and column names of the experiments schema. The schema itself is
// managed outside this tool; both providers address it by these names.
const (
	TableExperiments = "Experiments"
	TableParameters  = "ExperimentParameters"

	ColumnExperimentID  = "ExperimentID"
	ColumnUserDefinedID = "UserDefinedID"
	ColumnParameterName = "ParameterName"
	ColumnParamValue    = "ParamValueTxt"
)

// Sentinel errors returned by store implementations.
var (
	// ErrNotFound indicates no experiment matched the given user-defined ID.
	ErrNotFound = errors.New("experiment not found")

	// ErrDuplicateID indicates an experiment with the same user-defined ID
	// already exists.
	ErrDuplicateID = errors.New("an experiment with this UserDefinedID already exists")
)

// ExperimentRecord describes one row of the Experiments table along with the
// number of parameter rows attached to it.
type ExperimentRecord struct {
	ExperimentID   int64  `json:"experimentId"`
	UserDefinedID  string `json:"userDefinedId"`
	ParameterCount int64  `json:"parameterCount"`
}

// Store is the interface all experiment store providers must implement.
type Store interface {
	// Name returns the provider name (e.g., "mysql", "postgres")
	Name() string

	// Ping verifies the database connection is alive
	Ping(ctx context.Context) error

	// CreateExperiment inserts a new experiment and its parameters in a
	// single transaction and returns the database-assigned experiment ID.
	// If an experiment with the same user-defined ID already exists, the
	// returned error wraps ErrDuplicateID and nothing is written.
	CreateExperiment(ctx context.Context, def *experiment.Definition) (int64, error)

	// GetExperimentID returns the database-assigned ID for a user-defined
	// ID, or an error wrapping ErrNotFound.
	GetExperimentID(ctx context.Context, userDefinedID string) (int64, error)

	// ListExperiments returns up to limit experiments, newest first.
	// A limit of zero or less means no limit.
	ListExperiments(ctx context.Context, limit int) ([]ExperimentRecord, error)

	// CountExperiments returns the number of rows in the Experiments table
	CountExperiments(ctx context.Context) (int64, error)

	// CountParameters returns the number of rows in the ExperimentParameters table
	CountParameters(ctx context.Context) (int64, error)

	// Close releases the database connection
	Close() error
}

// StoreFactory creates store instances from the loaded configuration.
type StoreFactory interface {
	// Create connects to the database and returns a ready store
	Create() (Store, error)
}

// storeFactories stores the registered store factories by provider name
var storeFactories = make(map[string]StoreFactory)

// RegisterStore registers a store factory with the given provider name.
// This should be called from the init() function of each provider package.
func RegisterStore(name string, factory StoreFactory) {
	storeFactories[name] = factory
}

// GetStore returns the factory registered for the given provider name.
func GetStore(name string) (StoreFactory, bool) {
	factory, exists := storeFactories[name]
	return factory, exists
}

// RegisteredStores returns the names of all registered providers.
func RegisteredStores() []string {
	names := make([]string, 0, len(storeFactories))
	for name := range storeFactories {
		names = append(names, name)
	}
	return names
}
