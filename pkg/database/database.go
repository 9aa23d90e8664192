// Package database selects and connects the configured experiment store.
package database

import (
	"fmt"
	"log"

	"github.com/ConradKhakhria/robot-database-script/pkg/config"
	"github.com/ConradKhakhria/robot-database-script/pkg/database/common"

	// Register the store providers.
	_ "github.com/ConradKhakhria/robot-database-script/pkg/database/providers/mysql"
	_ "github.com/ConradKhakhria/robot-database-script/pkg/database/providers/postgres"
)

// Store is the interface all experiment store providers implement.
type Store = common.Store

// ExperimentRecord describes one experiment row with its parameter count.
type ExperimentRecord = common.ExperimentRecord

// Connect creates the store named by database.provider in the loaded
// configuration. Callers own the returned store and must Close it.
func Connect() (Store, error) {
	provider := config.CFG.Database.Provider

	factory, exists := common.GetStore(provider)
	if !exists {
		return nil, fmt.Errorf("no store registered for database provider %q (registered: %v)",
			provider, common.RegisteredStores())
	}

	store, err := factory.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", provider, err)
	}

	if config.CFG.Debug {
		log.Printf("%s experiment store initialized", provider)
	}
	return store, nil
}
