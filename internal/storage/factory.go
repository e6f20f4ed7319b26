package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/storage/badger"
)

// NewStorageManager creates a storage manager backed by Badger
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	logger.Info().Str("path", config.Storage.Badger.Path).Msg("Initializing Badger storage")
	return badger.NewManager(logger, &config.Storage.Badger)
}
