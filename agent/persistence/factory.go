package persistence

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

// Backends carries the shared clients a store may be built on. Stores
// built on injected clients never close them.
type Backends struct {
	Redis redis.UniversalClient
	DB    *gorm.DB
	Mongo *mongo.Database
}

// NewCheckpointStore creates a CheckpointStore based on the configuration
func NewCheckpointStore(config StoreConfig, backends Backends) (CheckpointStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(config.BaseDir)
	case StoreTypeRedis:
		if backends.Redis != nil {
			return NewRedisStoreWithClient(backends.Redis, config.KeyPrefix), nil
		}
		return NewRedisStore(config)
	case StoreTypeSQL:
		if backends.DB == nil {
			return nil, fmt.Errorf("sql checkpoint store requires a database connection")
		}
		return NewSQLStore(backends.DB)
	case StoreTypeMongo:
		if backends.Mongo == nil {
			return nil, fmt.Errorf("mongo checkpoint store requires a mongo database")
		}
		return NewMongoStore(backends.Mongo, config.Collection)
	default:
		return nil, fmt.Errorf("unsupported checkpoint store type: %s", config.Type)
	}
}

// MustNewCheckpointStore creates a new CheckpointStore or panics on error.
//
// WARNING: This function should ONLY be used during application initialization
// (e.g., in main() or init()). For runtime store creation, use
// NewCheckpointStore instead.
func MustNewCheckpointStore(config StoreConfig, backends Backends) CheckpointStore {
	store, err := NewCheckpointStore(config, backends)
	if err != nil {
		panic(fmt.Sprintf("failed to create checkpoint store: %v", err))
	}
	return store
}
