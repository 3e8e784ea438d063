package testutil

import (
	"os"
	"testing"
	"time"

	"slotbook/pkg/client"
	"slotbook/pkg/config"
	"slotbook/pkg/logger"
)

type TestEnv struct {
	MongoURI     string
	DatabaseName string
}

// NewTestEnv reads the integration test environment. Tests are skipped when
// TEST_MONGO_URI is unset so the suite only runs against a provisioned
// database.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	mongoURI := os.Getenv("TEST_MONGO_URI")
	if mongoURI == "" {
		t.Skip("TEST_MONGO_URI not set, skipping integration tests")
	}

	dbName := os.Getenv("TEST_DB_NAME")
	if dbName == "" {
		dbName = DefaultDatabaseName
	}

	return &TestEnv{
		MongoURI:     mongoURI,
		DatabaseName: dbName,
	}
}

// RepositoryConfig builds a service config wired to the test database, so
// repositories under test run against the same handle the helper cleans up.
func RepositoryConfig(m *MongoHelper) *config.Config {
	cfg := &config.Config{
		MongoDatabaseName: m.DBName,
		StoreReadTimeout:  5 * time.Second,
		StoreWriteTimeout: 5 * time.Second,
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "events-integration-tests",
		}),
		Client: client.NewClient(),
	}
	cfg.Client.Mongo = m.Client
	return cfg
}
