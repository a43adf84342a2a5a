package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	testMongoURI     string
	testMongoURIOnce sync.Once
)

// loadTestEnv loads the project .env file and resolves the Mongo URI used by tests.
// MONGO_URI_TEST wins over MONGO_URI; a local server is the fallback.
func loadTestEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		_ = godotenv.Load()
	}

	testMongoURI = os.Getenv("MONGO_URI_TEST")
	if testMongoURI == "" {
		testMongoURI = os.Getenv("MONGO_URI")
	}
	if testMongoURI == "" {
		testMongoURI = "mongodb://localhost:27017"
	}
}

// SetupTestDB connects to a fresh, uniquely named test database and drops it when the test ends.
// The test is skipped when MongoDB is not reachable.
func SetupTestDB(t *testing.T, prefix string) *mongo.Database {
	t.Helper()
	uri := GetTestMongoURI()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	require.NoError(t, err, "Failed to create MongoDB client")
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("MongoDB not reachable at %s: %v", uri, err)
	}

	db := client.Database(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

// GetTestMongoURI returns the test MongoDB URI for direct use if needed
func GetTestMongoURI() string {
	testMongoURIOnce.Do(loadTestEnv)
	return testMongoURI
}

// SetupTestRedis connects to the test Redis (REDIS_ADDR_TEST, DB 15) and
// skips the test when it is not reachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	testMongoURIOnce.Do(loadTestEnv)
	addr := os.Getenv("REDIS_ADDR_TEST")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
