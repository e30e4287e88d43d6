package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// GetMongoURI returns the MongoDB URI for a shared Mongo container.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	mongoOnce.Do(func() {
		mongoURI, mongoErr = startMongo()
	})
	requireContainer(t, "Mongo", mongoErr)
	return mongoURI
}

func startMongo() (uri string, err error) {
	defer guardStart("Mongo", &err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	mongoC, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start MongoDB testcontainer: %w", err)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		_ = mongoC.Terminate(context.Background())
		return "", fmt.Errorf("failed to get MongoDB container host: %w", err)
	}

	port, err := mongoC.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = mongoC.Terminate(context.Background())
		return "", fmt.Errorf("failed to get MongoDB container mapped port: %w", err)
	}

	// Force IPv4 loopback to avoid [::1]:port problems.
	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}

	return fmt.Sprintf("mongodb://%s:%s", host, port.Port()), nil
}
