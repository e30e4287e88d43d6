package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// GetRedisAddress returns host:port of a shared Redis container.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	redisOnce.Do(func() {
		redisAddr, redisErr = startRedis()
	})
	requireContainer(t, "Redis", redisErr)
	return redisAddr
}

func startRedis() (addr string, err error) {
	defer guardStart("Redis", &err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	redisC, err := testcontainers.Run(
		ctx, "redis:7",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		return "", err
	}

	endpoint, err := redisC.Endpoint(ctx, "")
	if err != nil {
		_ = redisC.Terminate(context.Background()) // best-effort cleanup
		return "", err
	}
	return endpoint, nil
}
