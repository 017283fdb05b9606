package redis_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bennyboer/eventsourcing/core"
	"github.com/bennyboer/eventsourcing/core/testsuite"
	"github.com/bennyboer/eventsourcing/eventstore/redis"
)

func TestSuite(t *testing.T) {
	addr := os.Getenv("EVENTSOURCING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skip: EVENTSOURCING_TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: cannot reach redis: %v", err)
	}
	defer client.Close()

	run := time.Now().UnixNano()
	n := 0
	f := func() (core.EventStore, func(), error) {
		n++
		prefix := fmt.Sprintf("eventsourcing-test:%d:%d:", run, n)
		return redis.New(client, prefix), func() {}, nil
	}
	testsuite.Test(t, f)
}
