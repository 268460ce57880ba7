package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCronScheduler_SkipsConcurrentRunOfSameTask(t *testing.T) {
	s := NewCronScheduler()
	var running int32
	var maxConcurrent int32
	var wg sync.WaitGroup

	task := CronTask{
		Name: "slow",
		Spec: "@every 1s",
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			if n > atomic.LoadInt32(&maxConcurrent) {
				atomic.StoreInt32(&maxConcurrent, n)
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		},
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer wg.Done()
			s.runOnce(context.Background(), task)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
}
