package jobs

import (
	"context"
	"sync"
	"time"

	"ticketpay/internal/logger"
)

// ticker runs fn every interval until Stop. The first run happens immediately and
// runs never overlap.
type ticker struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newTicker(name string, interval time.Duration, fn func(ctx context.Context)) *ticker {
	return &ticker{name: name, interval: interval, fn: fn, done: make(chan struct{})}
}

func (t *ticker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	logger.Get().Info("Starting job", "job", t.name, "interval", t.interval.String())

	go func() {
		defer close(t.done)
		tk := time.NewTicker(t.interval)
		defer tk.Stop()

		for {
			t.fn(ctx)
			select {
			case <-tk.C:
			case <-ctx.Done():
				logger.Get().Info("Job stopped", "job", t.name)
				return
			}
		}
	}()
}

// Stop cancels the job and waits for an in-flight run to return.
func (t *ticker) Stop() {
	t.once.Do(func() {
		if t.cancel == nil {
			return
		}
		t.cancel()
		<-t.done
	})
}
