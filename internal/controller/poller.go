package controller

import (
	"context"
	"time"
)

// poller runs tick immediately and then every interval until stopped.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startPoller(interval time.Duration, tick func(ctx context.Context)) *poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}
	go p.run(ctx, interval, tick)
	return p
}

func (p *poller) run(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	defer close(p.done)

	tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// stop cancels the loop, including any in-flight tick, and waits for it to exit.
func (p *poller) stop() {
	p.cancel()
	<-p.done
}
