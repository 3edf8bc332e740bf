package syncagent

import (
	"context"
	"errors"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// Run processes notifications from in until it is closed or ctx ends.
//
// Notifications are sharded by container over workers goroutines, so one
// container's notifications are handled in order by a single worker while
// distinct containers proceed in parallel. The catalog is marked stale after
// each notification.
func (a *Agent) Run(ctx context.Context, in <-chan Notification, workers int) (Report, error) {
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	shards := make([]chan Notification, workers)
	reports := make([]Report, workers)
	for i := range shards {
		shards[i] = make(chan Notification, 16)
	}

	g.Go(func() error {
		defer func() {
			for _, s := range shards {
				close(s)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case n, ok := <-in:
				if !ok {
					return nil
				}
				select {
				case shards[shardOf(n, workers)] <- n:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	for i := range shards {
		g.Go(func() error {
			for n := range shards[i] {
				if gctx.Err() != nil {
					continue
				}
				var rep Report
				a.handle(gctx, n, &rep)
				a.Catalog.MarkStale("sync: " + n.Kind.String())
				reports[i].Merge(rep)
			}
			return nil
		})
	}

	err := g.Wait()
	var total Report
	for _, r := range reports {
		total.Merge(r)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = ctx.Err()
	}
	total.Err = err
	return total, err
}

func shardOf(n Notification, workers int) int {
	return int(xxhash.Sum64(n.Container[:]) % uint64(workers))
}
