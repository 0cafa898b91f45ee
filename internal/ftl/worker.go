package ftl

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"hcftl/internal/reqring"
	"hcftl/internal/request"
)

// pollInterval is how long the worker sleeps between empty-ring polls,
// standing in for a tight busy loop without pegging a core in tests
// and local runs.
const pollInterval = time.Millisecond

// Run drives the single-threaded cooperative worker: dequeue, service
// fully (including any foreground GC), enqueue the completion, repeat,
// until ctx is cancelled or a request fails fatally
// (AllocationExhausted). It is supervised with
// golang.org/x/sync/errgroup so a fatal error stops the worker and is
// returned from Run rather than being swallowed.
func (c *Core) Run(ctx context.Context, in *reqring.Ring[*request.Request], out *reqring.Ring[*request.Completion]) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.serviceLoop(ctx, in, out)
	})
	return g.Wait()
}

func (c *Core) serviceLoop(ctx context.Context, in *reqring.Ring[*request.Request], out *reqring.Ring[*request.Completion]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, ok := in.Pop()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}

		comp, err := c.Dispatch(req)
		if err != nil {
			return errors.Wrap(err, "ftl: worker aborting on fatal allocation failure")
		}

		for !out.Push(&comp) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			time.Sleep(pollInterval)
		}
	}
}
