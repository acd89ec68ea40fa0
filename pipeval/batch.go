package pipeval

import (
	"context"
	"errors"
	"sync"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunBatch evaluates pkts concurrently with ev.
// fn is called for each packet in input order, with the error from Eval.
// Packets which fault with a FieldError are reported and the batch continues.
// A StructuralError stops the batch, and is returned after the packets before it are reported.
func RunBatch(ctx context.Context, ev *Evaluator, pkts []Packet, fn func(i int, res Result, err error) error) error {
	type outcome struct {
		res  Result
		err  error
		done bool
	}
	outs := make([]outcome, len(pkts))

	var (
		mu sync.Mutex
		// stop is the index of the first packet with a StructuralError.
		stop    = len(pkts)
		cancels = make(map[int]context.CancelFunc)
	)
	stopped := func(i int) bool {
		mu.Lock()
		defer mu.Unlock()
		return i > stop
	}
	start := func(i int) (context.Context, bool) {
		mu.Lock()
		defer mu.Unlock()
		if i > stop {
			return nil, false
		}
		pctx, cf := context.WithCancel(ctx)
		cancels[i] = cf
		return pctx, true
	}
	// finish releases packet i. A structural failure cancels the packets after i,
	// the packets before it run to completion.
	finish := func(i int, structural bool) {
		mu.Lock()
		defer mu.Unlock()
		cancels[i]()
		delete(cancels, i)
		if structural && i < stop {
			stop = i
			for j, cf := range cancels {
				if j > i {
					cf()
				}
			}
		}
	}

	var eg errgroup.Group
	eg.SetLimit(ev.cfg.Parallelism)
	for i := range pkts {
		if ctx.Err() != nil || stopped(i) {
			break
		}
		eg.Go(func() error {
			pctx, ok := start(i)
			if !ok {
				return nil
			}
			res, err := ev.Eval(pctx, pkts[i])
			outs[i] = outcome{res: res, err: err, done: true}
			var serr StructuralError
			finish(i, errors.As(err, &serr))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, out := range outs {
		if !out.done {
			return ctx.Err()
		}
		if ctx.Err() != nil && errors.Is(out.err, ctx.Err()) {
			return ctx.Err()
		}
		var ferr FieldError
		if errors.As(out.err, &ferr) {
			logctx.Warnf(ctx, "packet %d faulted: %v", i, out.err)
		}
		if err := fn(i, out.res, out.err); err != nil {
			return err
		}
		var serr StructuralError
		if errors.As(out.err, &serr) {
			logctx.Error(ctx, "stopping batch", zap.Int("packet", i), zap.Error(out.err))
			return out.err
		}
	}
	return nil
}
