package master

import (
	"context"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
)

func (l *Loop) submit(ctx context.Context, ev any) error {
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

func await[T any](ctx context.Context, l *Loop, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-l.done:
		// a reply may have raced with shutdown
		select {
		case v := <-ch:
			return v, nil
		default:
		}
		var zero T
		return zero, ErrStopped
	}
}

// Join assigns a dense worker id to uuid; joining again returns the same id.
func (l *Loop) Join(ctx context.Context, uuid string) (JoinInfo, error) {
	ev := &joinEvent{uuid: uuid, reply: make(chan joinReply, 1)}
	if err := l.submit(ctx, ev); err != nil {
		return JoinInfo{}, err
	}
	r, err := await(ctx, l, ev.reply)
	if err != nil {
		return JoinInfo{}, err
	}
	return r.info, r.err
}

// Initialize starts the solve from the root node sent by worker 0.
func (l *Loop) Initialize(ctx context.Context, workerID int, bestObjective float64, root *domain.Node) error {
	ev := &initializeEvent{workerID: workerID, bestObjective: bestObjective, root: root, reply: make(chan error, 1)}
	if err := l.submit(ctx, ev); err != nil {
		return err
	}
	r, err := await(ctx, l, ev.reply)
	if err != nil {
		return err
	}
	return r
}

// Update submits a worker report and waits for that worker's next delivery.
func (l *Loop) Update(ctx context.Context, workerID int, u dispatcher.Update) (dispatcher.Delivery, error) {
	ev := &updateEvent{workerID: workerID, update: u, reply: make(chan updateReply, 1)}
	if err := l.submit(ctx, ev); err != nil {
		return dispatcher.Delivery{}, err
	}
	r, err := await(ctx, l, ev.reply)
	if err != nil {
		return dispatcher.Delivery{}, err
	}
	if r.err != nil {
		return dispatcher.Delivery{}, r.err
	}
	dl, err := await(ctx, l, r.deliveries)
	if err == nil && dl.Kind == 0 {
		// closed by supersede
		return dispatcher.Delivery{}, ErrSuperseded
	}
	return dl, err
}

// Finalize records that the worker finished and returns the final bound.
func (l *Loop) Finalize(ctx context.Context, workerID int) (FinalizeInfo, error) {
	ev := &finalizeEvent{workerID: workerID, reply: make(chan finalizeReply, 1)}
	if err := l.submit(ctx, ev); err != nil {
		return FinalizeInfo{}, err
	}
	r, err := await(ctx, l, ev.reply)
	if err != nil {
		return FinalizeInfo{}, err
	}
	return r.info, r.err
}

// Log relays a worker log line through the dispatcher logger.
func (l *Loop) Log(ctx context.Context, workerID int, level, message string) error {
	return l.submit(ctx, &logEvent{workerID: workerID, level: level, message: message})
}

// Snapshot exports the current queue. initialized is false before the solve
// starts and after it finalized.
func (l *Loop) Snapshot(ctx context.Context) (snap domain.Snapshot, initialized bool, err error) {
	ev := &snapshotEvent{reply: make(chan snapshotReply, 1)}
	if err := l.submit(ctx, ev); err != nil {
		return domain.Snapshot{}, false, err
	}
	r, err := await(ctx, l, ev.reply)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return r.snap, r.initialized, nil
}

// Stats returns the dispatcher state.
func (l *Loop) Stats(ctx context.Context) (dispatcher.Stats, error) {
	ev := &statsEvent{reply: make(chan dispatcher.Stats, 1)}
	if err := l.submit(ctx, ev); err != nil {
		return dispatcher.Stats{}, err
	}
	return await(ctx, l, ev.reply)
}

// WorkerLost reports that the worker registered under uuid disappeared.
func (l *Loop) WorkerLost(ctx context.Context, uuid string) error {
	return l.submit(ctx, &workerLostEvent{uuid: uuid})
}

// Abort stops the loop with err.
func (l *Loop) Abort(ctx context.Context, err error) error {
	return l.submit(ctx, &abortEvent{err: err})
}
