package transport

import "context"

// DefaultQueueDepth is the default number of pending events an EventLoop buffers.
const DefaultQueueDepth = 16

// EventLoop serializes completions onto the goroutine that calls HandleEvents.
type EventLoop struct {
	events chan func()
}

// NewEventLoop creates an event loop buffering up to depth pending events.
func NewEventLoop(depth int) *EventLoop {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &EventLoop{events: make(chan func(), depth)}
}

// Post queues fn to run on the event goroutine. It blocks while the queue is
// full and gives up when ctx is done.
func (l *EventLoop) Post(ctx context.Context, fn func()) error {
	select {
	case l.events <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvents waits for one event and runs it on the calling goroutine.
func (l *EventLoop) HandleEvents(ctx context.Context) error {
	select {
	case fn := <-l.events:
		fn()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued events.
func (l *EventLoop) Pending() int {
	return len(l.events)
}
