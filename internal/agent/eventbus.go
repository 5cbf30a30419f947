package agent

import "github.com/xonecas/agentcore/internal/message"

// eventBus is a single-producer/single-consumer channel with an unbounded
// internal buffer: emit never blocks on a slow consumer. The loop is the
// sole producer; callers drain out at their own pace.
type eventBus struct {
	in  chan message.Event
	out chan message.Event
}

func newEventBus() *eventBus {
	b := &eventBus{in: make(chan message.Event), out: make(chan message.Event)}
	go b.pump()
	return b
}

func (b *eventBus) pump() {
	defer close(b.out)
	var buf []message.Event
	in := b.in
	for {
		if len(buf) == 0 {
			ev, ok := <-in
			if !ok {
				return
			}
			buf = append(buf, ev)
			continue
		}
		select {
		case ev, ok := <-in:
			if !ok {
				for _, pending := range buf {
					b.out <- pending
				}
				return
			}
			buf = append(buf, ev)
		case b.out <- buf[0]:
			buf = buf[1:]
		}
	}
}

func (b *eventBus) emit(ev message.Event) { b.in <- ev }

func (b *eventBus) close() { close(b.in) }
