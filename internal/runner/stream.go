package runner

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sevir/agentrelay/pkg/models"
)

const (
	// readChunkSize matches the 4096-byte reads the pipes are drained with.
	readChunkSize = 4096

	// eventBufferSize keeps pipe back-pressure, not queue back-pressure,
	// as the limiting factor for a reasonably prompt consumer.
	eventBufferSize = 1024
)

// streamItem is one entry on the merged channel: either a data event or a
// stream-closed marker for one of the two pipes.
type streamItem struct {
	event  models.Event
	closed bool
}

// fanIn merges the line events of two concurrent stream readers into one
// channel and tracks how many streams are still open.
type fanIn struct {
	items       chan streamItem
	outstanding int
	wg          sync.WaitGroup
}

func newFanIn() *fanIn {
	return &fanIn{
		items: make(chan streamItem, eventBufferSize),
	}
}

// Add starts one reader goroutine draining r and tagging its lines with
// the given event type. Must be called before Next.
func (f *fanIn) Add(ctx context.Context, r io.Reader, kind models.EventType) {
	f.outstanding++
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		readStream(ctx, r, kind, f.items)
	}()
}

// Next receives the next data event. It returns ok=false once every reader
// has signaled completion, and ctx.Err() when the context ends first.
func (f *fanIn) Next(ctx context.Context) (models.Event, bool, error) {
	for f.outstanding > 0 {
		select {
		case <-ctx.Done():
			return models.Event{}, false, ctx.Err()
		case it := <-f.items:
			if it.closed {
				f.outstanding--
				continue
			}
			return it.event, true, nil
		}
	}
	return models.Event{}, false, nil
}

// Join waits for both reader goroutines to finish. The readers only block
// on pipe reads and context-guarded sends, so cancelling the context and
// terminating the child (which closes the pipes) unblocks them.
func (f *fanIn) Join() {
	f.wg.Wait()
}

// readStream drains one pipe in fixed-size chunks, decodes them, and emits
// one event per complete line as soon as the newline arrives. Any trailing
// partial line is emitted at end of stream, followed by the closed marker.
// A read error counts as end of stream: the run keeps whatever output was
// delivered.
func readStream(ctx context.Context, r io.Reader, kind models.EventType, out chan<- streamItem) {
	dec := &textDecoder{}
	buf := make([]byte, readChunkSize)
	var line strings.Builder

	emit := func(it streamItem) bool {
		select {
		case out <- it:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			text := dec.Decode(buf[:n])
			for {
				idx := strings.IndexByte(text, '\n')
				if idx < 0 {
					line.WriteString(text)
					break
				}
				line.WriteString(text[:idx+1])
				if !emit(streamItem{event: models.OutputEvent(kind, line.String())}) {
					return
				}
				line.Reset()
				text = text[idx+1:]
			}
		}
		if err != nil {
			break
		}
	}

	line.WriteString(dec.Flush())
	if line.Len() > 0 {
		if !emit(streamItem{event: models.OutputEvent(kind, line.String())}) {
			return
		}
	}
	emit(streamItem{closed: true})
}
