package transfer

import (
	"context"
	"sync"

	"github.com/sciobjsdb/sodb/pkg/sodb"
)

const DefaultQueueSize = 500

// Item is one unit of download work: an object and the name of the object
// group it was listed under.
type Item struct {
	Object    sodb.Object
	GroupName string
}

// Queue is the bounded hand-off between enumeration and the download pool.
// It has a single closer; Close may be called more than once.
type Queue struct {
	ch   chan Item
	once sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Item, size)}
}

// Send blocks while the queue is full. It returns ctx.Err() if ctx is done
// before the item could be queued.
func (q *Queue) Send(ctx context.Context, item Item) error {
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the channel consumers range over. It is closed once the
// producers are done and every queued item has been received.
func (q *Queue) Receive() <-chan Item {
	return q.ch
}

func (q *Queue) Close() {
	q.once.Do(func() { close(q.ch) })
}
