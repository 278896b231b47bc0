package transfer

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Progress counts transferred objects and bytes. It is shared by all workers
// of a run.
type Progress struct {
	objects uint64
	bytes   uint64
	failed  uint64
}

func (p *Progress) addBytes(n int64) {
	atomic.AddUint64(&p.bytes, uint64(n))
}

func (p *Progress) objectDone() {
	atomic.AddUint64(&p.objects, 1)
}

func (p *Progress) objectFailed() {
	atomic.AddUint64(&p.failed, 1)
}

func (p *Progress) Objects() uint64 { return atomic.LoadUint64(&p.objects) }

func (p *Progress) Bytes() uint64 { return atomic.LoadUint64(&p.bytes) }

func (p *Progress) Failed() uint64 { return atomic.LoadUint64(&p.failed) }

func (p *Progress) String() string {
	return fmt.Sprintf("%d objects, %s transferred, %d failed",
		p.Objects(), humanize.Bytes(p.Bytes()), p.Failed())
}
