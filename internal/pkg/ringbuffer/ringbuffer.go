package ringbuffer

import (
	"fmt"
	"sync"
	"time"
)

var ErrInvalidBufferSize = fmt.Errorf("[jdelivery] ring buffer size must be greater than zero")

// DurationRing 固定容量的耗时环形缓冲，写满后覆盖最早的记录。
type DurationRing struct {
	mu sync.RWMutex

	items []time.Duration
	next  int
	count int
	sum   time.Duration
}

func (r *DurationRing) Add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.items) {
		r.sum -= r.items[r.next]
	} else {
		r.count++
	}
	r.items[r.next] = d
	r.sum += d
	r.next = (r.next + 1) % len(r.items)
}

// Avg 当前窗口内的平均耗时，没有记录时返回 0。
func (r *DurationRing) Avg() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return 0
	}
	return r.sum / time.Duration(r.count)
}

// Full 窗口是否已经写满
func (r *DurationRing) Full() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count == len(r.items)
}

func (r *DurationRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *DurationRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.items)
	r.next, r.count, r.sum = 0, 0, 0
}

func NewDurationRing(size int) (*DurationRing, error) {
	if size <= 0 {
		return nil, ErrInvalidBufferSize
	}
	return &DurationRing{items: make([]time.Duration, size)}, nil
}
