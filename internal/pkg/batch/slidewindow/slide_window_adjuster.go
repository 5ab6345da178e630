package slidewindow

import (
	"context"
	"sync"
	"time"

	"github.com/JrMarcco/jdelivery/internal/pkg/batch"
	"github.com/JrMarcco/jdelivery/internal/pkg/ringbuffer"
)

var _ batch.Adjuster = (*Adjuster)(nil)

// Adjuster 与滑动窗口内的平均耗时比较：比平均快则放大批次，比平均慢则缩小批次。
type Adjuster struct {
	mu sync.Mutex

	size    int
	minSize int
	maxSize int
	step    int

	window            *ringbuffer.DurationRing
	lastAdjustAt      time.Time
	minAdjustInterval time.Duration
	now               func() time.Time
}

func (a *Adjuster) Adjust(_ context.Context, elapsed time.Duration) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	avg := a.window.Avg()
	full := a.window.Full()
	a.window.Add(elapsed)

	// 窗口写满之前不调整
	if !full {
		return a.size, nil
	}
	if !a.lastAdjustAt.IsZero() && a.now().Sub(a.lastAdjustAt) < a.minAdjustInterval {
		return a.size, nil
	}

	next := a.size
	switch {
	case elapsed < avg:
		next = min(a.size+a.step, a.maxSize)
	case elapsed > avg:
		next = max(a.size-a.step, a.minSize)
	}
	if next != a.size {
		a.size = next
		a.lastAdjustAt = a.now()
	}
	return a.size, nil
}

func NewAdjuster(
	windowSize, initSize, minSize, maxSize, step int, minAdjustInterval time.Duration,
) (*Adjuster, error) {
	window, err := ringbuffer.NewDurationRing(windowSize)
	if err != nil {
		return nil, err
	}

	return &Adjuster{
		size:              min(max(initSize, minSize), maxSize),
		minSize:           minSize,
		maxSize:           maxSize,
		step:              step,
		window:            window,
		minAdjustInterval: minAdjustInterval,
		now:               time.Now,
	}, nil
}
