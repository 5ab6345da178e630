package job

import (
	"context"
	"sync"

	"github.com/JrMarcco/jdelivery/internal/errs"
)

// ResourceSemaphore 控制单个实例同时持有的分区数量
type ResourceSemaphore interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

var _ ResourceSemaphore = (*MaxCntResourceSemaphore)(nil)

type MaxCntResourceSemaphore struct {
	mu sync.Mutex

	maxCnt  int
	currCnt int
}

func (s *MaxCntResourceSemaphore) Acquire(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currCnt >= s.maxCnt {
		return errs.ErrAcquireExceeded
	}
	s.currCnt++
	return nil
}

func (s *MaxCntResourceSemaphore) Release(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currCnt > 0 {
		s.currCnt--
	}
	return nil
}

// UpdateMaxCnt 运行时调整上限，已持有的分区不受影响。
func (s *MaxCntResourceSemaphore) UpdateMaxCnt(maxCnt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxCnt = maxCnt
}

func NewMaxCntResourceSemaphore(maxCnt int) *MaxCntResourceSemaphore {
	return &MaxCntResourceSemaphore{
		maxCnt: maxCnt,
	}
}
