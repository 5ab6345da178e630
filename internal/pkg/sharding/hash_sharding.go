package sharding

import (
	"github.com/cespare/xxhash/v2"
)

var _ Strategy = (*HashStrategy)(nil)

// HashStrategy xxhash 实现的分区策略。
type HashStrategy struct {
	partitions uint64
}

func (h HashStrategy) Partition(jobId string) uint64 {
	return xxhash.Sum64String(jobId) % h.partitions
}

func (h HashStrategy) BroadCast() []uint64 {
	res := make([]uint64, 0, h.partitions)
	for i := uint64(0); i < h.partitions; i++ {
		res = append(res, i)
	}
	return res
}

func NewHashStrategy(partitions uint64) HashStrategy {
	if partitions == 0 {
		partitions = 1
	}
	return HashStrategy{
		partitions: partitions,
	}
}
