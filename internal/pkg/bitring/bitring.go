package bitring

import (
	"sync"
)

const (
	bitsPerWord = 64              // uint64 位数
	bitsMask    = bitsPerWord - 1 // 位操作掩码: 0x3f
	bitsShift   = 6               // log2(64)

	defaultWindowSize     = 128
	defaultMinConsecutive = 3
)

// BitRing 用比特环记录最近 windowSize 次结果的滑动窗口。
// 调度器用它统计推进失败，连续失败或失败率超过阈值时暂停当前分区。
type BitRing struct {
	mu sync.RWMutex

	words []uint64

	windowSize int
	writePos   int // 下一次写入位置
	isFull     bool

	failedCnt            int
	consecutiveThreshold int
	rateThreshold        float64
}

// Record 记录一次结果，failed = true 表示失败。
func (br *BitRing) Record(failed bool) {
	br.mu.Lock()
	defer br.mu.Unlock()

	// 窗口已满时被覆盖的旧结果移出统计
	if br.isFull && br.bitAt(br.writePos) {
		br.failedCnt--
	}
	br.setBit(br.writePos, failed)
	if failed {
		br.failedCnt++
	}

	br.writePos++
	if br.writePos >= br.windowSize {
		br.writePos = 0
		br.isFull = true
	}
}

// Exceeded 最近连续失败次数达到阈值，或者窗口内失败率超过阈值。
func (br *BitRing) Exceeded() bool {
	br.mu.RLock()
	defer br.mu.RUnlock()

	size := br.size()
	if size == 0 {
		return false
	}

	if size >= br.consecutiveThreshold && br.tailAllFailed() {
		return true
	}
	return float64(br.failedCnt)/float64(size) > br.rateThreshold
}

// Reset 清空窗口，分区暂停结束后重新统计。
func (br *BitRing) Reset() {
	br.mu.Lock()
	defer br.mu.Unlock()

	clear(br.words)
	br.writePos = 0
	br.isFull = false
	br.failedCnt = 0
}

func (br *BitRing) tailAllFailed() bool {
	for i := 1; i <= br.consecutiveThreshold; i++ {
		if !br.bitAt((br.writePos - i + br.windowSize) % br.windowSize) {
			return false
		}
	}
	return true
}

func (br *BitRing) size() int {
	if br.isFull {
		return br.windowSize
	}
	return br.writePos
}

func (br *BitRing) bitAt(index int) bool {
	return (br.words[index>>bitsShift]>>uint(index&bitsMask))&1 == 1
}

func (br *BitRing) setBit(index int, val bool) {
	pos, offset := index>>bitsShift, uint(index&bitsMask)
	if val {
		br.words[pos] |= 1 << offset
		return
	}
	br.words[pos] &^= 1 << offset
}

func NewBitRing(windowSize int, consecutiveThreshold int, rateThreshold float64) *BitRing {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	if consecutiveThreshold <= 0 {
		consecutiveThreshold = defaultMinConsecutive
	}
	consecutiveThreshold = min(consecutiveThreshold, windowSize)
	rateThreshold = min(rateThreshold, 1)

	return &BitRing{
		words:                make([]uint64, (windowSize+bitsMask)/bitsPerWord),
		windowSize:           windowSize,
		consecutiveThreshold: consecutiveThreshold,
		rateThreshold:        rateThreshold,
	}
}
