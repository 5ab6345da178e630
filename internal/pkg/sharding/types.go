package sharding

// Strategy job 分区策略，调度器按分区并行推进 job。
type Strategy interface {
	// Partition 计算 job 所属分区
	Partition(jobId string) uint64
	// BroadCast 返回全部分区
	BroadCast() []uint64
}
