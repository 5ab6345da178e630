package sharding

import "context"

type partitionKey struct{}

// ContextWithPartition 把当前处理的分区放进 context
func ContextWithPartition(ctx context.Context, partition uint64) context.Context {
	return context.WithValue(ctx, partitionKey{}, partition)
}

func PartitionFromContext(ctx context.Context) (uint64, bool) {
	partition, ok := ctx.Value(partitionKey{}).(uint64)
	return partition, ok
}
