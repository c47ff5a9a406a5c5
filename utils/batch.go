// Package utils 批量并发与文件哈希工具
package utils

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchConfig 批量操作配置
type BatchConfig struct {
	// BatchSize 每批数量
	BatchSize int
	// Concurrency 并发批次数
	Concurrency int
	// OnProgress 进度回调函数（每完成一批调用一次）
	OnProgress func(progress BatchProgress)
}

// BatchProgress 批量操作进度
type BatchProgress struct {
	// Completed 已完成数量
	Completed int
	// Total 总数量
	Total int
	// Percentage 进度百分比（0-100）
	Percentage int
}

// DefaultBatchConfig 返回默认批量配置
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:   50,
		Concurrency: 5,
	}
}

// Chunk 将切片按 size 分批，最后一批可能不足 size
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchConfig().BatchSize
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

// BatchQuery 分批并发查询
//
// queryFn 收到一批输入及其在 items 中的起始下标，必须返回与该批等长的结果。
// 结果顺序与 items 一致；任一批失败即取消其余批次并返回该错误。
//
// 示例：
//
//	infos, err := BatchQuery(ctx, ids, func(ctx context.Context, batch []types.ObjectID, offset int) ([]*types.ObjectInfo, error) {
//	    return node.multiGet(ctx, batch)
//	}, DefaultBatchConfig())
func BatchQuery[T any, R any](
	ctx context.Context,
	items []T,
	queryFn func(ctx context.Context, batch []T, offset int) ([]R, error),
	config *BatchConfig,
) ([]R, error) {
	cfg := *DefaultBatchConfig()
	if config != nil {
		if config.BatchSize > 0 {
			cfg.BatchSize = config.BatchSize
		}
		if config.Concurrency > 0 {
			cfg.Concurrency = config.Concurrency
		}
		cfg.OnProgress = config.OnProgress
	}

	results := make([]R, len(items))
	var (
		progressMu sync.Mutex
		completed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	for i, batch := range Chunk(items, cfg.BatchSize) {
		offset, batch := i*cfg.BatchSize, batch
		g.Go(func() error {
			out, err := queryFn(gctx, batch, offset)
			if err != nil {
				return err
			}
			if len(out) != len(batch) {
				return &BatchSizeError{Offset: offset, Want: len(batch), Got: len(out)}
			}
			copy(results[offset:], out)

			if cfg.OnProgress != nil {
				progressMu.Lock()
				completed += len(batch)
				cfg.OnProgress(BatchProgress{
					Completed:  completed,
					Total:      len(items),
					Percentage: completed * 100 / len(items),
				})
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ParallelExecute 并行执行多个操作
//
// 对每个输入调用 executeFn，最多 concurrency 个同时进行；结果顺序与 items 一致，
// 任一操作失败即取消其余操作。
func ParallelExecute[T any, R any](
	ctx context.Context,
	items []T,
	executeFn func(ctx context.Context, item T) (R, error),
	concurrency int,
) ([]R, error) {
	return BatchQuery(ctx, items, func(ctx context.Context, batch []T, _ int) ([]R, error) {
		r, err := executeFn(ctx, batch[0])
		if err != nil {
			return nil, err
		}
		return []R{r}, nil
	}, &BatchConfig{BatchSize: 1, Concurrency: concurrency})
}
