package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 把大量文本切成小批次，在工作池中并行调用嵌入客户端，结果保持输入顺序
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Client 返回底层嵌入客户端
func (p *BatchProcessor) Client() Client {
	return p.client
}

// Process 处理一批文本，任一批次失败则整体失败
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := splitIntoBatches(texts, p.batchSize)
	results := make([][][]float32, len(batches))

	var processingErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() {
			processingErr = err
			cancel()
		})
	}

	wp := workerpool.New(p.maxWorkers)
	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err != nil {
				fail(fmt.Errorf("batch %d processing error: %w", i, err))
				return
			}
			if len(vectors) != len(batch) {
				fail(fmt.Errorf("batch %d: %w", i, NewEmbeddingError(ErrCodeDimension, ErrMsgDimension)))
				return
			}
			// 每个批次写入自己的槽位，不需要加锁
			results[i] = vectors
		})
	}
	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}

	all := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		all = append(all, vectors...)
	}
	return all, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
