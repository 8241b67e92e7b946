package store

import (
	"context"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/ai"
	"golang.org/x/sync/errgroup"
)

// ChunkRange calls fn for consecutive [start,end) windows of at most
// chunkSize over total items.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings drops empty and repeated values, keeping first occurrences.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// GenerateEmbeddings embeds inputs in batches of batchSize. Providers that
// implement ai.BatchEmbedder get one request per batch; others get one
// request per input, run concurrently.
func GenerateEmbeddings(
	ctx context.Context,
	client ai.Embedder,
	inputs [][]byte,
	batchSize int,
) ([][]float32, error) {
	if client == nil {
		return nil, fmt.Errorf("embedding client is nil")
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(inputs))
	b, batched := client.(ai.BatchEmbedder)

	eg, ectx := errgroup.WithContext(ctx)
	err := ChunkRange(len(inputs), batchSize, func(start, end int) error {
		eg.Go(func() error {
			if batched {
				res, err := b.GenerateEmbeddings(ectx, inputs[start:end])
				if err != nil {
					return err
				}
				if len(res) != end-start {
					return fmt.Errorf("embedding batch size mismatch: got %d want %d", len(res), end-start)
				}
				copy(out[start:end], res)
				return nil
			}
			for i := start; i < end; i++ {
				emb, err := client.GenerateEmbedding(ectx, inputs[i])
				if err != nil {
					return err
				}
				out[i] = emb
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
