package memory

import (
	"context"
	"sort"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"gonum.org/v1/gonum/blas/gonum"
)

var blas gonum.Implementation

func norm(v []float32) float32 {
	return blas.Snrm2(len(v), v, 1)
}

// cosine returns the cosine similarity of q and c clamped to [0,1]. Vectors
// of different length or zero norm score 0.
func cosine(q []float32, qNorm float32, c []float32, cNorm float32) float64 {
	if len(q) != len(c) || qNorm == 0 || cNorm == 0 {
		return 0
	}
	sim := float64(blas.Sdot(len(q), q, 1, c, 1)) / (float64(qNorm) * float64(cNorm))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

type scored struct {
	rec   *chunkRecord
	score float64
}

// Search scans every chunk of the current snapshot. Personal knowledge bases
// are small enough that an exact scan beats maintaining an ANN index.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]store.ChunkHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	snap := s.load()
	qNorm := norm(embedding)

	results := make([]scored, len(snap.chunks))
	for i := range snap.chunks {
		rec := &snap.chunks[i]
		results[i] = scored{rec: rec, score: cosine(embedding, qNorm, rec.chunk.Embedding, rec.norm)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].rec.seq < results[j].rec.seq
	})
	if len(results) > topK {
		results = results[:topK]
	}

	hits := make([]store.ChunkHit, 0, len(results))
	for _, r := range results {
		c := r.rec.chunk
		ids := make([]string, 0, len(c.EntityIDs))
		names := make([]string, 0, len(c.EntityIDs))
		types := make([]string, 0, len(c.EntityIDs))
		for _, id := range c.EntityIDs {
			if e, ok := snap.entities[id]; ok {
				ids = append(ids, id)
				names = append(names, e.Name)
				types = append(types, string(e.Type))
			}
		}
		hits = append(hits, store.ChunkHit{
			ChunkID:     c.ID,
			DocID:       c.DocID,
			SourceDoc:   snap.documents[c.DocID].Filename,
			Text:        c.Text,
			Score:       r.score,
			EntityIDs:   ids,
			EntityNames: names,
			EntityTypes: types,
		})
	}
	return hits, nil
}
