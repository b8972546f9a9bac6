package index

import (
	"container/heap"
	"context"
	"math"
	"sort"

	"msgmcp/internal/model"
)

// EmbeddedSource pages through messages that carry a committed vector.
type EmbeddedSource interface {
	GetEmbeddedMessagesBatch(ctx context.Context, limit, offset int) ([]model.Message, error)
	CurrentEmbeddingVersion(ctx context.Context) (int, error)
}

// Searcher scans embedded messages and ranks them by cosine similarity
// against a query vector. Vectors produced at a stale embedding version are
// skipped rather than compared, so a reindex in progress can never surface
// results from two incompatible vector spaces.
type Searcher struct {
	Source   EmbeddedSource
	PageSize int
}

func (s *Searcher) Search(ctx context.Context, queryVector []float32, threshold float64, topK int) ([]model.MessageHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	version, err := s.Source.CurrentEmbeddingVersion(ctx)
	if err != nil {
		return nil, err
	}

	best := &hitHeap{}
	heap.Init(best)
	scanned := 0
	seen := make(map[int64]struct{})

	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := s.Source.GetEmbeddedMessagesBatch(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, msg := range batch {
			if msg.EmbeddingVersion != version {
				continue
			}
			// backfill commits can shift offset pages mid-scan and repeat a
			// row on a later page.
			if _, dup := seen[msg.MessageID]; dup {
				continue
			}
			seen[msg.MessageID] = struct{}{}
			scanned++
			sim := cosineSimilarity(queryVector, msg.Vector)
			if sim < threshold {
				continue
			}
			hit := model.MessageHit{
				MessageID:  msg.MessageID,
				ThreadID:   msg.ThreadID,
				Body:       msg.Body,
				Sender:     msg.Address,
				DateUnix:   msg.DateUnix,
				Similarity: sim,
			}
			if best.Len() < topK {
				heap.Push(best, hit)
			} else if hit.Similarity > (*best)[0].Similarity {
				(*best)[0] = hit
				heap.Fix(best, 0)
			}
		}
	}

	if scanned == 0 {
		return nil, model.ErrIndexNotReady
	}

	hits := make([]model.MessageHit, best.Len())
	copy(hits, *best)
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].MessageID < hits[j].MessageID
	})
	return hits, nil
}

// hitHeap is a min-heap on similarity so the weakest of the current top-k
// sits at the root and is evicted first.
type hitHeap []model.MessageHit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return h[i].Similarity < h[j].Similarity }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(model.MessageHit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
