package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

const defaultCacheSize = 256

// Index computes embeddings and ranks stored captures by cosine similarity.
// The scan is exact: every capture with an embedding is scored.
type Index struct {
	repo     interfaces.CaptureRepository
	embedder interfaces.Embedder
	timeout  time.Duration
	cache    *lru.Cache[string, []float32]
	group    singleflight.Group
}

// Option is a functional option for Index configuration
type Option func(*Index)

// WithTimeout bounds every embedding call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(x *Index) {
		x.timeout = d
	}
}

// WithCacheSize sets how many query embeddings are kept. Zero disables the cache.
func WithCacheSize(size int) Option {
	return func(x *Index) {
		if size <= 0 {
			x.cache = nil
			return
		}
		x.cache, _ = lru.New[string, []float32](size)
	}
}

func New(repo interfaces.CaptureRepository, embedder interfaces.Embedder, opts ...Option) *Index {
	cache, _ := lru.New[string, []float32](defaultCacheSize)
	x := &Index{
		repo:     repo,
		embedder: embedder,
		cache:    cache,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Embed returns the embedding of text. Identical texts share one backend call
// and a cached result. The shared call is detached from any single caller, so
// one caller giving up never fails the others; each caller stops waiting when
// its own ctx is done.
func (x *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if x.cache != nil {
		if v, ok := x.cache.Get(key); ok {
			return slices.Clone(v), nil
		}
	}

	ch := x.group.DoChan(key, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if x.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, x.timeout)
			defer cancel()
		}

		vec, err := x.embedder.Embed(callCtx, text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to compute embedding")
		}
		if len(vec) == 0 {
			return nil, goerr.New("embedding backend returned an empty vector")
		}
		if x.cache != nil {
			x.cache.Add(key, vec)
		}
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, goerr.Wrap(context.Cause(ctx), "embedding wait cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]float32)), nil
	}
}

// Search embeds query and returns up to k captures ordered by similarity.
// Captures without an embedding are never scored. k <= 0 returns every
// scorable capture. Fewer than k results is not an error.
func (x *Index) Search(ctx context.Context, query string, k int) ([]*model.Match, error) {
	queryVec, err := x.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	captures, err := x.repo.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list captures")
	}

	matches := Rank(queryVec, captures, k)
	logging.From(ctx).Debug("search ranked captures",
		"candidates", len(captures),
		"matches", len(matches),
		"k", k,
	)
	return matches, nil
}

// Rank scores captures against query and returns the top k. Ties are broken by
// newer timestamp first, then by id, so an unchanged store always yields the
// same order.
func Rank(query []float32, captures []*model.Capture, k int) []*model.Match {
	matches := make([]*model.Match, 0, len(captures))
	for _, c := range captures {
		if !c.HasEmbedding() {
			continue
		}
		matches = append(matches, &model.Match{
			Capture: c,
			Score:   CosineSimilarity(query, c.Embedding),
		})
	}

	slices.SortStableFunc(matches, func(a, b *model.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Capture.Timestamp > b.Capture.Timestamp:
			return -1
		case a.Capture.Timestamp < b.Capture.Timestamp:
			return 1
		default:
			return strings.Compare(string(a.Capture.ID), string(b.Capture.ID))
		}
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// CosineSimilarity returns dot(a,b) / (|a| * |b|). Vectors of different length
// or with a zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA * normB)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}

	s := dot / denom
	if math.IsNaN(s) {
		return 0
	}
	return s
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
