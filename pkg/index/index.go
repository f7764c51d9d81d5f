package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"bookrec/pkg/domain"
)

const defaultBuildWorkers = 4

// Embedder maps text to a fixed-dimension vector. Satisfied by the clients
// in pkg/ai.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Match is one similarity hit against the published snapshot.
type Match struct {
	BookID string
	Title  string
	Score  float64
}

// Snapshot is one fully-built, immutable version of the embedding index.
// Readers holding a snapshot never observe vectors from a later rebuild.
type Snapshot struct {
	version uint64
	dim     int
	ids     []string
	titles  []string
	vectors [][]float32
}

// Version returns the publish counter of this snapshot.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of indexed records.
func (s *Snapshot) Len() int { return len(s.ids) }

// Dimension returns the vector dimensionality shared by all entries.
func (s *Snapshot) Dimension() int { return s.dim }

// Vector returns the stored vector for a book ID.
func (s *Snapshot) Vector(bookID string) ([]float32, bool) {
	for i, id := range s.ids {
		if id == bookID {
			return s.vectors[i], true
		}
	}
	return nil, false
}

// Nearest returns the k highest-cosine-similarity matches, scanned
// exhaustively. Equal scores resolve to the lexicographically smaller title,
// so repeated calls over an unchanged snapshot rank identically.
func (s *Snapshot) Nearest(query []float32, k int) []Match {
	if k <= 0 || len(s.ids) == 0 {
		return nil
	}
	matches := make([]Match, len(s.ids))
	for i := range s.ids {
		matches[i] = Match{
			BookID: s.ids[i],
			Title:  s.titles[i],
			Score:  cosine(query, s.vectors[i]),
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Title < matches[j].Title
	})
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Index owns the current snapshot pointer. Rebuilds happen off to the side
// and publish with a single atomic swap, so in-flight queries see either the
// previous snapshot in its entirety or the new one, never a mix.
type Index struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	workers int
}

// New constructs an empty, unpublished index.
func New(buildWorkers int) *Index {
	if buildWorkers <= 0 {
		buildWorkers = defaultBuildWorkers
	}
	return &Index{workers: buildWorkers}
}

// Current returns the latest published snapshot, or ErrIndexUnavailable if
// no build has completed yet.
func (ix *Index) Current() (*Snapshot, error) {
	snap := ix.current.Load()
	if snap == nil {
		return nil, domain.ErrIndexUnavailable
	}
	return snap, nil
}

// Rebuild embeds every record and publishes the result atomically. Records
// that already carry a vector are reused as-is; the rest go through the
// embedder with bounded concurrency. Records are processed in ascending
// title order into fixed slots, so an unchanged corpus and embedder yield
// byte-identical snapshots.
func (ix *Index) Rebuild(ctx context.Context, books []domain.BookRecord, embedder Embedder) (*Snapshot, error) {
	if len(books) == 0 {
		return nil, fmt.Errorf("index rebuild: empty corpus")
	}
	ordered := make([]domain.BookRecord, len(books))
	copy(ordered, books)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Title < ordered[j].Title })

	snap := &Snapshot{
		ids:     make([]string, len(ordered)),
		titles:  make([]string, len(ordered)),
		vectors: make([][]float32, len(ordered)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i := range ordered {
		book := ordered[i]
		slot := i
		snap.ids[slot] = book.ID
		snap.titles[slot] = book.Title
		if len(book.Embedding) > 0 {
			snap.vectors[slot] = book.Embedding
			continue
		}
		g.Go(func() error {
			vec, err := embedder.EmbedText(gctx, embeddingInput(book))
			if err != nil {
				return fmt.Errorf("embed %q: %w", book.Title, err)
			}
			snap.vectors[slot] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, vec := range snap.vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("index rebuild: empty vector for %q", snap.titles[i])
		}
		if snap.dim == 0 {
			snap.dim = len(vec)
		} else if len(vec) != snap.dim {
			return nil, fmt.Errorf("index rebuild: %q has dimension %d, want %d", snap.titles[i], len(vec), snap.dim)
		}
	}

	snap.version = ix.version.Add(1)
	ix.current.Store(snap)
	return snap, nil
}

// embeddingInput mirrors what the catalog embedder feeds the model: title
// and summary together, so thematic queries can match on either.
func embeddingInput(b domain.BookRecord) string {
	return b.Title + ": " + b.Summary
}
