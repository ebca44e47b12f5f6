package services

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"evomemory/internal/models"

	cache "github.com/patrickmn/go-cache"
)

// BM25 parameters and boost factors for ranked retrieval
const (
	bm25K1 = 1.5
	bm25B  = 0.75

	confidenceBoostThreshold = 0.7
	confidenceBoostFactor    = 1.2
	feedbackBoostFactor      = 1.3

	// Minimum best score required before any context is injected
	minContextScore = 0.5

	// DefaultIndexSize bounds the retrieval snapshot window
	DefaultIndexSize = 1000
)

// ScoredNeuron pairs a neuron with its boosted retrieval score
type ScoredNeuron struct {
	Neuron *models.Neuron `json:"neuron"`
	Score  float64        `json:"score"`
}

// CombinedMatch is one entry of a hybrid search result, tagged with the
// strategy that produced it ("bm25" or "context_hash")
type CombinedMatch struct {
	Neuron *models.Neuron `json:"neuron"`
	Score  float64        `json:"score"`
	Source string         `json:"source"`
}

// HybridResults groups the outcome of a hybrid search
type HybridResults struct {
	BM25Results    []ScoredNeuron   `json:"bm25_results"`
	ContextMatches []*models.Neuron `json:"context_matches"`
	Combined       []CombinedMatch  `json:"combined"`
}

// indexedDoc is one neuron's document inside a snapshot: the concatenated
// input and output text, pre-tokenized
type indexedDoc struct {
	neuron     *models.Neuron
	termCounts map[string]int
	length     int
}

// snapshot is an immutable BM25 index over a bounded window of recent
// neurons. Rebuilds produce a fresh snapshot which is swapped in atomically,
// so readers never observe a partially built index.
type snapshot struct {
	docs      []indexedDoc
	idf       map[string]float64
	avgDocLen float64
}

// RetrievalService answers ranked-retrieval and prompt-context queries over
// a rebuildable snapshot of recent neurons ("RAG-Lite"). The snapshot may be
// stale relative to the store between rebuilds; that staleness is bounded by
// the caller's reindex cadence and is an accepted design choice.
type RetrievalService struct {
	store        *NeuronStore
	maxNeurons   int
	snap         atomic.Pointer[snapshot]
	contextCache *cache.Cache
}

// NewRetrievalService creates a retrieval service over the given store.
// maxNeurons bounds the snapshot window; <= 0 selects DefaultIndexSize.
func NewRetrievalService(store *NeuronStore, maxNeurons int) *RetrievalService {
	if maxNeurons <= 0 {
		maxNeurons = DefaultIndexSize
	}
	return &RetrievalService{
		store:        store,
		maxNeurons:   maxNeurons,
		contextCache: cache.New(30*time.Second, time.Minute),
	}
}

// Reindex rebuilds the snapshot over the most recent maxNeurons neurons.
// The cadence is the caller's concern; a common policy is every ~10 saves.
func (r *RetrievalService) Reindex(maxNeurons int) error {
	if maxNeurons <= 0 {
		maxNeurons = r.maxNeurons
	}

	neurons, err := r.store.Recent(maxNeurons, "")
	if err != nil {
		return fmt.Errorf("failed to load neurons for indexing: %w", err)
	}

	snap := buildSnapshot(neurons)
	r.snap.Store(snap)
	r.contextCache.Flush()

	if m := GetMetrics(); m != nil {
		m.IndexRebuilds.Inc()
		m.IndexedNeurons.Set(float64(len(snap.docs)))
	}

	log.Printf("🔎 Retrieval snapshot rebuilt over %d neurons", len(snap.docs))
	return nil
}

func buildSnapshot(neurons []*models.Neuron) *snapshot {
	docs := make([]indexedDoc, 0, len(neurons))
	docFreqs := make(map[string]int)
	totalLen := 0

	for _, n := range neurons {
		terms := tokenize(n.InputText + " " + n.OutputText)
		counts := make(map[string]int, len(terms))
		for _, t := range terms {
			counts[t]++
		}
		for t := range counts {
			docFreqs[t]++
		}
		totalLen += len(terms)
		docs = append(docs, indexedDoc{neuron: n, termCounts: counts, length: len(terms)})
	}

	snap := &snapshot{docs: docs, idf: make(map[string]float64, len(docFreqs))}
	if len(docs) > 0 {
		snap.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	for term, df := range docFreqs {
		n := float64(len(docs))
		snap.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}

	return snap
}

// tokenize splits on whitespace, lower-cases, and trims punctuation from
// token edges so "LED?" and "led" land on the same term
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

// score computes the boosted BM25 score of one indexed document for a query.
// Terms absent from the indexed vocabulary contribute zero.
func (s *snapshot) score(queryTerms []string, doc *indexedDoc) float64 {
	if s.avgDocLen == 0 {
		return 0
	}

	score := 0.0
	for _, term := range queryTerms {
		idf, ok := s.idf[term]
		if !ok {
			continue
		}
		tf := float64(doc.termCounts[term])
		numerator := tf * (bm25K1 + 1)
		denominator := tf + bm25K1*(1-bm25B+bm25B*(float64(doc.length)/s.avgDocLen))
		score += idf * (numerator / denominator)
	}

	// Boosts are independent and multiplicative; both can apply.
	if doc.neuron.Confidence > confidenceBoostThreshold {
		score *= confidenceBoostFactor
	}
	if doc.neuron.UserFeedback > 0 {
		score *= feedbackBoostFactor
	}

	return score
}

// ensureSnapshot lazily builds the first snapshot on demand
func (r *RetrievalService) ensureSnapshot() (*snapshot, error) {
	if snap := r.snap.Load(); snap != nil {
		return snap, nil
	}
	if err := r.Reindex(r.maxNeurons); err != nil {
		return nil, err
	}
	return r.snap.Load(), nil
}

// Retrieve returns the topK most relevant neurons for a query, descending
// by boosted BM25 score
func (r *RetrievalService) Retrieve(query string, topK int) ([]ScoredNeuron, error) {
	start := time.Now()

	snap, err := r.ensureSnapshot()
	if err != nil {
		return nil, err
	}

	queryTerms := tokenize(query)
	results := make([]ScoredNeuron, 0, len(snap.docs))
	for i := range snap.docs {
		doc := &snap.docs[i]
		results = append(results, ScoredNeuron{
			Neuron: doc.neuron,
			Score:  snap.score(queryTerms, doc),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}

	if m := GetMetrics(); m != nil {
		m.Retrievals.Inc()
		m.RetrievalLatency.Observe(time.Since(start).Seconds())
	}

	return results, nil
}

// GetContextForPrompt formats the best retrieval hits as a context block to
// prepend to a generation prompt. Returns "" when nothing scores above the
// relevance floor or the token budget admits no block. Tokens are estimated
// as len(text)/4. Results actually injected are access-bookkept.
func (r *RetrievalService) GetContextForPrompt(query string, maxContextTokens int) (string, error) {
	if maxContextTokens <= 0 {
		maxContextTokens = 300
	}

	cacheKey := fmt.Sprintf("%d:%s", maxContextTokens, query)
	if cached, found := r.contextCache.Get(cacheKey); found {
		return cached.(string), nil
	}

	relevant, err := r.Retrieve(query, 3)
	if err != nil {
		return "", err
	}

	if len(relevant) == 0 || relevant[0].Score < minContextScore {
		r.contextCache.Set(cacheKey, "", cache.DefaultExpiration)
		return "", nil
	}

	parts := []string{"### Relevant past experiences:"}
	var usedIDs []int64
	currentTokens := 0

	for _, hit := range relevant {
		estimatedTokens := len(hit.Neuron.OutputText) / 4
		if currentTokens+estimatedTokens > maxContextTokens {
			break
		}

		parts = append(parts, fmt.Sprintf(
			"- Input: %s\n  Output: %s\n  (confidence: %.2f)",
			truncateRunes(hit.Neuron.InputText, 100),
			truncateRunes(hit.Neuron.OutputText, 150),
			hit.Neuron.Confidence,
		))
		usedIDs = append(usedIDs, hit.Neuron.ID)
		currentTokens += estimatedTokens
	}

	if len(parts) == 1 {
		r.contextCache.Set(cacheKey, "", cache.DefaultExpiration)
		return "", nil
	}

	if err := r.store.Touch(usedIDs); err != nil {
		log.Printf("⚠️ Failed to record neuron access: %v", err)
	}

	context := strings.Join(parts, "\n") + "\n\n"
	r.contextCache.Set(cacheKey, context, cache.DefaultExpiration)

	return context, nil
}

// HybridSearch combines BM25 ranking with context-hash matching. BM25 hits
// come first; hash matches not already present are appended with a fixed
// fallback score of 0.5. The combined list is capped at 5.
func (r *RetrievalService) HybridSearch(query string) (*HybridResults, error) {
	bm25Results, err := r.Retrieve(query, 5)
	if err != nil {
		return nil, err
	}

	contextMatches, err := r.store.Similar(models.ContextHash(query), 5)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var combined []CombinedMatch

	for _, hit := range bm25Results {
		if _, ok := seen[hit.Neuron.ID]; ok {
			continue
		}
		seen[hit.Neuron.ID] = struct{}{}
		combined = append(combined, CombinedMatch{Neuron: hit.Neuron, Score: hit.Score, Source: "bm25"})
	}

	for _, n := range contextMatches {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		combined = append(combined, CombinedMatch{Neuron: n, Score: 0.5, Source: "context_hash"})
	}

	if len(combined) > 5 {
		combined = combined[:5]
	}

	return &HybridResults{
		BM25Results:    bm25Results,
		ContextMatches: contextMatches,
		Combined:       combined,
	}, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
