// Package discovery ranks tool descriptors against a natural-language intent
// by blending a lexical score (name match, description and parameter term
// overlap) with the cosine similarity of text embeddings.
package discovery

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/flemzord/mcpexec/internal/tool"
)

// Defaults for Config.
const (
	DefaultThreshold      = 0.3
	DefaultLexicalWeight  = 0.6
	DefaultSemanticWeight = 0.4
)

// Source provides the descriptors to index.
type Source interface {
	All() []tool.Descriptor
	Generation() uint64
}

// Config tunes relevance blending.
type Config struct {
	Threshold      float64
	LexicalWeight  float64
	SemanticWeight float64
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.LexicalWeight <= 0 && c.SemanticWeight <= 0 {
		c.LexicalWeight = DefaultLexicalWeight
		c.SemanticWeight = DefaultSemanticWeight
	}
}

// Result is one ranked descriptor.
type Result struct {
	Descriptor tool.Descriptor
	Relevance  float64
	Lexical    float64
	Semantic   float64
}

type document struct {
	desc        tool.Descriptor
	nameKey     string
	descTokens  map[string]struct{}
	paramTokens map[string]struct{}
	vector      []float32
}

type snapshot struct {
	generation uint64
	docs       []*document
	byName     map[string]*document
	postings   map[string][]*document
	semantic   bool
}

// Index answers relevance queries over a Source. It rebuilds itself lazily
// whenever the source generation changes.
type Index struct {
	source   Source
	embedder Embedder
	cfg      Config
	logger   *slog.Logger

	mu   sync.RWMutex
	snap *snapshot
}

// New creates an index. A nil embedder selects the HashingEmbedder.
func New(source Source, embedder Embedder, cfg Config, logger *slog.Logger) *Index {
	cfg.defaults()
	if embedder == nil {
		embedder = NewHashingEmbedder(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		source:   source,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With("component", "discovery"),
	}
}

// Rebuild re-reads every descriptor from the source and swaps in a fresh
// snapshot. Embedding failures disable the semantic layer for the snapshot.
func (x *Index) Rebuild(ctx context.Context) {
	gen := x.source.Generation()
	descs := x.source.All()

	snap := &snapshot{
		generation: gen,
		docs:       make([]*document, 0, len(descs)),
		byName:     make(map[string]*document, len(descs)),
		postings:   make(map[string][]*document),
	}
	texts := make([]string, 0, len(descs))
	for _, d := range descs {
		doc := &document{
			desc:        d,
			nameKey:     phrase(d.Name),
			descTokens:  tokenSet(tokenize(d.Description)),
			paramTokens: make(map[string]struct{}),
		}
		for _, p := range d.Parameters {
			for _, t := range tokenize(p.Name) {
				doc.paramTokens[t] = struct{}{}
			}
		}
		for term := range doc.descTokens {
			snap.postings[term] = append(snap.postings[term], doc)
		}
		snap.docs = append(snap.docs, doc)
		snap.byName[d.Name] = doc
		texts = append(texts, doc.nameKey+" "+d.Description)
	}

	if len(texts) > 0 {
		vectors, err := x.embedder.EmbedBatch(ctx, texts)
		if err != nil || len(vectors) != len(texts) {
			x.logger.Warn("embedding descriptors failed, semantic scoring disabled",
				"embedder", x.embedder.Name(), "error", err)
		} else {
			for i, doc := range snap.docs {
				doc.vector = vectors[i]
			}
			snap.semantic = true
		}
	}

	x.mu.Lock()
	x.snap = snap
	x.mu.Unlock()
	x.logger.Debug("discovery index rebuilt", "tools", len(snap.docs), "semantic", snap.semantic)
}

func (x *Index) current(ctx context.Context) *snapshot {
	x.mu.RLock()
	snap := x.snap
	x.mu.RUnlock()
	if snap != nil && snap.generation == x.source.Generation() {
		return snap
	}
	x.Rebuild(ctx)
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.snap
}

// Search returns descriptors whose combined relevance reaches the threshold,
// best first, at most limit of them (limit <= 0 means no limit). Ties break
// on the lexical score and then on the name.
func (x *Index) Search(ctx context.Context, intent string, limit int) []Result {
	all := x.rank(ctx, intent)
	out := all[:0]
	for _, r := range all {
		if r.Relevance >= x.cfg.Threshold {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Score returns the relevance of one named descriptor for intent, ignoring
// the threshold.
func (x *Index) Score(ctx context.Context, intent, name string) (Result, bool) {
	for _, r := range x.rank(ctx, intent) {
		if r.Descriptor.Name == name {
			return r, true
		}
	}
	return Result{}, false
}

func (x *Index) rank(ctx context.Context, intent string) []Result {
	queryKey := phrase(intent)
	if queryKey == "" {
		return nil
	}
	snap := x.current(ctx)
	if len(snap.docs) == 0 {
		return nil
	}
	qTokens := tokenize(intent)

	// Description overlap comes from the inverted map.
	descHits := make(map[*document]int)
	for _, t := range uniq(qTokens) {
		for _, doc := range snap.postings[t] {
			descHits[doc]++
		}
	}

	var qVec []float32
	if snap.semantic {
		v, err := x.embedder.Embed(ctx, intent)
		if err != nil {
			x.logger.Warn("embedding intent failed, using lexical score only", "error", err)
		} else {
			qVec = v
		}
	}

	nq := len(uniq(qTokens))
	results := make([]Result, 0, len(snap.docs))
	for _, doc := range snap.docs {
		lex := nameScore(queryKey, doc.nameKey)
		if nq > 0 {
			lex += 0.5 * float64(descHits[doc]) / float64(nq)
			lex += 0.25 * overlap(qTokens, doc.paramTokens)
		}
		lex = clamp01(lex)

		var sem float64
		if qVec != nil {
			sem = cosine(qVec, doc.vector)
		}
		results = append(results, Result{
			Descriptor: doc.desc,
			Relevance:  x.cfg.LexicalWeight*lex + x.cfg.SemanticWeight*sem,
			Lexical:    lex,
			Semantic:   sem,
		})
	}

	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Relevance, a.Relevance); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Lexical, a.Lexical); c != 0 {
			return c
		}
		return cmp.Compare(a.Descriptor.Name, b.Descriptor.Name)
	})
	return results
}

// nameScore rates how well the query phrase matches a tool name phrase. A
// name found inside the query only counts on whole words, so "get" does not
// match "budget".
func nameScore(query, name string) float64 {
	switch {
	case query == name:
		return 1.0
	case strings.HasPrefix(name, query):
		return 0.9
	case strings.Contains(name, query), strings.Contains(" "+query+" ", " "+name+" "):
		return 0.7
	}
	longest := max(len([]rune(query)), len([]rune(name)))
	return 0.5 * (1 - float64(levenshtein(query, name))/float64(longest))
}

// overlap returns the fraction of distinct query tokens found in set.
func overlap(query []string, set map[string]struct{}) float64 {
	u := uniq(query)
	if len(u) == 0 {
		return 0
	}
	hits := 0
	for _, t := range u {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(u))
}

func uniq(tokens []string) []string {
	out := slices.Clone(tokens)
	slices.Sort(out)
	return slices.Compact(out)
}

// phrase lowercases s and joins its alphanumeric runs with single spaces, so
// "HTTP_get" and "http get" compare equal.
func phrase(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
