package marley

import (
	"log/slog"
	"sort"
	"strconv"
)

const (
	// DefaultRelatedLimit is the number of related documents returned when
	// the caller asks for none.
	DefaultRelatedLimit = 5
	// DefaultRelatedField is the field compared when the caller names none.
	DefaultRelatedField = "title"
)

// Document is anything the ranker can compare: an id plus named text fields.
type Document interface {
	DocumentID() string
	// Field returns the text of a field and whether the document has it.
	Field(name string) (string, bool)
}

// TextDocument is a Document held in memory.
type TextDocument struct {
	ID     string
	Fields map[string]string
}

func (d TextDocument) DocumentID() string { return d.ID }

func (d TextDocument) Field(name string) (string, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// ScoreCache memoizes pairwise similarity scores. GetScore reports a miss
// with ok == false and a nil error.
type ScoreCache interface {
	GetScore(key string) (float64, bool, error)
	SetScore(key string, v float64) error
}

// Related is a ranked candidate.
type Related struct {
	Document Document
	Score    float64
}

// PairKey is the cache key of the unordered pair (a, b) compared on field.
// Field and the lower id carry a length prefix so that distinct triples
// never share a key.
func PairKey(field, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "distance-" + strconv.Itoa(len(field)) + ":" + field + "-" + strconv.Itoa(len(a)) + ":" + a + "-" + b
}

// Ranker orders documents by term vector similarity to a target.
type Ranker struct {
	cache   ScoreCache
	stemmer Stemmer
	logger  *slog.Logger
}

// NewRanker creates a Ranker. cache may be nil, in which case every score
// is computed; stemmer nil means PorterStemmer.
func NewRanker(cache ScoreCache, stemmer Stemmer, logger *slog.Logger) *Ranker {
	if stemmer == nil {
		stemmer = PorterStemmer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{cache: cache, stemmer: stemmer, logger: logger}
}

// Score returns the similarity of a and b on field, memoized in the cache.
func (r *Ranker) Score(a, b Document, field string) (float64, error) {
	if field == "" {
		field = DefaultRelatedField
	}
	va, err := VectorOf(r.stemmer, a, field)
	if err != nil {
		return 0, err
	}
	return r.score(va, a.DocumentID(), b, field)
}

func (r *Ranker) score(va *Vector, id string, b Document, field string) (float64, error) {
	key := PairKey(field, id, b.DocumentID())
	if v, ok := r.cached(key); ok {
		return v, nil
	}
	vb, err := VectorOf(r.stemmer, b, field)
	if err != nil {
		return 0, err
	}
	v := Dot(va, vb)
	r.store(key, v)
	return v, nil
}

// Rank returns the candidates most similar to target on field, best first.
// The target itself and candidates scoring 0 are left out; candidates
// missing the field are skipped. Equal scores keep their input order.
func (r *Ranker) Rank(target Document, candidates []Document, field string, limit int) ([]Related, error) {
	if field == "" {
		field = DefaultRelatedField
	}
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	va, err := VectorOf(r.stemmer, target, field)
	if err != nil {
		return nil, err
	}

	id := target.DocumentID()
	ranked := make([]Related, 0, len(candidates))
	for _, c := range candidates {
		if c.DocumentID() == id {
			continue
		}
		s, err := r.score(va, id, c, field)
		if err != nil {
			r.logger.Debug("skipping related candidate", "target", id, "candidate", c.DocumentID(), "err", err)
			continue
		}
		if s > 0 {
			ranked = append(ranked, Related{Document: c, Score: s})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// cached reads key, retrying once before giving up on the cache.
func (r *Ranker) cached(key string) (float64, bool) {
	if r.cache == nil {
		return 0, false
	}
	for attempt := 0; attempt < 2; attempt++ {
		v, ok, err := r.cache.GetScore(key)
		if err == nil {
			return v, ok
		}
		r.logger.Warn("score cache read failed", "attempt", attempt+1, "err", &cacheError{op: "get", key: key, err: err})
	}
	return 0, false
}

func (r *Ranker) store(key string, v float64) {
	if r.cache == nil {
		return
	}
	for attempt := 0; attempt < 2; attempt++ {
		err := r.cache.SetScore(key, v)
		if err == nil {
			return
		}
		r.logger.Warn("score cache write failed", "attempt", attempt+1, "err", &cacheError{op: "set", key: key, err: err})
	}
}
