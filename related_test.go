package marley

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// spyCache is a map-backed ScoreCache that counts calls.
type spyCache struct {
	scores     map[string]float64
	gets, sets map[string]int
	failGet    bool
	failSet    bool
}

func newSpyCache() *spyCache {
	return &spyCache{scores: map[string]float64{}, gets: map[string]int{}, sets: map[string]int{}}
}

func (c *spyCache) GetScore(key string) (float64, bool, error) {
	c.gets[key]++
	if c.failGet {
		return 0, false, errors.New("cache down")
	}
	v, ok := c.scores[key]
	return v, ok, nil
}

func (c *spyCache) SetScore(key string, v float64) error {
	c.sets[key]++
	if c.failSet {
		return errors.New("cache down")
	}
	c.scores[key] = v
	return nil
}

func doc(id, title string) TextDocument {
	return TextDocument{ID: id, Fields: map[string]string{"title": title}}
}

func TestPairKey(t *testing.T) {
	if got, want := PairKey("title", "b", "a"), "distance-5:title-1:a-b"; got != want {
		t.Fatalf("PairKey=%q; want %q", got, want)
	}
	if PairKey("title", "a", "b") != PairKey("title", "b", "a") {
		t.Fatalf("PairKey not symmetric")
	}
	if PairKey("title", "a", "b") == PairKey("body", "a", "b") {
		t.Fatalf("PairKey should depend on the field")
	}
}

func TestPairKeyDashedIDs(t *testing.T) {
	tests := []struct{ field, a, b, field2, a2, b2 string }{
		{"title", "go", "tips-x", "title", "go-tips", "x"},
		{"title", "a-b", "c", "title", "a", "b-c"},
		{"title-x", "a", "b", "title", "x-a", "b"},
		{"body", "", "a-b", "body", "a", "b"},
	}
	for _, tc := range tests {
		k1, k2 := PairKey(tc.field, tc.a, tc.b), PairKey(tc.field2, tc.a2, tc.b2)
		if k1 == k2 {
			t.Fatalf("PairKey(%q, %q, %q) and PairKey(%q, %q, %q) both %q", tc.field, tc.a, tc.b, tc.field2, tc.a2, tc.b2, k1)
		}
	}
}

func TestScoreDashedIDsDoNotShareCache(t *testing.T) {
	r := NewRanker(newSpyCache(), nil, nil)
	rails := "Ruby on Rails"

	s, err := r.Score(doc("go", rails), doc("tips-x", rails), "title")
	if err != nil || s == 0 {
		t.Fatalf("Score=%v, %v; want a positive score", s, err)
	}
	s, err = r.Score(doc("go-tips", "Cooking pasta"), doc("x", "Gardening tips"), "title")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if s != 0 {
		t.Fatalf("Score=%v; want 0 for unrelated titles", s)
	}
}

func TestScoreComputedOnce(t *testing.T) {
	cache := newSpyCache()
	r := NewRanker(cache, nil, nil)
	a, b := doc("a", "Ruby on Rails tutorial"), doc("b", "Rails deployment guide")

	s1, err := r.Score(a, b, "title")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	s2, err := r.Score(b, a, "title")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("Score(a, b)=%v, Score(b, a)=%v", s1, s2)
	}
	key := PairKey("title", "a", "b")
	if cache.sets[key] != 1 {
		t.Fatalf("score stored %d times; want 1", cache.sets[key])
	}
	if cache.gets[key] != 2 {
		t.Fatalf("score looked up %d times; want 2", cache.gets[key])
	}
}

func TestRank(t *testing.T) {
	r := NewRanker(newSpyCache(), nil, nil)
	target := doc("t", "Ruby on Rails tutorial")
	candidates := []Document{
		doc("d1", "Rails deployment guide"),
		doc("d2", "Ruby on Rails tutorial for beginners"),
		doc("d3", "Gardening tips"),
		target,
	}

	got, err := r.Rank(target, candidates, "", 0)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	var ids []string
	for _, rel := range got {
		ids = append(ids, rel.Document.DocumentID())
	}
	if strings.Join(ids, ",") != "d2,d1" {
		t.Fatalf("Rank ids=%v; want [d2 d1]", ids)
	}
	if want := 4 / (2 * math.Sqrt(6)); math.Abs(got[0].Score-want) > 1e-12 {
		t.Fatalf("d2 score=%v; want %v", got[0].Score, want)
	}
	if got[0].Score < got[1].Score {
		t.Fatalf("scores not descending: %v", got)
	}
}

func TestRankLimit(t *testing.T) {
	var tokens []string
	for i := 1; i <= 10; i++ {
		tokens = append(tokens, fmt.Sprintf("t%d", i))
	}
	target := doc("target", strings.Join(tokens, " "))
	var candidates []Document
	for k := 1; k <= 10; k++ {
		candidates = append(candidates, doc(fmt.Sprintf("c%d", k), strings.Join(tokens[:k], " ")))
	}

	r := NewRanker(nil, nil, nil)
	got, err := r.Rank(target, candidates, "title", 0)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if len(got) != DefaultRelatedLimit {
		t.Fatalf("len=%d; want %d", len(got), DefaultRelatedLimit)
	}
	for i, rel := range got {
		want := fmt.Sprintf("c%d", 10-i)
		if rel.Document.DocumentID() != want {
			t.Fatalf("rank %d=%s; want %s", i, rel.Document.DocumentID(), want)
		}
	}

	got, err = r.Rank(target, candidates, "title", 2)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d; want 2", len(got))
	}
}

func TestRankTiesKeepOrder(t *testing.T) {
	r := NewRanker(nil, nil, nil)
	target := doc("t", "alpha beta")
	got, err := r.Rank(target, []Document{doc("x", "alpha"), doc("y", "beta"), doc("z", "alpha")}, "title", 0)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	var ids []string
	for _, rel := range got {
		ids = append(ids, rel.Document.DocumentID())
	}
	if strings.Join(ids, ",") != "x,y,z" {
		t.Fatalf("tie order=%v; want [x y z]", ids)
	}
}

func TestRankMissingField(t *testing.T) {
	r := NewRanker(nil, nil, nil)
	target := doc("t", "Ruby on Rails")
	noTitle := TextDocument{ID: "n", Fields: map[string]string{"body": "Ruby on Rails"}}

	got, err := r.Rank(target, []Document{noTitle, doc("d", "Rails")}, "title", 0)
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if len(got) != 1 || got[0].Document.DocumentID() != "d" {
		t.Fatalf("Rank=%v; want only d", got)
	}

	_, err = r.Rank(noTitle, []Document{target}, "title", 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("target without field: err=%v; want ErrInvalidInput", err)
	}
	var ie *InvalidInputError
	if !errors.As(err, &ie) || ie.DocumentID != "n" || ie.Field != "title" {
		t.Fatalf("err=%#v; want InvalidInputError{n, title}", err)
	}
}

func TestRankFailingCache(t *testing.T) {
	cache := newSpyCache()
	cache.failGet, cache.failSet = true, true
	r := NewRanker(cache, nil, nil)
	target := doc("t", "Ruby on Rails tutorial")

	got, err := r.Rank(target, []Document{doc("d1", "Rails deployment guide")}, "title", 0)
	if err != nil {
		t.Fatalf("Rank with failing cache error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Rank=%v; want one result", got)
	}
	key := PairKey("title", "t", "d1")
	if cache.gets[key] != 2 || cache.sets[key] != 2 {
		t.Fatalf("gets=%d sets=%d; want one retry each", cache.gets[key], cache.sets[key])
	}
}

func TestRankTwiceHitsCache(t *testing.T) {
	cache := newSpyCache()
	r := NewRanker(cache, nil, nil)
	target := doc("d1", "Ruby on Rails tutorial")
	candidates := []Document{doc("d2", "Rails deployment guide"), doc("d3", "Gardening tips")}

	for i := 0; i < 2; i++ {
		got, err := r.Rank(target, candidates, "title", 5)
		if err != nil {
			t.Fatalf("Rank error: %v", err)
		}
		if len(got) != 1 || got[0].Document.DocumentID() != "d2" {
			t.Fatalf("Rank=%v; want only d2", got)
		}
	}
	for _, key := range []string{PairKey("title", "d1", "d2"), PairKey("title", "d1", "d3")} {
		if cache.sets[key] != 1 {
			t.Fatalf("%s computed %d times; want 1", key, cache.sets[key])
		}
	}
}
