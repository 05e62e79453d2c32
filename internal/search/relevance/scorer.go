package relevance

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

const (
	ExactScore     = 100
	ContainedScore = 90

	wordMatchWeight  = 70.0
	similarityWeight = 30.0
)

// Tag is the reporting bucket of a score.
type Tag string

const (
	TagHigh   Tag = "high"
	TagMedium Tag = "medium"
	TagLow    Tag = "low"
)

// Bucket maps a score to high (>=80), medium (50-79) or low.
func Bucket(score int) Tag {
	switch {
	case score >= 80:
		return TagHigh
	case score >= 50:
		return TagMedium
	default:
		return TagLow
	}
}

// Score returns how well title matches query on a 0-100 scale. Both
// strings are compared lower-cased and trimmed.
func Score(query, title string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	t := strings.ToLower(strings.TrimSpace(title))
	if q == "" {
		return 0
	}
	if q == t {
		return ExactScore
	}
	if strings.Contains(t, q) {
		return ContainedScore
	}

	score := wordMatch(q, t)*wordMatchWeight + similarity(q, t)*similarityWeight
	return clamp(int(math.Round(score)))
}

// wordMatch is the share of query words found in the title. A query word
// matches when it is a substring of a title word or the other way round.
func wordMatch(q, t string) float64 {
	qWords := strings.Fields(q)
	tWords := strings.Fields(t)
	if len(qWords) == 0 {
		return 0
	}

	matched := 0
	for _, qw := range qWords {
		for _, tw := range tWords {
			if strings.Contains(tw, qw) || strings.Contains(qw, tw) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(qWords))
}

// similarity is 1 - levenshtein/maxLen, measured in runes.
func similarity(q, t string) float64 {
	maxLen := utf8.RuneCountInString(q)
	if n := utf8.RuneCountInString(t); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(q, t))/float64(maxLen)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Scorer annotates results with lexical scores and, when a classifier is
// configured, drops the results it judges unrelated.
type Scorer struct {
	classifier    Classifier
	minConfidence float64
}

// NewScorer creates a Scorer. classifier may be nil.
func NewScorer(classifier Classifier, minConfidence float64) *Scorer {
	return &Scorer{classifier: classifier, minConfidence: minConfidence}
}

// HasClassifier reports whether an external classifier is configured.
func (s *Scorer) HasClassifier() bool {
	return s != nil && s.classifier != nil
}

// Apply sets Relevance and RelevanceTag on every result. The lexical score
// stays the sort key, the classifier only decides inclusion. A classifier
// failure returns the scored, unfiltered results together with the error.
func (s *Scorer) Apply(ctx context.Context, query string, results []*types.SearchResult) ([]*types.SearchResult, error) {
	for i := range results {
		score := Score(query, results[i].Title)
		results[i].Relevance = &score
		results[i].RelevanceTag = string(Bucket(score))
	}

	if !s.HasClassifier() || len(results) == 0 {
		return results, nil
	}

	titles := make([]string, len(results))
	for i := range results {
		titles[i] = results[i].Title
	}
	verdicts, err := s.classifier.Classify(ctx, query, titles)
	if err != nil {
		return results, err
	}

	kept := results[:0]
	for i, r := range results {
		if i < len(verdicts) && verdicts[i].Excludes(s.minConfidence) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}
