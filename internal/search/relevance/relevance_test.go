package relevance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		query string
		title string
		want  int
	}{
		{"exact", "Nintendo Switch", "nintendo switch", 100},
		{"exact after trim", "  Nintendo Switch ", "NINTENDO SWITCH", 100},
		{"contained", "switch", "Nintendo Switch 本体", 90},
		{"empty query", "", "anything", 0},
		// both words match, levenshtein distance 8 over 11 runes
		{"word match", "switch lite", "lite switch", 78},
		{"unrelated", "abc", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.query, tt.title))
		})
	}
}

func TestScore_SymmetricUnderCaseAndWhitespace(t *testing.T) {
	pairs := [][2]string{
		{"  Pokemon Card ", "pokemon card 151 box"},
		{"ＰＳ５ Slim", "PS5 slim digital edition"},
		{"Dyson V12", "  DYSON v12 detect slim  "},
	}
	for _, p := range pairs {
		q, title := p[0], p[1]
		assert.Equal(t, Score(q, title), Score(lower(q), lower(title)), "%q vs %q", q, title)
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func TestScore_Range(t *testing.T) {
	for _, title := range []string{"a", "switch", "nintendo", "ニンテンドー スイッチ", ""} {
		s := Score("nintendo switch oled", title)
		assert.GreaterOrEqual(t, s, 0)
		assert.LessOrEqual(t, s, 100)
	}
}

func TestBucket(t *testing.T) {
	assert.Equal(t, TagHigh, Bucket(100))
	assert.Equal(t, TagHigh, Bucket(80))
	assert.Equal(t, TagMedium, Bucket(79))
	assert.Equal(t, TagMedium, Bucket(50))
	assert.Equal(t, TagLow, Bucket(49))
}

type fakeClassifier struct {
	verdicts []Verdict
	err      error
}

func (f *fakeClassifier) Classify(ctx context.Context, query string, titles []string) ([]Verdict, error) {
	return f.verdicts, f.err
}

func results(titles ...string) []*types.SearchResult {
	out := make([]*types.SearchResult, len(titles))
	for i, t := range titles {
		out[i] = &types.SearchResult{Title: t}
	}
	return out
}

func TestScorer_ApplyWithoutClassifier(t *testing.T) {
	s := NewScorer(nil, 0)
	out, err := s.Apply(context.Background(), "switch", results("Switch", "case"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 100, *out[0].Relevance)
	assert.Equal(t, "high", out[0].RelevanceTag)
	assert.Equal(t, "low", out[1].RelevanceTag)
}

func TestScorer_ClassifierDecidesInclusion(t *testing.T) {
	s := NewScorer(&fakeClassifier{verdicts: []Verdict{
		{Relevant: true, Confidence: 0.9, Category: CategoryExactMatch},
		{Relevant: false, Confidence: 0.95, Category: CategoryAccessory},
		{Relevant: false, Confidence: 0.2, Category: CategoryUnrelated},
	}}, 0.5)

	out, err := s.Apply(context.Background(), "switch", results("Switch", "Switch case", "Switch stand"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Switch", out[0].Title)
	assert.Equal(t, "Switch stand", out[1].Title)
	// lexical score is kept as the sort key
	assert.Equal(t, 90, *out[1].Relevance)
}

func TestScorer_ClassifierFailureKeepsResults(t *testing.T) {
	s := NewScorer(&fakeClassifier{err: errors.New("boom")}, 0.5)
	out, err := s.Apply(context.Background(), "switch", results("Switch", "Switch case"))
	assert.Error(t, err)
	assert.Len(t, out, 2)
	assert.NotNil(t, out[1].Relevance)
}

func TestOpenAIClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"m","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"{\"verdicts\":[{\"index\":1,\"relevant\":false,\"confidence\":0.8,\"category\":\"accessory\"},{\"index\":9,\"relevant\":false}]}"}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClassifier(&OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, logger.NewNop())
	require.NoError(t, err)

	verdicts, err := c.Classify(context.Background(), "switch", []string{"Switch", "Switch case"})
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	assert.True(t, verdicts[0].Relevant)
	assert.False(t, verdicts[1].Relevant)
	assert.Equal(t, CategoryAccessory, verdicts[1].Category)
	assert.True(t, verdicts[1].Excludes(0.5))
}

func TestNewOpenAIClassifier_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClassifier(&OpenAIConfig{}, logger.NewNop())
	assert.Error(t, err)
}
