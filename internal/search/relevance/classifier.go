package relevance

import "context"

// Category is the kind of match an external classifier reports.
type Category string

const (
	CategoryExactMatch     Category = "exact_match"
	CategoryRelatedProduct Category = "related_product"
	CategoryAccessory      Category = "accessory"
	CategoryUnrelated      Category = "unrelated"
)

// Verdict is a classifier's judgement for one title.
type Verdict struct {
	Relevant   bool     `json:"relevant"`
	Confidence float64  `json:"confidence"`
	Category   Category `json:"category"`
}

// Excludes reports whether the verdict removes the result. Low confidence
// rejections are ignored.
func (v Verdict) Excludes(minConfidence float64) bool {
	return !v.Relevant && v.Confidence >= minConfidence
}

// Classifier judges whether listing titles are the product the user asked
// for. It returns one verdict per title, in order.
type Classifier interface {
	Classify(ctx context.Context, query string, titles []string) ([]Verdict, error)
}
