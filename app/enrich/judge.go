package enrich

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/bankwatch/app/news"
)

// Judge asks the model whether two enriched items describe the same event.
type Judge struct {
	classifier Classifier
}

func NewJudge(classifier Classifier) *Judge {
	return &Judge{classifier: classifier}
}

// IsDuplicate falls back to lexical similarity against threshold when the reply carries no
// decision. Classifier failures are returned as errors.
func (j *Judge) IsDuplicate(ctx context.Context, a, b news.EnrichedItem, threshold float64) (bool, error) {
	response, err := j.classifier.Classify(ctx, duplicatePrompt(a, b))
	if err != nil {
		return false, err
	}

	verdict, err := ParseVerdict(response)
	if err == nil {
		slog.Debug("Duplicate verdict", "duplicate", verdict.Duplicate, "confidence", verdict.Confidence)
		return verdict.Duplicate, nil
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return false, err
	}

	similarity := Similarity(a.Summary, b.Summary)
	slog.Debug("Duplicate verdict from similarity", "similarity", similarity, "threshold", threshold)
	return similarity >= threshold, nil
}
