// Package qa scores a generated marketing package with deterministic rules.
package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/promoflow/pkg/models"
)

const (
	DefaultPassThreshold = 0.7
	minCopyLength        = 40
)

const NoCopyIssue = "No copywriting generated"

// Input is what the review inspects.
type Input struct {
	ProductName string
	Copy        []models.Artifact
	Images      []models.Artifact
	Video       *models.VideoArtifact
}

type Reviewer struct {
	threshold float64
}

func NewReviewer(threshold float64) *Reviewer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultPassThreshold
	}

	return &Reviewer{threshold: threshold}
}

type check struct {
	name  string
	issue string
	ok    func(Input) bool
}

var checks = []check{
	{
		name:  "copy_length",
		issue: fmt.Sprintf("Copy is shorter than %d characters", minCopyLength),
		ok: func(in Input) bool {
			return len(strings.TrimSpace(in.Copy[0].Content)) >= minCopyLength
		},
	},
	{
		name:  "mentions_product",
		issue: "Copy does not mention the product name",
		ok: func(in Input) bool {
			if in.ProductName == "" {
				return true
			}

			return strings.Contains(strings.ToLower(in.Copy[0].Content), strings.ToLower(in.ProductName))
		},
	},
	{
		name:  "has_images",
		issue: "No images generated",
		ok: func(in Input) bool {
			return len(in.Images) > 0
		},
	},
	{
		name:  "has_video",
		issue: "No video generated",
		ok: func(in Input) bool {
			return in.Video != nil && in.Video.URL != ""
		},
	},
	{
		name:  "primary_video",
		issue: "Video is a slideshow fallback",
		ok: func(in Input) bool {
			return in.Video == nil || !in.Video.IsFallback
		},
	},
}

// Review scores the package as the fraction of passing checks. Without copy
// there is nothing to review and the score is zero.
func (r *Reviewer) Review(ctx context.Context, in Input) (*models.QAReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(in.Copy) == 0 {
		return &models.QAReport{
			Score:   0,
			Issues:  []string{NoCopyIssue},
			Summary: NoCopyIssue,
		}, nil
	}

	report := &models.QAReport{
		Issues: []string{},
		Checks: make(map[string]any, len(checks)),
	}

	passed := 0

	for _, c := range checks {
		ok := c.ok(in)
		report.Checks[c.name] = ok

		if ok {
			passed++
		} else {
			report.Issues = append(report.Issues, c.issue)
		}
	}

	report.Score = float64(passed) / float64(len(checks))
	report.Passed = report.Score >= r.threshold
	report.Summary = fmt.Sprintf("%d of %d checks passed", passed, len(checks))

	return report, nil
}
