// Package gap wraps the pipeline's Gap Detection graph with the query
// construction rule from the case record and the NEW/SAME/CONTRADICTS
// behavioral contract: no evidence or a below-floor best match
// both force NEW regardless of what the classifier model says.
package gap

import (
	"context"
	"fmt"
	"strings"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/pipeline"
	"github.com/larrycoder123/supportmind/pkg/config"
)

// Detector runs one Gap Detection pass per resolved case. TopK is a pointer
// so an unconfigured value (nil, falls back to 10) can be told apart from a
// misconfigured explicit zero, which fails the run rather than silently
// substituting the default.
type Detector struct {
	Deps                pipeline.Deps
	Logs                pipeline.LogInserter
	Exec                pipeline.ExecutionRecorder
	ScoreWeights        config.ScoreWeights
	FreshnessMaxAgeDays int
	TopK                *int
}

// buildQuery assembles the gap-detection search text: subject, root_cause,
// category, and a 200-char resolution excerpt joined by ". ", falling back
// to the first 300 chars of the description when every part is empty.
func buildQuery(c domain.ResolvedCase) string {
	parts := make([]string, 0, 4)
	if c.Subject != "" {
		parts = append(parts, c.Subject)
	}
	if c.RootCause != "" {
		parts = append(parts, c.RootCause)
	}
	if c.Category != "" {
		parts = append(parts, c.Category)
	}
	if c.Resolution != "" {
		parts = append(parts, fmt.Sprintf("Resolution: %s", truncate(c.Resolution, 200)))
	}

	if len(parts) == 0 {
		return truncate(c.Description, 300)
	}
	return strings.Join(parts, ". ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Detect runs the Gap Detection graph for one resolved case and returns the
// classifier's verdict.
func (d *Detector) Detect(ctx context.Context, c domain.ResolvedCase, executionID, retrievalLogSummary string) pipeline.Result {
	topK := 10
	if d.TopK != nil {
		if *d.TopK <= 0 {
			s := pipeline.NewState(domain.GraphGap, executionID, buildQuery(c), c.Category, nil, 0)
			s.CaseID = c.CaseID
			s.ConversationID = c.ConversationID
			s.Status = pipeline.StatusError
			s.ErrorMessage = fmt.Sprintf("gap detect: top_k must be positive, got %d", *d.TopK)
			return pipeline.Result{State: s}
		}
		topK = *d.TopK
	}

	s := pipeline.NewState(domain.GraphGap, executionID, buildQuery(c), c.Category, nil, topK)
	s.CaseID = c.CaseID
	s.ConversationID = c.ConversationID
	s.RetrievalLogSummary = retrievalLogSummary

	return pipeline.RunGap(ctx, s, d.Deps, c, d.Logs, d.Exec, d.ScoreWeights, d.FreshnessMaxAgeDays)
}
