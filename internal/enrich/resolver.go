// Package enrich implements the pipeline's enrich_sources node: at most
// three batched ancillary lookups, one per source kind present in a
// rerank result, degrading to unenriched hits rather than failing the run.
package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/pipeline"
	"github.com/larrycoder123/supportmind/internal/storage/sqlite"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// ArticleLineage looks up provenance for ARTICLE-kind hits.
type ArticleLineage interface {
	ProvenanceFor(ctx context.Context, articleIDs []string) (map[string][]domain.ProvenanceRecord, error)
}

// ScriptLookup looks up purpose/required_inputs for SCRIPT-kind hits.
type ScriptLookup interface {
	BatchGet(ctx context.Context, scriptIDs []string) (map[string]sqlite.ScriptEntry, error)
}

// CaseLookup looks up subject/resolution/root_cause for CASE_RESOLUTION-kind hits.
type CaseLookup interface {
	BatchGet(ctx context.Context, caseIDs []string) (map[string]domain.ResolvedCase, error)
}

// Resolver implements pipeline.Enricher over the three ancillary stores.
type Resolver struct {
	Articles ArticleLineage
	Scripts  ScriptLookup
	Cases    CaseLookup
}

var _ pipeline.Enricher = (*Resolver)(nil)

// Enrich runs exactly one batched lookup per source kind present in hits
//. A failed lookup for one kind degrades only that kind's hits
// to unenriched rather than failing the whole pipeline run.
func (r *Resolver) Enrich(ctx context.Context, hits []pipeline.EvidenceHit) (map[domain.EntryKey]pipeline.EnrichedDetail, error) {
	result := make(map[domain.EntryKey]pipeline.EnrichedDetail, len(hits))

	var articleIDs, scriptIDs, caseIDs []string
	for _, h := range hits {
		switch h.Entry.SourceKind {
		case domain.SourceArticle:
			articleIDs = append(articleIDs, h.Entry.SourceID)
		case domain.SourceScript:
			scriptIDs = append(scriptIDs, h.Entry.SourceID)
		case domain.SourceCaseResolution:
			caseIDs = append(caseIDs, h.Entry.SourceID)
		}
	}

	var provenanceByArticle map[string][]domain.ProvenanceRecord
	if len(articleIDs) > 0 && r.Articles != nil {
		p, err := r.Articles.ProvenanceFor(ctx, articleIDs)
		if err != nil {
			logger.Warn("article provenance lookup failed", zap.Error(err))
		} else {
			provenanceByArticle = p
		}
	}

	var scripts map[string]sqlite.ScriptEntry
	if len(scriptIDs) > 0 && r.Scripts != nil {
		s, err := r.Scripts.BatchGet(ctx, scriptIDs)
		if err != nil {
			logger.Warn("script lookup failed", zap.Error(err))
		} else {
			scripts = s
		}
	}

	var cases map[string]domain.ResolvedCase
	if len(caseIDs) > 0 && r.Cases != nil {
		c, err := r.Cases.BatchGet(ctx, caseIDs)
		if err != nil {
			logger.Warn("case lookup failed", zap.Error(err))
		} else {
			cases = c
		}
	}

	for _, h := range hits {
		key := h.Entry.Key()
		var detail pipeline.EnrichedDetail

		switch h.Entry.SourceKind {
		case domain.SourceArticle:
			records, ok := provenanceByArticle[h.Entry.SourceID]
			if !ok {
				detail.Failed = true
				break
			}
			for _, rec := range records {
				switch rec.SourceKind {
				case domain.ProvenanceCase:
					detail.LineageCaseID = rec.SourceID
				case domain.ProvenanceConversation:
					detail.LineageConversationID = rec.SourceID
				case domain.ProvenanceScript:
					detail.LineageScriptID = rec.SourceID
				}
			}

		case domain.SourceScript:
			entry, ok := scripts[h.Entry.SourceID]
			if !ok {
				detail.Failed = true
				break
			}
			detail.ScriptPurpose = entry.Purpose
			detail.ScriptRequiredInputs = entry.RequiredInputs

		case domain.SourceCaseResolution:
			c, ok := cases[h.Entry.SourceID]
			if !ok {
				detail.Failed = true
				break
			}
			detail.CaseSubject = c.Subject
			detail.CaseResolution = c.Resolution
			detail.CaseRootCause = c.RootCause
		}

		result[key] = detail
	}

	return result, nil
}
