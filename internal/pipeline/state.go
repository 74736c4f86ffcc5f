// Package pipeline implements the retrieval pipeline's shared state
// machine: a single mutable state record walked by a list of node
// functions, with two terminals (QA and Gap) over eight nodes, five of which
// (plan_query, retrieve, rerank, enrich_sources, log_retrieval) both run.
package pipeline

import (
	"context"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/providers"
)

// Citation is one cited source in a written answer.
type Citation struct {
	SourceKind domain.SourceKind
	SourceID   string
	Title      string
	Quote      string
}

// EnrichedDetail is the per-hit enrichment attached by the enrich_sources
// node.
type EnrichedDetail struct {
	LineageCaseID         string
	LineageConversationID string
	LineageScriptID       string
	ScriptPurpose         string
	ScriptRequiredInputs  []string
	CaseSubject           string
	CaseResolution        string
	CaseRootCause         string
	Failed                bool
}

// EvidenceHit is a post-rerank corpus hit carrying its ranking scores.
type EvidenceHit struct {
	Entry       domain.CorpusEntry
	Similarity  float64
	RerankScore float64 // set by the rerank node's learning-adjusted blend; blended from Similarity if rerank unavailable
	FinalScore  float64 // set by score.go's public-facing ranking blend
	Enriched    EnrichedDetail
}

// Status is the terminal or in-flight status of a pipeline run.
type Status string

const (
	StatusRunning               Status = "running"
	StatusOK                    Status = "ok"
	StatusInsufficientEvidence  Status = "insufficient_evidence"
	StatusError                 Status = "error"
)

// Confidence in a written answer, self-reported by the Generation Port.
type SelfConfidence string

const (
	SelfConfidenceLow    SelfConfidence = "low"
	SelfConfidenceMedium SelfConfidence = "medium"
	SelfConfidenceHigh   SelfConfidence = "high"
)

// State is the single mutable record threaded through every node. Nodes are
// atomic from this record's perspective — no suspension is permitted
// between a node reading and writing it.
type State struct {
	GraphKind domain.ExecutionGraphKind

	Query        string
	Category     string
	SourceKinds  []domain.SourceKind
	TopK         int

	QueryVariants []string
	Rationale     string

	Candidates map[domain.EntryKey]corpus.Hit
	Evidence   []EvidenceHit

	Answer         string
	Citations      []Citation
	SelfConfidence SelfConfidence

	Decision *domain.KnowledgeDecision

	AttemptNo int
	Status    Status

	CaseID         string
	ConversationID string

	// RetrievalLogSummary is the optional human-readable digest of prior
	// live-retrieval attempts fed into classify_knowledge's prompt context.
	RetrievalLogSummary string

	ExecutionID      string
	PerNodeLatencies map[string]int64
	TokensIn         int
	TokensOut        int

	ErrorMessage string
}

// NewState builds the initial state for a pipeline run. top_k = 0 must be
// rejected by the caller before this is constructed.
func NewState(graphKind domain.ExecutionGraphKind, executionID, query, category string, sourceKinds []domain.SourceKind, topK int) *State {
	return &State{
		GraphKind:        graphKind,
		Query:            query,
		Category:         category,
		SourceKinds:      sourceKinds,
		TopK:             topK,
		Candidates:       make(map[domain.EntryKey]corpus.Hit),
		Status:           StatusRunning,
		ExecutionID:      executionID,
		PerNodeLatencies: make(map[string]int64),
	}
}

// Deps bundles every external dependency a node needs. Node functions take
// (ctx, *State, Deps) and return an error; they are pure of scheduler
// concerns.
type Deps struct {
	Store      corpus.Store
	Embedding  providers.EmbeddingPort
	Generation providers.GenerationPort
	Rerank     providers.RerankPort
	Enricher   Enricher
	RerankerEnabled bool

	GapSimilarityThreshold float64
	MaxCandidates          int
	RerankBlendWeight      float64
}

// Enricher is the narrow interface the enrich_sources node depends on;
// the concrete implementation lives in internal/enrich.
type Enricher interface {
	Enrich(ctx context.Context, hits []EvidenceHit) (map[domain.EntryKey]EnrichedDetail, error)
}
