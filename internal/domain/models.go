// Package domain holds the data model shared across the retrieval,
// gap-detection, and self-learning subsystems.
package domain

import "time"

// SourceKind tags which ancillary table a corpus entry or hit originates from.
type SourceKind string

const (
	SourceScript         SourceKind = "SCRIPT"
	SourceArticle        SourceKind = "ARTICLE"
	SourceCaseResolution SourceKind = "CASE_RESOLUTION"
)

// ArticleStatus is the lifecycle state of a knowledge Article.
type ArticleStatus string

const (
	ArticleActive   ArticleStatus = "ACTIVE"
	ArticleDraft    ArticleStatus = "DRAFT"
	ArticleArchived ArticleStatus = "ARCHIVED"
)

// ArticleOrigin distinguishes seed content from system-synthesized drafts.
type ArticleOrigin string

const (
	OriginSeed        ArticleOrigin = "SEED"
	OriginSynthesized ArticleOrigin = "SYNTHESIZED"
)

// ProvenanceSourceKind is the kind of record a provenance row links back to.
type ProvenanceSourceKind string

const (
	ProvenanceCase         ProvenanceSourceKind = "Case"
	ProvenanceConversation ProvenanceSourceKind = "Conversation"
	ProvenanceScript       ProvenanceSourceKind = "Script"
)

// ProvenanceRelationship describes how a provenance source relates to the article.
type ProvenanceRelationship string

const (
	RelationshipCreatedFrom ProvenanceRelationship = "CREATED_FROM"
	RelationshipReferences  ProvenanceRelationship = "REFERENCES"
)

// RetrievalOutcome is the post-hoc stamp applied to a retrieval log row at case closure.
type RetrievalOutcome string

const (
	OutcomeResolved  RetrievalOutcome = "RESOLVED"
	OutcomeUnhelpful RetrievalOutcome = "UNHELPFUL"
	OutcomePartial   RetrievalOutcome = "PARTIAL"
)

// ExecutionGraphKind distinguishes the QA pipeline from the Gap pipeline.
type ExecutionGraphKind string

const (
	GraphQA  ExecutionGraphKind = "QA"
	GraphGap ExecutionGraphKind = "GAP"
)

// ExecutionStatus is the terminal state of a single pipeline execution.
type ExecutionStatus string

const (
	ExecutionOK                  ExecutionStatus = "ok"
	ExecutionError                ExecutionStatus = "error"
	ExecutionInsufficientEvidence ExecutionStatus = "insufficient_evidence"
)

// LearningEventKind classifies why a learning event was raised.
type LearningEventKind string

const (
	EventGap          LearningEventKind = "GAP"
	EventContradiction LearningEventKind = "CONTRADICTION"
	EventConfirmed     LearningEventKind = "CONFIRMED"
)

// ReviewerRole identifies who finalized a learning event.
type ReviewerRole string

const (
	ReviewerTier3  ReviewerRole = "TIER_3"
	ReviewerOps    ReviewerRole = "OPS"
	ReviewerSystem ReviewerRole = "SYSTEM"
)

// FinalStatus is the review outcome recorded on a learning event.
type FinalStatus string

const (
	StatusApproved FinalStatus = "APPROVED"
	StatusRejected FinalStatus = "REJECTED"
)

// Verdict is the gap classifier's decision.
type Verdict string

const (
	VerdictSame        Verdict = "SAME"
	VerdictContradicts Verdict = "CONTRADICTS"
	VerdictNew         Verdict = "NEW"
)

// CorpusEntry is the atom of knowledge: one retrievable unit with its embedding,
// confidence, and usage statistics. Identified by (SourceKind, SourceID).
type CorpusEntry struct {
	SourceKind SourceKind
	SourceID   string
	Title      string
	Content    string
	Category   string
	Module     string
	Tags       []string
	Embedding  []float32
	Confidence float64
	UsageCount int
	UpdatedAt  time.Time
}

// Key returns the composite primary key of the entry.
func (e CorpusEntry) Key() EntryKey { return EntryKey{SourceKind: e.SourceKind, SourceID: e.SourceID} }

// EntryKey is the composite key identifying a corpus entry.
type EntryKey struct {
	SourceKind SourceKind
	SourceID   string
}

// Article is the human-readable knowledge artifact. Active articles are mirrored
// into the Corpus Store; Draft and Archived articles are not.
type Article struct {
	ArticleID string
	Title     string
	Body      string
	Tags      []string
	Module    string
	Category  string
	Status    ArticleStatus
	Origin    ArticleOrigin
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NoScriptSentinel is the source_id recorded on a provenance row's REFERENCES
// Script relationship when a drafted article's triggering case ran no script.
const NoScriptSentinel = ""

// ProvenanceRecord links a synthesized article back to its originating case,
// conversation, or referenced script.
type ProvenanceRecord struct {
	ArticleID      string
	SourceKind     ProvenanceSourceKind
	SourceID       string
	Relationship   ProvenanceRelationship
	EvidenceSnippet string
	Timestamp      time.Time
}

// ResolvedCase is an immutable, closed support interaction.
type ResolvedCase struct {
	CaseID         string
	ConversationID string
	Subject        string
	Description    string
	Resolution     string
	RootCause      string
	Category       string
	Tags           []string
	ScriptID       string
	ClosedAt       time.Time
}

// RetrievalLogRow is one append-only audit row per evidence hit.
type RetrievalLogRow struct {
	LogID          string
	CaseID         *string
	ConversationID *string
	AttemptNo      int
	QueryText      string
	SourceKind     *SourceKind
	SourceID       *string
	SimilarityScore *float64
	Outcome        *RetrievalOutcome
	ExecutionID    string
	CreatedAt      time.Time
}

// ExecutionRecord is a pipeline-level observability row emitted once per run.
type ExecutionRecord struct {
	ExecutionID       string
	GraphKind         ExecutionGraphKind
	ConversationID    *string
	CaseID            *string
	Query             string
	TotalLatencyMS    int64
	PerNodeLatencies  map[string]int64
	TokensIn          int
	TokensOut         int
	EvidenceCount     int
	TopSimilarity     float64
	TopRerankScore    float64
	Classification    *Verdict
	Status            ExecutionStatus
	ErrorMessage      string
	CreatedAt         time.Time
}

// LearningEvent records a self-learning decision and, if applicable, its review.
type LearningEvent struct {
	EventID            string
	TriggeringCaseID   string
	EventKind          LearningEventKind
	DetectedGapText    string
	ProposedArticleID  *string
	FlaggedArticleID   *string
	DraftSummary       string
	FinalStatus        *FinalStatus
	ReviewerRole       ReviewerRole
	Reason             string
	Timestamp          time.Time
}

// KnowledgeDecision is the in-memory result of the gap classifier.
type KnowledgeDecision struct {
	Verdict           Verdict
	Reasoning         string
	BestMatchSourceID string
	SimilarityScore   float64
}
