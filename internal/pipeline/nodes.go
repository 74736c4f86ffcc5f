package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/corpus"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/providers"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// categoryTaxonomy and sourceKindLabels are fed into plan_query's prompt so
// the model paraphrases using terminology the corpus actually uses.
var categoryTaxonomy = []string{"billing", "authentication", "integration", "performance", "data_sync", "provisioning", "other"}
var sourceKindLabels = []string{string(domain.SourceScript), string(domain.SourceArticle), string(domain.SourceCaseResolution)}

type queryPlanSchema struct {
	Queries   []string `json:"queries"`
	Rationale string   `json:"rationale"`
}

// extractCandidateNouns runs a local NLP pre-pass over the raw query with
// prose, pulling out noun-tagged tokens to hint the paraphrase prompt — a
// tokenizer-based generalization of a keyword-map entity extractor.
func extractCandidateNouns(query string) []string {
	doc, err := prose.NewDocument(query)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var nouns []string
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") {
			continue
		}
		lower := strings.ToLower(tok.Text)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		nouns = append(nouns, lower)
	}
	return nouns
}

// planQuery is node 1: generate 2-4 paraphrased query variants.
func planQuery(ctx context.Context, s *State, d Deps) error {
	start := time.Now()
	defer func() { s.PerNodeLatencies["plan_query"] = time.Since(start).Milliseconds() }()

	nouns := extractCandidateNouns(s.Query)

	systemPrompt := fmt.Sprintf(
		"You paraphrase customer-support queries into 2-4 alternative phrasings that use different "+
			"plausible terminology a knowledge base might use. Known categories: %s. Known source kinds: %s.",
		strings.Join(categoryTaxonomy, ", "), strings.Join(sourceKindLabels, ", "),
	)
	userPrompt := fmt.Sprintf("Question: %s", s.Query)
	if len(nouns) > 0 {
		userPrompt += fmt.Sprintf("\nCandidate key terms: %s", strings.Join(nouns, ", "))
	}

	schema := providers.Schema{Name: "retrieval_plan", JSONSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"queries":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"rationale": map[string]interface{}{"type": "string"},
		},
		"required": []string{"queries", "rationale"},
	}}

	raw, usage, err := d.Generation.GenerateStructured(ctx, []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, schema, 0)
	if err != nil {
		return fmt.Errorf("plan_query: %w", err)
	}

	var plan queryPlanSchema
	if err := json.Unmarshal(raw, &plan); err != nil {
		return fmt.Errorf("plan_query: unmarshal structured response: %w", err)
	}

	s.QueryVariants = plan.Queries
	s.Rationale = plan.Rationale
	s.TokensIn += usage.PromptTokens
	s.TokensOut += usage.CompletionTokens

	return nil
}

// retrieve is node 2: batch-embed variants, search the corpus per variant,
// merge by max similarity, cap at max_candidates.
func retrieve(ctx context.Context, s *State, d Deps) error {
	start := time.Now()
	defer func() { s.PerNodeLatencies["retrieve"] = time.Since(start).Milliseconds() }()

	if len(s.QueryVariants) == 0 {
		return nil
	}

	vectors, err := d.Embedding.EmbedBatch(ctx, s.QueryVariants)
	if err != nil {
		return fmt.Errorf("retrieve: embed batch: %w", err)
	}

	filter := corpus.Filter{
		SourceKinds:   s.SourceKinds,
		Category:      s.Category,
		MinSimilarity: 0,
		TopK:          0,
	}

	for _, vec := range vectors {
		hits, err := d.Store.Search(ctx, vec, filter)
		if err != nil {
			return fmt.Errorf("retrieve: corpus search: %w", err)
		}

		for _, hit := range hits {
			key := hit.Entry.Key()
			existing, ok := s.Candidates[key]
			if !ok || hit.Similarity > existing.Similarity {
				s.Candidates[key] = hit
			}
		}
	}

	if d.MaxCandidates > 0 && len(s.Candidates) > d.MaxCandidates {
		ordered := make([]corpus.Hit, 0, len(s.Candidates))
		for _, h := range s.Candidates {
			ordered = append(ordered, h)
		}
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Similarity != ordered[j].Similarity {
				return ordered[i].Similarity > ordered[j].Similarity
			}
			return ordered[i].Entry.SourceID < ordered[j].Entry.SourceID
		})
		ordered = ordered[:d.MaxCandidates]

		trimmed := make(map[domain.EntryKey]corpus.Hit, len(ordered))
		for _, h := range ordered {
			trimmed[h.Entry.Key()] = h
		}
		s.Candidates = trimmed
	}

	return nil
}

// rerank is node 3: reorder by the rerank port if healthy, else similarity
// order; applies the learning-adjusted blend before truncating to top_k
//.
func rerank(ctx context.Context, s *State, d Deps) error {
	start := time.Now()
	defer func() { s.PerNodeLatencies["rerank"] = time.Since(start).Milliseconds() }()

	if len(s.Candidates) == 0 {
		s.Evidence = nil
		return nil
	}

	ordered := make([]corpus.Hit, 0, len(s.Candidates))
	for _, h := range s.Candidates {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Similarity != ordered[j].Similarity {
			return ordered[i].Similarity > ordered[j].Similarity
		}
		return ordered[i].Entry.SourceID < ordered[j].Entry.SourceID
	})

	rawScores := make(map[domain.EntryKey]float64, len(ordered))
	for _, h := range ordered {
		rawScores[h.Entry.Key()] = h.Similarity
	}

	if d.RerankerEnabled && d.Rerank != nil && d.Rerank.Healthy() {
		candidates := make([]providers.RerankCandidate, len(ordered))
		for i, h := range ordered {
			candidates[i] = providers.RerankCandidate{ID: entryKeyString(h.Entry.Key()), Text: h.Entry.Content}
		}

		results, err := d.Rerank.Rerank(ctx, s.Query, candidates, len(candidates))
		if err != nil {
			logger.Warn("rerank port failed, falling back to similarity order", zap.Error(err))
		} else {
			for _, r := range results {
				for _, h := range ordered {
					if entryKeyString(h.Entry.Key()) == r.ID {
						rawScores[h.Entry.Key()] = r.Score
					}
				}
			}
		}
	}

	evidence := make([]EvidenceHit, 0, len(ordered))
	for _, h := range ordered {
		learning := learningScore(h.Entry.Confidence, h.Entry.UsageCount, h.Entry.UpdatedAt, 365)
		blended := blendRerankWithLearning(rawScores[h.Entry.Key()], learning, d.RerankBlendWeight)

		evidence = append(evidence, EvidenceHit{
			Entry:       h.Entry,
			Similarity:  h.Similarity,
			RerankScore: blended,
		})
	}

	sort.Slice(evidence, func(i, j int) bool {
		if evidence[i].RerankScore != evidence[j].RerankScore {
			return evidence[i].RerankScore > evidence[j].RerankScore
		}
		return evidence[i].Entry.SourceID < evidence[j].Entry.SourceID
	})

	if s.TopK > 0 && len(evidence) > s.TopK {
		evidence = evidence[:s.TopK]
	}

	s.Evidence = evidence
	return nil
}

func entryKeyString(k domain.EntryKey) string {
	return string(k.SourceKind) + ":" + k.SourceID
}

// enrichSources is node 4: at most three batched lookups.
func enrichSources(ctx context.Context, s *State, d Deps) error {
	start := time.Now()
	defer func() { s.PerNodeLatencies["enrich_sources"] = time.Since(start).Milliseconds() }()

	if len(s.Evidence) == 0 || d.Enricher == nil {
		return nil
	}

	details, err := d.Enricher.Enrich(ctx, s.Evidence)
	if err != nil {
		logger.Warn("enrichment failed, proceeding with unenriched hits", zap.Error(err))
		for i := range s.Evidence {
			s.Evidence[i].Enriched.Failed = true
		}
		return nil
	}

	for i := range s.Evidence {
		if detail, ok := details[s.Evidence[i].Entry.Key()]; ok {
			s.Evidence[i].Enriched = detail
		}
	}
	return nil
}

type writeAnswerSchema struct {
	Answer     string `json:"answer"`
	Citations  []struct {
		SourceKind string `json:"source_kind"`
		SourceID   string `json:"source_id"`
		Title      string `json:"title"`
		Quote      string `json:"quote"`
	} `json:"citations"`
	SelfConfidence string `json:"self_confidence"`
}

// writeAnswer is node 5 (QA only): synthesize a cited answer.
func writeAnswer(ctx context.Context, s *State, d Deps) error {
	start := time.Now()
	defer func() { s.PerNodeLatencies["write_answer"] = time.Since(start).Milliseconds() }()

	if len(s.Evidence) == 0 {
		return nil
	}

	var evidenceText strings.Builder
	for i, hit := range s.Evidence {
		fmt.Fprintf(&evidenceText, "\n[%d] (%s: %s, %q):\n%s\n", i+1, hit.Entry.SourceKind, hit.Entry.SourceID, hit.Entry.Title, hit.Entry.Content)
		if hit.Enriched.CaseResolution != "" {
			fmt.Fprintf(&evidenceText, "Resolution on file: %s\n", hit.Enriched.CaseResolution)
		}
		if hit.Enriched.ScriptPurpose != "" {
			fmt.Fprintf(&evidenceText, "Script purpose: %s\n", hit.Enriched.ScriptPurpose)
		}
	}

	schema := providers.Schema{Name: "rag_answer", JSONSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"answer": map[string]interface{}{"type": "string"},
			"citations": map[string]interface{}{"type": "array", "items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source_kind": map[string]interface{}{"type": "string"},
					"source_id":   map[string]interface{}{"type": "string"},
					"title":       map[string]interface{}{"type": "string"},
					"quote":       map[string]interface{}{"type": "string"},
				},
			}},
			"self_confidence": map[string]interface{}{"type": "string", "enum": []string{"low", "medium", "high"}},
		},
		"required": []string{"answer", "citations", "self_confidence"},
	}}

	raw, usage, err := d.Generation.GenerateStructured(ctx, []providers.Message{
		{Role: "system", Content: "You answer customer-support questions using only the evidence provided, citing at least one source per non-trivial claim."},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nEvidence:%s", s.Query, evidenceText.String())},
	}, schema, 0.3)
	if err != nil {
		return fmt.Errorf("write_answer: %w", err)
	}

	var parsed writeAnswerSchema
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("write_answer: unmarshal structured response: %w", err)
	}

	s.Answer = parsed.Answer
	s.SelfConfidence = SelfConfidence(parsed.SelfConfidence)
	s.Citations = make([]Citation, len(parsed.Citations))
	for i, c := range parsed.Citations {
		s.Citations[i] = Citation{SourceKind: domain.SourceKind(c.SourceKind), SourceID: c.SourceID, Title: c.Title, Quote: c.Quote}
	}
	s.TokensIn += usage.PromptTokens
	s.TokensOut += usage.CompletionTokens

	return nil
}

// validate is node 6 (QA only): require at least one hit and one citation,
// widen top_k and retry once, else INSUFFICIENT_EVIDENCE.
// Returns whether a retry should occur.
func validate(s *State) (retry bool) {
	start := time.Now()
	defer func() { s.PerNodeLatencies["validate"] = time.Since(start).Milliseconds() }()

	if len(s.Evidence) >= 1 && len(s.Citations) >= 1 {
		s.Status = StatusOK
		return false
	}

	if s.AttemptNo == 0 {
		s.TopK = int(math.Ceil(float64(s.TopK) * 1.5))
		s.AttemptNo = 1
		s.Candidates = make(map[domain.EntryKey]corpus.Hit)
		s.Evidence = nil
		s.Answer = ""
		s.Citations = nil
		return true
	}

	s.Status = StatusInsufficientEvidence
	return false
}

type classifySchema struct {
	Verdict           string  `json:"verdict"`
	Reasoning         string  `json:"reasoning"`
	BestMatchSourceID string  `json:"best_match_source_id,omitempty"`
	SimilarityScore   float64 `json:"similarity_score,omitempty"`
}

// classifyKnowledge is node 7 (Gap only): SAME / CONTRADICTS / NEW, with the
// similarity-floor override against d.GapSimilarityThreshold applied here.
func classifyKnowledge(ctx context.Context, s *State, d Deps, resolvedCase domain.ResolvedCase) error {
	start := time.Now()
	defer func() { s.PerNodeLatencies["classify_knowledge"] = time.Since(start).Milliseconds() }()

	if len(s.Evidence) == 0 {
		s.Decision = &domain.KnowledgeDecision{Verdict: domain.VerdictNew, Reasoning: "no matching entries found in the corpus"}
		s.Status = StatusOK
		return nil
	}

	best := s.Evidence[0]

	var evidenceSummary strings.Builder
	for i, hit := range s.Evidence {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&evidenceSummary, "- [%s: %s] (similarity=%.3f): %s\n", hit.Entry.SourceKind, hit.Entry.SourceID, hit.Similarity, truncate(hit.Entry.Content, 300))
	}

	logContext := ""
	if s.RetrievalLogSummary != "" {
		logContext = fmt.Sprintf("\nRetrieval log from live support session:\n%s\n", s.RetrievalLogSummary)
	}

	schema := providers.Schema{Name: "knowledge_decision", JSONSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"verdict":             map[string]interface{}{"type": "string", "enum": []string{"SAME", "CONTRADICTS", "NEW"}},
			"reasoning":           map[string]interface{}{"type": "string"},
			"best_match_source_id": map[string]interface{}{"type": "string"},
			"similarity_score":    map[string]interface{}{"type": "number"},
		},
		"required": []string{"verdict", "reasoning"},
	}}

	userPrompt := fmt.Sprintf(
		"Case subject: %s\nResolution: %s\nRoot cause: %s\n\nBest similarity score: %.3f\nTop matching corpus entries:\n%s%s\nClassify this case's knowledge as SAME, CONTRADICTS, or NEW.",
		resolvedCase.Subject, resolvedCase.Resolution, resolvedCase.RootCause, best.Similarity, evidenceSummary.String(), logContext,
	)

	raw, usage, err := d.Generation.GenerateStructured(ctx, []providers.Message{
		{Role: "system", Content: "You decide whether a resolved case's knowledge is already covered, contradicts an existing article, or is new."},
		{Role: "user", Content: userPrompt},
	}, schema, 0)
	if err != nil {
		return fmt.Errorf("classify_knowledge: %w", err)
	}

	var parsed classifySchema
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("classify_knowledge: unmarshal structured response: %w", err)
	}

	verdict := domain.Verdict(parsed.Verdict)
	if best.Similarity < d.GapSimilarityThreshold {
		verdict = domain.VerdictNew // below-floor similarity always overrides the classifier's verdict text
	}

	s.Decision = &domain.KnowledgeDecision{
		Verdict:           verdict,
		Reasoning:         parsed.Reasoning,
		BestMatchSourceID: best.Entry.SourceID,
		SimilarityScore:   best.Similarity,
	}
	s.TokensIn += usage.PromptTokens
	s.TokensOut += usage.CompletionTokens
	s.Status = StatusOK

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// LogInserter is the narrow persistence seam node 8 depends on for writing
// audit rows; satisfied by internal/storage/sqlite.RetrievalLogStore.
type LogInserter interface {
	Insert(ctx context.Context, row domain.RetrievalLogRow) error
}

// logRetrieval is node 8: append one log row per hit (up to 10), bump usage
// on the top 5, never propagate failures.
func logRetrieval(ctx context.Context, s *State, logs LogInserter, store corpus.Store) {
	start := time.Now()
	defer func() { s.PerNodeLatencies["log_retrieval"] = time.Since(start).Milliseconds() }()

	if logs == nil {
		return
	}

	limit := len(s.Evidence)
	if limit > 10 {
		limit = 10
	}

	var caseIDPtr, conversationIDPtr *string
	if s.CaseID != "" {
		caseIDPtr = &s.CaseID
	}
	if s.ConversationID != "" {
		conversationIDPtr = &s.ConversationID
	}

	for i := 0; i < limit; i++ {
		hit := s.Evidence[i]
		sourceKind := hit.Entry.SourceKind
		sourceID := hit.Entry.SourceID
		similarity := hit.Similarity

		row := domain.RetrievalLogRow{
			LogID:           "RET-" + uuid.New().String(),
			CaseID:          caseIDPtr,
			ConversationID:  conversationIDPtr,
			AttemptNo:       s.AttemptNo,
			QueryText:       s.Query,
			SourceKind:      &sourceKind,
			SourceID:        &sourceID,
			SimilarityScore: &similarity,
			ExecutionID:     s.ExecutionID,
			CreatedAt:       time.Now(),
		}

		if err := logs.Insert(ctx, row); err != nil {
			s.ErrorMessage = appendErr(s.ErrorMessage, fmt.Sprintf("log_retrieval insert: %v", err))
		}
	}

	if store == nil {
		return
	}

	bumpLimit := len(s.Evidence)
	if bumpLimit > 5 {
		bumpLimit = 5
	}
	for i := 0; i < bumpLimit; i++ {
		if err := store.BumpUsage(ctx, s.Evidence[i].Entry.Key()); err != nil {
			s.ErrorMessage = appendErr(s.ErrorMessage, fmt.Sprintf("log_retrieval bump_usage: %v", err))
		}
	}
}

func appendErr(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
