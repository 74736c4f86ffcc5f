package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/providers"
)

// draftSchema is the structured output the Generation Port is forced into
// when drafting or replacing a knowledge article.
type draftSchema struct {
	Title             string   `json:"title"`
	Body              string   `json:"body"`
	Tags              []string `json:"tags"`
	Module            string   `json:"module"`
	Category          string   `json:"category"`
	RelatedErrorCodes []string `json:"related_error_codes"`
	ResolutionSteps   []string `json:"resolution_steps"`
	InternalNotes     string   `json:"internal_notes"`
}

var draftJSONSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"title":               map[string]interface{}{"type": "string"},
		"body":                map[string]interface{}{"type": "string"},
		"tags":                map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"module":              map[string]interface{}{"type": "string"},
		"category":            map[string]interface{}{"type": "string"},
		"related_error_codes": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"resolution_steps":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"internal_notes":      map[string]interface{}{"type": "string"},
	},
	"required": []string{"title", "body", "tags", "module", "category", "resolution_steps"},
}

// ConversationStore is the read-only transcript seam the Draft Generator
// consults so a synthesized article's prompt can ground itself in what was
// actually said, not only the case's post-hoc summary fields. A missing or
// unwired store is tolerated - the transcript enriches the prompt, it isn't
// a required input - so the Drafter falls back to "No transcript available."
type ConversationStore interface {
	Transcript(ctx context.Context, conversationID string) (string, error)
}

// transcriptMaxChars bounds how much of a transcript enters the prompt,
// matching the truncation the original learning pipeline applied.
const transcriptMaxChars = 3000

// Drafter turns a resolved case (and, for a contradiction, the article it
// contradicts) into a DRAFT/SYNTHESIZED Article plus exactly three
// provenance records.
type Drafter struct {
	Generation    providers.GenerationPort
	Conversations ConversationStore
}

func (d *Drafter) transcriptFor(ctx context.Context, c domain.ResolvedCase) string {
	if d.Conversations == nil || c.ConversationID == "" {
		return "No transcript available."
	}

	t, err := d.Conversations.Transcript(ctx, c.ConversationID)
	if err != nil || t == "" {
		return "No transcript available."
	}
	if len(t) > transcriptMaxChars {
		t = t[:transcriptMaxChars]
	}
	return t
}

// DraftNew drafts a brand-new article when no prior knowledge covered the case.
func (d *Drafter) DraftNew(ctx context.Context, c domain.ResolvedCase, failedQueries []string) (domain.Article, []domain.ProvenanceRecord, error) {
	prompt := fmt.Sprintf(
		"A support case was resolved but no existing knowledge article could help. The agent solved it from scratch. "+
			"Draft a knowledge article capturing this.\n\nCase subject: %s\nDescription: %s\nRoot cause: %s\nResolution: %s\nCategory: %s\n\n"+
			"Agent transcript (truncated):\n%s\n\n"+
			"Search queries that returned nothing useful:\n%s\n\n"+
			"Write a comprehensive article with a clear problem description, root cause analysis, and numbered resolution steps.",
		c.Subject, c.Description, c.RootCause, c.Resolution, c.Category, d.transcriptFor(ctx, c), joinLines(failedQueries),
	)

	systemPrompt := "You are a technical writer creating knowledge articles from resolved support cases where no " +
		"existing article could help. Write clearly, make the article searchable with relevant tags, and structure it " +
		"with a problem description, root cause, and resolution steps."

	return d.draft(ctx, c, prompt, systemPrompt, domain.OriginSynthesized)
}

// DraftReplacement drafts a corrected article when the case's resolution
// contradicts an existing one.
func (d *Drafter) DraftReplacement(ctx context.Context, c domain.ResolvedCase, existing domain.Article, failedQueries []string) (domain.Article, []domain.ProvenanceRecord, error) {
	prompt := fmt.Sprintf(
		"An existing knowledge article appears outdated or incorrect based on a recently resolved case.\n\n"+
			"EXISTING ARTICLE TITLE: %s\nEXISTING ARTICLE BODY:\n%s\n\n---\n\n"+
			"CASE THAT CONTRADICTS THE ABOVE:\nSubject: %s\nDescription: %s\nRoot cause: %s\nResolution: %s\nCategory: %s\n\n"+
			"Agent transcript (truncated):\n%s\n\n"+
			"Search queries used:\n%s\n\n"+
			"Write an updated article that incorporates the correct resolution. Keep any still-valid content from the "+
			"existing article, but correct what is outdated.",
		existing.Title, truncate(existing.Body, 2000), c.Subject, c.Description, c.RootCause, c.Resolution, c.Category, d.transcriptFor(ctx, c), joinLines(failedQueries),
	)

	systemPrompt := "You are a technical writer updating a knowledge article found to contain outdated or incorrect " +
		"information. Correct it based on the new case resolution, preserve still-valid content, and include updated " +
		"resolution steps."

	return d.draft(ctx, c, prompt, systemPrompt, domain.OriginSynthesized)
}

func (d *Drafter) draft(ctx context.Context, c domain.ResolvedCase, prompt, systemPrompt string, origin domain.ArticleOrigin) (domain.Article, []domain.ProvenanceRecord, error) {
	schema := providers.Schema{Name: "kb_draft", JSONSchema: draftJSONSchema}

	raw, _, err := d.Generation.GenerateStructured(ctx, []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, schema, 0.5)
	if err != nil {
		return domain.Article{}, nil, fmt.Errorf("draft article: %w", err)
	}

	var parsed draftSchema
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Article{}, nil, fmt.Errorf("draft article: unmarshal structured response: %w", err)
	}

	now := time.Now()
	article := domain.Article{
		ArticleID: "ART-SYN-" + uuid.New().String(),
		Title:     parsed.Title,
		Body:      parsed.Body,
		Tags:      parsed.Tags,
		Module:    parsed.Module,
		Category:  parsed.Category,
		Status:    domain.ArticleDraft,
		Origin:    origin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	records := buildProvenance(article.ArticleID, c, now)
	return article, records, nil
}

// buildProvenance produces exactly three provenance records: the
// triggering case, its conversation, and the script it ran (if any).
func buildProvenance(articleID string, c domain.ResolvedCase, now time.Time) []domain.ProvenanceRecord {
	scriptID := c.ScriptID
	scriptRelationship := domain.RelationshipReferences
	scriptSnippet := "No script was associated with this case"
	if scriptID == "" {
		scriptID = domain.NoScriptSentinel
	} else {
		scriptSnippet = fmt.Sprintf("Referenced script %s from the resolved case", scriptID)
	}

	conversationID := c.ConversationID
	if conversationID == "" {
		conversationID = c.CaseID
	}

	return []domain.ProvenanceRecord{
		{
			ArticleID:       articleID,
			SourceKind:      domain.ProvenanceCase,
			SourceID:        c.CaseID,
			Relationship:    domain.RelationshipCreatedFrom,
			EvidenceSnippet: fmt.Sprintf("Article drafted from case %s", c.CaseID),
			Timestamp:       now,
		},
		{
			ArticleID:       articleID,
			SourceKind:      domain.ProvenanceConversation,
			SourceID:        conversationID,
			Relationship:    domain.RelationshipCreatedFrom,
			EvidenceSnippet: "Conversation context used as source material",
			Timestamp:       now,
		},
		{
			ArticleID:       articleID,
			SourceKind:      domain.ProvenanceScript,
			SourceID:        scriptID,
			Relationship:    scriptRelationship,
			EvidenceSnippet: scriptSnippet,
			Timestamp:       now,
		},
	}
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += "  - " + l + "\n"
	}
	if out == "" {
		return "  (none)"
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
