package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/lectern/internal/domain"
)

// DefaultMaxChunkChars bounds how much transcript text goes into a single
// generation call. Longer transcripts are split on paragraph boundaries.
const DefaultMaxChunkChars = 6000

// DefaultTranscriptPrompt asks the model to segment a lecture transcript into
// per-topic records, preserving the order topics appear in.
const DefaultTranscriptPrompt = `You extract structured knowledge from lecture transcripts.
Split the transcript into the distinct topics it covers. For each topic produce one record
with a short topic label and the content covering that topic, in the order the topics
appear. Respond with a JSON array of objects shaped like {"topic": "...", "content": "..."}
and nothing else. Respond with [] when the transcript contains no usable course content.`

// DefaultNotesPrompt asks the model to condense a notes document into one record.
const DefaultNotesPrompt = `You condense course notes into a single knowledge record.
Produce one record whose topic names the subject of the notes and whose content
summarizes their substance. Respond with a JSON array containing exactly one object
shaped like {"topic": "...", "content": "..."} and nothing else.`

// GenerationClient is the single provider call the extractor depends on.
type GenerationClient interface {
	Complete(ctx context.Context, instructions, input string) (string, error)
}

// Config controls the extraction prompts and transcript segmentation.
// Zero values fall back to the defaults.
type Config struct {
	TranscriptPrompt string
	NotesPrompt      string
	MaxChunkChars    int
}

// Extractor turns raw course material into validated knowledge records.
type Extractor struct {
	gen GenerationClient
	cfg Config
}

// NewExtractor creates a new Extractor
func NewExtractor(gen GenerationClient, cfg Config) *Extractor {
	if cfg.TranscriptPrompt == "" {
		cfg.TranscriptPrompt = DefaultTranscriptPrompt
	}
	if cfg.NotesPrompt == "" {
		cfg.NotesPrompt = DefaultNotesPrompt
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = DefaultMaxChunkChars
	}
	return &Extractor{
		gen: gen,
		cfg: cfg,
	}
}

// Extract produces knowledge records for one source document. Transcripts
// yield zero or more records in source order; notes yield exactly one.
func (e *Extractor) Extract(ctx context.Context, sourceText string, kind domain.SourceKind) ([]domain.KnowledgeRecord, error) {
	if !domain.IsValidSourceKind(kind) {
		return nil, fmt.Errorf("source kind %q: %w", kind, domain.ErrInvalidSourceKind)
	}

	if kind == domain.SourceKindNotes {
		return e.extractNotes(ctx, sourceText)
	}
	return e.extractTranscript(ctx, sourceText)
}

func (e *Extractor) extractTranscript(ctx context.Context, sourceText string) ([]domain.KnowledgeRecord, error) {
	chunks := splitChunks(sourceText, e.cfg.MaxChunkChars)
	if len(chunks) == 0 {
		return nil, nil
	}

	var records []domain.KnowledgeRecord
	for i, chunk := range chunks {
		raw, err := e.gen.Complete(ctx, e.cfg.TranscriptPrompt, chunk)
		if err != nil {
			return nil, fmt.Errorf("extracting transcript chunk %d/%d: %w", i+1, len(chunks), err)
		}

		parsed, err := parseRecords(raw)
		if err != nil {
			return nil, fmt.Errorf("transcript chunk %d/%d: %w", i+1, len(chunks), err)
		}

		records = append(records, parsed...)
	}

	return records, nil
}

func (e *Extractor) extractNotes(ctx context.Context, sourceText string) ([]domain.KnowledgeRecord, error) {
	if strings.TrimSpace(sourceText) == "" {
		return nil, fmt.Errorf("notes document is empty: %w", domain.ErrMissingRequiredField)
	}

	raw, err := e.gen.Complete(ctx, e.cfg.NotesPrompt, sourceText)
	if err != nil {
		return nil, fmt.Errorf("extracting notes: %w", err)
	}

	records, err := parseRecords(raw)
	if err != nil {
		return nil, err
	}
	if len(records) != 1 {
		return nil, domain.NewDomainError(domain.ErrCodeSchemaViolation,
			fmt.Sprintf("notes extraction returned %d records, want exactly 1", len(records)))
	}

	return records, nil
}

// recordPayload is the wire shape the prompts demand from the model.
type recordPayload struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// parseRecords validates generation output against the record schema. Any
// malformed payload or invalid record fails the whole response; records are
// never silently dropped.
func parseRecords(raw string) ([]domain.KnowledgeRecord, error) {
	payload := stripCodeFence(raw)

	var items []recordPayload
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeSchemaViolation,
			"generation output is not a JSON record array", err)
	}

	records := make([]domain.KnowledgeRecord, 0, len(items))
	var problems []string
	for i, item := range items {
		record := domain.NewKnowledgeRecord(strings.TrimSpace(item.Topic), strings.TrimSpace(item.Content))
		if err := record.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		records = append(records, record)
	}
	if len(problems) > 0 {
		return nil, domain.NewDomainError(domain.ErrCodeSchemaViolation, strings.Join(problems, "; "))
	}

	return records, nil
}

// stripCodeFence unwraps a Markdown code fence around the payload. Models
// occasionally fence their JSON despite the prompt; the content itself is
// still validated strictly.
func stripCodeFence(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") || !strings.HasSuffix(out, "```") {
		return out
	}

	out = strings.TrimSuffix(out, "```")
	out = strings.TrimPrefix(out, "```")
	if nl := strings.IndexByte(out, '\n'); nl >= 0 {
		// Drop the info string ("json") on the opening fence line.
		if info := strings.TrimSpace(out[:nl]); !strings.ContainsAny(info, "[]{}") {
			out = out[nl+1:]
		}
	}

	return strings.TrimSpace(out)
}

// splitChunks splits text into chunks of at most maxChars runes, cutting on
// paragraph boundaries where possible so topic discussions stay intact.
// Order is preserved.
func splitChunks(text string, maxChars int) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if maxChars <= 0 || utf8.RuneCountInString(clean) <= maxChars {
		return []string{clean}
	}

	var chunks []string
	current := ""
	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, para := range strings.Split(clean, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// A single paragraph over the limit is cut at rune boundaries.
		for utf8.RuneCountInString(para) > maxChars {
			flush()
			runes := []rune(para)
			chunks = append(chunks, strings.TrimSpace(string(runes[:maxChars])))
			para = strings.TrimSpace(string(runes[maxChars:]))
		}
		if para == "" {
			continue
		}

		switch {
		case current == "":
			current = para
		case utf8.RuneCountInString(current)+utf8.RuneCountInString(para)+2 <= maxChars:
			current += "\n\n" + para
		default:
			flush()
			current = para
		}
	}
	flush()

	return chunks
}
