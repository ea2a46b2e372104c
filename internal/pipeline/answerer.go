package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/lectern/internal/catalog"
	"github.com/cloo-solutions/lectern/internal/domain"
	"github.com/cloo-solutions/lectern/internal/store"
	"github.com/cloo-solutions/lectern/internal/telemetry"
)

// DefaultSummaryPrompt is the fixed instruction for per-result answer
// synthesis. It is deliberately not configurable per question; one run
// answers every question the same way.
const DefaultSummaryPrompt = `You answer questions about course material. Using only the
provided knowledge, give a concise answer to the question. If the knowledge does not
cover the question, say so.`

// EntrySearcher retrieves entries by similarity to the query text.
type EntrySearcher interface {
	Search(ctx context.Context, collection, queryText string, limit int, minScore float32) ([]store.SearchResult, error)
}

// AnswerSynthesizer generates one answer from retrieved knowledge.
type AnswerSynthesizer interface {
	Complete(ctx context.Context, instructions, input string) (string, error)
}

// QueryRecorder logs asked questions for evaluation/feedback loops.
type QueryRecorder interface {
	LogQuery(ctx context.Context, entry catalog.QueryLogEntry) error
}

// Answer is one synthesized answer backed by a retrieved entry.
type Answer struct {
	EntryID string
	Score   float32
	Entry   string
	Text    string
}

// SearchOptions bound retrieval for one question.
type SearchOptions struct {
	Limit    int
	MinScore float32
}

// AnswererConfig controls question answering.
type AnswererConfig struct {
	Collection    string
	SummaryPrompt string
}

// Answerer answers questions by nearest-neighbor retrieval plus per-result
// answer synthesis.
type Answerer struct {
	searcher EntrySearcher
	synth    AnswerSynthesizer
	recorder QueryRecorder
	cfg      AnswererConfig
}

// NewAnswerer creates a new Answerer. The recorder may be nil, in which case
// questions are not logged.
func NewAnswerer(searcher EntrySearcher, synth AnswerSynthesizer, recorder QueryRecorder, cfg AnswererConfig) *Answerer {
	if cfg.SummaryPrompt == "" {
		cfg.SummaryPrompt = DefaultSummaryPrompt
	}
	return &Answerer{
		searcher: searcher,
		synth:    synth,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Answer retrieves the entries relevant to question and returns a lazy
// sequence that synthesizes one answer per retrieved entry, in relevance
// order. Retrieval happens before this returns; synthesis happens during
// iteration, so breaking early skips the remaining generation calls, and a
// fresh iteration restarts from the first result. A synthesis failure is
// yielded for its entry and iteration continues with the next one. No
// qualifying entries means an empty sequence, not an error.
func (a *Answerer) Answer(ctx context.Context, question string, opts SearchOptions) (iter.Seq2[Answer, error], error) {
	ctx, span := telemetry.StartSpan(ctx, "Answerer.Answer", telemetry.SpanAttributes{
		Collection: a.cfg.Collection,
		Operation:  "answer",
	})
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required: %w", domain.ErrMissingRequiredField)
	}
	if a.cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required: %w", domain.ErrConfiguration)
	}

	results, err := a.searcher.Search(ctx, a.cfg.Collection, question, opts.Limit, opts.MinScore)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge: %w", err)
	}

	if a.recorder != nil {
		entry := catalog.QueryLogEntry{
			ID:         uuid.NewString(),
			Collection: a.cfg.Collection,
			Question:   question,
			Results:    len(results),
			AskedAt:    time.Now().UTC(),
		}
		if len(results) > 0 {
			entry.TopScore = float64(results[0].Score)
		}
		if err := a.recorder.LogQuery(ctx, entry); err != nil {
			log.Printf("query log: %v", err)
		}
	}

	seq := func(yield func(Answer, error) bool) {
		for _, res := range results {
			answer := Answer{EntryID: res.ID, Score: res.Score, Entry: res.Text}

			if err := ctx.Err(); err != nil {
				yield(answer, err)
				return
			}

			text, err := a.synthesize(ctx, question, res.Text)
			if err != nil {
				if !yield(answer, err) {
					return
				}
				continue
			}

			answer.Text = text
			if !yield(answer, nil) {
				return
			}
		}
	}

	return seq, nil
}

// synthesize generates the answer for one retrieved entry.
func (a *Answerer) synthesize(ctx context.Context, question, entryText string) (string, error) {
	input := fmt.Sprintf("Question: %s\n\nKnowledge:\n%s", question, entryText)

	text, err := a.synth.Complete(ctx, a.cfg.SummaryPrompt, input)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeSynthesisFailure, "failed to synthesize answer", err)
	}

	return text, nil
}
