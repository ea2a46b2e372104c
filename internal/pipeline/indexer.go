package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/lectern/internal/catalog"
	"github.com/cloo-solutions/lectern/internal/domain"
	"github.com/cloo-solutions/lectern/internal/jobs"
	"github.com/cloo-solutions/lectern/internal/source"
	"github.com/cloo-solutions/lectern/internal/telemetry"
)

// Document outcome status values recorded in the catalog
const (
	DocumentStatusIndexed = "indexed"
	DocumentStatusFailed  = "failed"
)

// RecordExtractor turns one source document into knowledge records.
type RecordExtractor interface {
	Extract(ctx context.Context, sourceText string, kind domain.SourceKind) ([]domain.KnowledgeRecord, error)
}

// EntryWriter persists one rendered entry under its id.
type EntryWriter interface {
	Add(ctx context.Context, collection, id, text string) error
}

// RunRecorder persists run outcomes and the entry-id high-water mark.
type RunRecorder interface {
	LastEntrySeq(ctx context.Context, collection string) (int64, error)
	SaveRun(ctx context.Context, run catalog.Run, docs []catalog.DocumentOutcome, lastSeq int64) error
}

// errNotProcessed marks documents an aborted or cancelled run never reached.
var errNotProcessed = errors.New("document not processed")

// DocumentResult is the outcome for one source document. Entries counts
// writes that landed, which is meaningful even when Err is set.
type DocumentResult struct {
	Path    string
	Kind    domain.SourceKind
	Entries int
	Err     error
}

// IndexReport summarizes one indexing run.
type IndexReport struct {
	RunID      string
	Collection string
	StartedAt  time.Time
	FinishedAt time.Time
	Written    int
	Indexed    int
	Failed     int
	LastSeq    int64
	Documents  []DocumentResult
}

// HasFailures reports whether any document failed.
func (r *IndexReport) HasFailures() bool {
	return r.Failed > 0
}

// IndexerConfig controls one indexing run.
type IndexerConfig struct {
	Collection string
	Workers    int
	OnInvalid  domain.ViolationPolicy
}

// Indexer runs the extract-embed-store pipeline over source documents.
type Indexer struct {
	extractor RecordExtractor
	writer    EntryWriter
	recorder  RunRecorder
	pool      *jobs.Pool
	cfg       IndexerConfig
}

// NewIndexer creates a new Indexer. The recorder may be nil, in which case
// ids start at 1 and the run is not recorded.
func NewIndexer(extractor RecordExtractor, writer EntryWriter, recorder RunRecorder, cfg IndexerConfig) *Indexer {
	if cfg.OnInvalid == "" {
		cfg.OnInvalid = domain.ViolationPolicySkip
	}
	return &Indexer{
		extractor: extractor,
		writer:    writer,
		recorder:  recorder,
		pool:      jobs.NewPool(cfg.Workers),
		cfg:       cfg,
	}
}

// IndexAll extracts records from every document and writes them to the store
// under fresh ids. Documents fan out across the worker pool; records within
// one document keep their extraction order, so their ids ascend in that
// order. Progress lines go to w. The returned report is valid even when the
// run was aborted or cancelled.
func (ix *Indexer) IndexAll(ctx context.Context, docs []source.Document, w io.Writer) (*IndexReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.IndexAll", telemetry.SpanAttributes{
		Collection: ix.cfg.Collection,
		Operation:  "index",
	})
	defer span.End()

	if w == nil {
		w = io.Discard
	}
	if ix.cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required: %w", domain.ErrConfiguration)
	}
	if !domain.IsValidViolationPolicy(ix.cfg.OnInvalid) {
		return nil, fmt.Errorf("violation policy %q: %w", ix.cfg.OnInvalid, domain.ErrInvalidViolationPolicy)
	}

	var start int64
	if ix.recorder != nil {
		var err error
		if start, err = ix.recorder.LastEntrySeq(ctx, ix.cfg.Collection); err != nil {
			return nil, fmt.Errorf("reading id high-water mark: %w", err)
		}
	}
	counter := NewEntryCounter(start)

	report := &IndexReport{
		RunID:      uuid.NewString(),
		Collection: ix.cfg.Collection,
		StartedAt:  time.Now().UTC(),
		Documents:  make([]DocumentResult, len(docs)),
	}
	for i, doc := range docs {
		report.Documents[i] = DocumentResult{Path: doc.Path, Kind: doc.Kind, Err: errNotProcessed}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	poolErr := ix.pool.Run(runCtx, len(docs), func(taskCtx context.Context, i int) {
		doc := docs[i]
		fmt.Fprintf(w, "indexing %s\n", doc.Path)

		entries, err := ix.indexDocument(taskCtx, doc, counter)
		report.Documents[i] = DocumentResult{Path: doc.Path, Kind: doc.Kind, Entries: entries, Err: err}

		if err == nil {
			fmt.Fprintf(w, "indexed %s (%d entries)\n", doc.Path, entries)
			return
		}

		fmt.Fprintf(w, "failed  %s: %v\n", doc.Path, err)
		if ix.cfg.OnInvalid == domain.ViolationPolicyAbort && errors.Is(err, domain.ErrSchemaViolation) {
			cancel(fmt.Errorf("aborting run at %s: %w", doc.Path, err))
		}
	})

	for _, res := range report.Documents {
		report.Written += res.Entries
		if res.Err != nil {
			report.Failed++
		} else {
			report.Indexed++
		}
	}
	report.LastSeq = counter.Last()
	report.FinishedAt = time.Now().UTC()

	runErr := poolErr
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		runErr = cause
	}

	// The run is recorded even when aborted or cancelled: entries already
	// written stay written, so the high-water mark must advance.
	if ix.recorder != nil {
		if err := ix.saveRun(context.WithoutCancel(ctx), report); err != nil {
			if runErr == nil {
				runErr = err
			} else {
				fmt.Fprintf(w, "failed to record run: %v\n", err)
			}
		}
	}

	return report, runErr
}

// indexDocument extracts one document and writes its records in order.
func (ix *Indexer) indexDocument(ctx context.Context, doc source.Document, counter *EntryCounter) (int, error) {
	records, err := ix.extractor.Extract(ctx, doc.Text, doc.Kind)
	if err != nil {
		return 0, fmt.Errorf("extracting: %w", err)
	}

	written := 0
	for _, record := range records {
		// Cancellation lands between entries, never inside a write.
		if err := ctx.Err(); err != nil {
			return written, err
		}

		id := counter.Next()
		if err := ix.writer.Add(ctx, ix.cfg.Collection, id, record.EntryText()); err != nil {
			return written, fmt.Errorf("writing entry %s: %w", id, err)
		}
		written++
	}

	return written, nil
}

func (ix *Indexer) saveRun(ctx context.Context, report *IndexReport) error {
	run := catalog.Run{
		ID:         report.RunID,
		Collection: report.Collection,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Documents:  len(report.Documents),
		Written:    report.Written,
		Failed:     report.Failed,
	}

	outcomes := make([]catalog.DocumentOutcome, 0, len(report.Documents))
	for _, res := range report.Documents {
		outcome := catalog.DocumentOutcome{
			Path:    res.Path,
			Kind:    string(res.Kind),
			Status:  DocumentStatusIndexed,
			Entries: res.Entries,
		}
		if res.Err != nil {
			outcome.Status = DocumentStatusFailed
			outcome.Error = res.Err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	if err := ix.recorder.SaveRun(ctx, run, outcomes, report.LastSeq); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}
