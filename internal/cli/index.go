package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cloo-solutions/lectern/internal/config"
	"github.com/cloo-solutions/lectern/internal/domain"
	"github.com/cloo-solutions/lectern/internal/extract"
	"github.com/cloo-solutions/lectern/internal/pipeline"
	"github.com/cloo-solutions/lectern/internal/source"
	"github.com/cloo-solutions/lectern/internal/storage"
	"github.com/cloo-solutions/lectern/internal/telemetry"
)

// policyFlag validates --on-invalid at parse time instead of deep in the run.
type policyFlag struct {
	value string
}

var _ pflag.Value = (*policyFlag)(nil)

func (p *policyFlag) String() string { return p.value }

func (p *policyFlag) Type() string { return "policy" }

func (p *policyFlag) Set(v string) error {
	if !domain.IsValidViolationPolicy(domain.ViolationPolicy(v)) {
		return fmt.Errorf("must be one of: %s, %s", domain.ViolationPolicySkip, domain.ViolationPolicyAbort)
	}
	p.value = v
	return nil
}

// IndexCmd returns the index command.
func IndexCmd() *cobra.Command {
	var onInvalid policyFlag

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Extract knowledge from course material and index it",
		Long: `Reads lecture transcripts and course notes, extracts knowledge records
via the chat deployment, embeds them and writes them to the vector store.

Transcripts may produce any number of records; each notes file produces
exactly one. Entry ids continue from the collection's last indexed run
unless --restart-ids is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, onInvalid.value)
		},
	}

	cmd.Flags().String("transcripts", "", "Transcripts directory (overrides env)")
	cmd.Flags().String("notes", "", "Notes directory (overrides env)")
	cmd.Flags().String("collection", "", "Target collection (overrides env)")
	cmd.Flags().IntP("workers", "w", 0, "Concurrent document workers (overrides env)")
	cmd.Flags().Var(&onInvalid, "on-invalid", "Policy for invalid extraction output: skip or abort (overrides env)")
	cmd.Flags().Bool("restart-ids", false, "Restart entry ids at 1, overwriting entries from earlier runs")

	return cmd
}

func runIndex(cmd *cobra.Command, onInvalid string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyIndexFlags(cmd, cfg, onInvalid)

	shutdownTelemetry := initTelemetry()
	defer shutdownTelemetry()

	deps, err := buildDeps(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer deps.Close()

	if restart, _ := cmd.Flags().GetBool("restart-ids"); restart {
		if err := deps.Catalog.ResetEntrySeq(ctx, cfg.Collection); err != nil {
			return fmt.Errorf("failed to restart entry ids: %w", err)
		}
		log.Printf("entry ids for collection '%s' restart at 1", cfg.Collection)
	}

	docs, err := source.LoadSources(cfg.TranscriptsDir, cfg.NotesDir)
	if err != nil {
		return err
	}
	log.Printf("loaded %d documents from %s and %s", len(docs), cfg.TranscriptsDir, cfg.NotesDir)

	extractor := extract.NewExtractor(deps.LLM, extract.Config{MaxChunkChars: cfg.ChunkChars})

	var writer pipeline.EntryWriter = deps.Store
	if deps.Archive != nil {
		writer = storage.NewArchivingWriter(deps.Store, deps.Archive)
	}

	indexer := pipeline.NewIndexer(extractor, writer, deps.Catalog, pipeline.IndexerConfig{
		Collection: cfg.Collection,
		Workers:    cfg.IndexWorkers,
		OnInvalid:  cfg.ViolationPolicy(),
	})

	outputJSON, _ := cmd.Flags().GetBool("output")
	progress := io.Writer(os.Stdout)
	if outputJSON {
		// Keep stdout clean for the JSON report.
		progress = io.Discard
	}

	report, runErr := indexer.IndexAll(ctx, docs, progress)
	if report != nil {
		printIndexReport(report, outputJSON)
	}
	if runErr != nil {
		telemetry.CaptureError(ctx, runErr)
		return fmt.Errorf("indexing failed: %w", runErr)
	}
	if report.HasFailures() {
		return fmt.Errorf("%d of %d documents failed", report.Failed, len(report.Documents))
	}
	return nil
}

// applyIndexFlags lets command flags override the environment config.
func applyIndexFlags(cmd *cobra.Command, cfg *config.Config, onInvalid string) {
	if v, _ := cmd.Flags().GetString("transcripts"); v != "" {
		cfg.TranscriptsDir = v
	}
	if v, _ := cmd.Flags().GetString("notes"); v != "" {
		cfg.NotesDir = v
	}
	if v, _ := cmd.Flags().GetString("collection"); v != "" {
		cfg.Collection = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		cfg.IndexWorkers = v
	}
	if onInvalid != "" {
		cfg.OnInvalid = onInvalid
	}
}

type indexReportOutput struct {
	RunID      string                `json:"run_id"`
	Collection string                `json:"collection"`
	Documents  int                   `json:"documents"`
	Indexed    int                   `json:"indexed"`
	Failed     int                   `json:"failed"`
	Written    int                   `json:"entries_written"`
	LastEntry  string                `json:"last_entry_id,omitempty"`
	Failures   []documentFailureJSON `json:"failures,omitempty"`
}

type documentFailureJSON struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func printIndexReport(report *pipeline.IndexReport, outputJSON bool) {
	if outputJSON {
		out := indexReportOutput{
			RunID:      report.RunID,
			Collection: report.Collection,
			Documents:  len(report.Documents),
			Indexed:    report.Indexed,
			Failed:     report.Failed,
			Written:    report.Written,
		}
		if report.Written > 0 {
			out.LastEntry = pipeline.EntryID(report.LastSeq)
		}
		for _, doc := range report.Documents {
			if doc.Err != nil {
				out.Failures = append(out.Failures, documentFailureJSON{Path: doc.Path, Error: doc.Err.Error()})
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Printf("Error formatting output: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("\nwrote %d entries from %d documents (%d indexed, %d failed)\n",
		report.Written, len(report.Documents), report.Indexed, report.Failed)
	for _, doc := range report.Documents {
		if doc.Err != nil {
			fmt.Printf("  %s: %v\n", doc.Path, doc.Err)
		}
	}
}
