package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/lectern/internal/config"
	"github.com/cloo-solutions/lectern/internal/domain"
	"github.com/cloo-solutions/lectern/internal/pipeline"
)

// AskCmd returns the ask command.
func AskCmd() *cobra.Command {
	var (
		limit    int
		minScore float32
	)

	cmd := &cobra.Command{
		Use:   "ask <question> [question...]",
		Short: "Ask questions against the indexed knowledge",
		Long: `Searches the knowledge collection for entries relevant to each question
and synthesizes an answer from every entry that clears the score threshold.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args, limit, minScore)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 1, "Maximum entries retrieved per question")
	cmd.Flags().Float32Var(&minScore, "min-score", 0.7, "Minimum relevance score in [0,1]")
	cmd.Flags().String("collection", "", "Collection to query (overrides env)")

	return cmd
}

type answerOutput struct {
	EntryID string  `json:"entry_id"`
	Score   float32 `json:"score"`
	Answer  string  `json:"answer,omitempty"`
	Error   string  `json:"error,omitempty"`
}

type questionOutput struct {
	Question string         `json:"question"`
	Answers  []answerOutput `json:"answers"`
}

func runAsk(cmd *cobra.Command, questions []string, limit int, minScore float32) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("collection"); v != "" {
		cfg.Collection = v
	}

	shutdownTelemetry := initTelemetry()
	defer shutdownTelemetry()

	deps, err := buildDeps(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer deps.Close()

	answerer := pipeline.NewAnswerer(deps.Store, deps.LLM, deps.Catalog, pipeline.AnswererConfig{
		Collection: cfg.Collection,
	})

	outputJSON, _ := cmd.Flags().GetBool("output")
	opts := pipeline.SearchOptions{Limit: limit, MinScore: minScore}

	var results []questionOutput
	for _, question := range questions {
		answers, err := answerer.Answer(ctx, question, opts)
		if err != nil {
			if errors.Is(err, domain.ErrCollectionNotFound) {
				return fmt.Errorf("collection '%s' has no indexed knowledge (run `lectern index` first): %w", cfg.Collection, err)
			}
			return fmt.Errorf("question %q: %w", question, err)
		}

		out := questionOutput{Question: question, Answers: []answerOutput{}}
		for answer, synthErr := range answers {
			item := answerOutput{EntryID: answer.EntryID, Score: answer.Score, Answer: answer.Text}
			if synthErr != nil {
				if errors.Is(synthErr, context.Canceled) {
					return synthErr
				}
				item.Error = synthErr.Error()
			}
			out.Answers = append(out.Answers, item)
		}
		results = append(results, out)

		if !outputJSON {
			printQuestion(out)
		}
	}

	if outputJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Println(string(data))
	}
	return nil
}

func printQuestion(out questionOutput) {
	fmt.Printf("Q: %s\n", out.Question)
	if len(out.Answers) == 0 {
		fmt.Println("A: no relevant knowledge found.")
		fmt.Println()
		return
	}
	for _, answer := range out.Answers {
		if answer.Error != "" {
			fmt.Printf("A: [%s] failed: %s\n", answer.EntryID, answer.Error)
			continue
		}
		fmt.Printf("A: %s\n   (%s, score %.2f)\n", answer.Answer, answer.EntryID, answer.Score)
	}
	fmt.Println()
}
