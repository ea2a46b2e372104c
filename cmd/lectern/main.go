package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/lectern/internal/cli"
)

var version = "dev" // Set during build with -ldflags "-X main.version=x.y.z"

func main() {
	rootCmd := &cobra.Command{
		Use:   "lectern",
		Short: "Lectern CLI - course knowledge indexing and retrieval",
		Long: `Lectern turns lecture transcripts and course notes into a searchable
knowledge collection, then answers questions against it.

Environment variables (see also .env support):
  LECTERN_OPENAI_ENDPOINT        Azure OpenAI endpoint (required)
  LECTERN_OPENAI_API_KEY         Azure OpenAI API key (required)
  LECTERN_EMBEDDING_DEPLOYMENT   Embedding model deployment name (required)
  LECTERN_CHAT_DEPLOYMENT        Chat model deployment name (required)
  LECTERN_QDRANT_HOST            Qdrant host (required)
  LECTERN_COLLECTION             Target collection (default: course-knowledge)
  SENTRY_DSN                     Enable error tracking and tracing (optional)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")

	rootCmd.AddCommand(cli.IndexCmd())
	rootCmd.AddCommand(cli.AskCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
