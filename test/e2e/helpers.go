//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/lectern/internal/catalog"
	"github.com/cloo-solutions/lectern/internal/storage"
	"github.com/cloo-solutions/lectern/internal/store"
	"github.com/cloo-solutions/lectern/internal/testutil"
)

const (
	e2eDimensions = 256
	e2eBucket     = "lectern-e2e"
)

// E2EEnv holds all resources needed for end-to-end pipeline tests: a real
// Qdrant, a real S3-compatible bucket, and a real catalog. Only the language
// model is scripted.
type E2EEnv struct {
	T        *testing.T
	Ctx      context.Context
	QdrantC  *testutil.QdrantContainer
	RustFSC  *testutil.RustFSContainer
	Store    *store.Store
	Catalog  *catalog.Catalog
	S3Client *storage.S3Client
	Archive  *storage.Archive
}

// SetupE2EEnv starts the containers and wires the real store, catalog and
// archive against them.
func SetupE2EEnv(t *testing.T) *E2EEnv {
	ctx := context.Background()

	qdrantC := testutil.NewQdrantContainer(ctx, t)
	rustfsC := testutil.NewRustFSContainer(ctx, t)

	api, err := store.NewQdrantAPI(store.QdrantConfig{
		Host: qdrantC.Host,
		Port: qdrantC.GRPCPort,
	})
	if err != nil {
		t.Fatalf("failed to connect to qdrant: %v", err)
	}

	st := store.NewStore(api, hashEmbedder{dims: e2eDimensions}, store.Config{
		Dimensions: e2eDimensions,
	})

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "lectern.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        rustfsC.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          e2eBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	return &E2EEnv{
		T:        t,
		Ctx:      ctx,
		QdrantC:  qdrantC,
		RustFSC:  rustfsC,
		Store:    st,
		Catalog:  cat,
		S3Client: s3Client,
		Archive:  storage.NewArchive(s3Client),
	}
}

// Cleanup closes clients and terminates the containers.
func (env *E2EEnv) Cleanup() {
	if err := env.Store.Close(); err != nil {
		env.T.Logf("failed to close store: %v", err)
	}
	if err := env.Catalog.Close(); err != nil {
		env.T.Logf("failed to close catalog: %v", err)
	}
	if err := env.QdrantC.Terminate(env.Ctx); err != nil {
		env.T.Logf("failed to terminate qdrant container: %v", err)
	}
	if err := env.RustFSC.Terminate(env.Ctx); err != nil {
		env.T.Logf("failed to terminate rustfs container: %v", err)
	}
}

// WriteCourseFixtures lays out a transcript directory and a notes directory
// the scripted model knows how to extract.
func (env *E2EEnv) WriteCourseFixtures() (transcriptsDir, notesDir string) {
	root := env.T.TempDir()
	transcriptsDir = filepath.Join(root, "transcripts")
	notesDir = filepath.Join(root, "notes")

	for dir, files := range map[string]map[string]string{
		transcriptsDir: {"week1.txt": "LECTURE_WEEK1 today we cover consensus protocols at length."},
		notesDir:       {"clocks.md": "NOTES_CLOCKS ordering of events in a distributed system."},
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			env.T.Fatalf("failed to create fixture dir: %v", err)
		}
		for name, text := range files {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
				env.T.Fatalf("failed to write fixture: %v", err)
			}
		}
	}

	return transcriptsDir, notesDir
}

// scriptedLLM stands in for the language model. Extraction calls are keyed
// by markers in the fixture documents; synthesis calls are recognized by the
// question prefix the answerer renders.
type scriptedLLM struct{}

func (scriptedLLM) Complete(_ context.Context, _, input string) (string, error) {
	switch {
	case strings.HasPrefix(input, "Question: "):
		return "Consensus is reached in two phases.", nil
	case strings.Contains(input, "LECTURE_WEEK1"):
		return `[{"topic": "Paxos", "content": "Two phases."}, {"topic": "Raft", "content": "Leader election."}]`, nil
	case strings.Contains(input, "NOTES_CLOCKS"):
		return `[{"topic": "Clocks", "content": "Partial order."}]`, nil
	}
	return "", fmt.Errorf("scripted model has no response for %q", input)
}

// hashEmbedder maps text to a deterministic bag-of-words vector so identical
// texts land on the same point in space without a model in the loop.
type hashEmbedder struct {
	dims int
}

func (h hashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := fnv.New32a()
		sum.Write([]byte(word))
		vec[int(sum.Sum32()%uint32(h.dims))]++
	}
	vec[0] += 0.01 // never a zero vector
	return vec, nil
}
