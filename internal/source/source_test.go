package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/lectern/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDirectory_ReadsRegularFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "week1.txt", "lecture one")
	writeFile(t, dir, "week2.txt", "lecture two")

	docs, err := LoadDirectory(dir, domain.SourceKindTranscript)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Equal(t, domain.SourceKindTranscript, doc.Kind)
		assert.NotEmpty(t, doc.Text)
		assert.Contains(t, doc.Path, dir)
	}
}

func TestLoadDirectory_SkipsHiddenFilesAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "week1.txt", "lecture one")
	writeFile(t, dir, ".DS_Store", "junk")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))

	docs, err := LoadDirectory(dir, domain.SourceKindTranscript)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, filepath.Join(dir, "week1.txt"), docs[0].Path)
}

func TestLoadDirectory_InvalidKind(t *testing.T) {
	docs, err := LoadDirectory(t.TempDir(), domain.SourceKind("slides"))

	assert.Nil(t, docs)
	assert.ErrorIs(t, err, domain.ErrInvalidSourceKind)
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), domain.SourceKindNotes)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reading source directory")
}

func TestLoadSources_CombinesKinds(t *testing.T) {
	transcripts := t.TempDir()
	notes := t.TempDir()
	writeFile(t, transcripts, "week1.txt", "lecture")
	writeFile(t, notes, "week1.md", "notes")

	docs, err := LoadSources(transcripts, notes)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, domain.SourceKindTranscript, docs[0].Kind)
	assert.Equal(t, domain.SourceKindNotes, docs[1].Kind)
}

func TestLoadSources_EmptyDirs(t *testing.T) {
	docs, err := LoadSources(t.TempDir(), t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, docs)
}
