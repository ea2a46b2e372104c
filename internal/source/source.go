package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/lectern/internal/domain"
)

// Document is one source file staged for extraction.
type Document struct {
	Path string
	Kind domain.SourceKind
	Text string
}

// LoadDirectory reads every regular file in dir as one document of the given
// kind. Hidden files are skipped. Documents come back in directory-listing
// order; callers must not rely on any particular order across documents.
func LoadDirectory(dir string, kind domain.SourceKind) ([]Document, error) {
	if !domain.IsValidSourceKind(kind) {
		return nil, fmt.Errorf("source kind %q: %w", kind, domain.ErrInvalidSourceKind)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory %s: %w", dir, err)
	}

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading source file %s: %w", path, err)
		}

		docs = append(docs, Document{
			Path: path,
			Kind: kind,
			Text: string(data),
		})
	}

	return docs, nil
}

// LoadSources loads the transcript directory followed by the notes directory.
func LoadSources(transcriptsDir, notesDir string) ([]Document, error) {
	docs, err := LoadDirectory(transcriptsDir, domain.SourceKindTranscript)
	if err != nil {
		return nil, err
	}

	notes, err := LoadDirectory(notesDir, domain.SourceKindNotes)
	if err != nil {
		return nil, err
	}

	return append(docs, notes...), nil
}
