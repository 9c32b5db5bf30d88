package rag

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stratumhealth/carepipe/pkg/models"
)

//go:embed knowledge/*.md
var defaultKnowledge embed.FS

// DefaultKnowledgeDocuments returns the wellness notes bundled with the
// binary, so retrieval works out of the box before any external ingestion.
func DefaultKnowledgeDocuments() []models.RawDocument {
	var docs []models.RawDocument
	entries, err := fs.ReadDir(defaultKnowledge, "knowledge")
	if err != nil {
		return nil
	}
	for _, e := range entries {
		data, err := defaultKnowledge.ReadFile("knowledge/" + e.Name())
		if err != nil {
			continue
		}
		docs = append(docs, models.RawDocument{
			ID:      "builtin:" + strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Content: string(data),
			Metadata: map[string]string{
				"source": "builtin/" + e.Name(),
			},
		})
	}
	return docs
}

// LoadKnowledgeDir reads .md and .txt files from dir as documents. A missing
// dir is not an error; operators may rely on the builtin notes alone.
func LoadKnowledgeDir(dir string) ([]models.RawDocument, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}

	var docs []models.RawDocument
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".md" && ext != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read knowledge file %s: %w", e.Name(), err)
		}
		docs = append(docs, models.RawDocument{
			ID:      "file:" + strings.TrimSuffix(e.Name(), ext),
			Content: string(data),
			Metadata: map[string]string{
				"source": e.Name(),
			},
		})
	}
	return docs, nil
}
