package campaignfeed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"airdrop-optimizer/internal/domain"
)

// FileSource reads campaigns from a YAML (or JSON) file with a top-level
// "campaigns" list. The file is re-read on every Fetch.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch reads and parses the file.
func (s *FileSource) Fetch(context.Context) ([]domain.RawCampaign, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read campaign file: %w", err)
	}

	var doc struct {
		Campaigns []domain.RawCampaign `yaml:"campaigns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse campaign file %s: %w", s.path, err)
	}
	return doc.Campaigns, nil
}
