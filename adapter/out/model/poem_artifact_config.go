package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"poetry_server/pkg/apperr"

	"github.com/goccy/go-json"
)

const (
	configFile          = "config.json"
	tokenizerConfigFile = "tokenizer_config.json"
	vocabFile           = "vocab.txt"
)

// ArtifactConfig is the subset of a Hugging Face model directory the service reads.
type ArtifactConfig struct {
	Dir                   string
	ModelType             string
	ID2Label              map[int]string
	MaxPositionEmbeddings int
	DoLowerCase           bool
}

type hfConfig struct {
	ModelType             string            `json:"model_type"`
	ID2Label              map[string]string `json:"id2label"`
	MaxPositionEmbeddings int               `json:"max_position_embeddings"`
}

type hfTokenizerConfig struct {
	DoLowerCase *bool `json:"do_lower_case"`
}

// LoadArtifactConfig reads config.json and, if present, tokenizer_config.json from dir.
// Every problem is a configuration error.
func LoadArtifactConfig(dir string) (*ArtifactConfig, error) {
	raw, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, apperr.ConfigErrorf("read model config: %v", err)
	}

	var cfg hfConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, apperr.ConfigErrorf("parse %s: %v", configFile, err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil, apperr.ConfigErrorf("%s has no id2label", configFile)
	}

	id2label := make(map[int]string, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		id, err := strconv.Atoi(k)
		if err != nil || id < 0 {
			return nil, apperr.ConfigErrorf("%s: id2label key %q is not a class index", configFile, k)
		}
		id2label[id] = v
	}

	out := &ArtifactConfig{
		Dir:                   dir,
		ModelType:             cfg.ModelType,
		ID2Label:              id2label,
		MaxPositionEmbeddings: cfg.MaxPositionEmbeddings,
		DoLowerCase:           true,
	}

	tokRaw, err := os.ReadFile(filepath.Join(dir, tokenizerConfigFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, apperr.ConfigErrorf("read %s: %v", tokenizerConfigFile, err)
	default:
		var tc hfTokenizerConfig
		if err := json.Unmarshal(tokRaw, &tc); err != nil {
			return nil, apperr.ConfigErrorf("parse %s: %v", tokenizerConfigFile, err)
		}
		if tc.DoLowerCase != nil {
			out.DoLowerCase = *tc.DoLowerCase
		}
	}

	return out, nil
}

// VocabPath returns the path of the WordPiece vocabulary.
func (c *ArtifactConfig) VocabPath() string {
	return filepath.Join(c.Dir, vocabFile)
}

// CheckMaxTokens verifies the requested sequence length fits the model.
func (c *ArtifactConfig) CheckMaxTokens(maxTokens int) error {
	if maxTokens < 2 {
		return apperr.ConfigErrorf("max tokens %d is too small", maxTokens)
	}
	if c.MaxPositionEmbeddings > 0 && maxTokens > c.MaxPositionEmbeddings {
		return apperr.ConfigErrorf("max tokens %d exceeds model limit %d", maxTokens, c.MaxPositionEmbeddings)
	}
	return nil
}

// Fingerprint identifies the artifact for cache namespacing.
func (c *ArtifactConfig) Fingerprint() string {
	info, err := os.Stat(filepath.Join(c.Dir, configFile))
	if err != nil {
		return filepath.Base(c.Dir)
	}
	return fmt.Sprintf("%s-%d", filepath.Base(c.Dir), info.ModTime().Unix())
}
