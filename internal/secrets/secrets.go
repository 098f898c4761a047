// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves model API keys. Keys are read from a directory of
// plain-text files, one secret per file named after its key, with the
// provider's conventional environment variable as a fallback.
//
// Key files: anthropic-api-key, openai-api-key, semantic-scholar-api-key.
package secrets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/research-editor/pkg/types"
)

// Set holds the secrets read from a directory, keyed by file name.
type Set map[string]string

// Semantic Scholar key locations.
const (
	SemanticScholarFile = "semantic-scholar-api-key"
	SemanticScholarEnv  = "SEMANTIC_SCHOLAR_API_KEY"
)

// keys maps each provider to its key file and environment variable.
var keys = map[types.ProviderName]struct{ file, env string }{
	types.ProviderAnthropic: {"anthropic-api-key", "ANTHROPIC_API_KEY"},
	types.ProviderOpenAI:    {"openai-api-key", "OPENAI_API_KEY"},
}

// Load reads every regular, non-hidden file in dir. A missing directory is
// not an error and yields an empty set. Unreadable files are reported on w
// and skipped; empty files are ignored.
func Load(dir string, w io.Writer) (Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	set := make(Set)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if w != nil {
				fmt.Fprintf(w, "warning: could not read secret %s: %v\n", name, err)
			}
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			set[name] = value
		}
	}
	return set, nil
}

// APIKey returns the key for provider: the key file first, then the
// environment variable. It returns an empty string when neither is set.
func (s Set) APIKey(provider types.ProviderName) string {
	k, ok := keys[provider]
	if !ok {
		return ""
	}
	return s.Lookup(k.file, k.env)
}

// Lookup returns the secret stored in file, falling back to the environment
// variable env.
func (s Set) Lookup(file, env string) string {
	if v := s[file]; v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(env))
}

// Source names where provider's key is expected, for error messages.
func Source(provider types.ProviderName) string {
	k, ok := keys[provider]
	if !ok {
		return fmt.Sprintf("unknown provider %q", provider)
	}
	return fmt.Sprintf("secrets file %s or $%s", k.file, k.env)
}
