// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-editor/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Set
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "anthropic-api-key", "  sk-ant-123  \n")
				writeFile(t, dir, "openai-api-key", "sk-oa-456")
				return dir
			},
			want: Set{"anthropic-api-key": "sk-ant-123", "openai-api-key": "sk-oa-456"},
		},
		{
			name: "missing directory is empty",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Set{},
		},
		{
			name: "skips empty files dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "openai-api-key", "valid")
				writeFile(t, dir, "empty-key", "   \n\t")
				writeFile(t, dir, ".hidden-key", "secret")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: Set{"openai-api-key": "valid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	writeFile(t, dir, "openai-api-key", "value123")
	bad := filepath.Join(dir, "anthropic-api-key")
	require.NoError(t, os.WriteFile(bad, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(bad, 0o644) })

	var warn bytes.Buffer
	got, err := Load(dir, &warn)
	require.NoError(t, err)
	assert.Equal(t, Set{"openai-api-key": "value123"}, got)
	assert.Contains(t, warn.String(), "could not read secret anthropic-api-key")
}

func TestAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "")

	s := Set{"openai-api-key": "from-file"}
	assert.Equal(t, "from-env", s.APIKey(types.ProviderAnthropic))
	assert.Equal(t, "from-file", s.APIKey(types.ProviderOpenAI))

	s = Set{"anthropic-api-key": "file-wins"}
	assert.Equal(t, "file-wins", s.APIKey(types.ProviderAnthropic))
	assert.Empty(t, s.APIKey(types.ProviderOpenAI))
	assert.Empty(t, s.APIKey("mistral"))
}

func TestLookup(t *testing.T) {
	t.Setenv(SemanticScholarEnv, " s2-env ")
	assert.Equal(t, "s2-env", Set{}.Lookup(SemanticScholarFile, SemanticScholarEnv))
	assert.Equal(t, "s2-file", Set{SemanticScholarFile: "s2-file"}.Lookup(SemanticScholarFile, SemanticScholarEnv))
}

func TestSource(t *testing.T) {
	assert.Equal(t, "secrets file openai-api-key or $OPENAI_API_KEY", Source(types.ProviderOpenAI))
	assert.Contains(t, Source("mistral"), "unknown provider")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
