package phase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestPromptStore_RendersEmbeddedDefault(t *testing.T) {
	s := NewPromptStore("")
	out, err := s.Render(models.PhaseAnalyst, PromptData{ProjectName: "episode-12"})
	require.NoError(t, err)
	require.Contains(t, out, "episode-12")
}

func TestPromptStore_PrefersOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analyst.tmpl"), []byte("custom prompt for {{.ProjectName}}"), 0o644))

	s := NewPromptStore(dir)
	out, err := s.Render(models.PhaseAnalyst, PromptData{ProjectName: "custom-proj"})
	require.NoError(t, err)
	require.Equal(t, "custom prompt for custom-proj", out)
}

func TestPromptStore_UnknownPhaseErrors(t *testing.T) {
	s := NewPromptStore("")
	_, err := s.Render(models.PhaseName("nonexistent"), PromptData{})
	require.Error(t, err)
}

func TestFormatPriorOutputs_Empty(t *testing.T) {
	require.Equal(t, "(no prior phase output available)", formatPriorOutputs(nil))
}

func TestFormatPriorOutputs_OrdersKnownPhases(t *testing.T) {
	out := formatPriorOutputs(map[string]string{"seo": "seo content", "analyst": "analyst content"})
	analystIdx := indexOf(out, "analyst content")
	seoIdx := indexOf(out, "seo content")
	require.Greater(t, seoIdx, analystIdx)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
