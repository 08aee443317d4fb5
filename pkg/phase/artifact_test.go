package phase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestResolveArtifactPath_FirstRunPhase(t *testing.T) {
	dir := t.TempDir()
	path, err := resolveArtifactPath(dir, models.PhaseAnalyst)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "analyst_output.md"), path)
}

func TestResolveArtifactPath_VersionedArtifactIncrements(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy_revision_v1.md"), []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy_revision_v2.md"), []byte("v2"), 0o644))

	path, err := resolveArtifactPath(dir, models.PhaseManager)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "copy_revision_v3.md"), path)
}

func TestResolveArtifactPath_VersionedArtifactFirstVersion(t *testing.T) {
	dir := t.TempDir()
	path, err := resolveArtifactPath(dir, models.PhaseSEO)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "keyword_report_v1.md"), path)
}

func TestSanitizedJoin_RejectsEscape(t *testing.T) {
	dir := t.TempDir()
	_, err := sanitizedJoin(dir, "../../etc/passwd")
	require.Error(t, err)
}

func TestWriteAndReadArtifact(t *testing.T) {
	dir := t.TempDir()
	path, err := writeArtifact(dir, models.PhaseFormatter, "content here")
	require.NoError(t, err)
	require.FileExists(t, path)

	content, err := readArtifact(models.JobPhase{DeliverablePath: path})
	require.NoError(t, err)
	require.Equal(t, "content here", content)
}

func TestReadArtifact_EmptyPathReturnsEmpty(t *testing.T) {
	content, err := readArtifact(models.JobPhase{})
	require.NoError(t, err)
	require.Empty(t, content)
}
