package phase

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestBuildManifest_SumsTokensAcrossPhases(t *testing.T) {
	job := &models.Job{
		ID:             1,
		TranscriptFile: "a.vtt",
		Status:         models.JobStatusCompleted,
		ActualCost:     0.5,
		QueuedAt:       time.Now(),
		Phases: []models.JobPhase{
			{Name: models.PhaseAnalyst, Status: models.PhaseStatusCompleted, InputTokens: 100, OutputTokens: 50},
			{Name: models.PhaseFormatter, Status: models.PhaseStatusCompleted, InputTokens: 80, OutputTokens: 40},
		},
	}
	m := BuildManifest(job)
	require.Equal(t, 270, m.TotalTokens)
	require.Len(t, m.Phases, 2)
}

func TestWriteManifest_WritesValidJSON(t *testing.T) {
	dir := t.TempDir()
	job := &models.Job{ID: 7, TranscriptFile: "b.vtt", Status: models.JobStatusCompleted, QueuedAt: time.Now()}

	require.NoError(t, WriteManifest(dir, job))

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)

	var decoded Manifest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, int64(7), decoded.JobID)
}
