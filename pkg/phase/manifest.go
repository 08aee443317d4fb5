package phase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// Manifest is the final per-job summary spec §3.2/§6 requires every
// completed job to leave behind: "job id, status, total cost, total
// tokens, per-phase records, timestamps".
type Manifest struct {
	JobID          int64           `json:"job_id"`
	TranscriptFile string          `json:"transcript_file"`
	Status         models.JobStatus `json:"status"`
	TotalCost      float64         `json:"total_cost"`
	TotalTokens    int             `json:"total_tokens"`
	QueuedAt       time.Time       `json:"queued_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Phases         []ManifestPhase `json:"phases"`
}

// ManifestPhase is one phase's entry in the manifest.
type ManifestPhase struct {
	Name               models.PhaseName         `json:"name"`
	Status             models.PhaseStatus       `json:"status"`
	Model              string                   `json:"model"`
	TierLabel          string                   `json:"tier_label"`
	Attempts           int                      `json:"attempts"`
	Cost               float64                  `json:"cost"`
	InputTokens        int                      `json:"input_tokens"`
	OutputTokens       int                      `json:"output_tokens"`
	DeliverablePath    string                   `json:"deliverable_path,omitempty"`
	EscalationHistory  []models.EscalationEntry `json:"escalation_history,omitempty"`
}

// BuildManifest assembles a Manifest from a job and its final phase list.
func BuildManifest(job *models.Job) Manifest {
	m := Manifest{
		JobID:          job.ID,
		TranscriptFile: job.TranscriptFile,
		Status:         job.Status,
		TotalCost:      job.ActualCost,
		QueuedAt:       job.QueuedAt,
		CompletedAt:    job.CompletedAt,
	}
	for _, p := range job.Phases {
		m.TotalTokens += p.InputTokens + p.OutputTokens
		m.Phases = append(m.Phases, ManifestPhase{
			Name:              p.Name,
			Status:            p.Status,
			Model:             p.Model,
			TierLabel:         p.TierLabel,
			Attempts:          p.Attempts,
			Cost:              p.Cost,
			InputTokens:       p.InputTokens,
			OutputTokens:      p.OutputTokens,
			DeliverablePath:   p.DeliverablePath,
			EscalationHistory: p.EscalationHistory(),
		})
	}
	return m
}

// WriteManifest writes manifest.json into the job's project directory
// (spec §3.2 "a manifest file is written summarizing cost, tokens,
// phases, and outputs").
func WriteManifest(projectPath string, job *models.Job) error {
	path, err := sanitizedJoin(projectPath, "manifest.json")
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(BuildManifest(job), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
