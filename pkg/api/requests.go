package api

// SubmitJobRequest is the HTTP request body for POST /api/v1/jobs
// (SPEC_FULL §4.9 "submit (body: transcript_file, project_name,
// priority?, force?)").
type SubmitJobRequest struct {
	TranscriptFile string `json:"transcript_file"`
	ProjectName    string `json:"project_name"`
	Priority       int    `json:"priority,omitempty"`
	Force          bool   `json:"force,omitempty"`
}

// PatchJobRequest is the HTTP request body for PATCH /api/v1/jobs/:id
// (SPEC_FULL §4.9 "priority update").
type PatchJobRequest struct {
	Priority *int `json:"priority"`
}
