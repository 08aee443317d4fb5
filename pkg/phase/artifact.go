package phase

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// revisionArtifacts names phase outputs that accumulate versions
// (<artifact>_v<N>.md) instead of being overwritten in place (spec §4.4
// "Versioned artifacts", §3.2 "idempotent outputs").
var revisionArtifacts = map[models.PhaseName]string{
	models.PhaseManager:    "copy_revision",
	models.PhaseSEO:        "keyword_report",
	models.PhaseCopyEditor: "copy_revision",
}

var versionSuffix = regexp.MustCompile(`_v(\d+)\.md$`)

// resolveArtifactPath returns the path a phase's output should be written
// to: a plain "<phase>_output.md" for first-run phases, or the next
// "<artifact>_v<N>.md" for revision-style phases, scanning existing
// versioned files so a version is never overwritten (spec §4.4, §6
// "versions auto-increment and never overwrite prior versions").
//
// projectPath must already be an absolute, cleaned directory; any
// resulting path that would escape it is rejected (spec §4.4 "Phase
// artifact paths are sanitized").
func resolveArtifactPath(projectPath string, name models.PhaseName) (string, error) {
	base, ok := revisionArtifacts[name]
	if !ok {
		return sanitizedJoin(projectPath, string(name)+"_output.md")
	}

	next, err := nextVersion(projectPath, base)
	if err != nil {
		return "", err
	}
	return sanitizedJoin(projectPath, fmt.Sprintf("%s_v%d.md", base, next))
}

// nextVersion scans projectPath for "<base>_v<N>.md" files and returns one
// more than the highest N found, or 1 when there are none; gaps below the
// highest N are not reused.
func nextVersion(projectPath, base string) (int, error) {
	entries, err := os.ReadDir(projectPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("scan project path for artifact versions: %w", err)
	}

	prefix := base + "_v"
	highest := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		m := versionSuffix.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// sanitizedJoin joins projectPath and name and rejects the result if it
// would resolve outside projectPath (spec §4.4 path sanitization).
func sanitizedJoin(projectPath, name string) (string, error) {
	root, err := filepath.Abs(filepath.Clean(projectPath))
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	candidate := filepath.Join(root, name)
	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes project path %q", name, root)
	}
	return candidate, nil
}

// writeArtifact writes content to the resolved artifact path, creating the
// project directory if needed.
func writeArtifact(projectPath string, name models.PhaseName, content string) (string, error) {
	path, err := resolveArtifactPath(projectPath, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create project directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}

// readArtifact returns the content previously written for a completed
// phase, or "" if the phase has no deliverable on record (e.g. skipped).
func readArtifact(phase models.JobPhase) (string, error) {
	if phase.DeliverablePath == "" {
		return "", nil
	}
	content, err := os.ReadFile(phase.DeliverablePath)
	if err != nil {
		return "", fmt.Errorf("read prior phase artifact %s: %w", phase.DeliverablePath, err)
	}
	return string(content), nil
}

// WriteArtifact is the exported form of writeArtifact, used by pkg/recovery
// to persist a manager-supplied FIX correction under the same versioned
// naming rules a normal phase run would use.
func WriteArtifact(projectPath string, name models.PhaseName, content string) (string, error) {
	return writeArtifact(projectPath, name, content)
}

// ReadArtifact is the exported form of readArtifact.
func ReadArtifact(p models.JobPhase) (string, error) {
	return readArtifact(p)
}

// WriteRecoveryAnalysis writes the manager's raw recovery response to
// recovery_analysis.md (spec §4.6 step 5), sanitized the same way any
// other artifact path is.
func WriteRecoveryAnalysis(projectPath, content string) (string, error) {
	path, err := sanitizedJoin(projectPath, "recovery_analysis.md")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create project directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write recovery analysis: %w", err)
	}
	return path, nil
}
