package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_SimpleActions(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     Action
	}{
		{"retry", "ACTION: RETRY\n\nThe transient error looks like a rate limit, try again.", ActionRetry},
		{"escalate", "**ACTION:** ESCALATE\n\nThe model is too weak for this transcript.", ActionEscalate},
		{"fail", "ACTION: FAIL\n\nThis transcript cannot be processed.", ActionFail},
		{"lowercase", "*action* retry\n\ntry once more", ActionRetry},
		{"no action line", "I am not sure what to do here.", ActionFail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.response)
			require.Equal(t, tc.want, got.Action)
		})
	}
}

func TestParse_FixExtractsFencedBlock(t *testing.T) {
	response := "ACTION: FIX\n\nHere is the corrected output:\n\n```markdown\n# Corrected Title\n\nBody text.\n```\n"
	got := Parse(response)
	require.Equal(t, ActionFix, got.Action)
	require.Equal(t, "# Corrected Title\n\nBody text.", got.FixedText)
}

func TestParse_FixWithoutBlockDowngradesToFail(t *testing.T) {
	response := "ACTION: FIX\n\nI would fix it but I forgot to include the block."
	got := Parse(response)
	require.Equal(t, ActionFail, got.Action)
	require.Empty(t, got.FixedText)
}

func TestParse_FixUsesFirstFencedBlockAfterActionLine(t *testing.T) {
	response := "Earlier unrelated example:\n\n```go\nfmt.Println(\"ignored\")\n```\n\nACTION: FIX\n\n```text\ncorrected content\n```\n"
	got := Parse(response)
	require.Equal(t, ActionFix, got.Action)
	require.Equal(t, "corrected content", got.FixedText)
}
