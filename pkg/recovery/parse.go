package recovery

import (
	"regexp"
	"strings"
)

// Action is one of the bounded enumeration the manager's recovery
// response must resolve to (spec §4.6 step 4).
type Action string

const (
	ActionRetry    Action = "RETRY"
	ActionEscalate Action = "ESCALATE"
	ActionFix      Action = "FIX"
	ActionFail     Action = "FAIL"
)

// actionLine matches a line such as "ACTION: RETRY", "**ACTION** ESCALATE",
// or "*action:* fix" (spec §9 "Dynamic-typed collaborators": the manager's
// response is untyped text, but the single action token is a bounded,
// documented parse rule — SPEC_FULL §4.6 "Action-token grammar").
var actionLine = regexp.MustCompile(`(?im)^\*{0,2}ACTION:?\*{0,2}\s*(RETRY|ESCALATE|FIX|FAIL)\b`)

// fencedBlock captures the content of the first fenced code block
// following the action line, bare or language-tagged (e.g. ```markdown).
var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n(.*?)\\n```")

// ParsedResponse is the decoded outcome of a manager recovery call.
type ParsedResponse struct {
	Action    Action
	FixedText string // populated only when Action == ActionFix
}

// Parse applies the action-token grammar to the manager's raw response.
// A FIX action with no extractable fenced block downgrades to FAIL, since
// there is nothing to write back as the corrected artifact (SPEC_FULL
// §4.6 "a FIX with no extractable block is downgraded to FAIL").
func Parse(response string) ParsedResponse {
	m := actionLine.FindStringSubmatch(response)
	if m == nil {
		return ParsedResponse{Action: ActionFail}
	}

	action := Action(strings.ToUpper(m[1]))
	if action != ActionFix {
		return ParsedResponse{Action: action}
	}

	rest := response[strings.Index(response, m[0])+len(m[0]):]
	block := fencedBlock.FindStringSubmatch(rest)
	if block == nil {
		return ParsedResponse{Action: ActionFail}
	}
	return ParsedResponse{Action: ActionFix, FixedText: strings.TrimSpace(block[1])}
}
