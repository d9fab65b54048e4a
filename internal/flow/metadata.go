// Package flow implements the dialogue orchestration engine: prompt building,
// the response metadata protocol, history compaction, intent and field
// extraction, and the per-turn state machine.
package flow

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/lexdraft/lexdraft/internal/models"
)

// MetadataMarker separates the human-facing reply text from the trailing
// machine-readable decision JSON. The prompt builder instructs the model to
// reproduce it verbatim; builder and parser share this single constant so the
// two sides of the contract cannot drift.
const MetadataMarker = "%%METADATA%%"

// Fence delimiters for document text inside a model reply. The engine never
// parses the block's contents, it only forwards them to the renderer.
const (
	documentFenceOpen  = "```legal-document"
	documentFenceClose = "```"
)

// rawDecision mirrors ModelDecision with pointer fields so the parser can
// tell "absent" from "zero value" when validating the block.
type rawDecision struct {
	IsAskingQuestion     *bool             `json:"isAskingQuestion"`
	NextStatus           string            `json:"nextStatus"`
	UpdatedCollectedData map[string]string `json:"updatedCollectedData"`
	DocumentType         string            `json:"documentType"`
}

// ParseReply splits a model reply into the human-facing text and the trailing
// decision block. It splits on the LAST marker occurrence, because a reply may
// legitimately quote the marker earlier in example text.
//
// A missing marker or a malformed decision block is never a hard failure: the
// fallback decision is returned alongside the best available reply text and
// ok is false, so the user always sees the assistant's message.
func ParseReply(reply string, fallback models.ModelDecision) (text string, decision models.ModelDecision, ok bool) {
	idx := strings.LastIndex(reply, MetadataMarker)
	if idx < 0 {
		slog.Warn("flow.ParseReply: metadata marker absent, using fallback decision")
		return strings.TrimSpace(reply), fallback, false
	}

	text = strings.TrimSpace(reply[:idx])
	tail := strings.TrimSpace(reply[idx+len(MetadataMarker):])

	var raw rawDecision
	if err := json.Unmarshal([]byte(tail), &raw); err != nil {
		slog.Warn("flow.ParseReply: metadata block is not valid JSON, using fallback decision", "error", err)
		return text, fallback, false
	}
	if raw.IsAskingQuestion == nil || !models.ConversationState(raw.NextStatus).Valid() {
		slog.Warn("flow.ParseReply: metadata block incomplete, using fallback decision", "nextStatus", raw.NextStatus)
		return text, fallback, false
	}

	decision = models.ModelDecision{
		IsAskingQuestion:     *raw.IsAskingQuestion,
		NextStatus:           models.ConversationState(raw.NextStatus),
		UpdatedCollectedData: raw.UpdatedCollectedData,
		DocumentType:         raw.DocumentType,
	}
	if decision.UpdatedCollectedData == nil {
		decision.UpdatedCollectedData = fallback.UpdatedCollectedData
	}
	if decision.DocumentType == "" {
		decision.DocumentType = fallback.DocumentType
	}
	return text, decision, true
}

// ExtractDocumentBlock returns the contents of the first legal-document fence
// in the reply text, verbatim.
func ExtractDocumentBlock(text string) (string, bool) {
	start := strings.Index(text, documentFenceOpen)
	if start < 0 {
		return "", false
	}
	body := text[start+len(documentFenceOpen):]
	// The fence opener may be followed by a newline before the document text.
	body = strings.TrimPrefix(body, "\n")
	end := strings.Index(body, documentFenceClose)
	if end < 0 {
		return "", false
	}
	return strings.TrimRight(body[:end], "\n"), true
}
