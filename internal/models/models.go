// Package models defines shared data structures used across LexDraft components.
//
// All conversation state is caller-supplied: the engine reconstructs every
// entity in this package from the inbound request and discards it after the
// response is written.
package models

import (
	"fmt"
	"strings"
)

// ConversationState represents where in the document-drafting flow the
// dialogue currently is. The caller persists it between turns and sends it
// back on every request.
type ConversationState string

const (
	// StateIdle indicates no document flow is active.
	StateIdle ConversationState = "idle"
	// StateCollectingInfo indicates the assistant is gathering template fields.
	StateCollectingInfo ConversationState = "collectingInfo"
	// StateAwaitingConfirmation indicates all required fields are collected and
	// the assistant is waiting for the user to approve them.
	StateAwaitingConfirmation ConversationState = "awaitingConfirmation"
	// StateGenerating indicates document text is being produced.
	StateGenerating ConversationState = "generating"
	// StateReady indicates a document has been generated.
	StateReady ConversationState = "ready"
	// StateFailed indicates an irrecoverable error; the caller must restart.
	StateFailed ConversationState = "failed"
)

// Valid reports whether s is a known conversation state.
func (s ConversationState) Valid() bool {
	switch s {
	case StateIdle, StateCollectingInfo, StateAwaitingConfirmation, StateGenerating, StateReady, StateFailed:
		return true
	}
	return false
}

// Message roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is a single message in the caller-held conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate checks that the turn has a known role and non-empty content.
func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleAssistant && t.Role != RoleSystem {
		return &ValidationError{Field: "history", Reason: fmt.Sprintf("unknown message role %q", t.Role)}
	}
	if strings.TrimSpace(t.Content) == "" {
		return &ValidationError{Field: "history", Reason: "message content must not be empty"}
	}
	return nil
}

// TurnRequest is the inbound payload of the turn endpoint. History and
// collected data are the caller's durable copy of the conversation.
type TurnRequest struct {
	History               []Turn            `json:"history"`
	CurrentStatus         string            `json:"currentStatus"`
	RequestedDocumentType string            `json:"requestedDocumentType,omitempty"`
	CurrentCollectedData  map[string]string `json:"currentCollectedData,omitempty"`
	UserInput             string            `json:"userInput,omitempty"`
}

// Validate checks shapes and enum values before any model call is made.
func (r TurnRequest) Validate() error {
	state := ConversationState(r.CurrentStatus)
	if !state.Valid() {
		return &ValidationError{Field: "currentStatus", Reason: fmt.Sprintf("unknown conversation state %q", r.CurrentStatus)}
	}
	for _, t := range r.History {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	switch state {
	case StateIdle, StateCollectingInfo, StateAwaitingConfirmation:
		if strings.TrimSpace(r.UserInput) == "" {
			return &ValidationError{Field: "userInput", Reason: "user input must not be empty"}
		}
	}
	return nil
}

// TurnResponse is the outbound payload of the turn endpoint. The caller
// persists NewStatus, DocumentType and CollectedData and resends them on the
// next turn.
type TurnResponse struct {
	ResponseText     string            `json:"responseText"`
	IsAskingQuestion bool              `json:"isAskingQuestion"`
	NewStatus        ConversationState `json:"newStatus"`
	DocumentType     string            `json:"documentType,omitempty"`
	CollectedData    map[string]string `json:"collectedData,omitempty"`
	DocumentPath     string            `json:"documentPath,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Template field value types.
const (
	FieldTypeText   = "text"
	FieldTypeNumber = "number"
	FieldTypeDate   = "date"
)

// TemplateField describes a single fillable field of a document template.
type TemplateField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// DocumentTemplate describes a document type's field set. Owned by the
// template store; read-only to the dialogue engine.
type DocumentTemplate struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Fields []TemplateField `json:"fields"`
}

// RequiredFields returns the template's required fields in order.
func (t DocumentTemplate) RequiredFields() []TemplateField {
	var req []TemplateField
	for _, f := range t.Fields {
		if f.Required {
			req = append(req, f)
		}
	}
	return req
}

// FieldByKey returns the field with the given key, if any.
func (t DocumentTemplate) FieldByKey(key string) (TemplateField, bool) {
	for _, f := range t.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return TemplateField{}, false
}

// ModelDecision is the machine-facing decision carried in the trailing
// metadata block of a model reply. Consumed once per turn, never stored.
type ModelDecision struct {
	IsAskingQuestion     bool              `json:"isAskingQuestion"`
	NextStatus           ConversationState `json:"nextStatus"`
	UpdatedCollectedData map[string]string `json:"updatedCollectedData,omitempty"`
	DocumentType         string            `json:"documentType,omitempty"`
}

// Intent values produced by idle-state classification.
const (
	IntentQuestion        = "question"
	IntentCreateDocument  = "create_document"
	IntentGreeting        = "greeting"
	IntentUnknown         = "unknown"
	IntentClarifyDocument = "clarify_document"
)

// IntentResult is the decision JSON of the idle-state intent classifier.
type IntentResult struct {
	Intent       string `json:"intent"`
	DocumentType string `json:"documentType,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Extraction status values produced by collecting-state field extraction.
const (
	ExtractionDone     = "done"
	ExtractionContinue = "continue"
	ExtractionClarify  = "clarify"
)

// ExtractionResult is the decision JSON of the collecting-state field
// extractor. UpdatedData is a full replacement snapshot, not a diff.
type ExtractionResult struct {
	Status       string            `json:"status"`
	UpdatedData  map[string]string `json:"updatedData,omitempty"`
	NextQuestion string            `json:"nextQuestion,omitempty"`
}

// ErrorResponse is the wire shape of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
