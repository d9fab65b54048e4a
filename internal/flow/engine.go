package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexdraft/lexdraft/internal/genai"
	"github.com/lexdraft/lexdraft/internal/models"
)

// Completion tuning for the remaining per-state calls.
const (
	firstQuestionTemperature = 0.5
	firstQuestionMaxTokens   = 100

	answerTemperature = 0.7
	answerMaxTokens   = 400

	documentTemperature = 0.3
	documentMaxTokens   = 800
)

// TemplateStore is the engine's view of the external template store. A nil
// template with a nil error means "not found", which is never fatal.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*models.DocumentTemplate, error)
}

// DocumentRenderer stores finished document text and issues a retrievable
// path. The engine only produces the text payload.
type DocumentRenderer interface {
	Render(documentType, text string) (string, error)
}

// Engine owns the per-turn control flow of the document dialogue. It is
// stateless: every turn is computed purely from the caller-supplied request.
type Engine struct {
	client    genai.ClientInterface
	templates TemplateStore
	renderer  DocumentRenderer
	compactor *Compactor
	extractor *Extractor
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHistoryBounds overrides the compaction threshold, verbatim-keep count
// and summarization cap.
func WithHistoryBounds(threshold, keepRecent, summaryCap int) EngineOption {
	return func(e *Engine) {
		e.compactor = NewCompactor(e.client,
			WithThreshold(threshold),
			WithKeepRecent(keepRecent),
			WithSummaryCap(summaryCap))
	}
}

// NewEngine creates a dialogue engine with its collaborators.
func NewEngine(client genai.ClientInterface, templates TemplateStore, renderer DocumentRenderer, opts ...EngineOption) *Engine {
	e := &Engine{
		client:    client,
		templates: templates,
		renderer:  renderer,
	}
	e.compactor = NewCompactor(client)
	e.extractor = NewExtractor(client)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessTurn computes one turn of the dialogue. Validation failures return a
// ValidationError before any model call; every other failure surfaces as an
// error for the API layer's single catch boundary. The transition function is
// total: every valid input produces a valid next state.
func (e *Engine) ProcessTurn(ctx context.Context, req models.TurnRequest) (models.TurnResponse, error) {
	if err := req.Validate(); err != nil {
		slog.Warn("Engine.ProcessTurn: request validation failed", "error", err)
		return models.TurnResponse{}, err
	}

	state := models.ConversationState(req.CurrentStatus)
	slog.Debug("Engine.ProcessTurn: processing turn",
		"currentStatus", state,
		"documentType", req.RequestedDocumentType,
		"historyLength", len(req.History),
		"collectedFields", len(req.CurrentCollectedData))

	switch state {
	case models.StateIdle:
		return e.processIdle(ctx, req)
	case models.StateCollectingInfo:
		return e.processCollecting(ctx, req)
	case models.StateAwaitingConfirmation:
		return e.processConfirmation(ctx, req)
	default:
		// generating, ready and failed are transient for the caller: the only
		// sensible continuation is a fresh flow.
		slog.Debug("Engine.ProcessTurn: resetting transient state to idle", "currentStatus", state)
		return models.TurnResponse{
			ResponseText: defaultResetResponse,
			NewStatus:    models.StateIdle,
		}, nil
	}
}

// processIdle classifies the user's intent and either starts a collection
// flow, answers a general question, or stays idle with a canned reply.
func (e *Engine) processIdle(ctx context.Context, req models.TurnRequest) (models.TurnResponse, error) {
	intent, err := e.extractor.ClassifyIntent(ctx, req.UserInput)
	if err != nil {
		return models.TurnResponse{}, fmt.Errorf("intent classification failed: %w", err)
	}

	switch intent.Intent {
	case models.IntentCreateDocument:
		return e.startCollection(ctx, intent.DocumentType)

	case models.IntentQuestion:
		history := e.compactor.Compact(ctx, req.History)
		answer, err := e.client.Complete(ctx,
			buildChatMessages(legalAssistantSystemPrompt, history, req.UserInput),
			genai.CompletionOpts{Temperature: answerTemperature, MaxTokens: answerMaxTokens})
		if err != nil {
			return models.TurnResponse{}, fmt.Errorf("failed to answer question: %w", err)
		}
		return models.TurnResponse{
			ResponseText: answer,
			NewStatus:    models.StateIdle,
		}, nil

	case models.IntentGreeting:
		return models.TurnResponse{
			ResponseText: greetingResponse,
			NewStatus:    models.StateIdle,
		}, nil

	default:
		return models.TurnResponse{
			ResponseText: clarifyIntentResponse,
			NewStatus:    models.StateIdle,
		}, nil
	}
}

// startCollection begins a collection flow for a resolved document type. A
// missing template is non-fatal: the flow continues with an empty field set.
func (e *Engine) startCollection(ctx context.Context, documentType string) (models.TurnResponse, error) {
	tmpl := e.lookupTemplate(ctx, documentType)
	if tmpl == nil {
		return models.TurnResponse{
			ResponseText:     templateMissingResponse(documentType),
			NewStatus:        models.StateCollectingInfo,
			DocumentType:     documentType,
			CollectedData:    map[string]string{},
			IsAskingQuestion: true,
		}, nil
	}

	firstQuestion, err := e.client.Complete(ctx,
		buildChatMessages("Belge oluşturmaya yardımcı asistansın. Kullanıcıya sorulacak ilk soruyu üret.", nil, buildFirstQuestionPrompt(tmpl)),
		genai.CompletionOpts{Temperature: firstQuestionTemperature, MaxTokens: firstQuestionMaxTokens})
	if err != nil {
		return models.TurnResponse{}, fmt.Errorf("failed to generate first question: %w", err)
	}

	return models.TurnResponse{
		ResponseText:     firstQuestion,
		NewStatus:        models.StateCollectingInfo,
		DocumentType:     documentType,
		CollectedData:    map[string]string{},
		IsAskingQuestion: true,
	}, nil
}

// processCollecting extracts fields from the latest user message. The model's
// own done decision is advisory: the engine independently verifies required
// fields and downgrades to continue when something is still missing.
func (e *Engine) processCollecting(ctx context.Context, req models.TurnRequest) (models.TurnResponse, error) {
	if strings.TrimSpace(req.RequestedDocumentType) == "" {
		return models.TurnResponse{}, &models.ValidationError{
			Field:  "requestedDocumentType",
			Reason: "required while collecting information",
		}
	}

	tmpl := e.lookupTemplate(ctx, req.RequestedDocumentType)
	collected := req.CurrentCollectedData
	if collected == nil {
		collected = map[string]string{}
	}

	result, err := e.extractor.ExtractFields(ctx, tmpl, req.RequestedDocumentType, collected, req.UserInput)
	if err != nil {
		return models.TurnResponse{}, fmt.Errorf("field extraction failed: %w", err)
	}
	merged := mergeCollected(collected, result.UpdatedData, tmpl)

	if result.Status == models.ExtractionDone {
		if missing := missingRequired(tmpl, merged); len(missing) > 0 {
			slog.Debug("Engine.processCollecting: downgrading done to continue", "missing", len(missing), "firstMissing", missing[0].Key)
			result.Status = models.ExtractionContinue
			result.NextQuestion = missingFieldQuestion(missing[0])
		}
	}

	if result.Status == models.ExtractionDone {
		summary, err := e.client.Complete(ctx,
			buildChatMessages("Toplanan bilgileri özetle ve onay iste.", nil, buildConfirmationSummaryPrompt(tmpl, req.RequestedDocumentType, merged)),
			genai.CompletionOpts{})
		if err != nil {
			return models.TurnResponse{}, fmt.Errorf("failed to generate confirmation summary: %w", err)
		}
		return models.TurnResponse{
			ResponseText:  summary,
			NewStatus:     models.StateAwaitingConfirmation,
			DocumentType:  req.RequestedDocumentType,
			CollectedData: merged,
		}, nil
	}

	nextQuestion := result.NextQuestion
	if strings.TrimSpace(nextQuestion) == "" {
		nextQuestion = clarifyFieldResponse
	}
	return models.TurnResponse{
		ResponseText:     nextQuestion,
		NewStatus:        models.StateCollectingInfo,
		DocumentType:     req.RequestedDocumentType,
		CollectedData:    merged,
		IsAskingQuestion: true,
	}, nil
}

// processConfirmation runs the main completion under the metadata protocol.
// On an affirmed decision the document text arrives inline in the same reply,
// fenced, and is handed to the renderer for storage.
func (e *Engine) processConfirmation(ctx context.Context, req models.TurnRequest) (models.TurnResponse, error) {
	tmpl := e.lookupTemplate(ctx, req.RequestedDocumentType)
	collected := req.CurrentCollectedData
	if collected == nil {
		collected = map[string]string{}
	}

	// Confirmation presumes every required field is present. A caller that
	// jumps here with gaps is sent back to collection instead of getting a
	// document generated from partial data.
	if missing := missingRequired(tmpl, collected); len(missing) > 0 {
		slog.Warn("Engine.processConfirmation: required fields missing, resuming collection",
			"documentType", req.RequestedDocumentType, "missing", len(missing))
		return models.TurnResponse{
			ResponseText:     missingFieldQuestion(missing[0]),
			NewStatus:        models.StateCollectingInfo,
			DocumentType:     req.RequestedDocumentType,
			CollectedData:    collected,
			IsAskingQuestion: true,
		}, nil
	}

	history := e.compactor.Compact(ctx, req.History)
	systemPrompt := BuildConfirmationSystemPrompt(tmpl, req.RequestedDocumentType, collected)
	reply, err := e.client.Complete(ctx,
		buildChatMessages(systemPrompt, history, req.UserInput),
		genai.CompletionOpts{})
	if err != nil {
		return models.TurnResponse{}, fmt.Errorf("confirmation completion failed: %w", err)
	}

	fallback := models.ModelDecision{
		IsAskingQuestion:     false,
		NextStatus:           models.StateAwaitingConfirmation,
		UpdatedCollectedData: collected,
		DocumentType:         req.RequestedDocumentType,
	}
	text, decision, ok := ParseReply(reply, fallback)
	if !ok {
		slog.Warn("Engine.processConfirmation: metadata block unusable, staying in confirmation")
	}
	merged := mergeCollected(collected, decision.UpdatedCollectedData, tmpl)

	switch decision.NextStatus {
	case models.StateGenerating:
		docText, found := ExtractDocumentBlock(text)
		if !found {
			// Affirmed but the reply carried no document text; generate it
			// from the collected data instead.
			slog.Debug("Engine.processConfirmation: reply carried no document block, generating from collected data")
			documentName := req.RequestedDocumentType
			if tmpl != nil {
				documentName = tmpl.Name
			}
			generated, err := e.generateDocumentText(ctx, documentName, merged)
			if err != nil {
				return models.TurnResponse{}, err
			}
			docText = generated
			text = strings.TrimSpace(text + "\n\n" + documentFenceOpen + "\n" + docText + "\n" + documentFenceClose)
		}
		documentPath := ""
		if e.renderer != nil {
			path, err := e.renderer.Render(req.RequestedDocumentType, docText)
			if err != nil {
				slog.Warn("Engine.processConfirmation: document storage failed, returning text without path", "error", err)
			} else {
				documentPath = path
			}
		}
		return models.TurnResponse{
			ResponseText:  text,
			NewStatus:     models.StateReady,
			DocumentType:  req.RequestedDocumentType,
			CollectedData: merged,
			DocumentPath:  documentPath,
		}, nil

	case models.StateCollectingInfo:
		return models.TurnResponse{
			ResponseText:     text,
			NewStatus:        models.StateCollectingInfo,
			DocumentType:     req.RequestedDocumentType,
			CollectedData:    merged,
			IsAskingQuestion: true,
		}, nil

	default:
		return models.TurnResponse{
			ResponseText:     text,
			NewStatus:        models.StateAwaitingConfirmation,
			DocumentType:     req.RequestedDocumentType,
			CollectedData:    merged,
			IsAskingQuestion: decision.IsAskingQuestion,
		}, nil
	}
}

// generateDocumentText runs the dedicated low-temperature document
// completion over the collected data. documentName is the display name used
// in the prompt, resolved by the caller so the template is fetched once.
func (e *Engine) generateDocumentText(ctx context.Context, documentName string, data map[string]string) (string, error) {
	systemPrompt, userPrompt := buildDocumentPrompts(documentName, data)
	text, err := e.client.Complete(ctx,
		buildChatMessages(systemPrompt, nil, userPrompt),
		genai.CompletionOpts{Temperature: documentTemperature, MaxTokens: documentMaxTokens})
	if err != nil {
		return "", fmt.Errorf("document generation failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", &models.ProviderError{Message: "model produced empty document text"}
	}
	return text, nil
}

// GenerateDocument produces document text for a document type directly from
// collected data and stores it, returning the text and the issued path. Used
// by the direct generation endpoint.
func (e *Engine) GenerateDocument(ctx context.Context, documentType string, data map[string]string) (string, string, error) {
	documentName := documentType
	if tmpl := e.lookupTemplate(ctx, documentType); tmpl != nil {
		documentName = tmpl.Name
	}
	text, err := e.generateDocumentText(ctx, documentName, data)
	if err != nil {
		return "", "", err
	}

	documentPath := ""
	if e.renderer != nil {
		path, err := e.renderer.Render(documentType, text)
		if err != nil {
			slog.Warn("Engine.GenerateDocument: document storage failed, returning text without path", "error", err)
		} else {
			documentPath = path
		}
	}
	return text, documentPath, nil
}

// lookupTemplate queries the template store. Store failures are treated as
// "no template": logged as TemplateLookupError and the flow continues.
func (e *Engine) lookupTemplate(ctx context.Context, documentType string) *models.DocumentTemplate {
	if e.templates == nil || strings.TrimSpace(documentType) == "" {
		return nil
	}
	tmpl, err := e.templates.GetTemplate(ctx, documentType)
	if err != nil {
		lookupErr := &models.TemplateLookupError{DocumentType: documentType, Err: err}
		slog.Warn("Engine.lookupTemplate: proceeding without template", "error", lookupErr)
		return nil
	}
	if tmpl == nil {
		slog.Debug("Engine.lookupTemplate: template not found", "documentType", documentType)
	}
	return tmpl
}
