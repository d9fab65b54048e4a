package flow

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go"

	"github.com/lexdraft/lexdraft/internal/genai"
	"github.com/lexdraft/lexdraft/internal/models"
)

// Completion tuning for the two decision calls, from the reference behavior.
const (
	intentTemperature = 0.3
	intentMaxTokens   = 150

	extractionTemperature = 0.4
	extractionMaxTokens   = 500
)

// dateValuePattern is the GG.AA.YYYY format the extraction prompt requests.
var dateValuePattern = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

// Extractor drives the two JSON-mode decision calls: idle-state intent
// classification and collecting-state field extraction. The model's output is
// advisory; the engine re-checks required-field completeness independently.
type Extractor struct {
	client genai.ClientInterface
}

// NewExtractor creates an extractor backed by the given gateway.
func NewExtractor(client genai.ClientInterface) *Extractor {
	return &Extractor{client: client}
}

// ClassifyIntent classifies the latest user message while the conversation is
// idle. A malformed JSON reply degrades to the unknown-intent sentinel
// instead of failing the turn; provider failures propagate.
func (e *Extractor) ClassifyIntent(ctx context.Context, userInput string) (models.IntentResult, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Kullanıcının niyetini analiz et ve JSON döndür."),
		openai.UserMessage(buildIntentPrompt(userInput)),
	}

	var result models.IntentResult
	err := e.client.CompleteJSON(ctx, messages, genai.CompletionOpts{
		Temperature: intentTemperature,
		MaxTokens:   intentMaxTokens,
	}, &result)
	if err != nil {
		var parseErr *models.ParseError
		if errors.As(err, &parseErr) {
			slog.Warn("flow.ClassifyIntent: degraded to unknown intent after parse failure")
			return models.IntentResult{Intent: models.IntentUnknown, Error: "LLM'den beklenen JSON formatı alınamadı."}, nil
		}
		return models.IntentResult{}, err
	}

	// create_document without a resolvable type cannot start a flow.
	if result.Intent == models.IntentCreateDocument && strings.TrimSpace(result.DocumentType) == "" {
		slog.Debug("flow.ClassifyIntent: create_document without document type, treating as unknown")
		result.Intent = models.IntentUnknown
		result.DocumentType = ""
	}
	switch result.Intent {
	case models.IntentQuestion, models.IntentCreateDocument, models.IntentGreeting, models.IntentUnknown, models.IntentClarifyDocument:
	default:
		slog.Warn("flow.ClassifyIntent: unrecognized intent value", "intent", result.Intent)
		result.Intent = models.IntentUnknown
	}
	slog.Debug("flow.ClassifyIntent: classified", "intent", result.Intent, "documentType", result.DocumentType)
	return result, nil
}

// ExtractFields merges the latest user message into the collected data via a
// JSON-mode extraction call. The returned UpdatedData is the model's full
// replacement snapshot for this turn. A malformed reply degrades to a clarify
// decision that leaves the collected data untouched.
func (e *Extractor) ExtractFields(ctx context.Context, tmpl *models.DocumentTemplate, documentType string, collected map[string]string, userInput string) (models.ExtractionResult, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Bilgi toplayan asistansın. JSON döndür."),
		openai.UserMessage(buildExtractionPrompt(tmpl, documentType, collected, userInput)),
	}

	var result models.ExtractionResult
	err := e.client.CompleteJSON(ctx, messages, genai.CompletionOpts{
		Temperature: extractionTemperature,
		MaxTokens:   extractionMaxTokens,
	}, &result)
	if err != nil {
		var parseErr *models.ParseError
		if errors.As(err, &parseErr) {
			slog.Warn("flow.ExtractFields: degraded to clarify after parse failure")
			return models.ExtractionResult{
				Status:       models.ExtractionClarify,
				UpdatedData:  collected,
				NextQuestion: clarifyFieldResponse,
			}, nil
		}
		return models.ExtractionResult{}, err
	}

	switch result.Status {
	case models.ExtractionDone, models.ExtractionContinue, models.ExtractionClarify:
	default:
		slog.Warn("flow.ExtractFields: unrecognized status value, downgrading to clarify", "status", result.Status)
		result.Status = models.ExtractionClarify
		result.NextQuestion = clarifyFieldResponse
	}
	if result.UpdatedData == nil {
		result.UpdatedData = collected
	}
	slog.Debug("flow.ExtractFields: extracted", "status", result.Status, "fields", len(result.UpdatedData))
	return result, nil
}

// mergeCollected overlays the model's snapshot on the caller's collected data
// so earlier answers are never silently dropped, then restricts the keys to
// the template's field set when one is known.
func mergeCollected(current, snapshot map[string]string, tmpl *models.DocumentTemplate) map[string]string {
	merged := make(map[string]string, len(current)+len(snapshot))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range snapshot {
		if strings.TrimSpace(v) == "" {
			continue
		}
		merged[k] = v
	}
	if tmpl != nil && len(tmpl.Fields) > 0 {
		for k := range merged {
			if _, ok := tmpl.FieldByKey(k); !ok {
				slog.Debug("flow.mergeCollected: discarding key outside template", "key", k)
				delete(merged, k)
			}
		}
	}
	return merged
}

// missingRequired returns the template's required fields whose values are
// absent, empty, or fail the field-type check. The model's own done decision
// is advisory; this check is what actually gates confirmation.
func missingRequired(tmpl *models.DocumentTemplate, data map[string]string) []models.TemplateField {
	if tmpl == nil {
		return nil
	}
	var missing []models.TemplateField
	for _, f := range tmpl.RequiredFields() {
		v, ok := data[f.Key]
		if !ok || strings.TrimSpace(v) == "" || !validFieldValue(f, v) {
			missing = append(missing, f)
		}
	}
	return missing
}

// validFieldValue checks a value against its template field type: dates must
// be GG.AA.YYYY, numbers must parse (comma accepted as decimal separator).
func validFieldValue(f models.TemplateField, value string) bool {
	switch f.Type {
	case models.FieldTypeDate:
		return dateValuePattern.MatchString(strings.TrimSpace(value))
	case models.FieldTypeNumber:
		normalized := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
		_, err := strconv.ParseFloat(normalized, 64)
		return err == nil
	default:
		return true
	}
}
