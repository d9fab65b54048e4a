package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/lexdraft/lexdraft/internal/genai"
	"github.com/lexdraft/lexdraft/internal/models"
)

// scriptedClient is a hand-written gateway mock. Complete pops replies from
// completions in order; CompleteJSON pops raw JSON payloads and unmarshals
// them into out.
type scriptedClient struct {
	completions  []string
	completeErr  error
	jsonPayloads []string
	jsonErr      error

	completeCalls int
	jsonCalls     int
	captured      [][]openai.ChatCompletionMessageParamUnion
	capturedOpts  []genai.CompletionOpts
}

func (m *scriptedClient) Complete(_ context.Context, messages []openai.ChatCompletionMessageParamUnion, opts genai.CompletionOpts) (string, error) {
	m.completeCalls++
	m.captured = append(m.captured, messages)
	m.capturedOpts = append(m.capturedOpts, opts)
	if m.completeErr != nil {
		return "", m.completeErr
	}
	if len(m.completions) == 0 {
		return "", fmt.Errorf("scriptedClient: no completion scripted for call %d", m.completeCalls)
	}
	reply := m.completions[0]
	m.completions = m.completions[1:]
	return reply, nil
}

func (m *scriptedClient) CompleteJSON(_ context.Context, messages []openai.ChatCompletionMessageParamUnion, opts genai.CompletionOpts, out any) error {
	m.jsonCalls++
	m.captured = append(m.captured, messages)
	m.capturedOpts = append(m.capturedOpts, opts)
	if m.jsonErr != nil {
		return m.jsonErr
	}
	if len(m.jsonPayloads) == 0 {
		return fmt.Errorf("scriptedClient: no JSON payload scripted for call %d", m.jsonCalls)
	}
	payload := m.jsonPayloads[0]
	m.jsonPayloads = m.jsonPayloads[1:]
	return json.Unmarshal([]byte(payload), out)
}

func messageText(msg openai.ChatCompletionMessageParamUnion) string {
	switch {
	case msg.OfSystem != nil:
		return msg.OfSystem.Content.OfString.Value
	case msg.OfUser != nil:
		return msg.OfUser.Content.OfString.Value
	case msg.OfAssistant != nil:
		return msg.OfAssistant.Content.OfString.Value
	}
	return ""
}

type fakeTemplateStore struct {
	templates map[string]*models.DocumentTemplate
	err       error
	calls     int
}

func (s *fakeTemplateStore) GetTemplate(_ context.Context, id string) (*models.DocumentTemplate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.templates[id], nil
}

type fakeRenderer struct {
	path     string
	err      error
	calls    int
	lastType string
	lastText string
}

func (r *fakeRenderer) Render(documentType, text string) (string, error) {
	r.calls++
	r.lastType = documentType
	r.lastText = text
	if r.err != nil {
		return "", r.err
	}
	return r.path, nil
}

func rentalTemplate() *models.DocumentTemplate {
	return &models.DocumentTemplate{
		ID:   "kira_sozlesmesi",
		Name: "Kira Sözleşmesi",
		Fields: []models.TemplateField{
			{Key: "tenantName", Label: "Kiracının Adı Soyadı", Type: models.FieldTypeText, Required: true},
			{Key: "landlordName", Label: "Ev Sahibinin Adı Soyadı", Type: models.FieldTypeText},
			{Key: "startDate", Label: "Kira Başlangıç Tarihi", Type: models.FieldTypeDate, Required: true},
		},
	}
}

func newTestEngine(client *scriptedClient, renderer *fakeRenderer) *Engine {
	store := &fakeTemplateStore{templates: map[string]*models.DocumentTemplate{
		"kira_sozlesmesi": rentalTemplate(),
	}}
	return NewEngine(client, store, renderer)
}

func TestProcessTurnRejectsInvalidRequestBeforeAnyModelCall(t *testing.T) {
	client := &scriptedClient{}
	engine := newTestEngine(client, &fakeRenderer{})

	cases := []models.TurnRequest{
		{CurrentStatus: "drafting", UserInput: "Merhaba"},
		{CurrentStatus: "idle", UserInput: "   "},
		{CurrentStatus: "idle", UserInput: "Merhaba", History: []models.Turn{{Role: "bot", Content: "selam"}}},
	}
	for _, req := range cases {
		_, err := engine.ProcessTurn(context.Background(), req)
		var vErr *models.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("expected ValidationError for %+v, got %v", req, err)
		}
	}
	if client.completeCalls != 0 || client.jsonCalls != 0 {
		t.Errorf("expected no model calls on validation failure, got %d complete, %d json", client.completeCalls, client.jsonCalls)
	}
}

func TestProcessTurnIdleCreateDocumentStartsCollection(t *testing.T) {
	client := &scriptedClient{
		jsonPayloads: []string{`{"intent": "create_document", "documentType": "kira_sozlesmesi"}`},
		completions:  []string{"Kiracının adı ve soyadı nedir?"},
	}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus: "idle",
		UserInput:     "Kira sözleşmesi hazırlamak istiyorum",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected collectingInfo, got %q", resp.NewStatus)
	}
	if resp.DocumentType != "kira_sozlesmesi" {
		t.Errorf("expected document type kira_sozlesmesi, got %q", resp.DocumentType)
	}
	if !resp.IsAskingQuestion {
		t.Error("expected isAskingQuestion true when opening a collection flow")
	}
	if resp.CollectedData == nil || len(resp.CollectedData) != 0 {
		t.Errorf("expected empty collected data map, got %v", resp.CollectedData)
	}
	if resp.ResponseText != "Kiracının adı ve soyadı nedir?" {
		t.Errorf("unexpected response text %q", resp.ResponseText)
	}
	if client.jsonCalls != 1 || client.completeCalls != 1 {
		t.Errorf("expected 1 json + 1 complete call, got %d/%d", client.jsonCalls, client.completeCalls)
	}
}

func TestProcessTurnIdleCreateDocumentWithoutTemplate(t *testing.T) {
	client := &scriptedClient{
		jsonPayloads: []string{`{"intent": "create_document", "documentType": "vekaletname"}`},
	}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus: "idle",
		UserInput:     "Vekaletname lazım",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected collectingInfo despite missing template, got %q", resp.NewStatus)
	}
	if resp.DocumentType != "vekaletname" {
		t.Errorf("expected document type preserved, got %q", resp.DocumentType)
	}
	if client.completeCalls != 0 {
		t.Errorf("expected no first-question call without a template, got %d", client.completeCalls)
	}
	if !strings.Contains(resp.ResponseText, "vekaletname") {
		t.Errorf("expected response to name the document type, got %q", resp.ResponseText)
	}
}

func TestProcessTurnIdleTemplateStoreFailureIsNotFatal(t *testing.T) {
	client := &scriptedClient{
		jsonPayloads: []string{`{"intent": "create_document", "documentType": "kira_sozlesmesi"}`},
	}
	store := &fakeTemplateStore{err: errors.New("connection refused")}
	engine := NewEngine(client, store, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus: "idle",
		UserInput:     "Kira sözleşmesi istiyorum",
	})
	if err != nil {
		t.Fatalf("expected template store failure to degrade, got %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected collectingInfo, got %q", resp.NewStatus)
	}
}

func TestProcessTurnIdleQuestion(t *testing.T) {
	client := &scriptedClient{
		jsonPayloads: []string{`{"intent": "question"}`},
		completions:  []string{"Kira artışı TÜFE oranıyla sınırlıdır."},
	}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus: "idle",
		UserInput:     "Kira artış oranı nasıl belirlenir?",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateIdle {
		t.Errorf("expected to stay idle, got %q", resp.NewStatus)
	}
	if resp.ResponseText != "Kira artışı TÜFE oranıyla sınırlıdır." {
		t.Errorf("unexpected response text %q", resp.ResponseText)
	}
	opts := client.capturedOpts[len(client.capturedOpts)-1]
	if opts.Temperature != answerTemperature || opts.MaxTokens != answerMaxTokens {
		t.Errorf("unexpected completion opts %+v", opts)
	}
}

func TestProcessTurnIdleGreetingSkipsMainCompletion(t *testing.T) {
	client := &scriptedClient{jsonPayloads: []string{`{"intent": "greeting"}`}}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus: "idle",
		UserInput:     "Merhaba",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.ResponseText != greetingResponse {
		t.Errorf("expected canned greeting, got %q", resp.ResponseText)
	}
	if client.completeCalls != 0 {
		t.Errorf("greeting must not trigger a main completion, got %d calls", client.completeCalls)
	}
}

func TestProcessTurnIdleMalformedIntentJSONDegrades(t *testing.T) {
	client := &scriptedClient{jsonErr: &models.ParseError{Raw: "not json"}}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus: "idle",
		UserInput:     "asdfgh",
	})
	if err != nil {
		t.Fatalf("expected parse failure to degrade, got %v", err)
	}
	if resp.NewStatus != models.StateIdle {
		t.Errorf("expected to stay idle, got %q", resp.NewStatus)
	}
	if resp.ResponseText != clarifyIntentResponse {
		t.Errorf("expected clarify response, got %q", resp.ResponseText)
	}
}

func TestProcessTurnCollectingRequiresDocumentType(t *testing.T) {
	client := &scriptedClient{}
	engine := newTestEngine(client, &fakeRenderer{})

	_, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus: "collectingInfo",
		UserInput:     "Ahmet Yılmaz",
	})
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if client.jsonCalls != 0 {
		t.Errorf("expected no extraction call, got %d", client.jsonCalls)
	}
}

func TestProcessTurnCollectingContinues(t *testing.T) {
	client := &scriptedClient{
		jsonPayloads: []string{`{"status": "continue", "updatedData": {"tenantName": "Ahmet Yılmaz"}, "nextQuestion": "Kira başlangıç tarihi nedir?"}`},
	}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "collectingInfo",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{},
		UserInput:             "Kiracı Ahmet Yılmaz",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected collectingInfo, got %q", resp.NewStatus)
	}
	if !resp.IsAskingQuestion {
		t.Error("expected isAskingQuestion true on continue")
	}
	if resp.CollectedData["tenantName"] != "Ahmet Yılmaz" {
		t.Errorf("expected tenantName merged, got %v", resp.CollectedData)
	}
	if resp.ResponseText != "Kira başlangıç tarihi nedir?" {
		t.Errorf("unexpected next question %q", resp.ResponseText)
	}
}

func TestProcessTurnCollectingDoneMovesToConfirmation(t *testing.T) {
	client := &scriptedClient{
		jsonPayloads: []string{`{"status": "done", "updatedData": {"tenantName": "Ahmet Yılmaz", "startDate": "01.06.2024"}}`},
		completions:  []string{"Bilgileri özetliyorum: ... Onaylıyor musunuz?"},
	}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "collectingInfo",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{"tenantName": "Ahmet Yılmaz"},
		UserInput:             "Başlangıç tarihi 01.06.2024",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateAwaitingConfirmation {
		t.Errorf("expected awaitingConfirmation, got %q", resp.NewStatus)
	}
	if resp.IsAskingQuestion {
		t.Error("confirmation summary is a yes/no prompt, not a field question")
	}
	if resp.CollectedData["startDate"] != "01.06.2024" {
		t.Errorf("expected startDate collected, got %v", resp.CollectedData)
	}
}

func TestProcessTurnCollectingPrematureDoneIsDowngraded(t *testing.T) {
	// The model claims done but startDate is still missing.
	client := &scriptedClient{
		jsonPayloads: []string{`{"status": "done", "updatedData": {"tenantName": "Ahmet Yılmaz"}}`},
	}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "collectingInfo",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{},
		UserInput:             "Kiracı Ahmet Yılmaz, gerisi önemli değil",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected downgrade to collectingInfo, got %q", resp.NewStatus)
	}
	if !resp.IsAskingQuestion {
		t.Error("expected a follow-up question after downgrade")
	}
	if !strings.Contains(resp.ResponseText, "Kira Başlangıç Tarihi") {
		t.Errorf("expected question about the missing field, got %q", resp.ResponseText)
	}
	if client.completeCalls != 0 {
		t.Errorf("downgraded done must not reach the confirmation summary, got %d calls", client.completeCalls)
	}
}

func TestProcessTurnCollectingDoneRejectsInvalidDate(t *testing.T) {
	client := &scriptedClient{
		jsonPayloads: []string{`{"status": "done", "updatedData": {"tenantName": "Ahmet Yılmaz", "startDate": "gelecek ay"}}`},
	}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "collectingInfo",
		RequestedDocumentType: "kira_sozlesmesi",
		UserInput:             "Gelecek ay başlasın",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected invalid date to keep collecting, got %q", resp.NewStatus)
	}
}

func TestProcessTurnCollectingIsIdempotent(t *testing.T) {
	payload := `{"status": "continue", "updatedData": {"tenantName": "Ahmet Yılmaz"}, "nextQuestion": "Kira başlangıç tarihi nedir?"}`
	req := models.TurnRequest{
		CurrentStatus:         "collectingInfo",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{},
		UserInput:             "Kiracı Ahmet Yılmaz",
	}

	first := &scriptedClient{jsonPayloads: []string{payload}}
	second := &scriptedClient{jsonPayloads: []string{payload}}

	respA, err := newTestEngine(first, &fakeRenderer{}).ProcessTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	respB, err := newTestEngine(second, &fakeRenderer{}).ProcessTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if respA.NewStatus != respB.NewStatus || respA.ResponseText != respB.ResponseText {
		t.Errorf("same request produced different outcomes: %+v vs %+v", respA, respB)
	}
	if len(respA.CollectedData) != len(respB.CollectedData) {
		t.Errorf("collected data diverged: %v vs %v", respA.CollectedData, respB.CollectedData)
	}
}

func TestProcessTurnConfirmationAffirmed(t *testing.T) {
	reply := "Elbette, belgeniz hazır:\n" +
		"```legal-document\nKİRA SÖZLEŞMESİ\n\nKiracı: Ahmet Yılmaz\n```\n" +
		`%%METADATA%%{"isAskingQuestion": false, "nextStatus": "generating", "updatedCollectedData": {"tenantName": "Ahmet Yılmaz", "startDate": "01.06.2024"}, "documentType": "kira_sozlesmesi"}`
	client := &scriptedClient{completions: []string{reply}}
	renderer := &fakeRenderer{path: "generated-documents/kira_sozlesmesi_abc.txt"}
	engine := newTestEngine(client, renderer)

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "awaitingConfirmation",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{"tenantName": "Ahmet Yılmaz", "startDate": "01.06.2024"},
		UserInput:             "Evet, onaylıyorum",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateReady {
		t.Errorf("expected ready, got %q", resp.NewStatus)
	}
	if resp.DocumentPath != renderer.path {
		t.Errorf("expected document path %q, got %q", renderer.path, resp.DocumentPath)
	}
	if renderer.calls != 1 {
		t.Fatalf("expected one render call, got %d", renderer.calls)
	}
	if !strings.HasPrefix(renderer.lastText, "KİRA SÖZLEŞMESİ") {
		t.Errorf("renderer received unexpected text %q", renderer.lastText)
	}
	if strings.Contains(resp.ResponseText, MetadataMarker) {
		t.Error("metadata block leaked into the user-facing text")
	}
}

func TestProcessTurnConfirmationEditRequest(t *testing.T) {
	reply := "Hangi bilgiyi değiştirmek istersiniz?\n" +
		`%%METADATA%%{"isAskingQuestion": true, "nextStatus": "collectingInfo", "updatedCollectedData": {"tenantName": "Ahmet Yılmaz"}, "documentType": "kira_sozlesmesi"}`
	client := &scriptedClient{completions: []string{reply}}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "awaitingConfirmation",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{"tenantName": "Ahmet Yılmaz", "startDate": "01.06.2024"},
		UserInput:             "Kiracı adı yanlış olmuş",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected collectingInfo, got %q", resp.NewStatus)
	}
	if !resp.IsAskingQuestion {
		t.Error("expected isAskingQuestion true after an edit request")
	}
	// The earlier startDate answer must survive the model's partial snapshot.
	if resp.CollectedData["startDate"] != "01.06.2024" {
		t.Errorf("earlier answer dropped from collected data: %v", resp.CollectedData)
	}
}

func TestProcessTurnConfirmationMissingMarkerStays(t *testing.T) {
	client := &scriptedClient{completions: []string{"Onaylıyor musunuz?"}}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "awaitingConfirmation",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{"tenantName": "Ahmet Yılmaz", "startDate": "01.06.2024"},
		UserInput:             "hmm",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateAwaitingConfirmation {
		t.Errorf("expected to stay in awaitingConfirmation, got %q", resp.NewStatus)
	}
	if resp.ResponseText != "Onaylıyor musunuz?" {
		t.Errorf("expected reply text forwarded, got %q", resp.ResponseText)
	}
}

func TestProcessTurnConfirmationAffirmedWithoutDocumentBlock(t *testing.T) {
	// The decision says generating but the reply carries no fenced document;
	// the engine falls back to a dedicated generation call.
	reply := "Belgeniz hazırlanıyor.\n" +
		`%%METADATA%%{"isAskingQuestion": false, "nextStatus": "generating", "updatedCollectedData": {}, "documentType": "kira_sozlesmesi"}`
	client := &scriptedClient{completions: []string{reply, "KİRA SÖZLEŞMESİ\n\nMadde 1..."}}
	renderer := &fakeRenderer{path: "generated-documents/kira_sozlesmesi_f.txt"}
	store := &fakeTemplateStore{templates: map[string]*models.DocumentTemplate{
		"kira_sozlesmesi": rentalTemplate(),
	}}
	engine := NewEngine(client, store, renderer)

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "awaitingConfirmation",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{"tenantName": "Ahmet Yılmaz", "startDate": "01.06.2024"},
		UserInput:             "Evet",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateReady {
		t.Errorf("expected ready after fallback generation, got %q", resp.NewStatus)
	}
	if client.completeCalls != 2 {
		t.Errorf("expected confirmation + generation calls, got %d", client.completeCalls)
	}
	if renderer.calls != 1 || !strings.HasPrefix(renderer.lastText, "KİRA SÖZLEŞMESİ") {
		t.Errorf("renderer did not receive the generated text: %q", renderer.lastText)
	}
	if !strings.Contains(resp.ResponseText, "```legal-document") {
		t.Errorf("generated document must be fenced into the response text: %q", resp.ResponseText)
	}
	if store.calls != 1 {
		t.Errorf("expected a single template lookup for the turn, got %d", store.calls)
	}
}

func TestProcessTurnConfirmationMissingFieldsResumesCollection(t *testing.T) {
	// Confirmation entered with an incomplete field set goes back to
	// collection without touching the model.
	client := &scriptedClient{}
	engine := newTestEngine(client, &fakeRenderer{})

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "awaitingConfirmation",
		RequestedDocumentType: "kira_sozlesmesi",
		CurrentCollectedData:  map[string]string{"tenantName": "Ahmet Yılmaz"},
		UserInput:             "Onaylıyorum",
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if resp.NewStatus != models.StateCollectingInfo {
		t.Errorf("expected collection to resume, got %q", resp.NewStatus)
	}
	if !resp.IsAskingQuestion {
		t.Error("expected a question for the missing field")
	}
	if !strings.Contains(resp.ResponseText, "Kira Başlangıç Tarihi") {
		t.Errorf("expected the missing field's label in the question, got %q", resp.ResponseText)
	}
	if client.completeCalls != 0 || client.jsonCalls != 0 {
		t.Errorf("expected no model calls, got %d complete and %d json", client.completeCalls, client.jsonCalls)
	}
}

func TestProcessTurnConfirmationRendererFailureKeepsText(t *testing.T) {
	reply := "Belgeniz:\n```legal-document\nİHTARNAME\n```\n" +
		`%%METADATA%%{"isAskingQuestion": false, "nextStatus": "generating", "updatedCollectedData": {}, "documentType": "ihtarname"}`
	client := &scriptedClient{completions: []string{reply}}
	renderer := &fakeRenderer{err: errors.New("disk full")}
	engine := newTestEngine(client, renderer)

	resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
		CurrentStatus:         "awaitingConfirmation",
		RequestedDocumentType: "ihtarname",
		UserInput:             "Onaylıyorum",
	})
	if err != nil {
		t.Fatalf("expected storage failure to degrade, got %v", err)
	}
	if resp.NewStatus != models.StateReady {
		t.Errorf("expected ready even when storage fails, got %q", resp.NewStatus)
	}
	if resp.DocumentPath != "" {
		t.Errorf("expected empty document path on storage failure, got %q", resp.DocumentPath)
	}
}

func TestProcessTurnTransientStatesReset(t *testing.T) {
	for _, state := range []models.ConversationState{models.StateGenerating, models.StateReady, models.StateFailed} {
		client := &scriptedClient{}
		engine := newTestEngine(client, &fakeRenderer{})

		// No userInput: a reset turn carries none.
		resp, err := engine.ProcessTurn(context.Background(), models.TurnRequest{
			CurrentStatus: string(state),
		})
		if err != nil {
			t.Fatalf("ProcessTurn failed for %q: %v", state, err)
		}
		if resp.NewStatus != models.StateIdle {
			t.Errorf("expected %q to reset to idle, got %q", state, resp.NewStatus)
		}
		if resp.ResponseText != defaultResetResponse {
			t.Errorf("expected reset response for %q, got %q", state, resp.ResponseText)
		}
		if client.completeCalls != 0 || client.jsonCalls != 0 {
			t.Errorf("reset from %q must not call the model", state)
		}
	}
}

func TestGenerateDocument(t *testing.T) {
	client := &scriptedClient{completions: []string{"KİRA SÖZLEŞMESİ\n\nMadde 1..."}}
	renderer := &fakeRenderer{path: "generated-documents/kira_sozlesmesi_xyz.txt"}
	engine := newTestEngine(client, renderer)

	text, path, err := engine.GenerateDocument(context.Background(), "kira_sozlesmesi", map[string]string{
		"tenantName": "Ahmet Yılmaz",
		"startDate":  "01.06.2024",
	})
	if err != nil {
		t.Fatalf("GenerateDocument failed: %v", err)
	}
	if !strings.HasPrefix(text, "KİRA SÖZLEŞMESİ") {
		t.Errorf("unexpected document text %q", text)
	}
	if path != renderer.path {
		t.Errorf("expected path %q, got %q", renderer.path, path)
	}
	opts := client.capturedOpts[0]
	if opts.Temperature != documentTemperature {
		t.Errorf("expected document temperature %v, got %v", documentTemperature, opts.Temperature)
	}
	// The template's display name, not its id, reaches the prompt.
	prompt := messageText(client.captured[0][len(client.captured[0])-1])
	if !strings.Contains(prompt, "Kira Sözleşmesi") {
		t.Errorf("expected template name in prompt, got %q", prompt)
	}
}

func TestGenerateDocumentEmptyTextFails(t *testing.T) {
	client := &scriptedClient{completions: []string{"   "}}
	engine := newTestEngine(client, &fakeRenderer{})

	_, _, err := engine.GenerateDocument(context.Background(), "kira_sozlesmesi", nil)
	var pErr *models.ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ProviderError for empty document text, got %v", err)
	}
}
