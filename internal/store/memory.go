package store

import (
	"context"
	"sync"

	"github.com/lexdraft/lexdraft/internal/models"
)

// builtinTemplates are the templates every fresh deployment starts with.
// Database-backed stores seed these on first migration; the in-memory store
// carries them directly.
func builtinTemplates() []models.DocumentTemplate {
	return []models.DocumentTemplate{
		{
			ID:   "kira_sozlesmesi",
			Name: "Kira Sözleşmesi",
			Fields: []models.TemplateField{
				{Key: "tenantName", Label: "Kiracının Adı Soyadı", Type: models.FieldTypeText, Required: true},
				{Key: "landlordName", Label: "Ev Sahibinin Adı Soyadı", Type: models.FieldTypeText, Required: true},
				{Key: "propertyAddress", Label: "Kiralanan Mülkün Adresi", Type: models.FieldTypeText, Required: true},
				{Key: "startDate", Label: "Kira Başlangıç Tarihi", Type: models.FieldTypeDate, Required: true},
				{Key: "monthlyRent", Label: "Aylık Kira Bedeli (TL)", Type: models.FieldTypeNumber, Required: true},
				{Key: "deposit", Label: "Depozito Tutarı (TL)", Type: models.FieldTypeNumber},
			},
		},
		{
			ID:   "ihtarname",
			Name: "İhtarname",
			Fields: []models.TemplateField{
				{Key: "senderName", Label: "İhtar Eden (Ad Soyad)", Type: models.FieldTypeText, Required: true},
				{Key: "recipientName", Label: "Muhatap (Ad Soyad)", Type: models.FieldTypeText, Required: true},
				{Key: "recipientAddress", Label: "Muhatabın Adresi", Type: models.FieldTypeText, Required: true},
				{Key: "subject", Label: "İhtar Konusu", Type: models.FieldTypeText, Required: true},
				{Key: "demandDate", Label: "Talep Edilen Son Tarih", Type: models.FieldTypeDate},
			},
		},
	}
}

// InMemoryStore keeps templates in a map. The default backend when no
// database DSN is configured, and the fixture store in tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	templates map[string]models.DocumentTemplate
}

// NewInMemoryStore creates an in-memory store seeded with the built-in
// templates.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{templates: make(map[string]models.DocumentTemplate)}
	for _, tmpl := range builtinTemplates() {
		s.templates[tmpl.ID] = tmpl
	}
	return s
}

func (s *InMemoryStore) GetTemplate(_ context.Context, id string) (*models.DocumentTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	return &tmpl, nil
}

func (s *InMemoryStore) ListTemplates(_ context.Context) ([]models.DocumentTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DocumentTemplate, 0, len(s.templates))
	for _, tmpl := range s.templates {
		out = append(out, tmpl)
	}
	return out, nil
}

func (s *InMemoryStore) SaveTemplate(_ context.Context, tmpl models.DocumentTemplate) error {
	if tmpl.ID == "" {
		return &models.ValidationError{Field: "id", Reason: "template id must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tmpl.ID] = tmpl
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
