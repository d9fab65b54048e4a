// Package api provides HTTP handlers for LexDraft endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/lexdraft/lexdraft/internal/models"
)

// genericErrorMessage is the only error text an internal failure exposes.
const genericErrorMessage = "İsteğiniz işlenirken bir hata oluştu. Lütfen tekrar deneyin."

// turnHandler processes one dialogue turn. Every internal failure funnels
// into a single 500 response; clients never see provider errors or stack
// traces.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	resp, err := s.engine.ProcessTurn(r.Context(), req)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			slog.Warn("Server.turnHandler: invalid request", "error", err)
			writeErrorResponse(w, http.StatusBadRequest, vErr.Error())
			return
		}
		slog.Error("Server.turnHandler: turn processing failed", "error", err, "currentStatus", req.CurrentStatus)
		writeErrorResponse(w, http.StatusInternalServerError, genericErrorMessage)
		return
	}

	slog.Debug("Server.turnHandler: turn processed", "newStatus", resp.NewStatus, "documentType", resp.DocumentType)
	writeJSONResponse(w, http.StatusOK, resp)
}

// generateRequest is the inbound payload of the direct generation endpoint.
type generateRequest struct {
	DocumentType string            `json:"documentType"`
	Data         map[string]string `json:"data"`
}

// generateResponse is the outbound payload of the direct generation endpoint.
type generateResponse struct {
	GeneratedText string `json:"generatedText"`
	DocumentPath  string `json:"documentPath,omitempty"`
}

// documentsHandler generates a document directly from collected data,
// bypassing the dialogue.
func (s *Server) documentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.documentsHandler: failed to decode JSON", "error", err)
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if strings.TrimSpace(req.DocumentType) == "" {
		writeErrorResponse(w, http.StatusBadRequest, "documentType is required")
		return
	}

	text, docPath, err := s.engine.GenerateDocument(r.Context(), req.DocumentType, req.Data)
	if err != nil {
		slog.Error("Server.documentsHandler: generation failed", "error", err, "documentType", req.DocumentType)
		writeErrorResponse(w, http.StatusInternalServerError, genericErrorMessage)
		return
	}

	slog.Info("Server.documentsHandler: document generated", "documentType", req.DocumentType, "path", docPath)
	writeJSONResponse(w, http.StatusOK, generateResponse{GeneratedText: text, DocumentPath: docPath})
}

// documentFileHandler serves stored document files. Only plain file names
// under the output directory are reachable.
func (s *Server) documentFileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/documents/files/")
	if name == "" || name != path.Base(name) {
		writeErrorResponse(w, http.StatusBadRequest, "invalid document name")
		return
	}

	fullPath := filepath.Join(s.docs.OutputDir(), name)
	slog.Debug("Server.documentFileHandler: serving document", "path", fullPath)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, fullPath)
}

// templatesHandler lists the available document templates.
func (s *Server) templatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	templates, err := s.templates.ListTemplates(r.Context())
	if err != nil {
		slog.Error("Server.templatesHandler: listing failed", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, genericErrorMessage)
		return
	}
	if templates == nil {
		templates = []models.DocumentTemplate{}
	}
	writeJSONResponse(w, http.StatusOK, templates)
}

// healthHandler reports service liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
