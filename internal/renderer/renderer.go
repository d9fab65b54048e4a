// Package renderer persists generated document text as retrievable files.
//
// Documents are stored as plain text, wrapped to a fixed line width so they
// read well in any viewer. Each file gets a unique name derived from the
// document type and a UUID; the returned path is what the API serves back to
// the caller.
package renderer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Defaults for document storage.
const (
	// DefaultOutputDir is where generated documents are written.
	DefaultOutputDir = "generated-documents"
	// DefaultLineWidth is the wrap width for stored document text.
	DefaultLineWidth = 80
	// DefaultFilePermissions defines the permissions for written documents.
	DefaultFilePermissions = 0644
)

// turkishFold maps Turkish letters to ASCII for file names.
var turkishFold = strings.NewReplacer(
	"İ", "I", "ı", "i",
	"Ş", "S", "ş", "s",
	"Ğ", "G", "ğ", "g",
	"Ç", "C", "ç", "c",
	"Ö", "O", "ö", "o",
	"Ü", "U", "ü", "u",
)

// unsafeNameChars matches everything not allowed in a stored file name.
var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Opts holds configuration options for the renderer.
type Opts struct {
	// OutputDir is the directory documents are written to.
	OutputDir string
	// LineWidth is the wrap width; zero means DefaultLineWidth.
	LineWidth int
}

// Option configures renderer creation.
type Option func(*Opts)

// WithOutputDir sets the directory generated documents are written to.
func WithOutputDir(dir string) Option {
	return func(o *Opts) { o.OutputDir = dir }
}

// WithLineWidth sets the wrap width for stored text.
func WithLineWidth(width int) Option {
	return func(o *Opts) { o.LineWidth = width }
}

// Renderer writes wrapped document text to the output directory.
type Renderer struct {
	outputDir string
	lineWidth int
}

// NewRenderer creates a renderer and ensures the output directory exists.
func NewRenderer(opts ...Option) (*Renderer, error) {
	cfg := Opts{OutputDir: DefaultOutputDir, LineWidth: DefaultLineWidth}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = DefaultLineWidth
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		slog.Error("Renderer.NewRenderer: failed to create output directory", "error", err, "dir", cfg.OutputDir)
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Renderer{outputDir: cfg.OutputDir, lineWidth: cfg.LineWidth}, nil
}

// OutputDir returns the directory documents are written to.
func (r *Renderer) OutputDir() string {
	return r.outputDir
}

// Render wraps the document text and writes it under a unique file name. The
// returned path is relative to the output directory's parent, suitable for
// handing to the file-serving endpoint.
func (r *Renderer) Render(documentType, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("document text must not be empty")
	}

	fileName := fmt.Sprintf("%s_%s.txt", safeFileName(documentType), uuid.New().String())
	fullPath := filepath.Join(r.outputDir, fileName)

	wrapped := WrapText(text, r.lineWidth)
	if err := os.WriteFile(fullPath, []byte(wrapped), DefaultFilePermissions); err != nil {
		slog.Error("Renderer.Render: failed to write document", "error", err, "path", fullPath)
		return "", fmt.Errorf("failed to write document: %w", err)
	}

	slog.Info("Renderer.Render: document stored", "documentType", documentType, "path", fullPath, "bytes", len(wrapped))
	return filepath.ToSlash(filepath.Join(filepath.Base(r.outputDir), fileName)), nil
}

// safeFileName folds Turkish letters to ASCII and replaces anything else
// unsafe with underscores. An empty or fully unsafe input becomes "belge".
func safeFileName(name string) string {
	folded := turkishFold.Replace(strings.TrimSpace(name))
	safe := unsafeNameChars.ReplaceAllString(folded, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "belge"
	}
	return safe
}

// WrapText greedily wraps text to the given width. Existing line breaks are
// kept; words longer than the width are hard-split rather than overflowing.
func WrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out strings.Builder
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(wrapLine(line, width))
	}
	return out.String()
}

func wrapLine(line string, width int) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return line
	}

	var out strings.Builder
	current := 0
	for _, word := range words {
		runes := []rune(word)
		for len(runes) > width {
			if current > 0 {
				out.WriteByte('\n')
				current = 0
			}
			out.WriteString(string(runes[:width]))
			out.WriteByte('\n')
			runes = runes[width:]
		}
		word = string(runes)
		wordLen := len(runes)
		switch {
		case current == 0:
			out.WriteString(word)
			current = wordLen
		case current+1+wordLen <= width:
			out.WriteByte(' ')
			out.WriteString(word)
			current += 1 + wordLen
		default:
			out.WriteByte('\n')
			out.WriteString(word)
			current = wordLen
		}
	}
	return out.String()
}
