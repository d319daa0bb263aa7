package api

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openquiz/quizmaster-api/internal/api/shared"
)

// ArtifactHandler serves generated report files for download. Filenames
// are opaque tokens handed out in task results, never client-constructed
// paths.
type ArtifactHandler struct {
	exportDir string
	logger    *slog.Logger
}

// NewArtifactHandler creates an artifact handler serving files from
// exportDir. If logger is nil, slog.Default() is used.
func NewArtifactHandler(exportDir string, logger *slog.Logger) *ArtifactHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactHandler{
		exportDir: exportDir,
		logger:    logger.With(slog.String("component", "artifact_handler")),
	}
}

// validArtifactName rejects anything that could escape the export
// directory. The name must be a bare filename with no separators and no
// parent references.
func validArtifactName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}

// GetArtifact handles GET /artifacts/{filename}. It streams the file as
// an attachment or responds 404 when no such artifact exists.
func (h *ArtifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(slog.String("trace_id", shared.GetTraceID(r.Context())))

	name := chi.URLParam(r, "filename")
	if !validArtifactName(name) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid artifact name")
		return
	}

	f, err := os.Open(filepath.Join(h.exportDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Artifact not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to read artifact", err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn("failed to close artifact file", slog.String("error", closeErr.Error()))
		}
	}()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, f); err != nil {
		// Headers are already written; all we can do is log.
		log.Warn("artifact stream interrupted",
			slog.String("filename", name),
			slog.String("error", err.Error()))
	}
}
