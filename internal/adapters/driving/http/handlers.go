package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
)

// maxRequestBytes guards the transport; the document service enforces
// the actual document size cap.
const maxRequestBytes = 11 << 20

// Stable error codes returned in error bodies. Part of the external
// contract; do not rename.
const (
	codeDocumentNotFound = "document_not_found"
	codeVersionNotFound  = "version_not_found"
	codeJobNotFound      = "job_not_found"
	codeNotFound         = "not_found"
	codePatchNotReady    = "patch_not_ready"
	codeInvalidState     = "invalid_state"
	codeValidationFailed = "validation_failed"
	codeInvalidProvider  = "invalid_provider"
	codeChecksumMismatch = "checksum_mismatch"
	codeStorage          = "storage_error"
	codeUnavailable      = "service_unavailable"
	codeInternal         = "internal_error"
)

// ErrorBody carries the machine-readable code and human-readable message
// of a failed request.
type ErrorBody struct {
	Code    string `json:"code" example:"document_not_found"`
	Message string `json:"message" example:"document not found"`
}

// ErrorResponse is the envelope every failed request returns.
// @Description Error envelope with a stable code and a human-readable message
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// StatusResponse acknowledges an operation with a single status word.
// @Description Bare status acknowledgement
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// Health endpoints

// ComponentHealth reports one dependency's health.
type ComponentHealth struct {
	Status string `json:"status" example:"healthy"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse aggregates per-component health.
// @Description Service health with per-component status
type HealthResponse struct {
	Status     string                     `json:"status" example:"healthy"`
	Version    string                     `json:"version" example:"1.0.0"`
	Components map[string]ComponentHealth `json:"components"`
}

// handleHealth godoc
// @Summary      Service health
// @Description  Returns the health of the API and its backing stores. Always answers 200: degraded means a dependency is down but the API itself is up.
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]ComponentHealth{
		"server": {Status: "healthy"},
	}
	degraded := false

	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			components[name] = ComponentHealth{Status: "unhealthy", Error: err.Error()}
			degraded = true
			return
		}
		components[name] = ComponentHealth{Status: "healthy"}
	}

	check("database", s.db)
	check("redis", s.redisClient)
	check("content_store", s.contentStore)
	check("queue", s.taskQueue)

	status := "healthy"
	if degraded {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Version:    s.version,
		Components: components,
	})
}

// handleVersion godoc
// @Summary      Build version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Document endpoints

// handleUploadDocument godoc
// @Summary      Upload document
// @Description  Create a document whose content becomes version 1. Accepts JSON {name, content} or a raw text body with the name in the query string.
// @Tags         Documents
// @Accept       json
// @Produce      json
// @Param        request  body      driving.UploadDocumentRequest  true  "Document name and content"
// @Success      201      {object}  domain.Document
// @Failure      400      {object}  ErrorResponse  "Invalid input"
// @Failure      500      {object}  ErrorResponse  "Internal server error"
// @Router       /documents [post]
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req driving.UploadDocumentRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid request body")
			return
		}
	} else {
		// Raw text upload: the body is the document, the name rides in
		// the query string.
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "could not read request body")
			return
		}
		req.Name = r.URL.Query().Get("name")
		req.Content = string(body)
		req.ContentType = r.Header.Get("Content-Type")
	}

	doc, err := s.documentService.Upload(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// documentListResponse is a page of documents plus the unpaged total.
type documentListResponse struct {
	Documents []*domain.Document `json:"documents"`
	Total     int                `json:"total"`
}

// handleListDocuments godoc
// @Summary      List documents
// @Tags         Documents
// @Produce      json
// @Param        limit   query     int  false  "Page size (default 50)"
// @Param        offset  query     int  false  "Page offset"
// @Success      200     {object}  documentListResponse
// @Failure      500     {object}  ErrorResponse  "Internal server error"
// @Router       /documents [get]
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, total, err := s.documentService.List(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if docs == nil {
		docs = []*domain.Document{}
	}

	writeJSON(w, http.StatusOK, documentListResponse{Documents: docs, Total: total})
}

// handleGetDocument godoc
// @Summary      Get document
// @Tags         Documents
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  domain.Document
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [get]
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documentService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument godoc
// @Summary      Delete document
// @Description  Remove a document, its version history and the stored snapshots.
// @Tags         Documents
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  StatusResponse
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [delete]
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documentService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Version history endpoints

// versionListResponse is a page of version summaries, newest first.
type versionListResponse struct {
	Versions []*domain.VersionSummary `json:"versions"`
	Total    int                      `json:"total"`
}

// handleListVersions godoc
// @Summary      List versions
// @Description  List a document's version history, newest first.
// @Tags         Versions
// @Produce      json
// @Param        id      path      string  true   "Document ID"
// @Param        limit   query     int     false  "Page size (default 50)"
// @Param        offset  query     int     false  "Page offset"
// @Success      200     {object}  versionListResponse
// @Failure      404     {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id}/versions [get]
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, total, err := s.documentService.ListVersions(r.Context(), r.PathValue("id"),
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if versions == nil {
		versions = []*domain.VersionSummary{}
	}

	writeJSON(w, http.StatusOK, versionListResponse{Versions: versions, Total: total})
}

// versionContentResponse is a version's metadata plus its full content.
type versionContentResponse struct {
	*domain.Version
	Content string `json:"content"`
}

// renderedVersionResponse is a version rendered as tracked changes
// against its predecessor.
type renderedVersionResponse struct {
	DocumentID string               `json:"document_id"`
	Number     int                  `json:"number"`
	Format     driving.RenderFormat `json:"format"`
	Rendered   string               `json:"rendered"`
}

// handleGetVersion godoc
// @Summary      Get version
// @Description  Get one version's content. With ?render=html|inline|clean the changes are rendered relative to the preceding version.
// @Tags         Versions
// @Produce      json
// @Param        id      path      string  true   "Document ID"
// @Param        number  path      int     true   "Version number"
// @Param        render  query     string  false  "Render format"  Enums(html, inline, clean)
// @Success      200     {object}  versionContentResponse
// @Failure      400     {object}  ErrorResponse  "Bad version number or render format"
// @Failure      404     {object}  ErrorResponse  "Document or version not found"
// @Router       /documents/{id}/versions/{number} [get]
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number < 1 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "version number must be a positive integer")
		return
	}

	if render := r.URL.Query().Get("render"); render != "" {
		format := driving.RenderFormat(render)
		rendered, err := s.documentService.RenderVersion(r.Context(), id, number, format)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, renderedVersionResponse{
			DocumentID: id,
			Number:     number,
			Format:     format,
			Rendered:   rendered,
		})
		return
	}

	version, snapshot, err := s.documentService.GetVersionContent(r.Context(), id, number)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, versionContentResponse{Version: version, Content: snapshot.Content()})
}

// Edit job endpoints

// submitEditBody is the POST /documents/{id}/edits payload.
type submitEditBody struct {
	Instruction string `json:"instruction" example:"Change the company name to TechCorp Industries"`
	BaseVersion int    `json:"base_version,omitempty" example:"3"`
}

// handleSubmitEdit godoc
// @Summary      Submit edit instruction
// @Description  Queue a natural-language edit against a document. The patch is generated asynchronously; poll the returned job.
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        id       path      string          true  "Document ID"
// @Param        request  body      submitEditBody  true  "Edit instruction"
// @Success      202      {object}  domain.EditJob
// @Failure      400      {object}  ErrorResponse  "Invalid input"
// @Failure      404      {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id}/edits [post]
func (s *Server) handleSubmitEdit(w http.ResponseWriter, r *http.Request) {
	var body submitEditBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid request body")
		return
	}

	job, err := s.jobService.Submit(r.Context(), driving.SubmitEditRequest{
		DocumentID:  r.PathValue("id"),
		Instruction: body.Instruction,
		BaseVersion: body.BaseVersion,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// jobListResponse is the filtered job listing, newest first.
type jobListResponse struct {
	Jobs []*domain.EditJob `json:"jobs"`
}

// handleListJobs godoc
// @Summary      List jobs
// @Tags         Jobs
// @Produce      json
// @Param        document_id  query     string  false  "Filter by document"
// @Param        status       query     string  false  "Filter by status"  Enums(queued, generating, patch_ready, applying, applied, rejected, failed)
// @Param        limit        query     int     false  "Page size (default 50)"
// @Param        offset       query     int     false  "Page offset"
// @Success      200          {object}  jobListResponse
// @Failure      400          {object}  ErrorResponse  "Unknown status"
// @Router       /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := domain.JobFilter{
		DocumentID: r.URL.Query().Get("document_id"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		jobStatus := domain.JobStatus(status)
		if !jobStatus.IsValid() {
			writeError(w, http.StatusBadRequest, codeValidationFailed, fmt.Sprintf("unknown job status %q", status))
			return
		}
		filter.Status = jobStatus
	}

	jobs, err := s.jobService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*domain.EditJob{}
	}

	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs})
}

// handleGetJob godoc
// @Summary      Get job
// @Tags         Jobs
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  domain.EditJob
// @Failure      404  {object}  ErrorResponse  "Job not found"
// @Router       /jobs/{id} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handlePreviewJob godoc
// @Summary      Preview pending patch
// @Description  Render a patch_ready job's patch against its base version without touching the document.
// @Tags         Jobs
// @Produce      json
// @Param        id      path      string  true   "Job ID"
// @Param        format  query     string  false  "Render format (default html)"  Enums(html, inline, clean)
// @Success      200     {object}  driving.PatchPreview
// @Failure      404     {object}  ErrorResponse  "Job not found"
// @Failure      409     {object}  ErrorResponse  "Patch not ready"
// @Router       /jobs/{id}/preview [get]
func (s *Server) handlePreviewJob(w http.ResponseWriter, r *http.Request) {
	format := driving.RenderFormat(r.URL.Query().Get("format"))

	preview, err := s.jobService.Preview(r.Context(), r.PathValue("id"), format)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// handleApplyJob godoc
// @Summary      Apply pending patch
// @Description  Re-validate the pending patch against the document head and append the result as a new version.
// @Tags         Jobs
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  driving.ApplyResult
// @Failure      404  {object}  ErrorResponse  "Job not found"
// @Failure      409  {object}  ErrorResponse  "Patch not ready, double apply, or document moved"
// @Router       /jobs/{id}/apply [post]
func (s *Server) handleApplyJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.jobService.Apply(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// rejectBody is the optional POST /jobs/{id}/reject payload.
type rejectBody struct {
	Reason string `json:"reason,omitempty" example:"wrong clause targeted"`
}

// handleRejectJob godoc
// @Summary      Reject pending patch
// @Description  Discard a patch_ready job's patch. The document is untouched.
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        id       path      string      true   "Job ID"
// @Param        request  body      rejectBody  false  "Rejection reason"
// @Success      200      {object}  domain.EditJob
// @Failure      404      {object}  ErrorResponse  "Job not found"
// @Failure      409      {object}  ErrorResponse  "Job is not patch_ready"
// @Router       /jobs/{id}/reject [post]
func (s *Server) handleRejectJob(w http.ResponseWriter, r *http.Request) {
	var body rejectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid request body")
		return
	}

	job, err := s.jobService.Reject(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob godoc
// @Summary      Cancel job
// @Description  Abort a job that has not produced a patch yet (queued or generating).
// @Tags         Jobs
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  domain.EditJob
// @Failure      404  {object}  ErrorResponse  "Job not found"
// @Failure      409  {object}  ErrorResponse  "Job already finished or past cancellation"
// @Router       /jobs/{id}/cancel [post]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobService.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// Queue stats endpoint

// queueStatsResponse pairs task queue counters with job states so one
// call answers whether the pipeline is moving.
type queueStatsResponse struct {
	Tasks *driven.QueueStats       `json:"tasks"`
	Jobs  map[domain.JobStatus]int `json:"jobs"`
}

// handleQueueStats godoc
// @Summary      Queue statistics
// @Tags         Queue
// @Produce      json
// @Success      200  {object}  queueStatsResponse
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /queue/stats [get]
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.taskQueue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to read queue stats")
		return
	}

	jobs, err := s.jobService.CountByStatus(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queueStatsResponse{Tasks: stats, Jobs: jobs})
}

// Settings endpoints

// collaboratorInfo is the masked view of collaborator settings. The API
// key itself never leaves the server.
type collaboratorInfo struct {
	Provider       domain.CollaboratorProvider `json:"provider,omitempty" example:"openai"`
	Model          string                      `json:"model,omitempty" example:"gpt-4o-mini"`
	BaseURL        string                      `json:"base_url,omitempty"`
	HasAPIKey      bool                        `json:"has_api_key" example:"true"`
	IsConfigured   bool                        `json:"is_configured" example:"true"`
	Temperature    float32                     `json:"temperature"`
	MaxTokens      int                         `json:"max_tokens"`
	TimeoutSeconds int                         `json:"timeout_seconds"`
	MaxRetries     int                         `json:"max_retries"`
}

// settingsResponse is the engine settings with the collaborator key masked.
type settingsResponse struct {
	DiffGranularity  domain.DiffGranularity `json:"diff_granularity"`
	StrictMatch      bool                   `json:"strict_match"`
	EditAuthor       string                 `json:"edit_author"`
	JobRetentionDays int                    `json:"job_retention_days"`
	Collaborator     collaboratorInfo       `json:"collaborator"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func maskSettings(settings *domain.EngineSettings) settingsResponse {
	collab := settings.Collaborator
	return settingsResponse{
		DiffGranularity:  settings.DiffGranularity,
		StrictMatch:      settings.StrictMatch,
		EditAuthor:       settings.EditAuthor,
		JobRetentionDays: settings.JobRetentionDays,
		Collaborator: collaboratorInfo{
			Provider:       collab.Provider,
			Model:          collab.Model,
			BaseURL:        collab.BaseURL,
			HasAPIKey:      collab.APIKey != "",
			IsConfigured:   collab.IsConfigured(),
			Temperature:    collab.Temperature,
			MaxTokens:      collab.MaxTokens,
			TimeoutSeconds: collab.TimeoutSeconds,
			MaxRetries:     collab.MaxRetries,
		},
		UpdatedAt: settings.UpdatedAt,
	}
}

// handleGetSettings godoc
// @Summary      Read engine settings
// @Description  Get engine settings. The collaborator API key is masked.
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  settingsResponse
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /settings [get]
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settingsService.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to get settings")
		return
	}

	writeJSON(w, http.StatusOK, maskSettings(settings))
}

// handleUpdateSettings godoc
// @Summary      Change engine settings
// @Description  Update engine settings. Absent fields are left unchanged.
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Param        request  body      driving.UpdateSettingsRequest  true  "Settings fields to change"
// @Success      200      {object}  settingsResponse
// @Failure      400      {object}  ErrorResponse  "Invalid settings"
// @Router       /settings [put]
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req driving.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid request body")
		return
	}

	settings, err := s.settingsService.Update(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, maskSettings(settings))
}

// handleGetCollaboratorStatus godoc
// @Summary      Get collaborator status
// @Description  Report which model collaborator is live, without its key.
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  driving.CollaboratorStatus
// @Router       /settings/collaborator [get]
func (s *Server) handleGetCollaboratorStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.settingsService.GetCollaboratorStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to get collaborator status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleUpdateCollaborator godoc
// @Summary      Update collaborator
// @Description  Reconfigure the model collaborator and hot-swap it. The api_key is write-only: an empty key keeps the stored one.
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Param        request  body      driving.UpdateCollaboratorRequest  true  "Collaborator configuration"
// @Success      200      {object}  driving.CollaboratorStatus
// @Failure      400      {object}  ErrorResponse  "Unsupported provider or bad configuration"
// @Router       /settings/collaborator [put]
func (s *Server) handleUpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	var req driving.UpdateCollaboratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "invalid request body")
		return
	}

	status, err := s.settingsService.UpdateCollaborator(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleTestCollaborator godoc
// @Summary      Test collaborator connection
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "Collaborator unreachable"
// @Router       /settings/collaborator/test [post]
func (s *Server) handleTestCollaborator(w http.ResponseWriter, r *http.Request) {
	if err := s.settingsService.TestCollaborator(r.Context()); err != nil {
		code := codeUnavailable
		var collabErr *domain.CollaboratorError
		if errors.As(err, &collabErr) {
			code = domain.FailureCode(err)
		}
		writeError(w, http.StatusServiceUnavailable, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// Response plumbing

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeServiceError translates a domain error into its HTTP status and
// stable error code. Unknown errors collapse into a generic 500 so
// internals do not leak.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var storageErr *domain.StorageError

	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, codeDocumentNotFound, "document not found")
	case errors.Is(err, domain.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, codeVersionNotFound, err.Error())
	case errors.Is(err, domain.ErrJobNotFound):
		writeError(w, http.StatusNotFound, codeJobNotFound, "job not found")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, domain.ErrPatchNotReady):
		writeError(w, http.StatusConflict, codePatchNotReady, err.Error())
	case errors.Is(err, domain.ErrJobFinished), errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, codeInvalidState, err.Error())
	case errors.Is(err, domain.ErrInvalidProvider):
		writeError(w, http.StatusBadRequest, codeInvalidProvider, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	case errors.Is(err, domain.ErrChecksumMismatch):
		writeError(w, http.StatusInternalServerError, codeChecksumMismatch, "stored content failed checksum verification")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
	case errors.As(err, &validationErr):
		// An apply that lost to a moved head: the job is failed, the
		// document untouched.
		writeError(w, http.StatusConflict, domain.FailureCode(err), validationErr.Error())
	case errors.As(err, &storageErr):
		writeError(w, http.StatusInternalServerError, codeStorage, "storage operation failed")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// queryInt parses an integer query parameter, falling back to def on
// absence or garbage. Range clamping lives in the services.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
