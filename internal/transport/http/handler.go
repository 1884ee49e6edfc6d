package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quran-video-service/internal/entity"
	"quran-video-service/internal/repository/postgresql"
	"quran-video-service/internal/service"
	"quran-video-service/internal/validation"
)

type Handler struct {
	jobSvc *service.JobService
}

func NewHandler(jobSvc *service.JobService) *Handler {
	return &Handler{jobSvc: jobSvc}
}

type createJobDTO struct {
	Chapter     int    `json:"chapter"`
	StartVerse  int    `json:"start_verse"`
	EndVerse    int    `json:"end_verse"`
	Narrator    string `json:"narrator"`
	Translation string `json:"translation"`
	Background  string `json:"background"`
	OutputName  string `json:"output_name,omitempty"`
}

type createJobResp struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type jobResp struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	Chapter       int    `json:"chapter"`
	StartVerse    int    `json:"start_verse"`
	EndVerse      int    `json:"end_verse"`
	Narrator      string `json:"narrator"`
	Translation   string `json:"translation"`
	Background    string `json:"background"`
	Detail        string `json:"detail,omitempty"`
	OutputPath    string `json:"output_path,omitempty"`
	FailureStage  string `json:"failure_stage,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	StartedAt     string `json:"started_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// CreateJob godoc
// @Summary Submit a verse-video generation job
// @Description Validates the verse range and identifiers, persists a queued job and schedules it for background processing.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "generation request"
// @Success 201 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := h.jobSvc.Submit(r.Context(), entity.GenerationRequest{
		Range: entity.VerseRange{
			Chapter:    dto.Chapter,
			StartVerse: dto.StartVerse,
			EndVerse:   dto.EndVerse,
		},
		NarratorID:  dto.Narrator,
		Translation: dto.Translation,
		Background:  dto.Background,
		OutputName:  dto.OutputName,
	})
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, apiError{
				Error:   string(verr.Kind),
				Message: verr.Message,
				Details: verr.Details,
			})
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	writeJSON(w, http.StatusCreated, createJobResp{ID: id.String(), State: string(entity.StateQueued)})
}

// GetJob godoc
// @Summary Get job status by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	j, err := h.jobSvc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, toJobResp(j))
}

// GetJobResult godoc
// @Summary Get the output location of a completed job
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} map[string]string
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/result [get]
func (h *Handler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	j, err := h.jobSvc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if j.State != entity.StateCompleted {
		writeErr(w, http.StatusConflict, "job not completed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"output_path": j.OutputPath})
}

// CancelJob godoc
// @Summary Request cancellation of a queued or processing job
// @Description Cancellation is cooperative: the pipeline observes the flag between stages.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 202 {object} map[string]string
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id} [delete]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.jobSvc.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, postgresql.ErrNotFound):
			writeErr(w, http.StatusNotFound, "job not found")
		case errors.Is(err, postgresql.ErrInvalidTransition):
			writeErr(w, http.StatusConflict, "job already terminal")
		default:
			writeErr(w, http.StatusInternalServerError, "failed to cancel job")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id.String(), "state": "cancelling"})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func toJobResp(j *entity.Job) jobResp {
	resp := jobResp{
		ID:            j.ID.String(),
		State:         string(j.State),
		Chapter:       j.Request.Range.Chapter,
		StartVerse:    j.Request.Range.StartVerse,
		EndVerse:      j.Request.Range.EndVerse,
		Narrator:      j.Request.NarratorID,
		Translation:   j.Request.Translation,
		Background:    j.Request.Background,
		Detail:        j.Detail,
		OutputPath:    j.OutputPath,
		FailureStage:  string(j.FailureStage),
		FailureDetail: j.FailureDetail,
		CreatedAt:     j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     j.UpdatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
