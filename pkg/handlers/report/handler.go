package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/de-tools/variance-atlas/pkg/adapters"
	"github.com/de-tools/variance-atlas/pkg/models/api"
	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/models/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Service is the commentary workflow exposed over HTTP.
type Service interface {
	Reports() []domain.Report
	Periods(ctx context.Context, report string) (domain.PeriodSet, error)
	Summary(ctx context.Context, report string) (domain.SummaryTable, error)
	Attribute(ctx context.Context, report string, selections []domain.Selection, columns []string, topN int) ([]domain.Attribution, error)
	GenerateInitial(ctx context.Context, report string, hint []domain.Selection) (domain.Commentary, error)
	Refresh(ctx context.Context, report string, selections []domain.Selection, columns []string, topN int) (domain.Commentary, error)
	Modify(ctx context.Context, instruction, current string, selections []domain.Selection) (string, error)
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

// RunLister lists ledger ingestion runs.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]store.IngestRun, error)
}

type Handler struct {
	svc  Service
	runs RunLister
}

func NewHandler(svc Service, runs RunLister) *Handler {
	return &Handler{svc: svc, runs: runs}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, api.Health{Status: "ok"})
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports := h.svc.Reports()
	response := make([]api.Report, 0, len(reports))
	for _, rep := range reports {
		response = append(response, adapters.MapDomainReportToAPI(rep))
	}
	writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *Handler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	periods, err := h.svc.Periods(ctx, chi.URLParam(r, "report"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainPeriodsToAPI(periods))
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table, err := h.svc.Summary(ctx, chi.URLParam(r, "report"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainSummaryToAPI(table))
}

func (h *Handler) Attribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.AttributionRequest
	if !decode(w, r, &req) {
		return
	}

	attributions, err := h.svc.Attribute(ctx, chi.URLParam(r, "report"),
		adapters.MapAPISelectionsToDomain(req.Selections), req.ContributingColumns, req.TopN)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainAttributionsToAPI(attributions))
}

func (h *Handler) GenerateCommentary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.CommentaryRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	commentary, err := h.svc.GenerateInitial(ctx, chi.URLParam(r, "report"), adapters.MapAPISelectionsToDomain(req.Selections))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainCommentaryToAPI(commentary))
}

func (h *Handler) RefreshCommentary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.AttributionRequest
	if !decode(w, r, &req) {
		return
	}

	commentary, err := h.svc.Refresh(ctx, chi.URLParam(r, "report"),
		adapters.MapAPISelectionsToDomain(req.Selections), req.ContributingColumns, req.TopN)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainCommentaryToAPI(commentary))
}

func (h *Handler) ModifyCommentary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.ModifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Instruction == "" {
		writeJSON(ctx, w, http.StatusBadRequest, api.Error{Error: "instruction is required"})
		return
	}

	text, err := h.svc.Modify(ctx, req.Instruction, req.Commentary, adapters.MapAPISelectionsToDomain(req.Selections))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, api.ModifyResponse{Text: text})
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.AskRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Question == "" {
		writeJSON(ctx, w, http.StatusBadRequest, api.Error{Error: "question is required"})
		return
	}

	answer, err := h.svc.Ask(ctx, req.Question)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainAnswerToAPI(answer))
}

func (h *Handler) ListIngestRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.runs == nil {
		writeJSON(ctx, w, http.StatusNotFound, api.Error{Error: "ingestion is not configured"})
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(ctx, w, http.StatusBadRequest, api.Error{Error: fmt.Sprintf("invalid limit %q", s)})
			return
		}
		limit = n
	}

	runs, err := h.runs.Runs(ctx, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	response := make([]api.IngestRun, 0, len(runs))
	for _, run := range runs {
		response = append(response, adapters.MapStoreIngestRunToAPI(run))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

// StatusCode maps domain errors to HTTP statuses.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownComparisonType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQueryExecution), errors.Is(err, domain.ErrFormatting):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := StatusCode(err)
	event := zerolog.Ctx(ctx).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(ctx).Error()
	}
	event.Err(err).Int("status", status).Msg("request failed")
	writeJSON(ctx, w, status, api.Error{Error: err.Error()})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(r.Context(), w, http.StatusBadRequest, api.Error{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(r.Context(), w, http.StatusBadRequest, api.Error{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}
