package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// RecordResponse is the response body for a content record
type RecordResponse struct {
	ID        string                 `json:"id"`
	Table     string                 `json:"table"`
	Fields    map[string]interface{} `json:"fields"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SaveRecordBody is the JSON request body for creating or updating a record.
// Multipart requests carry the same values as form fields ("fields" holding
// the JSON object) plus an optional "file" part.
type SaveRecordBody struct {
	Fields    map[string]interface{} `json:"fields"`
	Clear     bool                   `json:"clear"`
	ManualURL string                 `json:"manual_url"`
}

func toRecordResponse(rec *portfolio.Record) RecordResponse {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return RecordResponse{
		ID:        rec.ID.String(),
		Table:     rec.Table,
		Fields:    fields,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toRecordResponses(records []*portfolio.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

// ListRecords lists every record of a table
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListRecords(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, toRecordResponses(records))
}

// GetRecord returns one record
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rec, err := h.service.GetRecord(r.Context(), chi.URLParam(r, "table"), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, toRecordResponse(rec))
}

// CreateRecord creates a record, uploading its asset when one is supplied
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := h.parseSave(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer cleanup()

	rec, err := h.service.CreateRecord(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toRecordResponse(rec))
}

// UpdateRecord updates a record and reconciles its asset
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req, cleanup, err := h.parseSave(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer cleanup()
	req.ID = id

	rec, err := h.service.UpdateRecord(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, toRecordResponse(rec))
}

// DeleteRecord deletes a record and its managed asset
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	err = h.service.DeleteRecord(r.Context(), portfolio.DeleteRecordRequest{
		Table:   chi.URLParam(r, "table"),
		ID:      id,
		Session: sessionFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListActivity returns the newest activity log entries
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, h.logger, portfolio.Validationf("invalid limit %q", v))
			return
		}
		limit = n
	}

	entries, err := h.service.ListActivity(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*portfolio.ActivityLogEntry{}
	}
	render.JSON(w, r, entries)
}

func recordID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, portfolio.Validationf("invalid record id %q", raw)
	}
	return id, nil
}

// parseSave reads a save request from a JSON or multipart body. cleanup
// releases the uploaded file and must be called once the save is done.
func (h *Handler) parseSave(w http.ResponseWriter, r *http.Request) (portfolio.SaveRecordRequest, func(), error) {
	req := portfolio.SaveRecordRequest{
		Table:   chi.URLParam(r, "table"),
		Session: sessionFrom(r.Context()),
	}
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body SaveRecordBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return req, noop, portfolio.Validationf("invalid request body: %v", err)
		}
		req.Fields = body.Fields
		req.Asset = portfolio.AssetInput{Cleared: body.Clear, ManualURL: body.ManualURL}
		return req, noop, nil
	}

	if err := r.ParseMultipartForm(maxRequestBody); err != nil {
		return req, noop, portfolio.Validationf("invalid multipart body: %v", err)
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	if raw := r.FormValue("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Fields); err != nil {
			cleanup()
			return req, noop, portfolio.Validationf("fields must be a JSON object: %v", err)
		}
	}
	if raw := r.FormValue("clear"); raw != "" {
		cleared, err := strconv.ParseBool(raw)
		if err != nil {
			cleanup()
			return req, noop, portfolio.Validationf("invalid clear flag %q", raw)
		}
		req.Asset.Cleared = cleared
	}
	req.Asset.ManualURL = r.FormValue("manual_url")

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, cleanup, nil
	case err != nil:
		cleanup()
		return req, noop, portfolio.Validationf("invalid file part: %v", err)
	}
	req.Asset.File = &portfolio.AssetFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
	return req, func() {
		_ = file.Close()
		cleanup()
	}, nil
}
