package handler

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-livestats/internal/api/respond"
	"github.com/albapepper/cricket-livestats/internal/crud"
)

const maxBody = 64 << 10

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (crud.Input, bool) {
	var in crud.Input
	dec := sonic.ConfigStd.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		respond.Error(w, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON record")
		return in, false
	}
	return in, true
}

func (h *Handler) crudError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crud.ErrInvalid):
		respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, crud.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "record not found")
	default:
		h.logger.Error("crud_info request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "DB_ERROR", "database request failed")
	}
}

// ListRecords lists crud_info records.
// @Summary List records
// @Tags crud
// @Produce json
// @Param search query string false "Case-insensitive name filter"
// @Success 200 {array} crud.Record
// @Router /api/v1/crud/players [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.crud.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.crudError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, recs)
}

// CreateRecord adds a crud_info record.
// @Summary Create record
// @Tags crud
// @Accept json
// @Produce json
// @Param record body crud.Input true "Record"
// @Success 201 {object} crud.Record
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/crud/players [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	rec, err := h.crud.Create(r.Context(), in)
	if err != nil {
		h.crudError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, rec)
}

// GetRecord returns one crud_info record.
// @Summary Get record
// @Tags crud
// @Produce json
// @Param id path int true "Record id"
// @Success 200 {object} crud.Record
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/crud/players/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.crud.Get(r.Context(), id)
	if err != nil {
		h.crudError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

// UpdateRecord replaces a crud_info record.
// @Summary Update record
// @Tags crud
// @Accept json
// @Produce json
// @Param id path int true "Record id"
// @Param record body crud.Input true "Record"
// @Success 200 {object} crud.Record
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/crud/players/{id} [put]
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	rec, err := h.crud.Update(r.Context(), id, in)
	if err != nil {
		h.crudError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

// DeleteRecord removes a crud_info record.
// @Summary Delete record
// @Tags crud
// @Param id path int true "Record id"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/crud/players/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.crud.Delete(r.Context(), id); err != nil {
		h.crudError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
