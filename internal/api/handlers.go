package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Aman-CERP/amandrive/internal/async"
	"github.com/Aman-CERP/amandrive/internal/extract"
	"github.com/Aman-CERP/amandrive/internal/index"
	"github.com/Aman-CERP/amandrive/internal/search"
)

// maxBodyBytes caps notification request bodies.
const maxBodyBytes = 1 << 20

// idsRequest is the body of the changed and deleted notifications.
type idsRequest struct {
	IDs []string `json:"ids"`
}

// purgeRequest is the body of the owner purge notification.
type purgeRequest struct {
	OwnerID string `json:"ownerId"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseSearchRequest reads the search parameters from the query string.
// An unknown sort field falls back to relevance; a malformed number or
// boolean is rejected. A missing owner is passed through and finds nothing.
func parseSearchRequest(r *http.Request) (search.Request, error) {
	q := r.URL.Query()
	req := search.Request{
		OwnerID:    strings.TrimSpace(q.Get("ownerId")),
		Keyword:    q.Get("keyword"),
		PathPrefix: q.Get("pathPrefix"),
		SortField:  search.ParseSortField(q.Get("sortField")),
		Descending: search.IsDescending(q.Get("sortDirection")),
	}
	if c := q.Get("category"); c != "" {
		cat, ok := extract.ParseCategory(c)
		if !ok {
			return req, fmt.Errorf("unknown category %q", c)
		}
		req.Category = string(cat)
	}

	var err error
	if req.IsFolder, err = optionalBool(q.Get("isFolder"), "isFolder"); err != nil {
		return req, err
	}
	if req.IsFavorite, err = optionalBool(q.Get("isFavorite"), "isFavorite"); err != nil {
		return req, err
	}
	if req.Page, err = optionalInt(q.Get("page"), "page"); err != nil {
		return req, err
	}
	if req.PageSize, err = optionalInt(q.Get("pageSize"), "pageSize"); err != nil {
		return req, err
	}
	return req, nil
}

func optionalBool(v, name string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false, got %q", name, v)
	}
	return &b, nil
}

func optionalInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}

func (h *Handler) handleChanged(w http.ResponseWriter, r *http.Request) {
	var body idsRequest
	if !h.decode(w, r, &body) {
		return
	}
	if len(body.IDs) == 0 {
		h.badRequest(w, r, "ids must not be empty")
		return
	}
	queued, err := h.svc.NotifyChanged(r.Context(), body.IDs...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (h *Handler) handleDeleted(w http.ResponseWriter, r *http.Request) {
	var body idsRequest
	if !h.decode(w, r, &body) {
		return
	}
	if len(body.IDs) == 0 {
		h.badRequest(w, r, "ids must not be empty")
		return
	}
	if err := h.svc.NotifyDeleted(r.Context(), body.IDs...); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	var body purgeRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.svc.NotifyOwnerPurged(r.Context(), strings.TrimSpace(body.OwnerID)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStartReindex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.StartReindex(r.Context()); err != nil {
		if errors.Is(err, async.ErrRunning) {
			writeJSON(w, http.StatusConflict, h.svc.ReindexProgress())
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.svc.ReindexProgress())
}

func (h *Handler) handleReindexStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ReindexProgress())
}

func (h *Handler) handleConsistency(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.CheckConsistency(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consistent": ok})
}

// AuditReport is the JSON form of an audit.
type AuditReport struct {
	Consistent bool     `json:"consistent"`
	Indexed    int      `json:"indexed"`
	Stored     int      `json:"stored"`
	Orphans    []string `json:"orphans"`
	Missing    []string `json:"missing"`
	DurationMS int64    `json:"durationMs"`
}

// NewAuditReport converts an audit result for output.
func NewAuditReport(res *index.AuditResult) AuditReport {
	r := AuditReport{
		Consistent: res.Consistent(),
		Indexed:    res.Indexed,
		Stored:     res.Stored,
		Orphans:    res.Orphans,
		Missing:    res.Missing,
		DurationMS: res.Duration.Milliseconds(),
	}
	if r.Orphans == nil {
		r.Orphans = []string{}
	}
	if r.Missing == nil {
		r.Missing = []string{}
	}
	return r
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Audit(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewAuditReport(res))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if _, err := h.svc.Stats(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "fail", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v, answering 400 when it cannot.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.badRequest(w, r, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}
