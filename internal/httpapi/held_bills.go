package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"billease/backend/internal/domain"
)

func (a *API) handleHeldBills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	items, err := a.service.ListHeldBills(r.Context(), query.Get("store_id"), query.Get("terminal_id"), parsePositiveLimit(query.Get("limit"), 100, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.HeldBillListResponse{Items: items})
}

// handleHeldBillActions serves /api/v1/held-bills/{id}[/resume|/note].
func (a *API) handleHeldBillActions(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r, "/api/v1/held-bills/")
	if len(parts) == 0 || len(parts) > 2 {
		writeError(w, http.StatusNotFound, errors.New("unknown held bill path"))
		return
	}
	heldID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			held, err := a.service.GetHeldBill(r.Context(), heldID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, domain.HeldBillResponse{HeldBill: held})
		case http.MethodDelete:
			revision, err := parseRevision(r.URL.Query().Get("revision"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if err := a.service.DeleteHeldBill(r.Context(), heldID, revision); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch parts[1] {
	case "resume":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		// An empty body resumes unconditionally.
		var req domain.ResumeHeldBillRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.ResumeHeldBill(r.Context(), heldID, req.Revision)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case "note":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.HeldBillNoteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		held, err := a.service.UpdateHeldBillNote(r.Context(), heldID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.HeldBillResponse{HeldBill: held})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown held bill action"))
	}
}

// handleHeldBillEvents streams held-bill changes for a store as server-sent
// events until the client disconnects.
func (a *API) handleHeldBillEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	events, cancel, err := a.service.SubscribeHeldBills(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer cancel()

	// The server write timeout would cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("[held-events] WARN: encode event %s: %v", event.HeldBillID, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}
