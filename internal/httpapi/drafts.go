package httpapi

import (
	"errors"
	"net/http"

	"billease/backend/internal/domain"
)

func (a *API) handleDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.DraftCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.StartDraft(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleDraftActions serves /api/v1/drafts/{id}[/items|/lines/{lineID}|
// /discount|/details|/hold|/complete].
func (a *API) handleDraftActions(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r, "/api/v1/drafts/")
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("draft id required"))
		return
	}
	draftID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			resp, err := a.service.GetDraft(r.Context(), draftID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodDelete:
			if err := a.service.CancelDraft(r.Context(), draftID); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch {
	case parts[1] == "items" && len(parts) == 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.DraftItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.writeDraft(w, http.StatusOK)(a.service.AddDraftItem(r.Context(), draftID, req))

	case parts[1] == "lines" && len(parts) == 3:
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.DraftLineUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.writeDraft(w, http.StatusOK)(a.service.UpdateDraftLine(r.Context(), draftID, parts[2], req))

	case parts[1] == "discount" && len(parts) == 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.DraftDiscountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.writeDraft(w, http.StatusOK)(a.service.ApplyDraftDiscount(r.Context(), draftID, req))

	case parts[1] == "details" && len(parts) == 2:
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.DraftDetailsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.writeDraft(w, http.StatusOK)(a.service.SetDraftDetails(r.Context(), draftID, req))

	case parts[1] == "hold" && len(parts) == 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		held, err := a.service.HoldDraft(r.Context(), draftID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.HeldBillResponse{HeldBill: held})

	case parts[1] == "complete" && len(parts) == 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.CompleteDraftRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tx, err := a.service.CompleteDraft(r.Context(), draftID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.TransactionResponse{Transaction: tx})

	default:
		writeError(w, http.StatusNotFound, errors.New("unknown draft action"))
	}
}

func (a *API) writeDraft(w http.ResponseWriter, status int) func(domain.DraftResponse, error) {
	return func(resp domain.DraftResponse, err error) {
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, status, resp)
	}
}
