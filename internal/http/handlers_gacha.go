package http

import (
	"net/http"
	"strings"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
)

// HeaderIdempotencyKey may carry the draw request id instead of the body.
const HeaderIdempotencyKey = "Idempotency-Key"

type drawRequest struct {
	Assignee  string `json:"assignee"`
	RequestID string `json:"request_id"`
}

// drawResponse is the won prize with the attempt that produced it.
type drawResponse struct {
	core.GachaPrize
	AttemptID   string `json:"attempt_id"`
	InventoryID int64  `json:"inventory_id,omitempty"`
	Replayed    bool   `json:"replayed,omitempty"`
}

type useRequest struct {
	InventoryID flexInt `json:"inventory_id"`
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	var req drawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	}

	ctx := r.Context()
	outcome, err := s.deps.Gacha.Draw(ctx, services.DrawRequest{
		Assignee:  req.Assignee,
		RequestID: req.RequestID,
	})
	if outcome.Attempt.ID != "" {
		log.FromContext(ctx).DrawFinished(ctx,
			outcome.Attempt.ID, outcome.Attempt.Assignee, string(outcome.Attempt.State), outcome.Prize.Name)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	inventoryID := outcome.Item.ID
	if inventoryID == 0 {
		inventoryID = outcome.Attempt.InventoryItemID
	}
	writeJSON(w, r, http.StatusOK, drawResponse{
		GachaPrize:  outcome.Prize,
		AttemptID:   outcome.Attempt.ID,
		InventoryID: inventoryID,
		Replayed:    outcome.Replayed,
	})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Gacha.Inventory(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []core.InventoryItem{}
	}
	writeJSON(w, r, http.StatusOK, items)
}

func (s *Server) handleUseReward(w http.ResponseWriter, r *http.Request) {
	var req useRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// an absent or malformed id reaches the service as 0 and is rejected there
	if err := s.deps.Gacha.UseReward(r.Context(), req.InventoryID.Value); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}
