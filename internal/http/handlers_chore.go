package http

import (
	"net/http"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

type choreRequest struct {
	Category   string   `json:"category"`
	Task       string   `json:"task"`
	Note       string   `json:"note"`
	BaseScore  float64  `json:"base_score"`
	Assignees  []string `json:"assignees"`
	CreatedAt  string   `json:"created_at"`
	Multiplier flexInt  `json:"multiplier"`
}

func (s *Server) handleListChores(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := s.deps.Chores.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []core.ChoreRecord{}
	}
	writeJSON(w, r, http.StatusOK, records)
}

func (s *Server) handleRecordChore(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sub := core.ChoreSubmission{
		Category:  req.Category,
		Task:      req.Task,
		Note:      req.Note,
		BaseScore: req.BaseScore,
		Assignees: req.Assignees,
	}
	switch {
	case req.Multiplier.Valid:
		sub.Multiplier = int(req.Multiplier.Value)
	case req.Multiplier.Set:
		writeError(w, r, core.Invalid("multiplier", msgInvalidMultiplier))
		return
	}
	if req.CreatedAt != "" {
		at, err := parseDate(req.CreatedAt, s.deps.Location, s.deps.Now())
		if err != nil {
			writeError(w, r, core.Invalid("created_at", msgInvalidDate))
			return
		}
		sub.CreatedAt = at
	}

	recorded, err := s.deps.Chores.Record(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, recorded)
}

func (s *Server) handleDeleteChore(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Chores.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

type balancesResponse struct {
	Cost     int                `json:"cost"`
	Balances []services.Balance `json:"balances"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	cost := s.deps.Gacha.Cost()
	balances, err := s.deps.Chores.Balances(r.Context(), cost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, balancesResponse{Cost: cost, Balances: balances})
}

func (s *Server) handleDailyBonus(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"), s.deps.Location, s.deps.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, ok, err := s.deps.Master.DailyBonus(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, &core.NotFoundError{Kind: "daily bonus", ID: date.Format(time.DateOnly)})
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}
