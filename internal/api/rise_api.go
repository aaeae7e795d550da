package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rise-habits/rise/internal/app/ledger"
	"github.com/rise-habits/rise/internal/domain"
)

// handleProgression returns the combined progression snapshot the app
// home screen renders: level, totals, streak, and challenge completion.
func (s *Server) handleProgression(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	level := s.ledger.Level()
	today, err := s.ledger.TodayXP(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	st, err := s.streak.State(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"level":    level,
		"today_xp": today,
		"streak": map[string]interface{}{
			"current": st.CurrentStreak,
			"longest": st.LongestStreak,
			"status":  st.Status(),
			"badges": map[string]int{
				"star":  st.StarCount,
				"flame": st.FlameCount,
				"crown": st.CrownCount,
			},
		},
	}

	if ch, p, err := s.tracker.Active(now); err == nil {
		resp["challenge"] = map[string]interface{}{
			"id":         ch.ID,
			"star_level": ch.StarLevel,
			"category":   ch.Category,
			"completion": p.CompletionPercentage,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type addXPRequest struct {
	Amount      int    `json:"amount"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id"`
	Description string `json:"description"`
}

func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	var req addXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	res, err := s.ledger.AddXP(req.Amount, ledger.AddXPOptions{
		Source:      domain.XPSource(req.Source),
		SourceID:    req.SourceID,
		Description: req.Description,
	})
	if errors.Is(err, domain.ErrZeroAmount) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleXPHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	txs, err := s.ledger.History(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total_xp":     s.ledger.TotalXP(),
	})
}

func (s *Server) handleReverseXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	res, err := s.ledger.Reverse(chi.URLParam(r, "id"), req.Reason)
	switch {
	case errors.Is(err, domain.ErrTransactionMissing):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyReversed):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.streak.State(time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":  st,
		"status": st.Status(),
		"debt":   st.OutstandingDebt(),
	})
}

func (s *Server) handleStreakEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"` // "YYYY-MM-DD", defaults to today
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	day := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		day = parsed
	}

	st, err := s.streak.RecordEntry(day)
	if errors.Is(err, domain.ErrEntryWhileFrozen) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"state": st,
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWarmUp(w http.ResponseWriter, r *http.Request) {
	st, err := s.streak.ApplySingleWarmUpPayment(time.Now().UTC())
	if errors.Is(err, domain.ErrNoOutstandingDebt) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	st, err := s.streak.Recalculate(time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleForceResetDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}

	st, err := s.streak.ExecuteForceResetDebt(req.Reason, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRepairDebt(w http.ResponseWriter, r *http.Request) {
	st, err := s.streak.RepairDebt(time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"state": st,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ch, p, err := s.tracker.Active(time.Now().UTC())
	if errors.Is(err, domain.ErrNoActiveChallenge) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"challenge": ch,
		"progress":  p,
	})
}

func (s *Server) handleChallengeReward(w http.ResponseWriter, r *http.Request) {
	res, err := s.tracker.PreviewReward(time.Now().UTC())
	switch {
	case errors.Is(err, domain.ErrNoActiveChallenge):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrChallengeFinalized):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleChallengeHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.tracker.History()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"months": history,
	})
}
