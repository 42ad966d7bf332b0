package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/curriculum"
	"github.com/p-n-ai/greenquest/internal/engine"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/report"
	"github.com/p-n-ai/greenquest/internal/submission"
)

type quizRequest struct {
	Answers  []int `json:"answers,omitempty"`
	Score    *int  `json:"score,omitempty"`
	MaxScore int   `json:"max_score,omitempty"`
}

// submitRequest carries evidence; type defaults to the quest's type.
type submitRequest struct {
	Type curriculum.QuestType `json:"type,omitempty"`
	Data json.RawMessage      `json:"data"`
}

type approveRequest struct {
	QualityScore *float64 `json:"quality_score"`
	Comments     string   `json:"comments"`
}

type rejectRequest struct {
	Comments string `json:"comments"`
}

type awardRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleMyProgress(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Progress(actor.UserID))
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	nodes, err := s.eng.AvailableNodes(actor.UserID, r.URL.Query().Get("lane"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleMySubmissions(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eng.UserSubmissions(actor.UserID))
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := s.eng.Progress(actor.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"balance":  p.TotalTokens,
		"earnings": s.eng.WalletEarnings(actor.UserID),
	})
}

func (s *Server) handleLaneNodes(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	nodes, err := s.eng.LaneNodes(actor.UserID, r.PathValue("laneID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	nodeID := r.PathValue("nodeID")
	if err := s.eng.CompleteLesson(actor, nodeID); err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"node_id": nodeID, "status": "viewed"})
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req quizRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	nodeID := r.PathValue("nodeID")
	var res engine.QuizResult
	switch {
	case req.Answers != nil:
		res, err = s.eng.SubmitQuizAnswers(actor, nodeID, req.Answers)
	case req.Score != nil:
		res, err = s.eng.RecordQuizResult(actor, nodeID, *req.Score, req.MaxScore)
	default:
		err = apperr.Validation("server.quiz", "either answers or score is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	questID := r.PathValue("questID")
	quest, ok := s.eng.Graph().Quest(questID)
	if !ok {
		writeError(w, r, apperr.NotFound("server.submit", "quest %q", questID))
		return
	}

	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind := req.Type
	if kind == "" {
		kind = quest.Type
	}
	if len(req.Data) == 0 {
		writeError(w, r, apperr.Validation("server.submit", "evidence data is required"))
		return
	}
	ev, err := submission.DecodeEvidence(kind, req.Data)
	if err != nil {
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}

	sub, err := s.eng.SubmitQuest(actor, questID, ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.validator(w, r); !ok {
		return
	}
	subs, err := s.eng.Submissions(submission.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := s.eng.Submission(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Learners only see their own submissions.
	if !actor.IsValidator() && sub.UserID != actor.UserID {
		writeError(w, r, apperr.NotFound("server.submission", "submission %q", sub.ID))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.QualityScore == nil {
		writeError(w, r, apperr.Validation("server.approve", "quality_score is required"))
		return
	}

	res, err := s.eng.Approve(actor, r.PathValue("id"), *req.QualityScore, req.Comments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	slog.Info("submission approved",
		"submission_id", res.Submission.ID,
		"user_id", res.Submission.UserID,
		"validator_id", actor.UserID,
		"tokens", res.Submission.TokensAwarded,
	)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rejectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := s.eng.Reject(actor, r.PathValue("id"), req.Comments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAwardBadge(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req awardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	badgeID := r.PathValue("badgeID")
	added, err := s.eng.AwardBadge(actor, req.UserID, badgeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if added {
		s.committed(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  req.UserID,
		"badge_id": badgeID,
		"awarded":  added,
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.eng.PurchaseCourse(actor, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompleteCourse(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.eng.CompleteCourse(actor, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	scope, err := identity.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := scope.String()

	// The generation is read before the engine so rows computed across a
	// concurrent write are stored under a retired generation.
	var (
		gen    int64
		cached = s.cache != nil
	)
	if cached {
		gen, err = s.cache.Generation(r.Context())
		if err != nil {
			slog.Warn("leaderboard cache generation failed", "error", err)
			cached = false
		}
	}
	if cached {
		rows, ok, err := s.cache.Get(r.Context(), gen, key)
		if err != nil {
			slog.Warn("leaderboard cache read failed", "scope", key, "error", err)
		}
		if ok {
			writeJSON(w, http.StatusOK, rows)
			return
		}
	}

	rows, err := s.eng.Leaderboard(key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cached {
		if err := s.cache.Set(r.Context(), gen, key, rows); err != nil {
			slog.Warn("leaderboard cache write failed", "scope", key, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Settings())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch engine.SettingsPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.eng.UpdateSettings(actor, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.eng.Reset(actor); err != nil {
		writeError(w, r, err)
		return
	}
	s.committed(r.Context())
	slog.Info("progress reset", "actor_id", actor.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.validator(w, r); !ok {
		return
	}
	data, err := report.Collect(s.eng)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="greenquest-report.xlsx"`)
	if err := report.WriteWorkbook(w, data); err != nil {
		slog.Error("failed to write export", "error", err)
	}
}

// validator resolves the actor and requires the teacher role.
func (s *Server) validator(w http.ResponseWriter, r *http.Request) (identity.Actor, bool) {
	actor, err := s.actorFrom(r)
	if err == nil && !actor.IsValidator() {
		err = apperr.Unauthorized("server.validator", "user %q is not a teacher", actor.UserID)
	}
	if err != nil {
		writeError(w, r, err)
		return actor, false
	}
	return actor, true
}
