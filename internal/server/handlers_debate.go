package server

import (
	"net/http"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/model"
)

// HandleStartDebate handles POST /v1/debates.
func (h *Handlers) HandleStartDebate(w http.ResponseWriter, r *http.Request) {
	var req model.StartDebateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	snap, err := h.engine.Start(r.Context(), debate.StartRequest{
		TeamID:     req.TeamID,
		CourseCode: req.CourseCode,
		Members:    req.Members,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, snap)
}

// HandleGetDebate handles GET /v1/debates/{team_id}.
func (h *Handlers) HandleGetDebate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context(), r.PathValue("team_id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleSubmitArguments handles POST /v1/debates/{team_id}/arguments.
func (h *Handlers) HandleSubmitArguments(w http.ResponseWriter, r *http.Request) {
	var req model.ArgumentsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	h.respond(w, r)(h.engine.SubmitTeamArguments(r.Context(), r.PathValue("team_id"), req.Arguments))
}

// HandleGenerateAIArguments handles POST /v1/debates/{team_id}/ai-arguments.
func (h *Handlers) HandleGenerateAIArguments(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateAIArgumentsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, true); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	h.respond(w, r)(h.engine.GenerateAiArguments(r.Context(), r.PathValue("team_id"), req.Force))
}

// HandleAnswerAIQuestion handles POST /v1/debates/{team_id}/phase2/answers.
func (h *Handlers) HandleAnswerAIQuestion(w http.ResponseWriter, r *http.Request) {
	var req model.AnswerRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	h.respond(w, r)(h.engine.AnswerAiQuestion(r.Context(), r.PathValue("team_id"), req.Answer))
}

// HandleNextAIQuestion handles POST /v1/debates/{team_id}/phase2/questions.
func (h *Handlers) HandleNextAIQuestion(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GenerateNextAiQuestion(r.Context(), r.PathValue("team_id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	resp := model.TurnResponse{Session: snap}
	if n := len(snap.Phase2Ledger); n > 0 {
		resp.Question = snap.Phase2Ledger[n-1].Question
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleAskAIQuestion handles POST /v1/debates/{team_id}/phase3/questions.
func (h *Handlers) HandleAskAIQuestion(w http.ResponseWriter, r *http.Request) {
	var req model.QuestionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	snap, err := h.engine.AskAiQuestion(r.Context(), r.PathValue("team_id"), req.Question)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	resp := model.TurnResponse{Question: req.Question, Session: snap}
	if n := len(snap.Phase3Ledger); n > 0 {
		resp.Answer = snap.Phase3Ledger[n-1].AnswerText()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleSubmitConclusion handles POST /v1/debates/{team_id}/conclusion.
func (h *Handlers) HandleSubmitConclusion(w http.ResponseWriter, r *http.Request) {
	var req model.ArgumentsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, true); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	h.respond(w, r)(h.engine.SubmitConclusion(r.Context(), r.PathValue("team_id"), req.Arguments))
}

// HandleAICounterConclusion handles POST /v1/debates/{team_id}/ai-conclusion.
func (h *Handlers) HandleAICounterConclusion(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.engine.GenerateAiCounterConclusion(r.Context(), r.PathValue("team_id")))
}

// HandleEvaluate handles POST /v1/debates/{team_id}/evaluation.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, true); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	h.respond(w, r)(h.engine.Evaluate(r.Context(), r.PathValue("team_id"), req.StudentSummary))
}

// HandleComplete handles POST /v1/debates/{team_id}/complete.
func (h *Handlers) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.engine.Complete(r.Context(), r.PathValue("team_id")))
}

// HandleEnd handles POST /v1/debates/{team_id}/end.
func (h *Handlers) HandleEnd(w http.ResponseWriter, r *http.Request) {
	var req model.EndRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, true); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	h.respond(w, r)(h.engine.End(r.Context(), r.PathValue("team_id"), req.Reason))
}

// respond writes a snapshot or maps the error.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request) func(debate.Snapshot, error) {
	return func(snap debate.Snapshot, err error) {
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, snap)
	}
}
