package api

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/liveness"
	"github.com/technosupport/canteen-authz/internal/metrics"
	"github.com/technosupport/canteen-authz/internal/middleware"
	"github.com/technosupport/canteen-authz/internal/tokens"
	"github.com/technosupport/canteen-authz/internal/ws"
)

const frameIntervalMs = 150

var commandText = map[domain.CommandType]string{
	domain.CmdTurnLeft:  "Turn your head left",
	domain.CmdTurnRight: "Turn your head right",
	domain.CmdTilt:      "Tilt your head",
}

// LivenessHandler serves start_liveness, liveness_frame, and
// finish_liveness, pushing status updates to internal/ws after every
// frame so a cashier display can follow along live.
type LivenessHandler struct {
	Service *liveness.Service
	Tokens  *tokens.Manager
	Hub     *ws.Hub
	Metrics *metrics.Registry
}

func NewLivenessHandler(svc *liveness.Service, tokenMgr *tokens.Manager, hub *ws.Hub, reg *metrics.Registry) *LivenessHandler {
	return &LivenessHandler{Service: svc, Tokens: tokenMgr, Hub: hub, Metrics: reg}
}

type commandView struct {
	Type domain.CommandType `json:"type"`
	Text string              `json:"text"`
}

type startLivenessResponse struct {
	SessionID       uuid.UUID     `json:"session_id"`
	Commands        []commandView `json:"commands"`
	ExpiresAt       time.Time     `json:"expires_at"`
	FrameIntervalMs int           `json:"frame_interval_ms"`
}

func (h *LivenessHandler) Start(w http.ResponseWriter, r *http.Request) {
	terminal, ok := middleware.TerminalFromContext(r.Context())
	if !ok {
		respondErr(w, apierr.FromCode("TERMINAL_UNAUTHORIZED", "missing terminal context"))
		return
	}

	var req struct {
		CardUID string `json:"card_uid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "invalid JSON body"))
		return
	}

	session, err := h.Service.StartLiveness(r.Context(), req.CardUID, terminal.ID)
	if err != nil {
		respondErr(w, err)
		return
	}

	commands := make([]commandView, len(session.Commands))
	for i, c := range session.Commands {
		commands[i] = commandView{Type: c, Text: commandText[c]}
	}

	respondData(w, http.StatusOK, startLivenessResponse{
		SessionID:       session.ID,
		Commands:        commands,
		ExpiresAt:       session.ExpiresAt,
		FrameIntervalMs: frameIntervalMs,
	})
}

type frameResponse struct {
	Status       domain.LivenessStatus `json:"status"`
	CurrentIndex int                   `json:"current_index"`
	Hint         string                `json:"hint,omitempty"`
	BlinkSeen    bool                  `json:"blink_seen"`
}

const maxFrameUploadBytes = 8 << 20

func (h *LivenessHandler) SubmitFrame(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFrameUploadBytes); err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "could not parse multipart form"))
		return
	}

	sessionID, err := uuid.Parse(r.FormValue("session_id"))
	if err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "invalid session_id"))
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "image is required"))
		return
	}
	defer file.Close()
	imageBytes, err := io.ReadAll(file)
	if err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "could not read image"))
		return
	}

	start := time.Now()
	result, err := h.Service.SubmitFrame(r.Context(), sessionID, imageBytes)
	if h.Metrics != nil {
		h.Metrics.FrameLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if h.Metrics != nil {
			if apiErr, ok := err.(*apierr.Error); ok {
				switch apiErr.Code {
				case "FACE_NOT_MATCH":
					h.Metrics.LivenessOutcomes.WithLabelValues("failed", apiErr.Code).Inc()
				case "LIVENESS_EXPIRED":
					h.Metrics.LivenessOutcomes.WithLabelValues("expired", apiErr.Code).Inc()
				}
			}
		}
		respondErr(w, err)
		return
	}
	if h.Metrics != nil {
		switch result.Session.Status {
		case domain.LivenessPassed, domain.LivenessFailed:
			h.Metrics.LivenessOutcomes.WithLabelValues(string(result.Session.Status), result.Session.FailReasonCode).Inc()
		}
	}

	hint := ""
	if cmd, ok := result.Session.CurrentCommand(); ok {
		hint = commandText[cmd]
	}

	push := ws.StatusPush{
		Status:       string(result.Session.Status),
		CurrentIndex: result.Session.CurrentIndex,
		BlinkSeen:    result.Session.BlinkSeen,
		ReasonCode:   result.Session.FailReasonCode,
	}
	if h.Hub != nil {
		h.Hub.Push(sessionID, push)
	}

	respondData(w, http.StatusOK, frameResponse{
		Status:       result.Session.Status,
		CurrentIndex: result.Session.CurrentIndex,
		Hint:         hint,
		BlinkSeen:    result.Session.BlinkSeen,
	})
}

type finishResponse struct {
	Result        string `json:"result"`
	LivenessToken string `json:"liveness_token,omitempty"`
	ExpiresInSec  int    `json:"expires_in_sec,omitempty"`
	ReasonCode    string `json:"reason_code,omitempty"`
}

func (h *LivenessHandler) Finish(w http.ResponseWriter, r *http.Request) {
	terminal, ok := middleware.TerminalFromContext(r.Context())
	if !ok {
		respondErr(w, apierr.FromCode("TERMINAL_UNAUTHORIZED", "missing terminal context"))
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "invalid JSON body"))
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "invalid session_id"))
		return
	}

	result, err := h.Service.FinishLiveness(r.Context(), sessionID, terminal.ID, h.Tokens)
	if err != nil {
		respondErr(w, err)
		return
	}

	if !result.Passed {
		respondData(w, http.StatusOK, finishResponse{Result: "FAILED", ReasonCode: result.ReasonCode})
		return
	}
	respondData(w, http.StatusOK, finishResponse{
		Result:        "PASSED",
		LivenessToken: result.LivenessToken,
		ExpiresInSec:  result.ExpiresInSec,
	})
}

// ServeSessionWS upgrades GET /api/ws/session/{id} to push live status
// updates for a liveness session directly to the cashier UI.
func (h *LivenessHandler) ServeSessionWS(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	h.Hub.ServeSessionStatus(w, r, sessionID)
}
