package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/malpractice"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session events to the browser shell and accepts its
// commands and environment signals.
type WSHandler struct {
	sessionService *service.ExamSessionService
	hub            *ws.Hub
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, hub *ws.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		hub:            hub,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/session/stream
// Upgrades to WebSocket. The server pushes every session event; the client
// sends commands and signals.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	studentID := claims.StudentID

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("student_id", studentID).Logger()
	wsLog.Info().Msg("Student connected")

	sub := h.hub.Subscribe(studentID)
	replies := make(chan any, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	// gorilla allows one concurrent writer; every write goes through here.
	go func() {
		defer close(writerDone)
		for {
			var err error
			select {
			case <-done:
				return
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				err = writeMessage(conn, msg)
			case msg := <-replies:
				err = writeMessage(conn, msg)
			}
			if err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				conn.Close()
				return
			}
		}
	}()

	defer func() {
		h.hub.Unsubscribe(sub)
		close(done)
		<-writerDone
		wsLog.Info().Msg("Student disconnected")
	}()

	if sess, err := h.sessionService.Session(studentID); err == nil {
		replies <- session.Event{Type: session.EventState, Snapshot: sess.Snapshot()}
	}

	ctx := c.Request.Context()
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		// Deliveries can sit in retry backoff for seconds; signals and
		// dismissals arriving meanwhile must still be read.
		if networkBound(msg.Action) {
			go func() {
				if reply := h.dispatch(ctx, studentID, &msg); reply != nil {
					select {
					case replies <- reply:
					case <-writerDone:
					}
				}
			}()
			continue
		}

		reply := h.dispatch(ctx, studentID, &msg)
		if reply == nil {
			continue
		}
		select {
		case replies <- reply:
		case <-writerDone:
			return
		}
	}
}

func networkBound(action ws.Action) bool {
	switch action {
	case ws.ActionSubmitAnswer, ws.ActionSubmitExam, ws.ActionExit:
		return true
	}
	return false
}

// dispatch runs one client message and returns the direct reply, if any.
// State changes reach the client as session events through the hub.
func (h *WSHandler) dispatch(ctx context.Context, studentID string, msg *ws.RequestPayload) any {
	if msg.Action == ws.ActionPing {
		return ws.PongResponse{Event: ws.EventPong}
	}

	sess, err := h.sessionService.Session(studentID)
	if err != nil {
		return errorReply(err)
	}

	switch msg.Action {
	case ws.ActionSelectOption:
		err = sess.SelectOption(ctx, msg.QuestionID, msg.Option)
	case ws.ActionReview:
		err = sess.MarkForReview(ctx, msg.QuestionID)
	case ws.ActionSubmitAnswer:
		err = sess.SubmitAnswer(ctx, msg.QuestionID)
	case ws.ActionNavigate:
		if msg.Direction != "previous" && msg.Direction != "next" {
			return invalidPayload("direction must be previous or next")
		}
		err = navigate(sess, msg.Direction)
	case ws.ActionSelectQuestion:
		if msg.Index == nil {
			return invalidPayload("index is required")
		}
		err = sess.SelectQuestion(model.Phase(msg.Phase), *msg.Index)
	case ws.ActionSubmitExam:
		err = sess.Submit(ctx, session.TriggerManual)
	case ws.ActionExit:
		err = sess.Exit(ctx, msg.Confirmed)
	case ws.ActionDismissWarning:
		err = sess.DismissWarning()
	case ws.ActionSignal:
		var sig malpractice.Signal
		if err := json.Unmarshal(msg.Signal, &sig); err != nil || sig.Type == "" {
			return invalidPayload("signal.type is required")
		}
		if sig.At.IsZero() {
			sig.At = time.Now()
		}
		sess.HandleSignal(sig)
	default:
		h.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		return invalidPayload("unknown action: " + string(msg.Action))
	}

	// A deferred submission already produced a terminal event.
	if err == nil || errors.Is(err, session.ErrSubmitDeferred) {
		return nil
	}
	return errorReply(err)
}

func errorReply(err error) ws.ErrorResponse {
	_, code := classify(err)
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Error: response.GetMessage(code)}
}

func invalidPayload(msg string) ws.ErrorResponse {
	return ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrInvalidPayload), Error: msg}
}

func writeMessage(conn *websocket.Conn, msg any) error {
	if ev, ok := msg.(session.Event); ok {
		return ws.WriteEvent(conn, string(ev.Type), ev)
	}
	return ws.WriteTyped(conn, msg)
}
