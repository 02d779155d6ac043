package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"tutor-quiz-service/internal/app"
	"tutor-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type jumpPayload struct {
	Index int `json:"index"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrSessionClosed):
		return "closed"
	case errors.Is(err, domain.ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, domain.ErrSubmitFailed):
		return "submit_failed"
	default:
		return "bad_request"
	}
}

func parseRequest(r *http.Request) (domain.QuizRequest, bool) {
	q := r.URL.Query()
	subjectID, err := strconv.Atoi(q.Get("subjectId"))
	if err != nil {
		return domain.QuizRequest{}, false
	}
	studentID, err := strconv.Atoi(q.Get("studentId"))
	if err != nil {
		return domain.QuizRequest{}, false
	}
	topic := q.Get("topic")
	if topic == "" {
		return domain.QuizRequest{}, false
	}
	return domain.QuizRequest{SubjectID: subjectID, TopicTitle: topic, StudentID: studentID}, true
}

// ServeWS upgrades HTTP requests to websockets and drives one quiz session per connection.
// The session is torn down when the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest(r)
	if !ok {
		http.Error(w, "missing or invalid subjectId, topic, or studentId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	session, err := h.service.Start(ctx, req)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var workers sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-closeSignals:
		case <-writerDone:
		}
	}

	forward := func(s *app.Session) func() {
		updates, cancel := s.Subscribe()
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case view, ok := <-updates:
					if !ok {
						return
					}
					reply(outboundMessage{Type: "state", Payload: view})
				case <-closeSignals:
					return
				}
			}
		}()
		return cancel
	}
	unsubscribe := forward(session)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		var opErr error
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid select payload"}})
				continue
			}
			opErr = session.SelectAnswer(payload.QuestionIndex, payload.OptionIndex)
		case "next":
			opErr = session.GoNext()
		case "previous":
			opErr = session.GoPrevious()
		case "jump":
			var payload jumpPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid jump payload"}})
				continue
			}
			opErr = session.JumpTo(payload.Index)
		case "requestSubmit":
			warning, err := session.RequestSubmit()
			if err == nil {
				reply(outboundMessage{Type: "confirm", Payload: warning})
			}
			opErr = err
		case "reofferSubmit":
			warning, err := session.ReofferSubmit()
			if err == nil {
				reply(outboundMessage{Type: "confirm", Payload: warning})
			}
			opErr = err
		case "cancelSubmit":
			opErr = session.CancelSubmit()
		case "confirmSubmit":
			// the result reaches the client as a state update
			workers.Add(1)
			go func(s *app.Session) {
				defer workers.Done()
				if _, err := s.ConfirmSubmit(ctx); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
					reply(errorMessage(err))
				}
			}(session)
		case "retake":
			next, err := h.service.Retake(session.ID())
			if err != nil {
				opErr = err
				break
			}
			unsubscribe()
			session = next
			unsubscribe = forward(session)
		default:
			opErr = errors.New("unsupported message type")
		}
		if opErr != nil {
			reply(errorMessage(opErr))
		}
	}

	close(closeSignals)
	cancelCtx()
	h.service.Close(session.ID())
	unsubscribe()
	workers.Wait()
	close(send)
	<-writerDone
	h.logger.Debug("ws session ended", "session", session.ID())
}
