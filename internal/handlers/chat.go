package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"chat-relay-backend/internal/metrics"
	"chat-relay-backend/internal/middleware"
	"chat-relay-backend/internal/models"
)

const (
	msgNoMessage   = "No message provided"
	msgInvalidBody = "Invalid request body"
)

type completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

type ChatHandler struct {
	completion completer
	metrics    *metrics.Recorder
	log        logrus.FieldLogger
}

func NewChatHandler(completion completer, recorder *metrics.Recorder, logger logrus.FieldLogger) *ChatHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChatHandler{
		completion: completion,
		metrics:    recorder,
		log:        logger,
	}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.metrics.RecordChat(metrics.OutcomeValidationError)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msgInvalidBody})
		return
	}

	if req.Message == "" {
		h.metrics.RecordChat(metrics.OutcomeValidationError)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msgNoMessage})
		return
	}

	reply, err := h.completion.Complete(r.Context(), req.Message)
	if err != nil {
		h.metrics.RecordChat(metrics.OutcomeUpstreamError)
		h.log.WithField("request_id", middleware.GetRequestID(r.Context())).
			WithError(err).Error("chat request failed")
	} else {
		h.metrics.RecordChat(metrics.OutcomeSuccess)
	}

	status, body := chatResult(reply, err)
	writeJSON(w, status, body)
}

// chatResult maps a completion outcome to the response status and body.
func chatResult(reply string, err error) (int, interface{}) {
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "upstream request failed"
		}
		return http.StatusInternalServerError, models.ErrorResponse{Error: msg}
	}
	return http.StatusOK, models.ChatResponse{Reply: reply}
}
