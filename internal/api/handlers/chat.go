package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/paperchat/paperchat/internal/chat"
)

// maxQueryRunes bounds a single chat message.
const maxQueryRunes = 4000

// ChatRequestBody is the body for one chat turn.
type ChatRequestBody struct {
	Message string `json:"message"`
}

// HandleChat returns a handler that answers a question about a paper and
// streams the answer as server-sent events. Each generated fragment is sent
// as a "token" event; the stream ends with either a "done" or an "error"
// event.
// POST /api/v1/papers/{id}/chat
func HandleChat(sessions SessionService, chatService ChatService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paperID, ok := paperIDParam(w, r)
		if !ok {
			return
		}

		var req ChatRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondBadRequest(w, "Invalid request body")
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			RespondBadRequest(w, "message is required")
			return
		}
		if utf8.RuneCountInString(req.Message) > maxQueryRunes {
			RespondBadRequest(w, "message is too long")
			return
		}

		session, err := sessions.Ensure(r.Context(), requestUser(r), paperID)
		if err != nil {
			logger.Error("failed to resolve chat session", "paper_id", paperID, "error", err)
			RespondInternalError(w, "")
			return
		}

		reply, err := chatService.Respond(r.Context(), session.ID, req.Message)
		if err != nil {
			respondChatError(w, logger, err)
			return
		}

		flusher, canFlush := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		for token := range reply.Tokens() {
			writeSSE(w, "token", token)
			if canFlush {
				flusher.Flush()
			}
		}

		if _, err := reply.Wait(); err != nil {
			logger.Warn("chat stream ended with error", "chat_id", session.ID, "error", err)
			writeSSE(w, "error", "generation interrupted")
		} else {
			writeSSE(w, "done", "")
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// writeSSE emits one server-sent event, splitting the payload across data
// lines so embedded newlines survive the framing.
func writeSSE(w http.ResponseWriter, event, data string) {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	w.Write([]byte(b.String()))
}

func respondChatError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		RespondNotFound(w, "Chat session not found")
	case errors.Is(err, chat.ErrInsufficientContext):
		RespondError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
			"No relevant content found for this query")
	default:
		logger.Error("chat turn failed", "error", err)
		RespondInternalError(w, "")
	}
}
