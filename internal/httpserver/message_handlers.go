package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chatup/internal/service"
)

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// @Summary      Conversation
// @Description  Messages exchanged with a peer, oldest first. The peer's messages to the caller are marked seen.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Peer user id"
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /messages/{id} [get]
func handleConversation(msgSvc *service.MessageService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		msgs, err := msgSvc.Conversation(r.Context(), user.ID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"messages": msgs})
	}
}

// @Summary      Send message
// @Description  Send text and/or an image (data URI or uploaded URL) to a user
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path  string              true  "Receiver user id"
// @Param        input body  sendMessageRequest  true  "Message"
// @Success      201  {object}  map[string]any
// @Failure      400  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /messages/send/{id} [post]
func handleSendMessage(msgSvc *service.MessageService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var req sendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}

		msg, err := msgSvc.Send(r.Context(), user.ID, chi.URLParam(r, "id"), service.SendInput{
			Text:  req.Text,
			Image: req.Image,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusCreated, envelope{"newMessage": msg})
	}
}

// @Summary      Mark message seen
// @Description  Flag one message addressed to the caller as seen
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Message id"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /messages/mark/{id} [put]
func handleMarkSeen(msgSvc *service.MessageService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := msgSvc.MarkSeen(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusOK, nil)
	}
}
