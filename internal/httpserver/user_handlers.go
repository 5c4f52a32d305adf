package httpserver

import (
	"net/http"

	"github.com/rs/zerolog"

	"chatup/internal/service"
)

// @Summary      Contacts
// @Description  Every other user plus unseen message counts keyed by sender id
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /messages/users [get]
func handleContacts(userSvc *service.UserService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		contacts, err := userSvc.Contacts(r.Context(), user.ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{
			"users":          contacts.Users,
			"unseenMessages": contacts.Unseen,
		})
	}
}
