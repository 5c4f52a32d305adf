package httpserver

import (
	"net/http"

	"github.com/rs/zerolog"

	"chatup/internal/domain"
	"chatup/internal/service"
)

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// authResponse documents the signup/login body.
type authResponse struct {
	Success  bool         `json:"success"`
	UserData *domain.User `json:"userData"`
	Token    string       `json:"token"`
	Message  string       `json:"message"`
}

// sessionCloser drops a user's live socket.
type sessionCloser interface {
	Disconnect(userID string) bool
}

// @Summary      Sign up
// @Description  Create an account and return an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body signupRequest true "Signup input"
// @Success      201  {object}  authResponse
// @Failure      400  {object}  map[string]any
// @Failure      409  {object}  map[string]any
// @Router       /auth/signup [post]
func handleSignup(authSvc *service.AuthService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}

		sess, err := authSvc.Signup(r.Context(), service.SignupInput{
			Email:    req.Email,
			FullName: req.FullName,
			Password: req.Password,
			Bio:      req.Bio,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusCreated, envelope{
			"userData": sess.User,
			"token":    sess.Token,
			"message":  "Account created successfully",
		})
	}
}

// @Summary      Login
// @Description  Login with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body loginRequest true "Login input"
// @Success      200  {object}  authResponse
// @Failure      401  {object}  map[string]any
// @Router       /auth/login [post]
func handleLogin(authSvc *service.AuthService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}

		sess, err := authSvc.Login(r.Context(), service.LoginInput{
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{
			"userData": sess.User,
			"token":    sess.Token,
			"message":  "Login successful",
		})
	}
}

// @Summary      Check authentication
// @Description  Return the user the token belongs to
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /auth/check [get]
func handleCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeOK(w, http.StatusOK, envelope{"user": user})
	}
}

// @Summary      Update profile
// @Description  Update name and bio; profilePic is an optional image data URI
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body updateProfileRequest true "Profile"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]any
// @Router       /auth/update-profile [put]
func handleUpdateProfile(userSvc *service.UserService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var req updateProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}

		updated, err := userSvc.UpdateProfile(r.Context(), user, service.ProfileUpdate{
			FullName:   req.FullName,
			Bio:        req.Bio,
			ProfilePic: req.ProfilePic,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusOK, envelope{"user": updated})
	}
}

// @Summary      Logout
// @Description  Close the caller's live socket. Tokens are stateless and stay valid until expiry.
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]any
// @Router       /auth/logout [post]
func handleLogout(sessions sessionCloser, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if sessions.Disconnect(user.ID) {
			log.Info().Str("user_id", user.ID).Msg("closed live connection on logout")
		}
		writeOK(w, http.StatusOK, envelope{"message": "Logged out"})
	}
}
