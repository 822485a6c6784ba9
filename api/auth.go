package api

import (
	"net/http"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var request civic.RegisterRequest
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Email == "" || request.Password == "" {
		writeError(w, civic.NewValidationError("email and password are required"))
		return
	}
	if len(request.Password) < 6 {
		writeError(w, civic.NewValidationError("password must be at least 6 characters",
			civic.FieldError{Field: "password", Message: "must be at least 6 characters"}))
		return
	}

	result, err := a.authn.SignUp(r.Context(), request.Email, request.Password, request.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}

	// seed the profile so display names show up on issues right away
	if result.User != nil && request.DisplayName != "" {
		profile := civic.Profile{UserID: result.User.ID, DisplayName: request.DisplayName}
		if err := a.store.UpsertProfile(r.Context(), &profile); err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("cannot seed profile after registration")
		}
	}

	message := ""
	if result.Session == nil {
		message = "registration successful, please confirm your email address"
	}
	writeData(w, http.StatusCreated, result, message)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var request civic.LoginRequest
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Email == "" || request.Password == "" {
		writeError(w, civic.NewValidationError("email and password are required"))
		return
	}

	result, err := a.authn.SignInWithPassword(r.Context(), request.Email, request.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result, "")
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var request struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.RefreshToken == "" {
		writeError(w, civic.NewValidationError("refresh_token is required"))
		return
	}

	result, err := a.authn.RefreshSession(r.Context(), request.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result, "")
}

// logout revokes the caller's session. Revocation failures are logged
// but never reported; the caller is logged out either way.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token != "" {
		if err := a.authn.SignOut(r.Context(), token); err != nil {
			logger.FromContext(r.Context()).WithError(err).Warnln("session revocation failed")
		}
	}
	writeData(w, http.StatusOK, nil, "logged out")
}

func (a *API) resendConfirmation(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email string `json:"email"`
	}
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Email == "" {
		writeError(w, civic.NewValidationError("email is required"))
		return
	}
	if err := a.authn.ResendConfirmation(r.Context(), request.Email); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil, "confirmation email sent")
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email string `json:"email"`
	}
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Email == "" {
		writeError(w, civic.NewValidationError("email is required"))
		return
	}
	if err := a.authn.RequestPasswordReset(r.Context(), request.Email); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil, "password reset email sent")
}

func (a *API) me(w http.ResponseWriter, r *http.Request, identity *Identity) {
	user := civic.User{ID: identity.UserID, Email: identity.Email}
	profile, err := a.store.Profile(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	user.Profile = profile
	writeData(w, http.StatusOK, user, "")
}
