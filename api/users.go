package api

import (
	"net/http"
	"strconv"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
)

func (a *API) getProfile(w http.ResponseWriter, r *http.Request, identity *Identity) {
	profile, err := a.store.Profile(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if profile == nil {
		writeError(w, civic.ErrorFromStatus(http.StatusNotFound, "profile not found"))
		return
	}
	writeData(w, http.StatusOK, profile, "")
}

func (a *API) putProfile(w http.ResponseWriter, r *http.Request, identity *Identity) {
	var request civic.UpdateProfileRequest
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, err)
		return
	}

	profile := civic.Profile{
		UserID:      identity.UserID,
		DisplayName: request.DisplayName,
		AvatarURL:   request.AvatarURL,
		Phone:       request.Phone,
	}
	if err := a.store.UpsertProfile(r.Context(), &profile); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, profile, "")
}

func (a *API) userIssues(w http.ResponseWriter, r *http.Request, identity *Identity) {
	query := listQueryFromRequest(r)
	issues, total, err := a.store.Issues(r.Context(), query, identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.flagUpvoted(r, issues); err != nil {
		writeError(w, err)
		return
	}
	writePage(w, issues, civic.Pagination{Limit: query.Limit, Offset: query.Offset, Total: total})
}

func (a *API) userUpvoted(w http.ResponseWriter, r *http.Request, identity *Identity) {
	v := r.URL.Query()
	limit, _ := strconv.Atoi(v.Get("limit"))
	offset, _ := strconv.Atoi(v.Get("offset"))
	query := civic.ListQuery{Limit: limit, Offset: offset}.Normalize()

	issues, total, err := a.store.UpvotedIssues(r.Context(), identity.UserID, query.Limit, query.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, issues, civic.Pagination{Limit: query.Limit, Offset: query.Offset, Total: total})
}

func (a *API) userStats(w http.ResponseWriter, r *http.Request, identity *Identity) {
	stats, err := a.store.Stats(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats, "")
}
