package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core"
)

// listQueryFromRequest reads the collection query parameters.
func listQueryFromRequest(r *http.Request) civic.ListQuery {
	v := r.URL.Query()
	limit, _ := strconv.Atoi(v.Get("limit"))
	offset, _ := strconv.Atoi(v.Get("offset"))
	// the web frontend sends camelCase parameter names
	sortBy := v.Get("sort_by")
	if sortBy == "" {
		sortBy = v.Get("sortBy")
	}
	sortOrder := v.Get("sort_order")
	if sortOrder == "" {
		sortOrder = v.Get("sortOrder")
	}
	return civic.ListQuery{
		Status:    v.Get("status"),
		Category:  v.Get("category"),
		Priority:  v.Get("priority"),
		Limit:     limit,
		Offset:    offset,
		SortBy:    sortBy,
		SortOrder: sortOrder,
	}.Normalize()
}

func issueIDFromRequest(r *http.Request) (uuid.UUID, *civic.Error) {
	id, err := uuid.Parse(mux.Vars(r)["issue_id"])
	if err != nil {
		return uuid.Nil, civic.NewValidationError("invalid issue id")
	}
	return id, nil
}

// flagUpvoted marks the issues the caller has upvoted. Anonymous
// callers see all flags false.
func (a *API) flagUpvoted(r *http.Request, issues []civic.Issue) error {
	identity := IdentityFromContext(r.Context())
	if identity == nil || len(issues) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(issues))
	for i := range issues {
		ids[i] = issues[i].ID
	}
	upvoted, err := a.store.UpvotedIDs(r.Context(), identity.UserID, ids)
	if err != nil {
		return err
	}
	for i := range issues {
		issues[i].UserHasUpvoted = upvoted[issues[i].ID]
	}
	return nil
}

func (a *API) listIssues(w http.ResponseWriter, r *http.Request) {
	query := listQueryFromRequest(r)
	issues, total, err := a.store.Issues(r.Context(), query, uuid.Nil)
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

func (a *API) getIssue(w http.ResponseWriter, r *http.Request) {
	id, cerr := issueIDFromRequest(r)
	if cerr != nil {
		writeError(w, cerr)
		return
	}
	issue, err := a.store.Issue(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if issue == nil {
		writeError(w, civic.ErrorFromStatus(http.StatusNotFound, "issue not found"))
		return
	}
	if identity := IdentityFromContext(r.Context()); identity != nil {
		upvoted, err := a.store.HasUpvoted(r.Context(), id, identity.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		issue.UserHasUpvoted = upvoted
	}
	writeData(w, http.StatusOK, issue, "")
}

func (a *API) createIssue(w http.ResponseWriter, r *http.Request, identity *Identity) {
	var request civic.CreateIssueRequest
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, err)
		return
	}

	priority := request.Priority
	if priority == "" {
		priority = civic.PriorityMedium
	}
	issue := civic.Issue{
		UserID:              identity.UserID,
		Title:               request.Title,
		Description:         request.Description,
		Category:            request.Category,
		Status:              civic.StatusPending,
		Priority:            priority,
		LocationDescription: request.LocationDescription,
		LocationCoordinates: request.LocationCoordinates,
		ImageURL:            request.ImageURL,
	}

	// a replayed request with the same marker returns the issue the
	// first attempt created, not a duplicate
	marker := r.Header.Get("Idempotency-Key")
	if marker != "" {
		existing, err := a.store.IssueByMarker(r.Context(), marker)
		if err != nil {
			writeError(w, err)
			return
		}
		if existing != nil {
			writeData(w, http.StatusCreated, existing, "")
			return
		}
	}

	if err := a.store.CreateIssue(r.Context(), &issue, marker); err != nil {
		writeError(w, err)
		return
	}

	payload, _ := json.Marshal(issue)
	a.notify("issue", core.OperationCreate, payload)
	writeData(w, http.StatusCreated, issue, "")
}

func (a *API) updateIssue(w http.ResponseWriter, r *http.Request, identity *Identity) {
	id, cerr := issueIDFromRequest(r)
	if cerr != nil {
		writeError(w, cerr)
		return
	}
	var request civic.UpdateIssueRequest
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, err)
		return
	}

	issue, err := a.store.Issue(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if issue == nil {
		writeError(w, civic.ErrorFromStatus(http.StatusNotFound, "issue not found"))
		return
	}
	if issue.UserID != identity.UserID {
		writeError(w, civic.ErrorFromStatus(http.StatusForbidden, "you can only update your own issues"))
		return
	}

	updated, err := a.store.UpdateIssue(r.Context(), id, request)
	if err != nil {
		writeError(w, err)
		return
	}
	if updated == nil {
		writeError(w, civic.ErrorFromStatus(http.StatusNotFound, "issue not found"))
		return
	}

	payload, _ := json.Marshal(updated)
	a.notify("issue", core.OperationUpdate, payload)
	writeData(w, http.StatusOK, updated, "")
}

func (a *API) deleteIssue(w http.ResponseWriter, r *http.Request, identity *Identity) {
	id, cerr := issueIDFromRequest(r)
	if cerr != nil {
		writeError(w, cerr)
		return
	}
	issue, err := a.store.Issue(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if issue == nil {
		writeError(w, civic.ErrorFromStatus(http.StatusNotFound, "issue not found"))
		return
	}
	if issue.UserID != identity.UserID {
		writeError(w, civic.ErrorFromStatus(http.StatusForbidden, "you can only delete your own issues"))
		return
	}

	if err := a.store.DeleteIssue(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	// uploaded images are keyed per user, not per issue, so they stay
	// behind; a deleted issue simply stops referencing its image_url

	payload, _ := json.Marshal(issue)
	a.notify("issue", core.OperationDelete, payload)
	writeData(w, http.StatusOK, nil, "issue deleted")
}

// toggleUpvote flips the caller's upvote on the issue. Upvoting twice
// returns to the original state.
func (a *API) toggleUpvote(w http.ResponseWriter, r *http.Request, identity *Identity) {
	id, cerr := issueIDFromRequest(r)
	if cerr != nil {
		writeError(w, cerr)
		return
	}
	issue, err := a.store.Issue(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if issue == nil {
		writeError(w, civic.ErrorFromStatus(http.StatusNotFound, "issue not found"))
		return
	}

	upvoted, err := a.store.HasUpvoted(r.Context(), id, identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	var upvotes int
	if upvoted {
		upvotes, err = a.store.RemoveUpvote(r.Context(), id, identity.UserID)
	} else {
		upvotes, err = a.store.AddUpvote(r.Context(), id, identity.UserID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	result := civic.UpvoteResult{Upvoted: !upvoted, Upvotes: upvotes}
	payload, _ := json.Marshal(result)
	a.notify("upvote", core.OperationUpdate, payload)
	writeData(w, http.StatusOK, result, "")
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	id, cerr := issueIDFromRequest(r)
	if cerr != nil {
		writeError(w, cerr)
		return
	}
	comments, err := a.store.Comments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, comments, "")
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request, identity *Identity) {
	id, cerr := issueIDFromRequest(r)
	if cerr != nil {
		writeError(w, cerr)
		return
	}
	var request civic.CreateCommentRequest
	if err := readBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, err)
		return
	}

	issue, err := a.store.Issue(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if issue == nil {
		writeError(w, civic.ErrorFromStatus(http.StatusNotFound, "issue not found"))
		return
	}

	comment := civic.Comment{IssueID: id, UserID: identity.UserID, Content: request.Content}
	if err := a.store.CreateComment(r.Context(), &comment); err != nil {
		writeError(w, err)
		return
	}

	payload, _ := json.Marshal(comment)
	a.notify("comment", core.OperationCreate, payload)
	writeData(w, http.StatusCreated, comment, "")
}

// imageUploadURL hands out a pre-signed PUT URL for an issue image,
// plus the matching GET URL to store as the issue's image_url.
func (a *API) imageUploadURL(w http.ResponseWriter, r *http.Request, identity *Identity) {
	key := "issues/" + identity.UserID.String() + "/" + uuid.New().String()

	uploadURL, err := a.kss.GetPreSignedURL(http.MethodPut, key, 15*time.Minute)
	if err != nil {
		writeError(w, civic.ErrorFromStatus(http.StatusInternalServerError, "cannot sign upload url"))
		return
	}
	downloadURL, err := a.kss.GetPreSignedURL(http.MethodGet, key, 24*365*time.Hour)
	if err != nil {
		writeError(w, civic.ErrorFromStatus(http.StatusInternalServerError, "cannot sign download url"))
		return
	}

	writeData(w, http.StatusOK, map[string]string{
		"key":          key,
		"upload_url":   uploadURL,
		"download_url": downloadURL,
	}, "")
}
