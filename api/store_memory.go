package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
)

// MemoryStore is an in-memory Store driver. It mirrors the postgres
// driver's semantics and is used in unit tests, the same way the kss
// local filesystem driver stands in for S3.
type MemoryStore struct {
	mutex    sync.RWMutex
	issues   map[uuid.UUID]*civic.Issue
	markers  map[string]uuid.UUID
	comments map[uuid.UUID][]civic.Comment
	upvotes  map[uuid.UUID]map[uuid.UUID]time.Time // issue -> user -> upvoted at
	profiles map[uuid.UUID]*civic.Profile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues:   map[uuid.UUID]*civic.Issue{},
		markers:  map[string]uuid.UUID{},
		comments: map[uuid.UUID][]civic.Comment{},
		upvotes:  map[uuid.UUID]map[uuid.UUID]time.Time{},
		profiles: map[uuid.UUID]*civic.Profile{},
	}
}

func (s *MemoryStore) author(userID uuid.UUID) *civic.Author {
	profile, ok := s.profiles[userID]
	if !ok {
		return nil
	}
	return &civic.Author{DisplayName: profile.DisplayName, AvatarURL: profile.AvatarURL}
}

func (s *MemoryStore) enrich(issue *civic.Issue) civic.Issue {
	enriched := *issue
	enriched.Author = s.author(issue.UserID)
	enriched.CommentsCount = len(s.comments[issue.ID])
	enriched.Comments = nil
	return enriched
}

// CreateIssue stores a new issue; see Store.
func (s *MemoryStore) CreateIssue(ctx context.Context, issue *civic.Issue, marker string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if marker != "" {
		if id, ok := s.markers[marker]; ok {
			*issue = s.enrich(s.issues[id])
			return nil
		}
	}
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	stored := *issue
	s.issues[issue.ID] = &stored
	if marker != "" {
		s.markers[marker] = issue.ID
	}
	*issue = s.enrich(&stored)
	return nil
}

// IssueByMarker returns the issue created with marker, or nil.
func (s *MemoryStore) IssueByMarker(ctx context.Context, marker string) (*civic.Issue, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	id, ok := s.markers[marker]
	if !ok {
		return nil, nil
	}
	issue := s.enrich(s.issues[id])
	return &issue, nil
}

// Issue returns one issue with comments embedded, or nil.
func (s *MemoryStore) Issue(ctx context.Context, id uuid.UUID) (*civic.Issue, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stored, ok := s.issues[id]
	if !ok {
		return nil, nil
	}
	issue := s.enrich(stored)
	comments := append([]civic.Comment{}, s.comments[id]...)
	for i := range comments {
		comments[i].Author = s.author(comments[i].UserID)
	}
	issue.Comments = comments
	issue.CommentsCount = len(comments)
	return &issue, nil
}

func sortIssues(issues []civic.Issue, sortBy, sortOrder string) {
	ascending := sortOrder == "asc"
	sort.SliceStable(issues, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "updated_at":
			less = issues[i].UpdatedAt.Before(issues[j].UpdatedAt)
		case "upvotes":
			less = issues[i].Upvotes < issues[j].Upvotes
		case "title":
			less = issues[i].Title < issues[j].Title
		default: // created_at
			less = issues[i].CreatedAt.Before(issues[j].CreatedAt)
		}
		if ascending {
			return less
		}
		return !less
	})
}

// Issues returns one page of the collection; see Store.
func (s *MemoryStore) Issues(ctx context.Context, query civic.ListQuery, owner uuid.UUID) ([]civic.Issue, int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	query = query.Normalize()

	all := make([]civic.Issue, 0, len(s.issues))
	for _, stored := range s.issues {
		if owner != uuid.Nil && stored.UserID != owner {
			continue
		}
		if query.Status != "" && query.Status != "all" && stored.Status != query.Status {
			continue
		}
		if query.Category != "" && stored.Category != query.Category {
			continue
		}
		if query.Priority != "" && stored.Priority != query.Priority {
			continue
		}
		all = append(all, s.enrich(stored))
	}
	// secondary key keeps page boundaries stable for equal sort keys
	sort.Slice(all, func(i, j int) bool {
		return strings.Compare(all[i].ID.String(), all[j].ID.String()) < 0
	})
	sortIssues(all, query.SortBy, query.SortOrder)

	total := len(all)
	from := query.Offset
	if from > total {
		from = total
	}
	to := from + query.Limit
	if to > total {
		to = total
	}
	return append([]civic.Issue{}, all[from:to]...), total, nil
}

// UpdateIssue patches the stored issue; see Store.
func (s *MemoryStore) UpdateIssue(ctx context.Context, id uuid.UUID, update civic.UpdateIssueRequest) (*civic.Issue, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	stored, ok := s.issues[id]
	if !ok {
		return nil, nil
	}
	if update.Title != nil {
		stored.Title = *update.Title
	}
	if update.Description != nil {
		stored.Description = *update.Description
	}
	if update.Category != nil {
		stored.Category = *update.Category
	}
	if update.Status != nil {
		stored.Status = *update.Status
	}
	if update.Priority != nil {
		stored.Priority = *update.Priority
	}
	stored.UpdatedAt = time.Now().UTC()
	issue := s.enrich(stored)
	return &issue, nil
}

// DeleteIssue removes the issue and its comments and upvotes.
func (s *MemoryStore) DeleteIssue(ctx context.Context, id uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.issues, id)
	delete(s.comments, id)
	delete(s.upvotes, id)
	for marker, markedID := range s.markers {
		if markedID == id {
			delete(s.markers, marker)
		}
	}
	return nil
}

// Comments returns the issue's comments, oldest first.
func (s *MemoryStore) Comments(ctx context.Context, issueID uuid.UUID) ([]civic.Comment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	comments := append([]civic.Comment{}, s.comments[issueID]...)
	for i := range comments {
		comments[i].Author = s.author(comments[i].UserID)
	}
	return comments, nil
}

// CreateComment stores a new comment.
func (s *MemoryStore) CreateComment(ctx context.Context, comment *civic.Comment) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.IssueID] = append(s.comments[comment.IssueID], *comment)
	comment.Author = s.author(comment.UserID)
	return nil
}

// HasUpvoted reports whether the user currently upvotes the issue.
func (s *MemoryStore) HasUpvoted(ctx context.Context, issueID, userID uuid.UUID) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.upvotes[issueID][userID]
	return ok, nil
}

// AddUpvote records an upvote; see Store.
func (s *MemoryStore) AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	stored, ok := s.issues[issueID]
	if !ok {
		return 0, nil
	}
	if s.upvotes[issueID] == nil {
		s.upvotes[issueID] = map[uuid.UUID]time.Time{}
	}
	if _, voted := s.upvotes[issueID][userID]; !voted {
		s.upvotes[issueID][userID] = time.Now().UTC()
		stored.Upvotes++
	}
	return stored.Upvotes, nil
}

// RemoveUpvote withdraws an upvote; see Store.
func (s *MemoryStore) RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	stored, ok := s.issues[issueID]
	if !ok {
		return 0, nil
	}
	if _, voted := s.upvotes[issueID][userID]; voted {
		delete(s.upvotes[issueID], userID)
		if stored.Upvotes > 0 {
			stored.Upvotes--
		}
	}
	return stored.Upvotes, nil
}

// UpvotedIDs returns which of the given issues the user has upvoted.
func (s *MemoryStore) UpvotedIDs(ctx context.Context, userID uuid.UUID, issueIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	upvoted := map[uuid.UUID]bool{}
	for _, id := range issueIDs {
		if _, ok := s.upvotes[id][userID]; ok {
			upvoted[id] = true
		}
	}
	return upvoted, nil
}

// UpvotedIssues returns the user's upvoted issues, most recent upvote first.
func (s *MemoryStore) UpvotedIssues(ctx context.Context, userID uuid.UUID, limit, offset int) ([]civic.Issue, int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	type upvoted struct {
		issue civic.Issue
		at    time.Time
	}
	all := []upvoted{}
	for issueID, users := range s.upvotes {
		at, ok := users[userID]
		if !ok {
			continue
		}
		stored, ok := s.issues[issueID]
		if !ok {
			continue
		}
		issue := s.enrich(stored)
		issue.UserHasUpvoted = true
		all = append(all, upvoted{issue: issue, at: at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })

	total := len(all)
	if offset > total {
		offset = total
	}
	to := offset + limit
	if to > total {
		to = total
	}
	issues := make([]civic.Issue, 0, to-offset)
	for _, u := range all[offset:to] {
		issues = append(issues, u.issue)
	}
	return issues, total, nil
}

// Profile returns the user's profile, or nil.
func (s *MemoryStore) Profile(ctx context.Context, userID uuid.UUID) (*civic.Profile, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	copied := *profile
	return &copied, nil
}

// UpsertProfile creates or replaces the user's profile.
func (s *MemoryStore) UpsertProfile(ctx context.Context, profile *civic.Profile) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.profiles[profile.UserID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	copied := *profile
	s.profiles[profile.UserID] = &copied
	return nil
}

// Stats summarizes the user's activity.
func (s *MemoryStore) Stats(ctx context.Context, userID uuid.UUID) (*civic.Stats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stats := civic.Stats{}
	for _, issue := range s.issues {
		if issue.UserID != userID {
			continue
		}
		stats.TotalIssues++
		switch issue.Status {
		case civic.StatusPending:
			stats.PendingIssues++
		case civic.StatusInProgress:
			stats.InProgressIssues++
		case civic.StatusResolved:
			stats.ResolvedIssues++
		case civic.StatusRejected:
			stats.RejectedIssues++
		}
	}
	for _, users := range s.upvotes {
		if _, ok := users[userID]; ok {
			stats.TotalUpvotes++
		}
	}
	for _, comments := range s.comments {
		for _, comment := range comments {
			if comment.UserID == userID {
				stats.TotalComments++
			}
		}
	}
	return &stats, nil
}

// Ping always succeeds for the in-memory driver.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
