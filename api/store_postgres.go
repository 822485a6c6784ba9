package api

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/csql"
)

// PostgresStore is the production Store driver. It creates its tables
// inside the database's schema at startup.
type PostgresStore struct {
	db *csql.DB
}

// NewPostgresStore creates the postgres store and its tables.
// It panics if the tables cannot be created.
func NewPostgresStore(db *csql.DB) *PostgresStore {
	_, err := db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s."civic_issue" (
  issue_id uuid DEFAULT uuid_generate_v4() PRIMARY KEY,
  user_id uuid NOT NULL,
  title varchar NOT NULL,
  description varchar NOT NULL,
  category varchar NOT NULL,
  status varchar NOT NULL DEFAULT 'pending',
  priority varchar NOT NULL DEFAULT 'medium',
  location_description varchar NOT NULL DEFAULT '',
  location_lat double precision,
  location_lng double precision,
  image_url varchar NOT NULL DEFAULT '',
  upvotes integer NOT NULL DEFAULT 0,
  idempotency_marker varchar UNIQUE,
  created_at timestamp NOT NULL DEFAULT now(),
  updated_at timestamp NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[1]s."issue_comment" (
  comment_id uuid DEFAULT uuid_generate_v4() PRIMARY KEY,
  issue_id uuid NOT NULL REFERENCES %[1]s."civic_issue"(issue_id) ON DELETE CASCADE,
  user_id uuid NOT NULL,
  content varchar NOT NULL,
  created_at timestamp NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[1]s."issue_upvote" (
  issue_id uuid NOT NULL REFERENCES %[1]s."civic_issue"(issue_id) ON DELETE CASCADE,
  user_id uuid NOT NULL,
  created_at timestamp NOT NULL DEFAULT now(),
  PRIMARY KEY (issue_id, user_id)
);
CREATE TABLE IF NOT EXISTS %[1]s."profile" (
  user_id uuid PRIMARY KEY,
  display_name varchar NOT NULL,
  phone varchar NOT NULL DEFAULT '',
  avatar_url varchar NOT NULL DEFAULT '',
  created_at timestamp NOT NULL DEFAULT now(),
  updated_at timestamp NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS issue_user_id ON %[1]s."civic_issue"(user_id);
CREATE INDEX IF NOT EXISTS issue_comment_issue_id ON %[1]s."issue_comment"(issue_id);
`, db.Schema))
	if err != nil {
		panic(err)
	}
	return &PostgresStore{db: db}
}

const issueColumns = `i.issue_id, i.user_id, i.title, i.description, i.category, i.status,
i.priority, i.location_description, i.location_lat, i.location_lng, i.image_url,
i.upvotes, i.created_at, i.updated_at, p.display_name, p.avatar_url,
(SELECT count(*) FROM %[1]s."issue_comment" c WHERE c.issue_id = i.issue_id)`

func (s *PostgresStore) issueQuery() string {
	return fmt.Sprintf(`SELECT `+issueColumns+` FROM %[1]s."civic_issue" i
LEFT JOIN %[1]s."profile" p ON p.user_id = i.user_id`, s.db.Schema)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row scanner) (*civic.Issue, error) {
	var issue civic.Issue
	var lat, lng sql.NullFloat64
	var displayName, avatarURL sql.NullString
	err := row.Scan(&issue.ID, &issue.UserID, &issue.Title, &issue.Description,
		&issue.Category, &issue.Status, &issue.Priority, &issue.LocationDescription,
		&lat, &lng, &issue.ImageURL, &issue.Upvotes,
		&issue.CreatedAt, &issue.UpdatedAt, &displayName, &avatarURL, &issue.CommentsCount)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		issue.LocationCoordinates = &civic.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if displayName.Valid {
		issue.Author = &civic.Author{DisplayName: displayName.String, AvatarURL: avatarURL.String}
	}
	return &issue, nil
}

// CreateIssue inserts a new issue; see Store. When marker is set and a
// row with that marker already exists, the existing row is returned.
func (s *PostgresStore) CreateIssue(ctx context.Context, issue *civic.Issue, marker string) error {
	var lat, lng interface{}
	if issue.LocationCoordinates != nil {
		lat = issue.LocationCoordinates.Lat
		lng = issue.LocationCoordinates.Lng
	}
	markerValue := sql.NullString{String: marker, Valid: marker != ""}
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s."civic_issue"
(user_id, title, description, category, status, priority, location_description,
 location_lat, location_lng, image_url, idempotency_marker)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING issue_id, created_at, updated_at`, s.db.Schema),
		issue.UserID, issue.Title, issue.Description, issue.Category,
		issue.Status, issue.Priority, issue.LocationDescription,
		lat, lng, issue.ImageURL, markerValue,
	).Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" && marker != "" {
			existing, lookupErr := s.IssueByMarker(ctx, marker)
			if lookupErr == nil && existing != nil {
				*issue = *existing
				return nil
			}
		}
		return err
	}
	return nil
}

// IssueByMarker returns the issue created with marker, or nil.
func (s *PostgresStore) IssueByMarker(ctx context.Context, marker string) (*civic.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx,
		s.issueQuery()+` WHERE i.idempotency_marker = $1`, marker))
	if err == csql.ErrNoRows {
		return nil, nil
	}
	return issue, err
}

// Issue returns one issue with comments embedded, or nil.
func (s *PostgresStore) Issue(ctx context.Context, id uuid.UUID) (*civic.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx,
		s.issueQuery()+` WHERE i.issue_id = $1`, id))
	if err == csql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	comments, err := s.Comments(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.Comments = comments
	issue.CommentsCount = len(comments)
	return issue, nil
}

var issueSortColumns = map[string]string{
	"created_at": "i.created_at",
	"updated_at": "i.updated_at",
	"upvotes":    "i.upvotes",
	"title":      "i.title",
}

// Issues returns one page of the collection plus the total count; see Store.
func (s *PostgresStore) Issues(ctx context.Context, query civic.ListQuery, owner uuid.UUID) ([]civic.Issue, int, error) {
	query = query.Normalize()

	where := ""
	args := []interface{}{}
	and := func(condition string, value interface{}) {
		args = append(args, value)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(condition, len(args))
	}
	if owner != uuid.Nil {
		and("i.user_id = $%d", owner)
	}
	if query.Status != "" && query.Status != "all" {
		and("i.status = $%d", query.Status)
	}
	if query.Category != "" {
		and("i.category = $%d", query.Category)
	}
	if query.Priority != "" {
		and("i.priority = $%d", query.Priority)
	}

	sortColumn, ok := issueSortColumns[query.SortBy]
	if !ok {
		sortColumn = "i.created_at"
	}
	direction := "DESC"
	if query.SortOrder == "asc" {
		direction = "ASC"
	}
	args = append(args, query.Limit, query.Offset)
	order := fmt.Sprintf(" ORDER BY %s %s, i.issue_id LIMIT $%d OFFSET $%d",
		sortColumn, direction, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT `+issueColumns+`, count(*) OVER()
FROM %[1]s."civic_issue" i
LEFT JOIN %[1]s."profile" p ON p.user_id = i.user_id`, s.db.Schema)+where+order, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	issues := []civic.Issue{}
	total := 0
	for rows.Next() {
		var issue civic.Issue
		var lat, lng sql.NullFloat64
		var displayName, avatarURL sql.NullString
		err := rows.Scan(&issue.ID, &issue.UserID, &issue.Title, &issue.Description,
			&issue.Category, &issue.Status, &issue.Priority, &issue.LocationDescription,
			&lat, &lng, &issue.ImageURL, &issue.Upvotes,
			&issue.CreatedAt, &issue.UpdatedAt, &displayName, &avatarURL,
			&issue.CommentsCount, &total)
		if err != nil {
			return nil, 0, err
		}
		if lat.Valid && lng.Valid {
			issue.LocationCoordinates = &civic.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
		}
		if displayName.Valid {
			issue.Author = &civic.Author{DisplayName: displayName.String, AvatarURL: avatarURL.String}
		}
		issues = append(issues, issue)
	}
	return issues, total, rows.Err()
}

// UpdateIssue patches the stored issue and returns the new state, or
// nil when the issue does not exist.
func (s *PostgresStore) UpdateIssue(ctx context.Context, id uuid.UUID, update civic.UpdateIssueRequest) (*civic.Issue, error) {
	sets := ""
	args := []interface{}{id}
	set := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets += fmt.Sprintf(", %s = $%d", column, len(args))
	}
	set("title", update.Title)
	set("description", update.Description)
	set("category", update.Category)
	set("status", update.Status)
	set("priority", update.Priority)

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %[1]s."civic_issue"
SET updated_at = now()%[2]s WHERE issue_id = $1`, s.db.Schema, sets), args...)
	if err != nil {
		return nil, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	issue, err := scanIssue(s.db.QueryRowContext(ctx,
		s.issueQuery()+` WHERE i.issue_id = $1`, id))
	if err == csql.ErrNoRows {
		return nil, nil
	}
	return issue, err
}

// DeleteIssue removes the issue; comments and upvotes cascade.
func (s *PostgresStore) DeleteIssue(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %[1]s."civic_issue" WHERE issue_id = $1`, s.db.Schema), id)
	return err
}

// Comments returns the issue's comments, oldest first.
func (s *PostgresStore) Comments(ctx context.Context, issueID uuid.UUID) ([]civic.Comment, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT
c.comment_id, c.issue_id, c.user_id, c.content, c.created_at, p.display_name, p.avatar_url
FROM %[1]s."issue_comment" c
LEFT JOIN %[1]s."profile" p ON p.user_id = c.user_id
WHERE c.issue_id = $1 ORDER BY c.created_at, c.comment_id`, s.db.Schema), issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []civic.Comment{}
	for rows.Next() {
		var comment civic.Comment
		var displayName, avatarURL sql.NullString
		err := rows.Scan(&comment.ID, &comment.IssueID, &comment.UserID,
			&comment.Content, &comment.CreatedAt, &displayName, &avatarURL)
		if err != nil {
			return nil, err
		}
		if displayName.Valid {
			comment.Author = &civic.Author{DisplayName: displayName.String, AvatarURL: avatarURL.String}
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

// CreateComment inserts a new comment.
func (s *PostgresStore) CreateComment(ctx context.Context, comment *civic.Comment) error {
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s."issue_comment"
(issue_id, user_id, content) VALUES($1,$2,$3)
RETURNING comment_id, created_at`, s.db.Schema),
		comment.IssueID, comment.UserID, comment.Content,
	).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		return err
	}
	var displayName, avatarURL sql.NullString
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT display_name, avatar_url FROM %[1]s."profile" WHERE user_id = $1`,
		s.db.Schema), comment.UserID).Scan(&displayName, &avatarURL)
	if err == nil {
		comment.Author = &civic.Author{DisplayName: displayName.String, AvatarURL: avatarURL.String}
	} else if err != csql.ErrNoRows {
		return err
	}
	return nil
}

// HasUpvoted reports whether the user currently upvotes the issue.
func (s *PostgresStore) HasUpvoted(ctx context.Context, issueID, userID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT 1 FROM %[1]s."issue_upvote" WHERE issue_id = $1 AND user_id = $2`,
		s.db.Schema), issueID, userID).Scan(&one)
	if err == csql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// AddUpvote records an upvote and returns the new counter. Re-adding
// an existing upvote is a no-op.
func (s *PostgresStore) AddUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s."issue_upvote"
(issue_id, user_id) VALUES($1,$2) ON CONFLICT DO NOTHING`, s.db.Schema), issueID, userID)
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return s.upvoteCount(ctx, issueID)
	}
	var upvotes int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`UPDATE %[1]s."civic_issue"
SET upvotes = upvotes + 1 WHERE issue_id = $1 RETURNING upvotes`, s.db.Schema),
		issueID).Scan(&upvotes)
	return upvotes, err
}

// RemoveUpvote withdraws an upvote and returns the new counter.
func (s *PostgresStore) RemoveUpvote(ctx context.Context, issueID, userID uuid.UUID) (int, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %[1]s."issue_upvote" WHERE issue_id = $1 AND user_id = $2`,
		s.db.Schema), issueID, userID)
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return s.upvoteCount(ctx, issueID)
	}
	var upvotes int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`UPDATE %[1]s."civic_issue"
SET upvotes = greatest(upvotes - 1, 0) WHERE issue_id = $1 RETURNING upvotes`, s.db.Schema),
		issueID).Scan(&upvotes)
	return upvotes, err
}

func (s *PostgresStore) upvoteCount(ctx context.Context, issueID uuid.UUID) (int, error) {
	var upvotes int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT upvotes FROM %[1]s."civic_issue" WHERE issue_id = $1`, s.db.Schema),
		issueID).Scan(&upvotes)
	if err == csql.ErrNoRows {
		return 0, nil
	}
	return upvotes, err
}

// UpvotedIDs returns which of the given issues the user has upvoted.
func (s *PostgresStore) UpvotedIDs(ctx context.Context, userID uuid.UUID, issueIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	upvoted := map[uuid.UUID]bool{}
	if len(issueIDs) == 0 {
		return upvoted, nil
	}
	ids := make([]string, len(issueIDs))
	for i, id := range issueIDs {
		ids[i] = id.String()
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT issue_id FROM %[1]s."issue_upvote" WHERE user_id = $1 AND issue_id = ANY($2)`,
		s.db.Schema), userID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		upvoted[id] = true
	}
	return upvoted, rows.Err()
}

// UpvotedIssues returns the user's upvoted issues, most recent upvote first.
func (s *PostgresStore) UpvotedIssues(ctx context.Context, userID uuid.UUID, limit, offset int) ([]civic.Issue, int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT `+issueColumns+`, count(*) OVER()
FROM %[1]s."issue_upvote" u
JOIN %[1]s."civic_issue" i ON i.issue_id = u.issue_id
LEFT JOIN %[1]s."profile" p ON p.user_id = i.user_id
WHERE u.user_id = $1
ORDER BY u.created_at DESC, i.issue_id LIMIT $2 OFFSET $3`, s.db.Schema),
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	issues := []civic.Issue{}
	total := 0
	for rows.Next() {
		var issue civic.Issue
		var lat, lng sql.NullFloat64
		var displayName, avatarURL sql.NullString
		err := rows.Scan(&issue.ID, &issue.UserID, &issue.Title, &issue.Description,
			&issue.Category, &issue.Status, &issue.Priority, &issue.LocationDescription,
			&lat, &lng, &issue.ImageURL, &issue.Upvotes,
			&issue.CreatedAt, &issue.UpdatedAt, &displayName, &avatarURL,
			&issue.CommentsCount, &total)
		if err != nil {
			return nil, 0, err
		}
		if lat.Valid && lng.Valid {
			issue.LocationCoordinates = &civic.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
		}
		if displayName.Valid {
			issue.Author = &civic.Author{DisplayName: displayName.String, AvatarURL: avatarURL.String}
		}
		issue.UserHasUpvoted = true
		issues = append(issues, issue)
	}
	return issues, total, rows.Err()
}

// Profile returns the user's profile, or nil.
func (s *PostgresStore) Profile(ctx context.Context, userID uuid.UUID) (*civic.Profile, error) {
	var profile civic.Profile
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT user_id, display_name, phone, avatar_url, created_at, updated_at
FROM %[1]s."profile" WHERE user_id = $1`, s.db.Schema),
		userID).Scan(&profile.UserID, &profile.DisplayName, &profile.Phone,
		&profile.AvatarURL, &profile.CreatedAt, &profile.UpdatedAt)
	if err == csql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile creates or replaces the user's profile.
func (s *PostgresStore) UpsertProfile(ctx context.Context, profile *civic.Profile) error {
	return s.db.QueryRowContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s."profile"
(user_id, display_name, phone, avatar_url) VALUES($1,$2,$3,$4)
ON CONFLICT (user_id) DO UPDATE SET
  display_name = EXCLUDED.display_name,
  phone = EXCLUDED.phone,
  avatar_url = EXCLUDED.avatar_url,
  updated_at = now()
RETURNING created_at, updated_at`, s.db.Schema),
		profile.UserID, profile.DisplayName, profile.Phone, profile.AvatarURL,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
}

// Stats summarizes the user's activity.
func (s *PostgresStore) Stats(ctx context.Context, userID uuid.UUID) (*civic.Stats, error) {
	var stats civic.Stats
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT
  count(*),
  count(*) FILTER (WHERE status = 'pending'),
  count(*) FILTER (WHERE status = 'in_progress'),
  count(*) FILTER (WHERE status = 'resolved'),
  count(*) FILTER (WHERE status = 'rejected'),
  (SELECT count(*) FROM %[1]s."issue_upvote" WHERE user_id = $1),
  (SELECT count(*) FROM %[1]s."issue_comment" WHERE user_id = $1)
FROM %[1]s."civic_issue" WHERE user_id = $1`, s.db.Schema),
		userID).Scan(&stats.TotalIssues, &stats.PendingIssues, &stats.InProgressIssues,
		&stats.ResolvedIssues, &stats.RejectedIssues, &stats.TotalUpvotes, &stats.TotalComments)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
