package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

const submissionColumns = `id, kind, name, email, phone, organization, role, message,
	preferred_time, status, notes, created_at, updated_at`

// SubmissionRepository stores contact, waitlist and demo submissions
type SubmissionRepository struct {
	db *sql.DB
}

var _ repositories.SubmissionRepository = (*SubmissionRepository)(nil)

// Create implements repositories.SubmissionRepository
func (r *SubmissionRepository) Create(ctx context.Context, submission *entities.Submission) error {
	if submission == nil {
		return errors.New("submission cannot be nil")
	}
	if err := submission.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO submissions (` + submissionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		submission.ID, string(submission.Kind), submission.Name, submission.Email,
		submission.Phone, submission.Organization, submission.Role, submission.Message,
		nullableTime(submission.PreferredTime), string(submission.Status), submission.Notes,
		submission.CreatedAt.UnixNano(), submission.UpdatedAt.UnixNano(),
	)
	if isUniqueViolation(err) {
		return repositories.ErrDuplicateSubmission
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetByID implements repositories.SubmissionRepository
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*entities.Submission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	submission, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repositories.ErrSubmissionNotFound
	}
	return submission, err
}

// List implements repositories.SubmissionRepository. Newest first.
func (r *SubmissionRepository) List(ctx context.Context, filter repositories.SubmissionFilter) ([]*entities.Submission, error) {
	var where []string
	var args []interface{}
	if filter.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Email != nil {
		where = append(where, "email = ?")
		args = append(args, *filter.Email)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	result := make([]*entities.Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, submission)
	}
	return result, rows.Err()
}

// Update implements repositories.SubmissionRepository
func (r *SubmissionRepository) Update(ctx context.Context, update repositories.SubmissionUpdate) (*entities.Submission, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UnixNano()}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *update.Notes)
	}
	args = append(args, update.ID)

	result, err := r.db.ExecContext(ctx, `UPDATE submissions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, repositories.ErrSubmissionNotFound
	}
	return r.GetByID(ctx, update.ID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*entities.Submission, error) {
	var s entities.Submission
	var kind, status string
	var preferred sql.NullInt64
	var created, updated int64
	err := row.Scan(
		&s.ID, &kind, &s.Name, &s.Email, &s.Phone, &s.Organization, &s.Role, &s.Message,
		&preferred, &status, &s.Notes, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan submission row: %w", err)
	}
	s.Kind = entities.SubmissionKind(kind)
	s.Status = entities.SubmissionStatus(status)
	s.PreferredTime = timeFromNull(preferred)
	s.CreatedAt = time.Unix(0, created).UTC()
	s.UpdatedAt = time.Unix(0, updated).UTC()
	return &s, nil
}
