package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/internship-portal/internal/types"
)

const applicationDetailQuery = `SELECT a.id, a.student_id, a.vacancy_id, a.status, COALESCE(a.decision, ''),
	       a.applied_at, a.decision_at, v.title, c.id, c.name, c.owner_id,
	       p.full_name, p.email, COALESCE(p.avatar_url, ''), COALESCE(p.cv_url, ''), COALESCE(pr.name, '')
	FROM applications a
	JOIN vacancies v ON v.id = a.vacancy_id
	JOIN companies c ON c.id = v.company_id
	JOIN profiles p ON p.id = a.student_id
	LEFT JOIN programs pr ON pr.id = p.program_id`

func scanApplicationDetail(row pgx.Row, d *types.ApplicationDetail) error {
	return row.Scan(&d.ID, &d.StudentID, &d.PostingID, &d.Status, &d.Decision,
		&d.AppliedAt, &d.DecisionAt, &d.PostingTitle, &d.CompanyID, &d.CompanyName, &d.CompanyOwnerID,
		&d.StudentName, &d.StudentEmail, &d.StudentAvatarURL, &d.StudentCVURL, &d.ProgramName)
}

func collectApplicationDetails(rows pgx.Rows) ([]types.ApplicationDetail, error) {
	defer rows.Close()
	var details []types.ApplicationDetail
	for rows.Next() {
		var d types.ApplicationDetail
		if err := scanApplicationDetail(rows, &d); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return details, nil
}

// GetApplicationDetail retrieves an application joined with its vacancy, company and student
func (db *DB) GetApplicationDetail(ctx context.Context, id uuid.UUID) (*types.ApplicationDetail, error) {
	var d types.ApplicationDetail
	err := scanApplicationDetail(db.pool.QueryRow(ctx, applicationDetailQuery+` WHERE a.id = $1`, id), &d)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &d, nil
}

// ListStudentApplications lists every application of a student, newest first
func (db *DB) ListStudentApplications(ctx context.Context, studentID uuid.UUID) ([]types.Application, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, student_id, vacancy_id, status, COALESCE(decision, ''), applied_at, decision_at
		 FROM applications WHERE student_id = $1
		 ORDER BY applied_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []types.Application
	for rows.Next() {
		var a types.Application
		if err := rows.Scan(&a.ID, &a.StudentID, &a.PostingID, &a.Status, &a.Decision, &a.AppliedAt, &a.DecisionAt); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

// ListStudentApplicationDetails lists a student's applications with vacancy and company names
func (db *DB) ListStudentApplicationDetails(ctx context.Context, studentID uuid.UUID) ([]types.ApplicationDetail, error) {
	rows, err := db.pool.Query(ctx, applicationDetailQuery+` WHERE a.student_id = $1 ORDER BY a.applied_at DESC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list student applications: %w", err)
	}
	return collectApplicationDetails(rows)
}

// ListAppliedPostingIDs returns the vacancies the student has applied to
func (db *DB) ListAppliedPostingIDs(ctx context.Context, studentID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return db.listIDs(ctx, "applied vacancies",
		`SELECT DISTINCT vacancy_id FROM applications WHERE student_id = $1 LIMIT $2`,
		studentID, limit)
}

// ApplicationFilter holds optional filters for listing a company's applications
type ApplicationFilter struct {
	OwnerID   uuid.UUID
	PostingID *uuid.UUID
	Statuses  []string
	Limit     int
}

// ListCompanyApplications lists applications to vacancies of the company owned by f.OwnerID
func (db *DB) ListCompanyApplications(ctx context.Context, f ApplicationFilter) ([]types.ApplicationDetail, error) {
	query := applicationDetailQuery + ` WHERE c.owner_id = $1`
	args := []any{f.OwnerID}
	argNum := 2

	if f.PostingID != nil {
		query += fmt.Sprintf(" AND a.vacancy_id = $%d", argNum)
		args = append(args, *f.PostingID)
		argNum++
	}
	if len(f.Statuses) > 0 {
		query += fmt.Sprintf(" AND a.status = ANY($%d::text[])", argNum)
		args = append(args, f.Statuses)
		argNum++
	}
	query += " ORDER BY a.applied_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, f.Limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list company applications: %w", err)
	}
	return collectApplicationDetails(rows)
}

// ApplyAndNotify creates the application and the company notification in one
// server-side transaction and returns the application ID.
func (db *DB) ApplyAndNotify(ctx context.Context, studentID, postingID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	if err := db.pool.QueryRow(ctx, `SELECT apply_and_notify($1, $2)`, studentID, postingID).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// AcceptOffer accepts the student's offer and opens the practice in one server-side transaction.
func (db *DB) AcceptOffer(ctx context.Context, studentID, applicationID uuid.UUID) error {
	if _, err := db.pool.Exec(ctx, `SELECT student_accept_offer($1, $2)`, studentID, applicationID); err != nil {
		return err
	}
	return nil
}

// UpdateApplicationStatus applies u only while the row still holds u.From and
// is owned by u.ActorID in u.ActorRole. It reports whether a row matched.
func (db *DB) UpdateApplicationStatus(ctx context.Context, u types.StatusUpdate) (bool, error) {
	set := `SET status = $1,
	            decision = COALESCE($2::text, a.decision),
	            decision_at = CASE WHEN $2::text IS NULL THEN a.decision_at ELSE $3::timestamptz END`

	var query string
	switch u.ActorRole {
	case types.RoleCompany:
		query = `UPDATE applications a ` + set + `
			FROM vacancies v JOIN companies c ON c.id = v.company_id
			WHERE a.id = $4 AND a.status = $5 AND v.id = a.vacancy_id AND c.owner_id = $6`
	case types.RoleStudent:
		query = `UPDATE applications a ` + set + `
			WHERE a.id = $4 AND a.status = $5 AND a.student_id = $6`
	default:
		return false, fmt.Errorf("role %q cannot update applications", u.ActorRole)
	}

	result, err := db.pool.Exec(ctx, query,
		string(u.To), nullIfEmpty(u.Decision), u.DecisionAt, u.ApplicationID, string(u.From), u.ActorID)
	if err != nil {
		return false, fmt.Errorf("failed to update application status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// listIDs runs a single-column UUID query.
func (db *DB) listIDs(ctx context.Context, what, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", what, err)
	}
	return ids, nil
}
