package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/internship-portal/internal/types"
)

const postingColumns = `v.id, v.company_id, c.name, COALESCE(c.logo_url, ''), v.title, v.modality,
	COALESCE(v.compensation, ''), COALESCE(v.language, ''), COALESCE(v.activities, ''),
	COALESCE(v.requirements, ''), COALESCE(v.location_text, ''), v.rating_avg::float8, v.rating_count,
	v.status, v.spots_total, v.spots_taken, v.spots_left, v.created_at`

func scanPosting(row pgx.Row, p *types.Posting) error {
	return row.Scan(&p.ID, &p.CompanyID, &p.CompanyName, &p.CompanyLogo, &p.Title, &p.Modality,
		&p.Compensation, &p.Language, &p.Activities, &p.Requirements, &p.LocationText,
		&p.RatingAvg, &p.RatingCount, &p.Status, &p.SpotsTotal, &p.SpotsTaken, &p.SpotsLeft, &p.CreatedAt)
}

func collectPostings(rows pgx.Rows) ([]types.Posting, error) {
	defer rows.Close()
	var postings []types.Posting
	for rows.Next() {
		var p types.Posting
		if err := scanPosting(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate postings: %w", err)
	}
	return postings, nil
}

// GetPosting retrieves a vacancy with its company by ID
func (db *DB) GetPosting(ctx context.Context, id uuid.UUID) (*types.Posting, error) {
	var p types.Posting
	err := scanPosting(db.pool.QueryRow(ctx,
		`SELECT `+postingColumns+`
		 FROM vacancies v JOIN companies c ON c.id = v.company_id
		 WHERE v.id = $1`,
		id,
	), &p)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get posting: %w", err)
	}
	return &p, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// SearchPostings lists open vacancies linked to q.ProgramID, newest first.
// Text is matched against the title, the location and the company name.
func (db *DB) SearchPostings(ctx context.Context, q types.PostingQuery) ([]types.Posting, error) {
	query := `SELECT ` + postingColumns + `
		FROM vacancies v JOIN companies c ON c.id = v.company_id
		WHERE v.status IN ('activa', 'active') AND v.spots_left > 0
		  AND EXISTS (SELECT 1 FROM vacancy_programs vp WHERE vp.vacancy_id = v.id AND vp.program_id = $1)`
	args := []any{q.ProgramID}
	argNum := 2

	if q.Text != "" {
		query += fmt.Sprintf(" AND (v.title ILIKE $%d OR v.location_text ILIKE $%d OR c.name ILIKE $%d)", argNum, argNum, argNum)
		args = append(args, "%"+q.Text+"%")
		argNum++
	}
	if q.Location != "" {
		query += fmt.Sprintf(" AND v.location_text ILIKE $%d", argNum)
		args = append(args, "%"+q.Location+"%")
		argNum++
	}
	if q.Modality != "" {
		query += fmt.Sprintf(" AND v.modality = $%d", argNum)
		args = append(args, q.Modality)
		argNum++
	}
	if len(q.Compensation) > 0 {
		query += fmt.Sprintf(" AND v.compensation = ANY($%d::text[])", argNum)
		args = append(args, q.Compensation)
		argNum++
	}
	if q.Language != "" {
		query += fmt.Sprintf(" AND v.language = $%d", argNum)
		args = append(args, q.Language)
		argNum++
	}
	if len(q.ExcludeIDs) > 0 {
		query += fmt.Sprintf(" AND NOT (v.id = ANY($%d::uuid[]))", argNum)
		args = append(args, uuidStrings(q.ExcludeIDs))
		argNum++
	}

	if q.Limit <= 0 {
		q.Limit = 20
	}
	query += fmt.Sprintf(" ORDER BY v.created_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search postings: %w", err)
	}
	return collectPostings(rows)
}

// ListCompanyPostings lists every vacancy of a company, newest first
func (db *DB) ListCompanyPostings(ctx context.Context, companyID uuid.UUID) ([]types.Posting, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+postingColumns+`
		 FROM vacancies v JOIN companies c ON c.id = v.company_id
		 WHERE v.company_id = $1
		 ORDER BY v.created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list company postings: %w", err)
	}
	return collectPostings(rows)
}

// CreatePosting inserts an active vacancy and links it to its programs
func (db *DB) CreatePosting(ctx context.Context, companyID uuid.UUID, req types.CreatePostingRequest) (*types.Posting, error) {
	var id uuid.UUID
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO vacancies (company_id, title, modality, compensation, language,
			                        activities, requirements, location_text, spots_total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			companyID, req.Title, req.Modality, nullIfEmpty(req.Compensation), nullIfEmpty(req.Language),
			nullIfEmpty(req.Activities), nullIfEmpty(req.Requirements), nullIfEmpty(req.LocationText), req.SpotsTotal,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create posting: %w", err)
		}

		for _, programID := range req.ProgramIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO vacancy_programs (vacancy_id, program_id) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`,
				id, programID,
			); err != nil {
				return fmt.Errorf("failed to link posting program: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.GetPosting(ctx, id)
}

// UpdatePostingStatus sets the status of a vacancy owned by ownerID.
// It reports false when no owned vacancy matched.
func (db *DB) UpdatePostingStatus(ctx context.Context, ownerID, postingID uuid.UUID, status string) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE vacancies v SET status = $1
		 FROM companies c
		 WHERE v.id = $2 AND c.id = v.company_id AND c.owner_id = $3`,
		status, postingID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update posting status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
