package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/internship-portal/internal/types"
)

// ListFavoriteIDs returns the vacancies the student marked as favorite
func (db *DB) ListFavoriteIDs(ctx context.Context, studentID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return db.listIDs(ctx, "favorites",
		`SELECT vacancy_id FROM vacancy_favorites WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2`,
		studentID, limit)
}

// ListHiddenIDs returns the vacancies the student hid from search
func (db *DB) ListHiddenIDs(ctx context.Context, studentID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return db.listIDs(ctx, "hidden vacancies",
		`SELECT vacancy_id FROM vacancy_hidden WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2`,
		studentID, limit)
}

// ListFavoritePostings returns the favorite vacancies with their company,
// most recently marked first
func (db *DB) ListFavoritePostings(ctx context.Context, studentID uuid.UUID, limit int) ([]types.Posting, error) {
	return db.listMarkedPostings(ctx, "vacancy_favorites", studentID, limit)
}

// ListHiddenPostings returns the hidden vacancies with their company,
// most recently hidden first
func (db *DB) ListHiddenPostings(ctx context.Context, studentID uuid.UUID, limit int) ([]types.Posting, error) {
	return db.listMarkedPostings(ctx, "vacancy_hidden", studentID, limit)
}

// table is one of the two marker tables, never user input
func (db *DB) listMarkedPostings(ctx context.Context, table string, studentID uuid.UUID, limit int) ([]types.Posting, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+postingColumns+`
		 FROM `+table+` m
		 JOIN vacancies v ON v.id = m.vacancy_id
		 JOIN companies c ON c.id = v.company_id
		 WHERE m.student_id = $1
		 ORDER BY m.created_at DESC
		 LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list marked vacancies: %w", err)
	}
	return collectPostings(rows)
}

// SetFavorite adds or removes a favorite marker
func (db *DB) SetFavorite(ctx context.Context, studentID, postingID uuid.UUID, on bool) error {
	query := `DELETE FROM vacancy_favorites WHERE student_id = $1 AND vacancy_id = $2`
	if on {
		query = `INSERT INTO vacancy_favorites (student_id, vacancy_id) VALUES ($1, $2)
		         ON CONFLICT (student_id, vacancy_id) DO NOTHING`
	}
	if _, err := db.pool.Exec(ctx, query, studentID, postingID); err != nil {
		return fmt.Errorf("failed to set favorite: %w", err)
	}
	return nil
}

// SetHidden adds or removes a hidden marker. Hiding also drops the favorite.
func (db *DB) SetHidden(ctx context.Context, studentID, postingID uuid.UUID, on bool) error {
	if !on {
		if _, err := db.pool.Exec(ctx,
			`DELETE FROM vacancy_hidden WHERE student_id = $1 AND vacancy_id = $2`,
			studentID, postingID,
		); err != nil {
			return fmt.Errorf("failed to unhide vacancy: %w", err)
		}
		return nil
	}

	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO vacancy_hidden (student_id, vacancy_id) VALUES ($1, $2)
			 ON CONFLICT (student_id, vacancy_id) DO NOTHING`,
			studentID, postingID,
		); err != nil {
			return fmt.Errorf("failed to hide vacancy: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM vacancy_favorites WHERE student_id = $1 AND vacancy_id = $2`,
			studentID, postingID,
		); err != nil {
			return fmt.Errorf("failed to drop favorite: %w", err)
		}
		return nil
	})
}
