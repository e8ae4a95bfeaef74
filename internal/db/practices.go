package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
)

// ListStudentPractices lists every practice of a student, newest first
func (db *DB) ListStudentPractices(ctx context.Context, studentID uuid.UUID) ([]types.Practice, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, student_id, vacancy_id, application_id, status, started_at, ended_at, created_at
		 FROM practices WHERE student_id = $1
		 ORDER BY created_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list practices: %w", err)
	}
	defer rows.Close()

	var practices []types.Practice
	for rows.Next() {
		var p types.Practice
		if err := rows.Scan(&p.ID, &p.StudentID, &p.PostingID, &p.ApplicationID, &p.Status,
			&p.StartedAt, &p.EndedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan practice: %w", err)
		}
		practices = append(practices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate practices: %w", err)
	}
	return practices, nil
}
