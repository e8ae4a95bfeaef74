package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
)

// GetProfile retrieves a profile with its program
func (db *DB) GetProfile(ctx context.Context, id uuid.UUID) (*types.Profile, error) {
	var (
		p       types.Profile
		progID  *uuid.UUID
		progKey *string
		progNm  *string
		faculty *string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT p.id, p.role, p.full_name, p.email, p.program_id, COALESCE(p.avatar_url, ''), COALESCE(p.cv_url, ''),
		        COALESCE(p.office, ''), COALESCE(p.office_hours, ''), COALESCE(p.institute, ''), p.institute_id,
		        pr.id, pr.key, pr.name, pr.faculty
		 FROM profiles p LEFT JOIN programs pr ON pr.id = p.program_id
		 WHERE p.id = $1`,
		id,
	).Scan(&p.ID, &p.Role, &p.FullName, &p.Email, &p.ProgramID, &p.AvatarURL, &p.CVURL,
		&p.Office, &p.OfficeHours, &p.Institute, &p.InstituteID,
		&progID, &progKey, &progNm, &faculty)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if progID != nil {
		p.Program = &types.Program{ID: *progID, Key: deref(progKey), Name: deref(progNm), Faculty: deref(faculty)}
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetStudentProgramID returns the program of a student, nil when unassigned
func (db *DB) GetStudentProgramID(ctx context.Context, studentID uuid.UUID) (*uuid.UUID, error) {
	var programID *uuid.UUID
	err := db.pool.QueryRow(ctx, `SELECT program_id FROM profiles WHERE id = $1`, studentID).Scan(&programID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get student program: %w", err)
	}
	return programID, nil
}

// SetCVURL stores the public URL of the student's CV; "" clears it
func (db *DB) SetCVURL(ctx context.Context, id uuid.UUID, url string) error {
	if _, err := db.pool.Exec(ctx, `UPDATE profiles SET cv_url = $1 WHERE id = $2`, nullIfEmpty(url), id); err != nil {
		return fmt.Errorf("failed to update cv url: %w", err)
	}
	return nil
}

// SetAvatarURL stores the public URL of the profile avatar; "" clears it
func (db *DB) SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error {
	if _, err := db.pool.Exec(ctx, `UPDATE profiles SET avatar_url = $1 WHERE id = $2`, nullIfEmpty(url), id); err != nil {
		return fmt.Errorf("failed to update avatar url: %w", err)
	}
	return nil
}

// FindInstitute looks an institute up by code or name, case-insensitively
func (db *DB) FindInstitute(ctx context.Context, codeOrName string) (*types.Institute, error) {
	var inst types.Institute
	err := db.pool.QueryRow(ctx,
		`SELECT id, code, name FROM institutes
		 WHERE code ILIKE $1 OR name ILIKE $1
		 ORDER BY code LIMIT 1`,
		codeOrName,
	).Scan(&inst.ID, &inst.Code, &inst.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find institute: %w", err)
	}
	return &inst, nil
}

// UpdateProfessorProfile stores office details. The free-text institute is kept
// as typed and linked to a known institute when one matches.
func (db *DB) UpdateProfessorProfile(ctx context.Context, id uuid.UUID, req types.ProfessorProfileRequest) (*types.Profile, error) {
	institute := strings.TrimSpace(req.Institute)

	var instituteID *uuid.UUID
	if institute != "" {
		inst, err := db.FindInstitute(ctx, institute)
		if err != nil {
			return nil, err
		}
		if inst != nil {
			instituteID = &inst.ID
		}
	}

	if _, err := db.pool.Exec(ctx,
		`UPDATE profiles SET office = $1, office_hours = $2, institute = $3, institute_id = $4
		 WHERE id = $5`,
		nullIfEmpty(strings.TrimSpace(req.Office)), nullIfEmpty(strings.TrimSpace(req.OfficeHours)),
		nullIfEmpty(institute), instituteID, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update professor profile: %w", err)
	}
	return db.GetProfile(ctx, id)
}

// ListPrograms lists every academic program by name
func (db *DB) ListPrograms(ctx context.Context) ([]types.Program, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, key, name, COALESCE(faculty, '') FROM programs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var programs []types.Program
	for rows.Next() {
		var p types.Program
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.Faculty); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate programs: %w", err)
	}
	return programs, nil
}
