package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
)

// StudentSearchLimit caps the candidates returned when adding a group member.
const StudentSearchLimit = 8

// ListGroups lists the groups of a professor by name, with member counts
func (db *DB) ListGroups(ctx context.Context, professorID uuid.UUID) ([]types.Group, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT g.id, g.professor_id, g.name, g.color, COALESCE(g.term, ''), g.hidden,
		        (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id), g.created_at
		 FROM groups g WHERE g.professor_id = $1
		 ORDER BY g.name ASC`,
		professorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []types.Group
	for rows.Next() {
		var g types.Group
		if err := rows.Scan(&g.ID, &g.ProfessorID, &g.Name, &g.Color, &g.Term, &g.Hidden, &g.MemberCount, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// GetGroup retrieves a group owned by the professor
func (db *DB) GetGroup(ctx context.Context, professorID, groupID uuid.UUID) (*types.Group, error) {
	var g types.Group
	err := db.pool.QueryRow(ctx,
		`SELECT g.id, g.professor_id, g.name, g.color, COALESCE(g.term, ''), g.hidden,
		        (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id), g.created_at
		 FROM groups g WHERE g.id = $1 AND g.professor_id = $2`,
		groupID, professorID,
	).Scan(&g.ID, &g.ProfessorID, &g.Name, &g.Color, &g.Term, &g.Hidden, &g.MemberCount, &g.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// CreateGroup creates a group for the professor
func (db *DB) CreateGroup(ctx context.Context, professorID uuid.UUID, req types.CreateGroupRequest) (*types.Group, error) {
	color := req.Color
	if color == "" {
		color = types.DefaultGroupColor
	}
	g := types.Group{ProfessorID: professorID, Name: strings.TrimSpace(req.Name), Color: color, Term: req.Term}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO groups (professor_id, name, color, term)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, hidden, created_at`,
		professorID, g.Name, g.Color, nullIfEmpty(g.Term),
	).Scan(&g.ID, &g.Hidden, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return &g, nil
}

// UpdateGroup patches a group owned by the professor. It returns nil when no owned group matched.
func (db *DB) UpdateGroup(ctx context.Context, professorID, groupID uuid.UUID, req types.UpdateGroupRequest) (*types.Group, error) {
	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		name = &trimmed
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE groups
		 SET name = COALESCE($1, name), color = COALESCE($2, color),
		     term = COALESCE($3, term), hidden = COALESCE($4, hidden)
		 WHERE id = $5 AND professor_id = $6`,
		name, req.Color, req.Term, req.Hidden, groupID, professorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, nil
	}
	return db.GetGroup(ctx, professorID, groupID)
}

// DeleteGroup deletes a group owned by the professor and reports whether it existed
func (db *DB) DeleteGroup(ctx context.Context, professorID, groupID uuid.UUID) (bool, error) {
	result, err := db.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1 AND professor_id = $2`, groupID, professorID)
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListGroupMembers lists the students of a group by name, each with their
// latest application and practice
func (db *DB) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]types.GroupMember, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT p.id, p.full_name, p.email, COALESCE(p.avatar_url, ''), COALESCE(pr.name, ''), m.added_at,
		        a.id, a.status, COALESCE(a.decision, ''), a.title, a.company_name, a.applied_at,
		        COALESCE(pc.status, ''),
		        EXISTS (SELECT 1 FROM applications o WHERE o.student_id = p.id AND o.status = 'oferta'),
		        EXISTS (SELECT 1 FROM applications o WHERE o.student_id = p.id AND o.status IN ('aceptada', 'en_proceso'))
		          OR EXISTS (SELECT 1 FROM practices x WHERE x.student_id = p.id AND x.status = 'active')
		 FROM group_members m
		 JOIN profiles p ON p.id = m.student_id
		 LEFT JOIN programs pr ON pr.id = p.program_id
		 LEFT JOIN LATERAL (
		     SELECT ap.id, ap.status, ap.decision, v.title, c.name AS company_name, ap.applied_at
		     FROM applications ap
		     JOIN vacancies v ON v.id = ap.vacancy_id
		     JOIN companies c ON c.id = v.company_id
		     WHERE ap.student_id = p.id
		     ORDER BY ap.applied_at DESC
		     LIMIT 1
		 ) a ON TRUE
		 LEFT JOIN LATERAL (
		     SELECT x.status FROM practices x
		     WHERE x.student_id = p.id
		     ORDER BY (x.status = 'active') DESC, x.created_at DESC
		     LIMIT 1
		 ) pc ON TRUE
		 WHERE m.group_id = $1
		 ORDER BY p.full_name ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var members []types.GroupMember
	for rows.Next() {
		var (
			m         types.GroupMember
			appID     *uuid.UUID
			status    *string
			decision  string
			title     *string
			company   *string
			appliedAt *time.Time
		)
		if err := rows.Scan(&m.ID, &m.FullName, &m.Email, &m.AvatarURL, &m.ProgramName, &m.AddedAt,
			&appID, &status, &decision, &title, &company, &appliedAt,
			&m.PracticeStatus, &m.HasOffer, &m.Placed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		if appID != nil {
			m.Application = &types.MemberApplication{
				ID:           *appID,
				Status:       types.ApplicationStatus(deref(status)),
				Decision:     decision,
				PostingTitle: deref(title),
				CompanyName:  deref(company),
				AppliedAt:    *appliedAt,
			}
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}
	return members, nil
}

// ErrNotStudent is returned when a group member candidate is missing or not a student.
var ErrNotStudent = errors.New("profile is not a student")

// AddGroupMember adds a student to a group. It reports false when the
// student was already a member and ErrNotStudent when the profile is
// missing or has another role.
func (db *DB) AddGroupMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error) {
	var isStudent, added bool
	err := db.pool.QueryRow(ctx,
		`WITH student AS (
		     SELECT id FROM profiles WHERE id = $2 AND role = 'student'
		 ), ins AS (
		     INSERT INTO group_members (group_id, student_id)
		     SELECT $1, id FROM student
		     ON CONFLICT (group_id, student_id) DO NOTHING
		     RETURNING 1
		 )
		 SELECT EXISTS (SELECT 1 FROM student), EXISTS (SELECT 1 FROM ins)`,
		groupID, studentID,
	).Scan(&isStudent, &added)
	if err != nil {
		return false, fmt.Errorf("failed to add group member: %w", err)
	}
	if !isStudent {
		return false, ErrNotStudent
	}
	return added, nil
}

// GetStudentGroup returns the group the student belongs to with its
// professor, or nil when the student is in no group. The earliest
// membership wins when there are several.
func (db *DB) GetStudentGroup(ctx context.Context, studentID uuid.UUID) (*types.StudentGroup, error) {
	var g types.StudentGroup
	err := db.pool.QueryRow(ctx,
		`SELECT g.id, g.name, g.color, g.professor_id, p.full_name, p.email
		 FROM group_members m
		 JOIN groups g ON g.id = m.group_id
		 JOIN profiles p ON p.id = g.professor_id
		 WHERE m.student_id = $1
		 ORDER BY m.added_at ASC
		 LIMIT 1`,
		studentID,
	).Scan(&g.ID, &g.Name, &g.Color, &g.ProfessorID, &g.ProfessorName, &g.ProfessorEmail)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get student group: %w", err)
	}
	return &g, nil
}

// RemoveGroupMember removes a student from a group
func (db *DB) RemoveGroupMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND student_id = $2`,
		groupID, studentID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove group member: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// SearchStudents matches students by name or email. term must already be
// stripped of LIKE wildcards.
func (db *DB) SearchStudents(ctx context.Context, term string) ([]types.StudentSummary, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT p.id, p.full_name, p.email, COALESCE(p.avatar_url, ''), COALESCE(pr.name, '')
		 FROM profiles p LEFT JOIN programs pr ON pr.id = p.program_id
		 WHERE p.role = 'student' AND (p.full_name ILIKE $1 OR p.email ILIKE $1)
		 ORDER BY p.full_name ASC
		 LIMIT $2`,
		"%"+term+"%", StudentSearchLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search students: %w", err)
	}
	defer rows.Close()

	var students []types.StudentSummary
	for rows.Next() {
		var s types.StudentSummary
		if err := rows.Scan(&s.ID, &s.FullName, &s.Email, &s.AvatarURL, &s.ProgramName); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate students: %w", err)
	}
	return students, nil
}
