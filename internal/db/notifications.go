package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
)

// CreateNotification inserts a student notification
func (db *DB) CreateNotification(ctx context.Context, n types.Notification) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO notifications (student_id, type, title, body, action_url)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.StudentID, n.Type, n.Title, n.Body, nullIfEmpty(n.ActionURL),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications lists a student's notifications, newest first
func (db *DB) ListNotifications(ctx context.Context, studentID uuid.UUID, limit int) ([]types.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, student_id, type, title, body, COALESCE(action_url, ''), read_at, created_at
		 FROM notifications WHERE student_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []types.Notification
	for rows.Next() {
		var n types.Notification
		if err := rows.Scan(&n.ID, &n.StudentID, &n.Type, &n.Title, &n.Body, &n.ActionURL, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}

// CountNotifications counts a student's notifications
func (db *DB) CountNotifications(ctx context.Context, studentID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE student_id = $1`, studentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead stamps read_at on a notification owned by the student
func (db *DB) MarkNotificationRead(ctx context.Context, studentID, id uuid.UUID) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, NOW()) WHERE id = $1 AND student_id = $2`,
		id, studentID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
