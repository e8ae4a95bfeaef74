package db

import (
	"context"
	"fmt"
)

// Policy is one row-level security policy as reported by pg_policies
type Policy struct {
	Table      string   `json:"table"`
	Name       string   `json:"name"`
	Command    string   `json:"command"`
	Roles      []string `json:"roles"`
	Using      string   `json:"using,omitempty"`
	WithCheck  string   `json:"with_check,omitempty"`
	Permissive string   `json:"permissive"`
}

// ListPolicies lists the row-level security policies of the public schema,
// restricted to table when it is not empty.
func (db *DB) ListPolicies(ctx context.Context, table string) ([]Policy, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT tablename, policyname, cmd, roles::text[], COALESCE(qual, ''), COALESCE(with_check, ''), permissive
		 FROM pg_policies
		 WHERE schemaname = 'public' AND ($1 = '' OR tablename = $1)
		 ORDER BY tablename, policyname`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.Table, &p.Name, &p.Command, &p.Roles, &p.Using, &p.WithCheck, &p.Permissive); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policies: %w", err)
	}
	return policies, nil
}
