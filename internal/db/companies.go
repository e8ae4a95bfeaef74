package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------
// Company Methods
// -----------------------------------------------------------------------------

const companyColumns = `id, owner_id, name, COALESCE(email, ''), COALESCE(industry, ''), COALESCE(website, ''),
	COALESCE(description, ''), COALESCE(logo_url, ''), COALESCE(location_text, ''), status, updated_at`

// GetCompanyByOwner retrieves the company managed by a profile
func (db *DB) GetCompanyByOwner(ctx context.Context, ownerID uuid.UUID) (*types.Company, error) {
	var c types.Company
	err := db.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE owner_id = $1`,
		ownerID,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Industry, &c.Website,
		&c.Description, &c.LogoURL, &c.LocationText, &c.Status, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// UpdateCompany stores the editable company fields
func (db *DB) UpdateCompany(ctx context.Context, ownerID uuid.UUID, req types.UpdateCompanyRequest) (*types.Company, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE companies
		 SET name = $1, email = $2, industry = $3, website = $4, description = $5, location_text = $6,
		     updated_at = NOW()
		 WHERE owner_id = $7`,
		strings.TrimSpace(req.Name), nullIfEmpty(req.Email), nullIfEmpty(req.Industry), nullIfEmpty(req.Website),
		nullIfEmpty(req.Description), nullIfEmpty(req.LocationText), ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, nil
	}
	return db.GetCompanyByOwner(ctx, ownerID)
}

// SetCompanyLogo stores the public URL of the company logo; "" clears it
func (db *DB) SetCompanyLogo(ctx context.Context, ownerID uuid.UUID, url string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE companies SET logo_url = $1, updated_at = NOW() WHERE owner_id = $2`,
		nullIfEmpty(url), ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update company logo: %w", err)
	}
	return nil
}

// recentApplicationsLimit is the number of applications shown on the company panel.
const recentApplicationsLimit = 5

// GetCompanyDashboard loads the KPIs of the company panel. It returns nil
// when the owner has no company.
func (db *DB) GetCompanyDashboard(ctx context.Context, ownerID uuid.UUID) (*types.CompanyDashboard, error) {
	company, err := db.GetCompanyByOwner(ctx, ownerID)
	if err != nil || company == nil {
		return nil, err
	}

	dash := &types.CompanyDashboard{Company: company}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := db.pool.QueryRow(gctx,
			`SELECT COUNT(*), COUNT(*) FILTER (WHERE status IN ('activa', 'active'))
			 FROM vacancies WHERE company_id = $1`,
			company.ID,
		).Scan(&dash.PostingsTotal, &dash.PostingsActive)
		if err != nil {
			return fmt.Errorf("failed to count postings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := db.pool.QueryRow(gctx,
			`SELECT COUNT(*) FROM applications a JOIN vacancies v ON v.id = a.vacancy_id
			 WHERE v.company_id = $1`,
			company.ID,
		).Scan(&dash.ApplicationsTotal)
		if err != nil {
			return fmt.Errorf("failed to count applications: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		recent, err := db.ListCompanyApplications(gctx, ApplicationFilter{OwnerID: ownerID, Limit: recentApplicationsLimit})
		if err != nil {
			return err
		}
		dash.RecentApplications = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if dash.RecentApplications == nil {
		dash.RecentApplications = []types.ApplicationDetail{}
	}
	return dash, nil
}
