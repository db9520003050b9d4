package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

func (d Datasource) CreateProvider(ctx context.Context, provider *model.Provider) (*model.Provider, error) {
	profileJSON, err := json.Marshal(provider.Profile)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal provider profile", err)
	}

	provider.CreatedAt = time.Now()
	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO providers(provider_id, display_name, profile, created_at)
		VALUES ($1,$2,$3,$4)
	`, provider.ProviderID, provider.DisplayName, profileJSON, provider.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record provider", err)
	}
	return provider, nil
}

func (d Datasource) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT provider_id, display_name, profile, created_at
		FROM providers WHERE provider_id = $1
	`, id)

	provider := &model.Provider{}
	var displayName sql.NullString
	var profileJSON []byte
	err := row.Scan(&provider.ProviderID, &displayName, &profileJSON, &provider.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Provider with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve provider", err)
	}
	provider.DisplayName = displayName.String
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &provider.Profile); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal provider profile", err)
		}
	}
	return provider, nil
}
