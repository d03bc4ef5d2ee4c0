package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/victorivanov/courier/internal/models"
)

// directoryRepo reads the platform's user directory table. Courier never
// writes to it; account management lives elsewhere.
type directoryRepo struct {
	pool *pgxpool.Pool
}

func NewDirectoryRepository(pool *pgxpool.Pool) DirectoryRepository {
	return &directoryRepo{pool: pool}
}

func (r *directoryRepo) GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error) {
	if len(userIDs) == 0 {
		return map[int64]models.Profile{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, username, display_name, avatar_url, created_at
		 FROM users
		 WHERE id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make(map[int64]models.Profile, len(userIDs))
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.UserID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles[p.UserID] = p
	}
	return profiles, rows.Err()
}

func (r *directoryRepo) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	p := &models.Profile{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, display_name, avatar_url, created_at
		 FROM users
		 WHERE id = $1`, userID,
	).Scan(&p.UserID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}
