package profile

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/victorivanov/courier/internal/database"
	"github.com/victorivanov/courier/internal/models"
	"github.com/victorivanov/courier/internal/redis"
)

// Lookup maps user IDs to display metadata. The result map may omit IDs the
// directory does not know; callers fall back to Placeholder for those.
type Lookup interface {
	GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error)
}

// Placeholder is the degraded identity used when the directory has no
// profile for a user. Rendering never fails on a missing profile.
func Placeholder(userID int64) models.Profile {
	name := "user-" + strconv.FormatInt(userID, 10)
	return models.Profile{
		UserID:      userID,
		Username:    name,
		DisplayName: "Unknown User",
	}
}

// Service resolves profiles from the platform's user directory, with a
// Redis cache in front. A nil cache disables caching.
type Service struct {
	directory database.DirectoryRepository
	cache     *redis.Client
}

func NewService(directory database.DirectoryRepository, cache *redis.Client) *Service {
	return &Service{directory: directory, cache: cache}
}

func (s *Service) GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error) {
	result := make(map[int64]models.Profile, len(userIDs))

	var misses []int64
	for _, id := range dedupe(userIDs) {
		if s.cache != nil {
			cached, err := s.cache.GetCachedProfile(ctx, id)
			if err != nil {
				// Cache trouble degrades to a directory read.
				slog.Warn("profile cache read failed", "userID", id, "error", err)
			} else if cached != nil {
				result[id] = *cached
				continue
			}
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := s.directory.GetProfiles(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, p := range fetched {
		result[id] = p
		if s.cache != nil {
			if err := s.cache.CacheProfile(ctx, p); err != nil {
				slog.Warn("profile cache write failed", "userID", id, "error", err)
			}
		}
	}
	return result, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
