package userstore

import (
	"context"

	"github.com/dalemusser/teamhub/internal/app/system/apperr"
	"github.com/dalemusser/teamhub/internal/app/system/timeouts"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Fetcher implements auth.UserFetcher to load fresh user data on each request.
type Fetcher struct {
	s *Store
}

// NewFetcher creates a UserFetcher over the given store.
func NewFetcher(s *Store) *Fetcher {
	return &Fetcher{s: s}
}

// GetByUID loads the profile fields a request needs. Missing users are
// apperr NotFound; transient store failures are retried before giving up.
func (f *Fetcher) GetByUID(ctx context.Context, uid string) (models.User, error) {
	var u models.User
	err := apperr.RetryRead(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		defer cancel()

		proj := options.FindOne().SetProjection(bson.M{
			"uid":          1,
			"email":        1,
			"display_name": 1,
			"role":         1,
			"department":   1,
		})
		return f.s.c.FindOne(ctx, bson.M{"uid": uid}, proj).Decode(&u)
	})
	if err != nil {
		return models.User{}, apperr.FromStore("users.fetch", err)
	}
	return u, nil
}
