package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/internal/repository"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const listingKeyPrefix = "listing:"

// ListingCache is a read-through cache in front of the listing store. It
// satisfies repository.ListingRepository. Entries live for ttl unless
// Invalidate drops them earlier; Redis failures fall back to the source.
type ListingCache struct {
	redis  *redis.Client
	source repository.ListingRepository
	ttl    time.Duration
}

func NewListingCache(redisClient *redis.Client, source repository.ListingRepository, ttl time.Duration) *ListingCache {
	return &ListingCache{redis: redisClient, source: source, ttl: ttl}
}

func (c *ListingCache) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	key := listingKeyPrefix + id

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var listing models.Listing
		if err := json.Unmarshal(data, &listing); err == nil {
			return &listing, nil
		}
		log.WithField("listing_id", id).Warn("dropping undecodable cached listing")
	case err != redis.Nil:
		log.WithError(err).WithField("listing_id", id).Warn("listing cache read failed")
	}

	listing, err := c.source.GetByID(ctx, id)
	if err != nil || listing == nil {
		return listing, err
	}

	if data, err := json.Marshal(listing); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.WithError(err).WithField("listing_id", id).Warn("listing cache write failed")
		}
	}
	return listing, nil
}

// Invalidate drops the cached copy, e.g. after the catalogue changed a price.
func (c *ListingCache) Invalidate(ctx context.Context, id string) error {
	return c.redis.Del(ctx, listingKeyPrefix+id).Err()
}
