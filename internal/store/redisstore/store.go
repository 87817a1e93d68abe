package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// positionTTL keeps stale providers out of the discovery read path when
// their pings stop.
const positionTTL = 5 * time.Minute

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

type position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

func positionKey(userID uint64) string {
	return fmt.Sprintf("provider:pos:%d", userID)
}

// SetProviderPosition mirrors a provider's live position for discovery.
func (s *Store) SetProviderPosition(ctx context.Context, userID uint64, lat, lon float64) error {
	body, err := json.Marshal(position{Latitude: lat, Longitude: lon, UpdatedAt: time.Now()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, positionKey(userID), body, positionTTL).Err()
}

// GetProviderPosition returns the mirrored position, or redis.Nil when the
// provider has not pinged recently.
func (s *Store) GetProviderPosition(ctx context.Context, userID uint64) (lat, lon float64, updatedAt time.Time, err error) {
	body, err := s.rdb.Get(ctx, positionKey(userID)).Bytes()
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	var p position
	if err := json.Unmarshal(body, &p); err != nil {
		return 0, 0, time.Time{}, err
	}
	return p.Latitude, p.Longitude, p.UpdatedAt, nil
}
