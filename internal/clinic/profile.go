// Package clinic holds the practice profile printed on invoices.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const profileKey = "clinic:practice:profile"

// Profile identifies the practice on issued documents.
type Profile struct {
	Name            string `json:"name" validate:"required"`
	Practitioner    string `json:"practitioner"`
	Address         string `json:"address"`
	PostalCode      string `json:"postalCode"`
	City            string `json:"city"`
	Phone           string `json:"phone"`
	Email           string `json:"email" validate:"omitempty,email"`
	SIRET           string `json:"siret" validate:"omitempty,len=14,numeric"`
	ADELI           string `json:"adeli" validate:"omitempty,len=9"`
	PaymentTermDays int    `json:"paymentTermDays" validate:"min=0,max=365"`
	Footer          string `json:"footer"`
}

// VATNotice is printed on every invoice; osteopathy care is exempt.
const VATNotice = "TVA non applicable, article 261-4-1° du CGI"

// Store keeps the profile as a single JSON document in Redis.
type Store struct {
	redis    *redis.Client
	defaults Profile
}

// NewStore returns a store that falls back to defaults until a profile is
// saved.
func NewStore(redisClient *redis.Client, defaults Profile) *Store {
	return &Store{redis: redisClient, defaults: defaults}
}

// Get returns the saved profile or the defaults. A nil store or client
// serves the defaults.
func (s *Store) Get(ctx context.Context) (Profile, error) {
	if s == nil {
		return Profile{}, nil
	}
	if s.redis == nil {
		return s.defaults, nil
	}
	data, err := s.redis.Get(ctx, profileKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.defaults, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("clinic: get profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("clinic: unmarshal profile: %w", err)
	}
	return p, nil
}

func (s *Store) Set(ctx context.Context, p Profile) error {
	if s == nil || s.redis == nil {
		return errors.New("clinic: profile store not configured")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("clinic: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, profileKey, data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set profile: %w", err)
	}
	return nil
}
