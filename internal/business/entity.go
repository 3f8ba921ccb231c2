// Package business resolves observed business listings into canonical
// entities and merges each observation into the matching record.
package business

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidObservation is returned when an observation lacks a field
	// required for resolution.
	ErrInvalidObservation = eris.New("business: invalid observation")
	// ErrDuplicateKey is returned by stores when a create collides with an
	// existing unique_key.
	ErrDuplicateKey = eris.New("business: duplicate unique key")
	// ErrStaleEntity is returned by stores when an update targets a version
	// that is no longer current.
	ErrStaleEntity = eris.New("business: stale entity version")
	// ErrContention is returned when a resolution keeps losing update races.
	ErrContention = eris.New("business: write contention")
)

// Observation is one source's report about a business.
type Observation struct {
	BusinessName string   `json:"business_name" yaml:"business_name"`
	City         string   `json:"city" yaml:"city"`
	WebsiteURL   string   `json:"website_url,omitempty" yaml:"website_url,omitempty"`
	Phone        string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	Address      string   `json:"address,omitempty" yaml:"address,omitempty"`
	SourceID     string   `json:"source_id" yaml:"source_id"`
	Score        *int     `json:"score,omitempty" yaml:"score,omitempty"`
	Analysis     Analysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	NeededRoles  []string `json:"needed_roles,omitempty" yaml:"needed_roles,omitempty"`
	Issues       []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Validate checks the fields every observation must carry.
func (o Observation) Validate() error {
	var missing []string
	if strings.TrimSpace(o.BusinessName) == "" {
		missing = append(missing, "business_name")
	}
	if strings.TrimSpace(o.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(o.SourceID) == "" {
		missing = append(missing, "source_id")
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrInvalidObservation, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Entity is the canonical persisted record of one real-world business.
type Entity struct {
	ID           string    `json:"id" yaml:"id"`
	BusinessName string    `json:"business_name" yaml:"business_name"`
	City         string    `json:"city" yaml:"city"`
	WebsiteURL   string    `json:"website_url,omitempty" yaml:"website_url,omitempty"`
	Phone        string    `json:"phone,omitempty" yaml:"phone,omitempty"`
	Address      string    `json:"address,omitempty" yaml:"address,omitempty"`
	Sources      []string  `json:"sources" yaml:"sources"`
	ContentHash  string    `json:"content_hash" yaml:"content_hash"`
	UniqueKey    string    `json:"unique_key" yaml:"unique_key"`
	Score        int       `json:"score" yaml:"score"`
	Analysis     Analysis  `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	NeededRoles  []string  `json:"needed_roles,omitempty" yaml:"needed_roles,omitempty"`
	Issues       []string  `json:"issues,omitempty" yaml:"issues,omitempty"`
	Version      int64     `json:"version" yaml:"version"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	LastSeenAt   time.Time `json:"last_seen_at" yaml:"last_seen_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// Resolution is the outcome of resolving one observation.
type Resolution struct {
	EntityID string  `json:"entity_id" yaml:"entity_id"`
	Created  bool    `json:"created" yaml:"created"`
	Changed  bool    `json:"changed" yaml:"changed"`
	Score    float64 `json:"score" yaml:"score"`
	Attempts int     `json:"attempts" yaml:"attempts"`
}

func clampScore(s int) int {
	return min(max(s, 0), 100)
}
