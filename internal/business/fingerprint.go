package business

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
)

// hashedFields is the canonical form of the mergeable fields of an entity.
type hashedFields struct {
	BusinessName string   `json:"business_name"`
	City         string   `json:"city"`
	WebsiteURL   string   `json:"website_url"`
	Phone        string   `json:"phone"`
	Address      string   `json:"address"`
	Score        int      `json:"score"`
	Sources      []string `json:"sources"`
	NeededRoles  []string `json:"needed_roles"`
	Issues       []string `json:"issues"`
	Analysis     Analysis `json:"analysis"`
}

// ContentHash returns the hex SHA-256 of the mergeable fields of e. Sets are
// sorted first so that member order does not affect the hash.
func ContentHash(e Entity) string {
	fields := hashedFields{
		BusinessName: e.BusinessName,
		City:         e.City,
		WebsiteURL:   e.WebsiteURL,
		Phone:        e.Phone,
		Address:      e.Address,
		Score:        e.Score,
		Sources:      sorted(e.Sources),
		NeededRoles:  sorted(e.NeededRoles),
		Issues:       sorted(e.Issues),
	}
	if len(e.Analysis) > 0 {
		fields.Analysis = e.Analysis
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		// Analysis values that cannot be encoded are excluded.
		fields.Analysis = nil
		payload, _ = json.Marshal(fields)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func sorted(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
