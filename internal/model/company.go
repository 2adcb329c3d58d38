// Package model defines the records shared by the fetch and analysis pipelines.
package model

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// Company is the subject of a web-intelligence fetch or a todo analysis.
type Company struct {
	ID              int64  `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	Website         string `json:"website,omitempty" db:"website"`
	BusinessModel   string `json:"business_model,omitempty" db:"business_model"`
	UserPosition    string `json:"user_position,omitempty" db:"user_position"`
	CustomerProfile string `json:"customer_profile,omitempty" db:"customer_profile"`
	MarketInsights  string `json:"market_insights,omitempty" db:"market_insights"`
	TeamCofounders  int    `json:"team_cofounders" db:"team_cofounders"`
	TeamEmployees   int    `json:"team_employees" db:"team_employees"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TeamSize is the combined founder and employee headcount.
func (c *Company) TeamSize() int {
	if c == nil {
		return 0
	}
	return c.TeamCofounders + c.TeamEmployees
}

// Profile discriminators for the web-fetch evidence snapshot.
const (
	ProfileTypeDomainExtract = "domain_extract"
	SourceTypeAIFromDomain   = "ai_from_domain"
)

// CompanyProfile is an evidence snapshot for a company. At most one row exists
// per (company_id, profile_type, source_type).
type CompanyProfile struct {
	ID            int64           `json:"id" db:"id"`
	CompanyID     int64           `json:"company_id" db:"company_id"`
	ProfileType   string          `json:"profile_type" db:"profile_type"`
	SourceType    string          `json:"source_type" db:"source_type"`
	RawText       string          `json:"raw_text" db:"raw_text"`
	ExtractedJSON json.RawMessage `json:"extracted_json" db:"extracted_json"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// NormalizeWebsite reduces a URL to scheme://host with no trailing slash.
// Returns "" when the input has no host.
func NormalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return strings.TrimRight(scheme+"://"+strings.ToLower(u.Host), "/")
}
