package domains

import (
	"strings"
	"time"
)

// Domain moderation statuses.
const (
	StatusNew       = "new"
	StatusModerated = "moderated"
	StatusVerified  = "verified"
	StatusBlocked   = "blocked"
)

// Domain is an email domain tracked for moderation. Moderators use the
// status and flags to decide how accounts registered under the domain
// are treated.
type Domain struct {
	ID            int64
	Name          string
	TLD           string
	Status        string
	Category      string
	Flagged       bool
	FlaggedSource string
	NumUsers      int64
	NumActive     int64
	NumInactive   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeriveTLD returns the last label of a domain name.
func DeriveTLD(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return name[idx+1:]
}

// Document renders the domain in the shape the search index stores.
func (d *Domain) Document() map[string]any {
	return map[string]any{
		"id":      d.ID,
		"domain":  d.Name,
		"tld":     d.TLD,
		"status":  d.Status,
		"flagged": d.Flagged,
	}
}
