package users

import (
	"strings"
	"time"

	"github.com/castellan-platform/castellan/internal/permissions"
)

// User represents a managed user account. The active/confirmed flags and
// the blocked flag are the axes of the moderation state machine.
type User struct {
	ID       int64
	Username string
	Email    string
	FullName string

	Active    bool
	Confirmed bool
	Blocked   bool

	Visibility      string
	EmailVisibility string

	Roles []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resource snapshots the user for permission evaluation.
func (u *User) Resource() *permissions.Resource {
	if u == nil {
		return nil
	}
	return &permissions.Resource{
		Kind: permissions.KindUser,
		ID:   u.ID,
		Name: u.Username,
		Preferences: map[string]string{
			"visibility":       u.Visibility,
			"email_visibility": u.EmailVisibility,
		},
		Roles: append([]string(nil), u.Roles...),
	}
}

// Document renders the user in the shape the search index stores.
func (u *User) Document() map[string]any {
	return map[string]any{
		"id":                           u.ID,
		"username":                     u.Username,
		"email":                        u.Email,
		"active":                       u.Active,
		"confirmed":                    u.Confirmed,
		"blocked":                      u.Blocked,
		"preferences.visibility":       u.Visibility,
		"preferences.email_visibility": u.EmailVisibility,
	}
}

// Avatar is the rendered avatar metadata for an account.
type Avatar struct {
	Initial string `json:"initial"`
	Color   string `json:"color"`
}

var avatarColors = []string{"#e06055", "#f06292", "#ba68c8", "#9575cd", "#7986cb", "#64b5f6", "#4dd0e1", "#4db6ac", "#81c784", "#ffb74d"}

// AvatarFor derives deterministic avatar metadata from the account.
func AvatarFor(name string, id int64) Avatar {
	initial := "?"
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		initial = strings.ToUpper(trimmed[:1])
	}
	n := len(avatarColors)
	color := avatarColors[((int(id%int64(n)))+n)%n]
	return Avatar{Initial: initial, Color: color}
}

// GroupRef is the slice of a group the users module needs when managing
// role membership.
type GroupRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsManaged   bool   `json:"is_managed"`
}

// Resource snapshots the group for permission evaluation.
func (g *GroupRef) Resource() *permissions.Resource {
	if g == nil {
		return nil
	}
	return &permissions.Resource{
		Kind:      permissions.KindGroup,
		ID:        g.ID,
		Name:      g.Name,
		IsManaged: g.IsManaged,
	}
}
