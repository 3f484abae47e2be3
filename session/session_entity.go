package session

import (
	"context"
	"time"

	"github.com/fundwit/go-commons/types"
)

type Session struct {
	Token       string    `json:"token"`
	Identity    Identity  `json:"identity"`
	IsSuperuser bool      `json:"isSuperuser"`
	IsStaff     bool      `json:"isStaff"`
	SigningTime time.Time `json:"signingTime"`
	ExpiresAt   time.Time `json:"expiresAt"`

	Context context.Context `json:"-"`
}

// Identity is the acting user. Nickname holds the full name and may be empty.
type Identity struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

func (i Identity) DisplayName() string {
	if i.Nickname != "" {
		return i.Nickname
	}
	return i.Name
}

func (s Session) Clone() Session {
	return s
}

func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Token != "" && s.Identity.ID != 0
}

// IsAdmin reports staff or superuser access, the level required by administrative endpoints.
func (s *Session) IsAdmin() bool {
	return s != nil && (s.IsStaff || s.IsSuperuser)
}

func (s *Session) Ctx() context.Context {
	if s == nil || s.Context == nil {
		return context.Background()
	}
	return s.Context
}
