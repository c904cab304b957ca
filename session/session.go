package session

import (
	"context"
	"time"

	"github.com/fundwit/go-commons/types"
)

const SystemUserName = "system"

type Session struct {
	Context context.Context `json:"-"`

	Token    string   `json:"token"`
	Identity Identity `json:"identity"`

	SigningTime time.Time `json:"-"`
}

type Identity struct {
	ID             types.ID `json:"id"`
	AccountID      types.ID `json:"accountId"`
	Name           string   `json:"name"`
	IsAccountOwner bool     `json:"isAccountOwner"`
}

func (s *Session) Clone() Session {
	return Session{
		Context:     s.Context,
		Token:       s.Token,
		Identity:    s.Identity,
		SigningTime: s.SigningTime,
	}
}

// IsSystem reports sessions of background jobs, which act without a user.
func (s *Session) IsSystem() bool {
	return s.Identity.ID == 0 && s.Identity.Name == SystemUserName
}

func SystemSession(ctx context.Context) *Session {
	return &Session{Context: ctx, Identity: Identity{Name: SystemUserName}, SigningTime: time.Now()}
}
