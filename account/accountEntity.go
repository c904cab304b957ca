package account

import "github.com/fundwit/go-commons/types"

const (
	UserStatusActive   = "ACTIVE"
	UserStatusInactive = "INACTIVE"
)

type User struct {
	ID             types.ID `json:"id"`
	AccountID      types.ID `json:"accountId" gorm:"index"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	IsAccountOwner bool     `json:"isAccountOwner"`
	Status         string   `json:"status"`
}

type Group struct {
	ID        types.ID `json:"id"`
	AccountID types.ID `json:"accountId" gorm:"index"`
	Name      string   `json:"name"`
}

type GroupMember struct {
	GroupID types.ID `json:"groupId" gorm:"primary_key;auto_increment:false"`
	UserID  types.ID `json:"userId" gorm:"primary_key;auto_increment:false"`
}

type UserInfo struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
}

func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
