package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// GuestToken grants an external user access to a single task.
type GuestToken struct {
	ID          types.ID  `json:"id" gorm:"primary_key"`
	WorkflowID  types.ID  `json:"workflowId" gorm:"index"`
	TaskID      types.ID  `json:"taskId"`
	UserID      types.ID  `json:"userId"`
	Token       string    `json:"token"`
	IsActive    bool      `json:"isActive"`
	DateCreated time.Time `json:"dateCreated"`
}
