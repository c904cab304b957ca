package account

import (
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

// FindUser loads a user regardless of its status. gorm.ErrRecordNotFound is returned for unknown ids.
func FindUser(db *gorm.DB, id types.ID) (*User, error) {
	user := User{}
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAccountUser loads a user of the account. Users of other accounts are reported as gorm.ErrRecordNotFound.
func FindAccountUser(db *gorm.DB, accountID, id types.ID) (*User, error) {
	user := User{}
	if err := db.Where("id = ? AND account_id = ?", id, accountID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAccountGroup loads a group of the account. Groups of other accounts are reported as gorm.ErrRecordNotFound.
func FindAccountGroup(db *gorm.DB, accountID, id types.ID) (*Group, error) {
	group := Group{}
	if err := db.Where("id = ? AND account_id = ?", id, accountID).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// QueryActiveUsers returns the active users of the account among ids, ordered by id.
func QueryActiveUsers(db *gorm.DB, accountID types.ID, ids []types.ID) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	var users []User
	if err := db.Where("id IN (?) AND account_id = ? AND status = ?", ids, accountID, UserStatusActive).
		Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// QueryActiveUserIDsOfGroups resolves groups of the account into the ids of their active members.
func QueryActiveUserIDsOfGroups(db *gorm.DB, accountID types.ID, groupIDs []types.ID) ([]types.ID, error) {
	if len(groupIDs) == 0 {
		return []types.ID{}, nil
	}
	var owned []types.ID
	if err := db.Model(&Group{}).Where("id IN (?) AND account_id = ?", groupIDs, accountID).
		Pluck("id", &owned).Error; err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []types.ID{}, nil
	}
	var members []GroupMember
	if err := db.Table("group_members").Select("DISTINCT group_members.user_id").
		Joins("JOIN users ON users.id = group_members.user_id").
		Where("group_members.group_id IN (?) AND users.account_id = ? AND users.status = ?",
			owned, accountID, UserStatusActive).
		Order("group_members.user_id ASC").Scan(&members).Error; err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// QueryGroupIDsOfUser lists the groups the user belongs to.
func QueryGroupIDsOfUser(db *gorm.DB, userID types.ID) ([]types.ID, error) {
	var members []GroupMember
	if err := db.Where("user_id = ?", userID).Find(&members).Error; err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}

func QueryAccountNames(db *gorm.DB, ids []types.ID) (map[types.ID]string, error) {
	if len(ids) == 0 {
		return map[types.ID]string{}, nil
	}
	var records []User
	if err := db.Model(&User{}).Where("id IN (?)", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	result := map[types.ID]string{}
	for _, r := range records {
		result[r.ID] = r.DisplayName()
	}
	return result, nil
}
