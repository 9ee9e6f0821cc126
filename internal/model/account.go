package model

import (
	"time"
)

// ============================================================================
// 账户角色与状态常量
// ============================================================================

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

const (
	StatusPending = "pending" // 注册后等待管理员审批
	StatusActive  = "active"  // 审批通过，可以收付款
)

// ValidStatusTransitions 账户状态机
// 当前业务只有一条合法路径：pending -> active（审批通过）
// 没有拒绝、冻结、注销等状态，扩展时在这里加边即可
var ValidStatusTransitions = map[string][]string{
	StatusPending: {StatusActive},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Account 账户表
// 记录账户身份、审批状态与余额，是整个系统的核心数据
//
// 【重要】余额字段只允许 LedgerService 修改：
// 1. balance 永远 >= 0，由扣款的条件更新保证
// 2. 每次余额变动必须在同一事务内写一条流水
// 3. version 是乐观锁版本号，余额每变动一次加一
type Account struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"type:varchar(64);not null" json:"name"`
	Email         string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	Phone         string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`
	Password      string    `gorm:"type:varchar(128);not null" json:"-"` // bcrypt 哈希，任何接口都不返回
	Role          string    `gorm:"type:varchar(16);index;not null" json:"role"`
	Status        string    `gorm:"type:varchar(16);index;not null" json:"status"`
	AccountNumber *string   `gorm:"type:varchar(32);uniqueIndex" json:"account_number"` // 审批时分配，pending 期间为 NULL
	Balance       int64     `gorm:"not null;default:0" json:"balance"`                  // 余额（分）
	Version       int       `gorm:"not null;default:0" json:"version"`                  // 乐观锁版本号
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// AccountNo 返回账号字符串，未分配时返回空串
func (a *Account) AccountNo() string {
	if a.AccountNumber == nil {
		return ""
	}
	return *a.AccountNumber
}
