package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit    = "deposit"    // 管理员存款
	TransactionTypeWithdrawal = "withdrawal" // 管理员取款
	TransactionTypeTransfer   = "transfer"   // 客户间转账（转出方和转入方各一条）
)

// ============================================================================
// 账户流水实体
// ============================================================================

// AccountTransaction 账户流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. balance_after 必须与余额变动在同一事务内写入，事后绝不重算、绝不回填
// 3. 冗余记录交易时刻的账号 —— 账户被删除后流水仍可审计
// 4. 一笔转账产生两条流水（转出方、转入方），金额相抵
type AccountTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	AccountID     int64     `gorm:"index;not null" json:"account_id"`                            // 所属账户ID
	AccountNumber string    `gorm:"type:varchar(32);not null" json:"account_number"`             // 交易时刻的账号
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`                       // 交易类型
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 金额（分），恒为正数
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                               // 本笔记账后的余额
	Description   string    `gorm:"type:varchar(256)" json:"description"`                        // 备注
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AccountTransaction) TableName() string {
	return "account_transaction"
}
