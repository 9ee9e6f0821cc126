package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bankcore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
	ErrDuplicateKey     = errors.New("唯一索引冲突")
	ErrStoreUnavailable = errors.New("存储暂不可用，请稍后重试")
)

// wrapStoreErr 把驱动层错误统一包装为 ErrStoreUnavailable
// 调用方可以用 errors.Is 判断是否属于"可安全重试"的瞬时故障
func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// isDuplicateKeyErr 判断是否唯一索引冲突
// MySQL 报 Error 1062 / Duplicate entry，SQLite 报 UNIQUE constraint failed，
// gorm 1.25 对两者都会翻译成 ErrDuplicatedKey，这里再兜底匹配错误文本
func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicateKey
		}
		return wrapStoreErr(err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return &account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email, role string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("email = ? AND role = ?", email, role).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return &account, nil
}

// GetByAccountNumber 按账号查询（转账收款方解析）
func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return &account, nil
}

// Debit 扣款（条件更新 + 乐观锁）
//
// 【关键点】WHERE 同时带上 balance >= amount 和 version = ?：
// 1. balance 条件保证余额永远不会被扣成负数
// 2. version 条件保证调用方读到的余额快照仍然有效，
//    BalanceAfter 可以放心地用"读到的余额 - 金额"计算
// RowsAffected == 0 时回查一次，区分"不存在 / 余额不足 / 版本冲突"
func (r *AccountRepository) Debit(ctx context.Context, tx *gorm.DB, id int64, amount int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND balance >= ? AND version = ?", id, amount, version).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return wrapStoreErr(result.Error)
	}

	if result.RowsAffected == 0 {
		// 回查必须走同一个事务连接，读到的才是本事务视角下的最新行
		account, err := r.getInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return ErrBalanceNotEnough
		}
		return ErrOptimisticLock
	}

	return nil
}

// getInTx 事务内普通读，用于条件更新影响 0 行后的原因回查
func (r *AccountRepository) getInTx(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return &account, nil
}

// Credit 入账（条件更新 + 乐观锁）
// 入账不会失败于余额，但同样带 version 条件，
// 否则并发入账时 BalanceAfter 会写错
func (r *AccountRepository) Credit(ctx context.Context, tx *gorm.DB, id int64, amount int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return wrapStoreErr(result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.getInTx(ctx, tx, id); err != nil {
			return err
		}
		return ErrOptimisticLock
	}

	return nil
}

// Activate 审批激活：pending -> active，同时写入账号
// WHERE status = 'pending' 保证状态机只走一次，重复审批影响 0 行
func (r *AccountRepository) Activate(ctx context.Context, id int64, accountNumber string) error {
	if !model.CanTransitionTo(model.StatusPending, model.StatusActive) {
		return fmt.Errorf("非法状态流转: %s -> %s", model.StatusPending, model.StatusActive)
	}

	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":         model.StatusActive,
			"account_number": accountNumber,
		})

	if result.Error != nil {
		if isDuplicateKeyErr(result.Error) {
			return ErrDuplicateKey
		}
		return wrapStoreErr(result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	return nil
}

// UpdateProfile 只允许改姓名和手机号，其余字段一律不动
func (r *AccountRepository) UpdateProfile(ctx context.Context, id int64, name, phone string) error {
	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if phone != "" {
		updates["phone"] = phone
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		if isDuplicateKeyErr(result.Error) {
			return ErrDuplicateKey
		}
		return wrapStoreErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Delete 硬删除账户，流水表不动（冗余的账号字段保证审计可追溯）
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND role = ?", id, model.RoleCustomer).
		Delete(&model.Account{})
	if result.Error != nil {
		return wrapStoreErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListByRoleAndStatus 按角色（和可选状态）列出账户，status 为空表示不过滤
func (r *AccountRepository) ListByRoleAndStatus(ctx context.Context, role, status string) ([]*model.Account, error) {
	var accounts []*model.Account
	query := r.db.WithContext(ctx).Where("role = ?", role)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Find(&accounts).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return accounts, nil
}

// CountByRoleAndStatus 统计账户数量，status 为空表示不过滤
func (r *AccountRepository) CountByRoleAndStatus(ctx context.Context, role, status string) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.Account{}).Where("role = ?", role)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, wrapStoreErr(err)
	}
	return count, nil
}

// SumBalanceByRoleAndStatus 汇总余额（管理员看板的"总存款"）
func (r *AccountRepository) SumBalanceByRoleAndStatus(ctx context.Context, role, status string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("role = ? AND status = ?", role, status).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return total, nil
}
