package repository

import (
	"context"
	"errors"

	"bankcore/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 追加一条流水，正常应和余额变动在同一个事务内（tx 为 nil 时退化为独立写入）
// 流水只追加，没有 Update / Delete 方法
func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.AccountTransaction) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(trans).Error; err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.AccountTransaction, error) {
	var trans model.AccountTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStoreErr(err)
	}
	return &trans, nil
}

// ListByAccountID 某账户的流水，时间倒序（对账单）
func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*model.AccountTransaction, error) {
	var transactions []*model.AccountTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Find(&transactions).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return transactions, nil
}

// GetLastByAccountID 最近一笔流水，没有则返回 nil（客户看板用）
func (r *TransactionRepository) GetLastByAccountID(ctx context.Context, accountID int64) (*model.AccountTransaction, error) {
	var trans model.AccountTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStoreErr(err)
	}
	return &trans, nil
}

// ListAll 全量流水，时间倒序，limit <= 0 表示不限制（管理员视图）
func (r *TransactionRepository) ListAll(ctx context.Context, limit int) ([]*model.AccountTransaction, error) {
	var transactions []*model.AccountTransaction
	query := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&transactions).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return transactions, nil
}
