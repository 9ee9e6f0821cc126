// internal/repository/account_repo_test.go
//
// 账户仓储测试：重点是条件更新原语（Debit/Credit/Activate）
// 在版本过期、余额不足、账户消失三种情况下的错误区分。

package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"bankcore/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "repo.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.Account{}, &model.AccountTransaction{}, &model.OutboxMessage{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, balance int64, status string) *model.Account {
	t.Helper()

	seq := atomic.AddInt64(&testSeq, 1)
	account := &model.Account{
		Name:     fmt.Sprintf("user%d", seq),
		Email:    fmt.Sprintf("user%d@test.local", seq),
		Phone:    fmt.Sprintf("137%08d", seq),
		Password: "hashed",
		Role:     model.RoleCustomer,
		Status:   status,
		Balance:  balance,
	}
	if status == model.StatusActive {
		number := fmt.Sprintf("ACC%d", seq)
		account.AccountNumber = &number
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("创建测试账户失败: %v", err)
	}
	return account
}

// TestDebitCredit 条件更新成功时扣减/入账并递增版本号。
func TestDebitCredit(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, 1000, model.StatusActive)

	if err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Debit(ctx, tx, acc.ID, 400, acc.Version)
	}); err != nil {
		t.Fatalf("Debit err=%v", err)
	}

	got, err := repo.GetByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetByID err=%v", err)
	}
	if got.Balance != 600 {
		t.Fatalf("balance=%d want=600", got.Balance)
	}
	if got.Version != acc.Version+1 {
		t.Fatalf("version=%d want=%d", got.Version, acc.Version+1)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Credit(ctx, tx, acc.ID, 100, got.Version)
	}); err != nil {
		t.Fatalf("Credit err=%v", err)
	}
	got, _ = repo.GetByID(ctx, acc.ID)
	if got.Balance != 700 {
		t.Fatalf("balance=%d want=700", got.Balance)
	}
}

// TestDebitErrorDisambiguation 影响 0 行时必须区分三种原因：
// 账户没了、余额不够、版本过期。
func TestDebitErrorDisambiguation(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, 100, model.StatusActive)

	// 账户不存在
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Debit(ctx, tx, 99999, 10, 0)
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing: want ErrAccountNotFound, got %v", err)
	}

	// 余额不足
	err = db.Transaction(func(tx *gorm.DB) error {
		return repo.Debit(ctx, tx, acc.ID, 101, acc.Version)
	})
	if !errors.Is(err, ErrBalanceNotEnough) {
		t.Fatalf("insufficient: want ErrBalanceNotEnough, got %v", err)
	}

	// 版本过期（余额其实够）
	err = db.Transaction(func(tx *gorm.DB) error {
		return repo.Debit(ctx, tx, acc.ID, 10, acc.Version+7)
	})
	if !errors.Is(err, ErrOptimisticLock) {
		t.Fatalf("stale version: want ErrOptimisticLock, got %v", err)
	}

	// 三次失败后余额原封不动
	got, _ := repo.GetByID(ctx, acc.ID)
	if got.Balance != 100 || got.Version != acc.Version {
		t.Fatalf("account=%+v", got)
	}
}

// TestCreditStaleVersion 入账没有余额条件，但同样受版本保护。
func TestCreditStaleVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, 0, model.StatusActive)

	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Credit(ctx, tx, acc.ID, 100, acc.Version+1)
	})
	if !errors.Is(err, ErrOptimisticLock) {
		t.Fatalf("want ErrOptimisticLock, got %v", err)
	}
}

// TestActivate 激活是条件更新：只有 pending 行能被改到。
func TestActivate(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, 0, model.StatusPending)

	if err := repo.Activate(ctx, acc.ID, "ACC900000001"); err != nil {
		t.Fatalf("Activate err=%v", err)
	}
	got, _ := repo.GetByID(ctx, acc.ID)
	if got.Status != model.StatusActive || got.AccountNo() != "ACC900000001" {
		t.Fatalf("account=%+v", got)
	}

	// 已经 active，再激活影响 0 行
	if err := repo.Activate(ctx, acc.ID, "ACC900000002"); !errors.Is(err, ErrOptimisticLock) {
		t.Fatalf("want ErrOptimisticLock, got %v", err)
	}

	// 账号撞唯一索引
	other := seedAccount(t, db, 0, model.StatusPending)
	if err := repo.Activate(ctx, other.ID, "ACC900000001"); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
}

// TestCreateDuplicate 邮箱/手机号唯一索引冲突翻译为 ErrDuplicateKey。
func TestCreateDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, 0, model.StatusPending)

	dup := &model.Account{
		Name:     "dup",
		Email:    acc.Email,
		Phone:    "13699999999",
		Password: "hashed",
		Role:     model.RoleCustomer,
		Status:   model.StatusPending,
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
}

// TestDelete 只删客户行，不碰流水表。
func TestDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	acc := seedAccount(t, db, 0, model.StatusActive)

	if err := repo.Delete(ctx, acc.ID); err != nil {
		t.Fatalf("Delete err=%v", err)
	}
	if _, err := repo.GetByID(ctx, acc.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
	// 删不存在的行
	if err := repo.Delete(ctx, acc.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("second delete: want ErrAccountNotFound, got %v", err)
	}
}
