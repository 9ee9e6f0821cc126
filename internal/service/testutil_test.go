// internal/service/testutil_test.go
//
// 服务层测试共用工具。
// 所有测试跑在临时目录里的 SQLite 文件库上，不依赖 MySQL/Redis/Kafka：
//   - Redis 锁传 nil 即跳过，正确性由数据库乐观锁保证（这正是要测的东西）
//   - 连接池限制为 1，SQLite 单写者模型下并发测试不会报 busy

package service

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"bankcore/internal/config"
	"bankcore/internal/model"
	"bankcore/pkg/idgen"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seedSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "bankcore.db") + "?_busy_timeout=5000"
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

	if err := db.AutoMigrate(
		&model.Account{},
		&model.AccountTransaction{},
		&model.OutboxMessage{},
	); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:      "test-secret",
			ExpireHours: 1,
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				TransactionEvents: "transaction_events",
			},
		},
		Business: config.BusinessConfig{
			MutationRetryCount:  3,
			OutboxMaxRetryCount: 3,
		},
	}
}

// seedCustomer 直接插入一个客户账户；status 为 active 时顺带分配账号
func seedCustomer(t *testing.T, db *gorm.DB, name string, balance int64, status string) *model.Account {
	t.Helper()

	seq := atomic.AddInt64(&seedSeq, 1)
	account := &model.Account{
		Name:     name,
		Email:    fmt.Sprintf("%s%d@test.local", name, seq),
		Phone:    fmt.Sprintf("138%08d", seq),
		Password: "$2a$10$placeholderplaceholderplaceholderplacex", // 测试不走登录时无所谓
		Role:     model.RoleCustomer,
		Status:   status,
		Balance:  balance,
	}
	if status == model.StatusActive {
		number := idgen.GenerateAccountNumber()
		account.AccountNumber = &number
	}

	if err := db.Create(account).Error; err != nil {
		t.Fatalf("创建测试账户失败: %v", err)
	}
	return account
}

// reload 重新读取账户当前状态
func reload(t *testing.T, db *gorm.DB, id int64) *model.Account {
	t.Helper()
	var account model.Account
	if err := db.Where("id = ?", id).First(&account).Error; err != nil {
		t.Fatalf("读取账户 %d 失败: %v", id, err)
	}
	return &account
}

// lastTransaction 读取账户最近一条流水
func lastTransaction(t *testing.T, db *gorm.DB, accountID int64) *model.AccountTransaction {
	t.Helper()
	var trans model.AccountTransaction
	err := db.Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		First(&trans).Error
	if err != nil {
		t.Fatalf("读取账户 %d 流水失败: %v", accountID, err)
	}
	return &trans
}

// countTransactions 统计账户流水条数
func countTransactions(t *testing.T, db *gorm.DB, accountID int64) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&model.AccountTransaction{}).
		Where("account_id = ?", accountID).
		Count(&count).Error; err != nil {
		t.Fatalf("统计流水失败: %v", err)
	}
	return count
}
