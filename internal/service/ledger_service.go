package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"bankcore/internal/config"
	"bankcore/internal/infrastructure/lock"
	"bankcore/internal/model"
	"bankcore/internal/repository"
	"bankcore/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount     = errors.New("金额必须为正数")
	ErrAccountNotActive  = errors.New("账户未激活，无法交易")
	ErrRecipientNotFound = errors.New("收款账户不存在或未激活")
	ErrSelfTransfer      = errors.New("不能向自己的账户转账")
)

const defaultMutationRetry = 3

// LedgerService 记账核心
// 所有余额变动（存款、取款、转账）都从这里走，保证三件事：
// 1. 原子性：余额更新和流水落库在同一个数据库事务内，要么都成功要么都失败
// 2. 串行化：同账户的并发变动通过乐观锁（version 条件更新）线性化，
//    冲突时整个事务回滚后有限次重试；Redis 账户锁在前面排队降低冲突率
// 3. 不盲目重试：只有"干净的乐观锁冲突"（什么都没写入）才重试，
//    其余错误一律向上抛，绝不盲目重放记账操作
type LedgerService struct {
	db              *gorm.DB
	redisClient     *redis.Client // 可为 nil（单元测试），正确性不依赖它
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// MutationResult 单账户记账结果
type MutationResult struct {
	Balance     int64                     `json:"balance"`
	Transaction *model.AccountTransaction `json:"transaction"`
}

// TransferResult 转账结果
type TransferResult struct {
	SenderBalance        int64                     `json:"sender_balance"`
	SenderTransaction    *model.AccountTransaction `json:"sender_transaction"`
	RecipientTransaction *model.AccountTransaction `json:"recipient_transaction"`
}

func (s *LedgerService) maxRetry() int {
	if s.cfg != nil && s.cfg.Business.MutationRetryCount > 0 {
		return s.cfg.Business.MutationRetryCount
	}
	return defaultMutationRetry
}

// lockAccounts 获取账户维度的 Redis 锁，返回释放函数
// 没配 Redis 时返回空操作：数据库乐观锁仍然保证正确性，只是冲突重试会变多
func (s *LedgerService) lockAccounts(ctx context.Context, accountIDs ...int64) (func(), error) {
	if s.redisClient == nil {
		return func() {}, nil
	}
	holder := strconv.FormatInt(idgen.NextID(), 10)
	release, err := lock.AcquireOrdered(ctx, s.redisClient, holder, accountIDs...)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	return release, nil
}

// applyMutation 记账原语：条件更新余额 + 追加流水，必须在事务内调用
//
// delta > 0 入账，delta < 0 扣款。
// account 是调用方刚读出的快照；条件更新带着快照的 version，
// 所以 BalanceAfter 用"快照余额 + delta"计算是安全的 ——
// 版本变了更新会影响 0 行，返回 ErrOptimisticLock，整个事务回滚
func (s *LedgerService) applyMutation(ctx context.Context, tx *gorm.DB, account *model.Account, delta int64, txnType, description string) (*model.AccountTransaction, error) {
	var err error
	amount := delta
	if delta < 0 {
		amount = -delta
		err = s.accountRepo.Debit(ctx, tx, account.ID, amount, account.Version)
	} else {
		err = s.accountRepo.Credit(ctx, tx, account.ID, amount, account.Version)
	}
	if err != nil {
		return nil, err
	}

	record := &model.AccountTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     account.ID,
		AccountNumber: account.AccountNo(),
		Type:          txnType,
		Amount:        amount,
		BalanceAfter:  account.Balance + delta,
		Description:   description,
	}
	if err := s.transactionRepo.Create(ctx, tx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// appendOutboxEvent 在记账事务内写入交易事件，由 OutboxSender 异步发布
func (s *LedgerService) appendOutboxEvent(ctx context.Context, tx *gorm.DB, key string, payload map[string]interface{}) error {
	if s.cfg == nil || s.cfg.Kafka.Topic.TransactionEvents == "" {
		return nil
	}
	payloadBytes, _ := json.Marshal(payload)
	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: key,
		Topic:      s.cfg.Kafka.Topic.TransactionEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	})
}

// loadActiveCustomer 读取并校验记账目标：必须存在、是客户、已激活
func (s *LedgerService) loadActiveCustomer(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Role != model.RoleCustomer {
		return nil, repository.ErrAccountNotFound
	}
	if account.Status != model.StatusActive {
		return nil, ErrAccountNotActive
	}
	return account, nil
}

// Deposit 管理员向客户账户存款
func (s *LedgerService) Deposit(ctx context.Context, accountID int64, amount int64, description string) (*MutationResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = "Deposit by admin"
	}
	description = "Admin deposit: " + description

	release, err := s.lockAccounts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.mutateWithRetry(ctx, accountID, amount, model.TransactionTypeDeposit, description)
}

// Withdraw 管理员从客户账户取款
func (s *LedgerService) Withdraw(ctx context.Context, accountID int64, amount int64, description string) (*MutationResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = "Withdrawal by admin"
	}
	description = "Admin withdrawal: " + description

	release, err := s.lockAccounts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.mutateWithRetry(ctx, accountID, -amount, model.TransactionTypeWithdrawal, description)
}

// mutateWithRetry 单账户记账 + 乐观锁冲突重试
// 每轮重试都重新读取当前余额再校验，绝不基于过期快照做决定
func (s *LedgerService) mutateWithRetry(ctx context.Context, accountID int64, delta int64, txnType, description string) (*MutationResult, error) {
	var lastErr error
	for i := 0; i < s.maxRetry(); i++ {
		account, err := s.loadActiveCustomer(ctx, accountID)
		if err != nil {
			return nil, err
		}

		var record *model.AccountTransaction
		err = s.db.Transaction(func(tx *gorm.DB) error {
			record, err = s.applyMutation(ctx, tx, account, delta, txnType, description)
			if err != nil {
				return err
			}
			return s.appendOutboxEvent(ctx, tx, record.TransactionNo, map[string]interface{}{
				"transaction_no": record.TransactionNo,
				"account_id":     account.ID,
				"account_number": record.AccountNumber,
				"type":           txnType,
				"amount":         record.Amount,
				"balance_after":  record.BalanceAfter,
				"created_at":     time.Now().Format(time.RFC3339),
			})
		})

		if err == nil {
			return &MutationResult{Balance: record.BalanceAfter, Transaction: record}, nil
		}
		if !errors.Is(err, repository.ErrOptimisticLock) {
			return nil, err
		}
		lastErr = err // 冲突时事务已整体回滚，重读后再来一轮
	}
	return nil, lastErr
}

// Transfer 客户间转账
//
// 【关键点】转账是系统里唯一一次动两个账户的操作：
// 1. 两边的余额更新和两条流水在同一个数据库事务内，钱不会凭空产生或消失
// 2. Redis 锁按账户ID升序获取，避免 A->B 和 B->A 并发时互相死锁
// 3. 转出方写一条 transfer 流水（Transfer to ...），
//    转入方写一条 transfer 流水（Received from ...），金额相抵
func (s *LedgerService) Transfer(ctx context.Context, senderID int64, recipientAccountNumber string, amount int64, description string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = "Transfer"
	}

	// 收款方按账号解析；账号在审批后不再变化，解析一次即可
	recipient, err := s.accountRepo.GetByAccountNumber(ctx, recipientAccountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.Role != model.RoleCustomer || recipient.Status != model.StatusActive {
		return nil, ErrRecipientNotFound
	}
	if recipient.ID == senderID {
		return nil, ErrSelfTransfer
	}

	release, err := s.lockAccounts(ctx, senderID, recipient.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var lastErr error
	for i := 0; i < s.maxRetry(); i++ {
		sender, err := s.loadActiveCustomer(ctx, senderID)
		if err != nil {
			return nil, err
		}
		if sender.Balance < amount {
			return nil, repository.ErrBalanceNotEnough
		}

		recipient, err = s.loadActiveCustomer(ctx, recipient.ID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) || errors.Is(err, ErrAccountNotActive) {
				return nil, ErrRecipientNotFound
			}
			return nil, err
		}

		var senderRecord, recipientRecord *model.AccountTransaction
		err = s.db.Transaction(func(tx *gorm.DB) error {
			senderRecord, err = s.applyMutation(ctx, tx, sender, -amount, model.TransactionTypeTransfer,
				fmt.Sprintf("Transfer to %s: %s", recipient.AccountNo(), description))
			if err != nil {
				return err
			}

			recipientRecord, err = s.applyMutation(ctx, tx, recipient, amount, model.TransactionTypeTransfer,
				fmt.Sprintf("Received from %s: %s", sender.AccountNo(), description))
			if err != nil {
				return err
			}

			return s.appendOutboxEvent(ctx, tx, senderRecord.TransactionNo, map[string]interface{}{
				"transaction_no":       senderRecord.TransactionNo,
				"type":                 model.TransactionTypeTransfer,
				"sender_account_id":    sender.ID,
				"recipient_account_id": recipient.ID,
				"sender_account_no":    sender.AccountNo(),
				"recipient_account_no": recipient.AccountNo(),
				"amount":               amount,
				"sender_balance_after": senderRecord.BalanceAfter,
				"created_at":           time.Now().Format(time.RFC3339),
			})
		})

		if err == nil {
			log.Printf("[Ledger] 转账成功: %s -> %s, amount=%d",
				sender.AccountNo(), recipient.AccountNo(), amount)
			return &TransferResult{
				SenderBalance:        senderRecord.BalanceAfter,
				SenderTransaction:    senderRecord,
				RecipientTransaction: recipientRecord,
			}, nil
		}
		if !errors.Is(err, repository.ErrOptimisticLock) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
