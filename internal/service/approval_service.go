package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"bankcore/internal/config"
	"bankcore/internal/model"
	"bankcore/internal/repository"
	"bankcore/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrAlreadyActive = errors.New("账户已激活，请勿重复审批")
)

// 账号撞唯一索引时重新生成的次数上限
const accountNumberRetry = 3

// ApprovalService 审批流程
// 状态机只有一条边：pending --approve--> active
// 审批时分配账号（一次性、终身不变），密码等凭证一律不动
type ApprovalService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	outboxRepo  *repository.OutboxRepository
}

func NewApprovalService(db *gorm.DB, cfg *config.Config) *ApprovalService {
	return &ApprovalService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// Approve 审批通过，返回分配的账号
//
// 【关键点】激活走条件更新（WHERE status = 'pending'），
// 并发审批同一账户时只有一个请求能改到行，其余拿到"已激活"错误；
// 账号唯一性由雪花ID + 数据库唯一索引双重保证，撞号时换号重试
func (s *ApprovalService) Approve(ctx context.Context, accountID int64) (string, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account.Role != model.RoleCustomer {
		return "", repository.ErrAccountNotFound
	}
	if account.Status == model.StatusActive {
		return "", ErrAlreadyActive
	}

	for i := 0; i < accountNumberRetry; i++ {
		accountNumber := idgen.GenerateAccountNumber()

		err = s.accountRepo.Activate(ctx, accountID, accountNumber)
		if err == nil {
			s.publishApprovedEvent(ctx, account, accountNumber)
			log.Printf("[Approval] 审批通过: accountID=%d, accountNumber=%s", accountID, accountNumber)
			return accountNumber, nil
		}
		if errors.Is(err, repository.ErrDuplicateKey) {
			continue // 账号撞了唯一索引，换一个再试
		}
		if errors.Is(err, repository.ErrOptimisticLock) {
			// 影响 0 行：状态已经不是 pending（并发审批被别人抢先）或账户没了
			if _, getErr := s.accountRepo.GetByID(ctx, accountID); getErr != nil {
				return "", getErr
			}
			return "", ErrAlreadyActive
		}
		return "", err
	}
	return "", err
}

func (s *ApprovalService) publishApprovedEvent(ctx context.Context, account *model.Account, accountNumber string) {
	if s.cfg == nil || s.cfg.Kafka.Topic.TransactionEvents == "" {
		return
	}
	payloadBytes, _ := json.Marshal(map[string]interface{}{
		"event":          "account_approved",
		"account_id":     account.ID,
		"account_number": accountNumber,
		"approved_at":    time.Now().Format(time.RFC3339),
	})
	msg := &model.OutboxMessage{
		MessageKey: accountNumber,
		Topic:      s.cfg.Kafka.Topic.TransactionEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	// 事件发不出去不影响审批结果，记日志即可
	if err := s.outboxRepo.Create(ctx, nil, msg); err != nil {
		log.Printf("[Approval] 写入审批事件失败: accountID=%d, err=%v", account.ID, err)
	}
}
