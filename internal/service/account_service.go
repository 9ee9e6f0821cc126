package service

import (
	"context"
	"errors"

	"bankcore/internal/model"
	"bankcore/internal/repository"

	"gorm.io/gorm"
)

// AccountService 账户目录
// 只读查询 + 资料维护，不碰余额（余额变动全部走 LedgerService）
type AccountService struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	return s.accountRepo.GetByID(ctx, accountID)
}

// BalanceInfo 余额查询结果
type BalanceInfo struct {
	Balance       int64  `json:"balance"`
	AccountNumber string `json:"account_number"`
}

func (s *AccountService) GetBalance(ctx context.Context, accountID int64) (*BalanceInfo, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &BalanceInfo{
		Balance:       account.Balance,
		AccountNumber: account.AccountNo(),
	}, nil
}

// Statement 对账单：流水（新到旧）+ 当前余额
type Statement struct {
	Transactions   []*model.AccountTransaction `json:"transactions"`
	CurrentBalance int64                       `json:"current_balance"`
}

func (s *AccountService) GetStatement(ctx context.Context, accountID int64) (*Statement, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	transactions, err := s.transactionRepo.ListByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &Statement{
		Transactions:   transactions,
		CurrentBalance: account.Balance,
	}, nil
}

// Dashboard 客户看板
type Dashboard struct {
	AccountNumber   string                    `json:"account_number"`
	Name            string                    `json:"name"`
	Email           string                    `json:"email"`
	Balance         int64                     `json:"balance"`
	Status          string                    `json:"status"`
	LastTransaction *model.AccountTransaction `json:"last_transaction"`
}

func (s *AccountService) GetDashboard(ctx context.Context, accountID int64) (*Dashboard, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		AccountNumber: account.AccountNo(),
		Name:          account.Name,
		Email:         account.Email,
		Balance:       account.Balance,
		Status:        account.Status,
	}

	// pending 账户还没有流水，不用白查一次
	if account.Status == model.StatusActive {
		last, err := s.transactionRepo.GetLastByAccountID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		dashboard.LastTransaction = last
	}

	return dashboard, nil
}

// ApprovalStatus 审批进度查询结果
type ApprovalStatus struct {
	Approved      bool   `json:"approved"`
	Status        string `json:"status"`
	AccountNumber string `json:"account_number,omitempty"`
}

func (s *AccountService) GetApprovalStatus(ctx context.Context, accountID int64) (*ApprovalStatus, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	status := &ApprovalStatus{
		Approved: account.Status == model.StatusActive,
		Status:   account.Status,
	}
	if status.Approved {
		status.AccountNumber = account.AccountNo()
	}
	return status, nil
}

// UpdateProfile 更新资料，只允许改姓名和手机号
func (s *AccountService) UpdateProfile(ctx context.Context, accountID int64, name, phone string) (*model.Account, error) {
	err := s.accountRepo.UpdateProfile(ctx, accountID, name, phone)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrEmailOrPhoneTaken
		}
		return nil, err
	}
	return s.accountRepo.GetByID(ctx, accountID)
}

// ============================================================
// 管理员视图
// ============================================================

// DashboardStats 管理员看板统计
type DashboardStats struct {
	TotalCustomers   int64 `json:"total_customers"`
	ActiveAccounts   int64 `json:"active_accounts"`
	PendingApprovals int64 `json:"pending_approvals"`
	TotalDeposits    int64 `json:"total_deposits"` // 所有激活客户余额之和
}

func (s *AccountService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	total, err := s.accountRepo.CountByRoleAndStatus(ctx, model.RoleCustomer, "")
	if err != nil {
		return nil, err
	}
	active, err := s.accountRepo.CountByRoleAndStatus(ctx, model.RoleCustomer, model.StatusActive)
	if err != nil {
		return nil, err
	}
	pending, err := s.accountRepo.CountByRoleAndStatus(ctx, model.RoleCustomer, model.StatusPending)
	if err != nil {
		return nil, err
	}
	deposits, err := s.accountRepo.SumBalanceByRoleAndStatus(ctx, model.RoleCustomer, model.StatusActive)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		TotalCustomers:   total,
		ActiveAccounts:   active,
		PendingApprovals: pending,
		TotalDeposits:    deposits,
	}, nil
}

func (s *AccountService) ListCustomers(ctx context.Context) ([]*model.Account, error) {
	return s.accountRepo.ListByRoleAndStatus(ctx, model.RoleCustomer, "")
}

func (s *AccountService) ListPendingCustomers(ctx context.Context) ([]*model.Account, error) {
	return s.accountRepo.ListByRoleAndStatus(ctx, model.RoleCustomer, model.StatusPending)
}

func (s *AccountService) ListAllTransactions(ctx context.Context) ([]*model.AccountTransaction, error) {
	return s.transactionRepo.ListAll(ctx, 0)
}

func (s *AccountService) ListRecentTransactions(ctx context.Context, limit int) ([]*model.AccountTransaction, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.transactionRepo.ListAll(ctx, limit)
}

// DeleteCustomer 硬删除客户账户
// 流水表不动：历史流水里冗余的账号保证删除后仍可审计
func (s *AccountService) DeleteCustomer(ctx context.Context, accountID int64) error {
	return s.accountRepo.Delete(ctx, accountID)
}
