package handler

import (
	"errors"
	"strconv"

	"bankcore/internal/config"
	"bankcore/internal/model"
	"bankcore/internal/repository"
	"bankcore/internal/service"
	"bankcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	authService     *service.AuthService
	accountService  *service.AccountService
	ledgerService   *service.LedgerService
	approvalService *service.ApprovalService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		authService:     service.NewAuthService(db, cfg),
		accountService:  service.NewAccountService(db),
		ledgerService:   service.NewLedgerService(db, rdb, cfg),
		approvalService: service.NewApprovalService(db, cfg),
	}
}

// writeServiceError 把服务层错误映射为业务响应码
// 错误消息原样返回给前端，不夹带存储层细节和凭证信息
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrRecipientNotFound):
		response.BusinessError(c, response.CodeRecipientNotFound, err.Error())
	case errors.Is(err, service.ErrSelfTransfer):
		response.BusinessError(c, response.CodeSelfTransfer, err.Error())
	case errors.Is(err, service.ErrAccountNotActive):
		response.BusinessError(c, response.CodeAccountNotActive, err.Error())
	case errors.Is(err, service.ErrAlreadyActive):
		response.BusinessError(c, response.CodeAlreadyActive, err.Error())
	case errors.Is(err, service.ErrEmailOrPhoneTaken):
		response.BusinessError(c, response.CodeEmailOrPhoneTaken, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrStoreUnavailable):
		// 瞬时故障，前端可提示用户稍后重试
		response.BusinessError(c, response.CodeStoreUnavailable, "存储暂不可用，请稍后重试")
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 认证相关接口
// ============================================================

// RegisterRequest 客户注册请求
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register 客户注册
// POST /api/customer/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.authService.Register(c.Request.Context(), req.Name, req.Email, req.Phone, req.Password)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "注册成功，请等待管理员审批",
		"customer": gin.H{
			"id":     account.ID,
			"name":   account.Name,
			"email":  account.Email,
			"status": account.Status,
		},
	})
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context, role string) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	token, account, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, role)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"token":  token,
		"status": account.Status,
		"account": gin.H{
			"id":             account.ID,
			"name":           account.Name,
			"email":          account.Email,
			"role":           account.Role,
			"account_number": account.AccountNo(),
		},
	})
}

// CustomerLogin 客户登录（pending 状态也允许登录，用于查看审批进度）
// POST /api/customer/login
func (h *Handler) CustomerLogin(c *gin.Context) {
	h.login(c, model.RoleCustomer)
}

// AdminLogin 管理员登录
// POST /api/admin/login
func (h *Handler) AdminLogin(c *gin.Context) {
	h.login(c, model.RoleAdmin)
}

// ============================================================
// 客户相关接口
// ============================================================

// GetDashboard 客户看板
// GET /api/customer/dashboard
func (h *Handler) GetDashboard(c *gin.Context) {
	dashboard, err := h.accountService.GetDashboard(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, dashboard)
}

// GetBalance 查询本人余额
// GET /api/customer/balance
func (h *Handler) GetBalance(c *gin.Context) {
	info, err := h.accountService.GetBalance(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, info)
}

// GetStatement 查询本人对账单（流水新到旧）
// GET /api/customer/statement
func (h *Handler) GetStatement(c *gin.Context) {
	statement, err := h.accountService.GetStatement(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, statement)
}

// GetApprovalStatus 查询审批进度
// GET /api/customer/approval-status
func (h *Handler) GetApprovalStatus(c *gin.Context) {
	status, err := h.accountService.GetApprovalStatus(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, status)
}

// SendMoneyRequest 转账请求
type SendMoneyRequest struct {
	RecipientAccountNumber string `json:"recipient_account_number" binding:"required"`
	Amount                 int64  `json:"amount" binding:"required,gt=0"` // 金额（分）
	Description            string `json:"description"`
}

// SendMoney 客户转账
// POST /api/customer/send-money
//
// 【关键点】转账是整个系统最核心的操作，需要保证：
// 1. 原子性：双方余额更新和两条流水必须同时成功或同时失败
// 2. 守恒：转出金额 == 转入金额，总额不变
// 3. 并发安全：同账户操作串行化，余额绝不为负
func (h *Handler) SendMoney(c *gin.Context) {
	var req SendMoneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.ledgerService.Transfer(c.Request.Context(), callerID(c),
		req.RecipientAccountNumber, req.Amount, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateProfileRequest 资料更新请求
type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// UpdateProfile 更新本人资料（只允许改姓名和手机号）
// PUT /api/customer/profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.UpdateProfile(c.Request.Context(), callerID(c), req.Name, req.Phone)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, account)
}

// ============================================================
// 管理员相关接口
// ============================================================

// GetDashboardStats 管理员看板统计
// GET /api/admin/dashboard
func (h *Handler) GetDashboardStats(c *gin.Context) {
	stats, err := h.accountService.GetDashboardStats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, stats)
}

// ListCustomers 客户列表
// GET /api/admin/customers
func (h *Handler) ListCustomers(c *gin.Context) {
	customers, err := h.accountService.ListCustomers(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, customers)
}

// ListPendingCustomers 待审批客户列表
// GET /api/admin/pending
func (h *Handler) ListPendingCustomers(c *gin.Context) {
	pending, err := h.accountService.ListPendingCustomers(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, pending)
}

// ListAllTransactions 全量流水
// GET /api/admin/transactions
func (h *Handler) ListAllTransactions(c *gin.Context) {
	transactions, err := h.accountService.ListAllTransactions(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, transactions)
}

// ListRecentTransactions 最近流水（看板用）
// GET /api/admin/recent-transactions
func (h *Handler) ListRecentTransactions(c *gin.Context) {
	transactions, err := h.accountService.ListRecentTransactions(c.Request.Context(), 5)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, transactions)
}

// ApproveCustomer 审批通过客户开户
// POST /api/admin/approve/:id
func (h *Handler) ApproveCustomer(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	accountNumber, err := h.approvalService.Approve(c.Request.Context(), accountID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message":        "审批通过",
		"account_number": accountNumber,
	})
}

// DeleteCustomer 删除客户（硬删除，流水保留）
// DELETE /api/admin/customer/:id
func (h *Handler) DeleteCustomer(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	if err := h.accountService.DeleteCustomer(c.Request.Context(), accountID); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "客户已删除",
	})
}

// MutationRequest 存取款请求
type MutationRequest struct {
	CustomerID  int64  `json:"customer_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"` // 金额（分）
	Description string `json:"description"`
}

// Deposit 管理员存款
// POST /api/admin/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.ledgerService.Deposit(c.Request.Context(), req.CustomerID, req.Amount, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// Withdraw 管理员取款
// POST /api/admin/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.ledgerService.Withdraw(c.Request.Context(), req.CustomerID, req.Amount, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}
