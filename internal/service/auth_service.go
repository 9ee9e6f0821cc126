package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bankcore/internal/config"
	"bankcore/internal/model"
	"bankcore/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrEmailOrPhoneTaken  = errors.New("邮箱或手机号已被注册")
)

// AuthService 身份认证
// 负责注册、登录和 JWT 签发；记账核心只信任中间件解出来的 (accountID, role)
type AuthService struct {
	cfg         *config.Config
	accountRepo *repository.AccountRepository
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	return &AuthService{
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
	}
}

// Register 客户注册
// 新账户一律 pending、零余额、无账号，等管理员审批
func (s *AuthService) Register(ctx context.Context, name, email, phone, password string) (*model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	account := &model.Account{
		Name:     name,
		Email:    email,
		Phone:    phone,
		Password: string(hash),
		Role:     model.RoleCustomer,
		Status:   model.StatusPending,
		Balance:  0,
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrEmailOrPhoneTaken
		}
		return nil, err
	}

	return account, nil
}

// Login 登录并签发 JWT
// role 区分客户端：客户登录接口查不到管理员，反之亦然。
// pending 客户允许登录（查看审批进度），但所有资金操作都会被状态校验挡住
func (s *AuthService) Login(ctx context.Context, email, password, role string) (string, *model.Account, error) {
	account, err := s.accountRepo.GetByEmail(ctx, email, role)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(account)
	if err != nil {
		return "", nil, err
	}

	return token, account, nil
}

// generateToken 签发 HS256 JWT，claims 只带记账核心需要信任的字段
func (s *AuthService) generateToken(account *model.Account) (string, error) {
	expireHours := s.cfg.JWT.ExpireHours
	if expireHours <= 0 {
		expireHours = 168 // 默认 7 天
	}

	claims := jwt.MapClaims{
		"id":    account.ID,
		"email": account.Email,
		"role":  account.Role,
		"exp":   time.Now().Add(time.Duration(expireHours) * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, nil
}

// EnsureAdmin 启动时播种管理员账户
// 管理员不走注册审批，直接 active；已存在则不动（不会覆盖密码）
func (s *AuthService) EnsureAdmin(ctx context.Context) error {
	adminCfg := s.cfg.Admin
	if adminCfg.Email == "" {
		return nil
	}

	_, err := s.accountRepo.GetByEmail(ctx, adminCfg.Email, model.RoleAdmin)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminCfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("密码加密失败: %w", err)
	}

	admin := &model.Account{
		Name:     adminCfg.Name,
		Email:    adminCfg.Email,
		Phone:    adminCfg.Phone,
		Password: string(hash),
		Role:     model.RoleAdmin,
		Status:   model.StatusActive,
	}
	if err := s.accountRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil // 并发启动时另一个实例已建好
		}
		return err
	}

	log.Printf("[Auth] 管理员账户已创建: %s", adminCfg.Email)
	return nil
}
