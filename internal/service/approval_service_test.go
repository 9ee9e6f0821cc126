// internal/service/approval_service_test.go
//
// 审批流程测试：账号分配、幂等性、凭证不可变、并发审批唯一性。

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"bankcore/internal/model"
	"bankcore/internal/repository"
)

func newApproval(t *testing.T) *ApprovalService {
	t.Helper()
	return NewApprovalService(newTestDB(t), newTestConfig())
}

// TestApprove 审批通过：分配 ACC 账号、状态变 active，
// 密码和余额原封不动（审批绝不触碰凭证）。
func TestApprove(t *testing.T) {
	svc := newApproval(t)
	ctx := context.Background()
	acc := seedCustomer(t, svc.db, "alice", 0, model.StatusPending)
	passwordBefore := acc.Password

	accountNumber, err := svc.Approve(ctx, acc.ID)
	if err != nil {
		t.Fatalf("Approve err=%v", err)
	}
	if !strings.HasPrefix(accountNumber, "ACC") {
		t.Fatalf("accountNumber=%q", accountNumber)
	}

	got := reload(t, svc.db, acc.ID)
	if got.Status != model.StatusActive {
		t.Fatalf("status=%s want=active", got.Status)
	}
	if got.AccountNo() != accountNumber {
		t.Fatalf("stored accountNumber=%q want=%q", got.AccountNo(), accountNumber)
	}
	if got.Password != passwordBefore {
		t.Fatal("审批不应该改动密码")
	}
	if got.Balance != 0 {
		t.Fatalf("balance=%d want=0", got.Balance)
	}
}

// TestApproveIdempotent 重复审批：第二次必须返回"已激活"，账号不变。
func TestApproveIdempotent(t *testing.T) {
	svc := newApproval(t)
	ctx := context.Background()
	acc := seedCustomer(t, svc.db, "alice", 0, model.StatusPending)

	first, err := svc.Approve(ctx, acc.ID)
	if err != nil {
		t.Fatalf("first Approve err=%v", err)
	}

	if _, err := svc.Approve(ctx, acc.ID); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("want ErrAlreadyActive, got %v", err)
	}

	if got := reload(t, svc.db, acc.ID).AccountNo(); got != first {
		t.Fatalf("accountNumber changed: %q -> %q", first, got)
	}
}

// TestApproveTargetChecks 审批目标必须是存在的客户账户。
func TestApproveTargetChecks(t *testing.T) {
	svc := newApproval(t)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 99999); !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("missing: want ErrAccountNotFound, got %v", err)
	}

	// 管理员不走审批流程，对外表现为"不存在"
	admin := &model.Account{
		Name:     "root",
		Email:    "root@bank.local",
		Phone:    "19900000000",
		Password: "hashed",
		Role:     model.RoleAdmin,
		Status:   model.StatusActive,
	}
	if err := svc.db.Create(admin).Error; err != nil {
		t.Fatalf("seed admin err=%v", err)
	}
	if _, err := svc.Approve(ctx, admin.ID); !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("admin: want ErrAccountNotFound, got %v", err)
	}
}

// TestApproveAssignsDistinctNumbers 批量审批分配的账号两两不同。
func TestApproveAssignsDistinctNumbers(t *testing.T) {
	svc := newApproval(t)
	ctx := context.Background()

	const n = 8
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = seedCustomer(t, svc.db, "user", 0, model.StatusPending).ID
	}

	numbers := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			numbers[i], errs[i] = svc.Approve(ctx, ids[i])
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Approve[%d] err=%v", i, errs[i])
		}
		if seen[numbers[i]] {
			t.Fatalf("duplicate accountNumber %q", numbers[i])
		}
		seen[numbers[i]] = true
	}
}
