// internal/service/account_service_test.go
//
// 账户目录测试：对账单排序、客户/管理员看板、资料维护、删除审计。

package service

import (
	"context"
	"errors"
	"testing"

	"bankcore/internal/model"
	"bankcore/internal/repository"
)

func newDirectory(t *testing.T) (*AccountService, *LedgerService) {
	t.Helper()
	db := newTestDB(t)
	return NewAccountService(db), NewLedgerService(db, nil, newTestConfig())
}

// TestGetStatement 对账单：流水新到旧，余额是当前值。
func TestGetStatement(t *testing.T) {
	dir, ledger := newDirectory(t)
	ctx := context.Background()
	acc := seedCustomer(t, ledger.db, "alice", 0, model.StatusActive)

	amounts := []int64{100, 200, 300}
	for _, amount := range amounts {
		if _, err := ledger.Deposit(ctx, acc.ID, amount, ""); err != nil {
			t.Fatalf("Deposit(%d) err=%v", amount, err)
		}
	}

	statement, err := dir.GetStatement(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetStatement err=%v", err)
	}
	if statement.CurrentBalance != 600 {
		t.Fatalf("currentBalance=%d want=600", statement.CurrentBalance)
	}
	if len(statement.Transactions) != 3 {
		t.Fatalf("transactions=%d want=3", len(statement.Transactions))
	}
	// 新到旧：最后一笔存款排最前
	for i, want := range []int64{300, 200, 100} {
		if got := statement.Transactions[i].Amount; got != want {
			t.Fatalf("transactions[%d].Amount=%d want=%d", i, got, want)
		}
	}
}

// TestGetDashboard 客户看板：active 带最近一笔流水，pending 不带。
func TestGetDashboard(t *testing.T) {
	dir, ledger := newDirectory(t)
	ctx := context.Background()

	pending := seedCustomer(t, ledger.db, "alice", 0, model.StatusPending)
	dash, err := dir.GetDashboard(ctx, pending.ID)
	if err != nil {
		t.Fatalf("GetDashboard err=%v", err)
	}
	if dash.Status != model.StatusPending || dash.AccountNumber != "" || dash.LastTransaction != nil {
		t.Fatalf("pending dashboard=%+v", dash)
	}

	active := seedCustomer(t, ledger.db, "bob", 0, model.StatusActive)
	if _, err := ledger.Deposit(ctx, active.ID, 500, ""); err != nil {
		t.Fatalf("Deposit err=%v", err)
	}
	dash, err = dir.GetDashboard(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetDashboard err=%v", err)
	}
	if dash.Balance != 500 || dash.AccountNumber != active.AccountNo() {
		t.Fatalf("active dashboard=%+v", dash)
	}
	if dash.LastTransaction == nil || dash.LastTransaction.Amount != 500 {
		t.Fatalf("lastTransaction=%+v", dash.LastTransaction)
	}
}

// TestGetApprovalStatus 审批进度：pending 不暴露账号，active 暴露。
func TestGetApprovalStatus(t *testing.T) {
	dir, ledger := newDirectory(t)
	ctx := context.Background()

	pending := seedCustomer(t, ledger.db, "alice", 0, model.StatusPending)
	status, err := dir.GetApprovalStatus(ctx, pending.ID)
	if err != nil {
		t.Fatalf("GetApprovalStatus err=%v", err)
	}
	if status.Approved || status.AccountNumber != "" {
		t.Fatalf("pending status=%+v", status)
	}

	active := seedCustomer(t, ledger.db, "bob", 0, model.StatusActive)
	status, err = dir.GetApprovalStatus(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetApprovalStatus err=%v", err)
	}
	if !status.Approved || status.AccountNumber != active.AccountNo() {
		t.Fatalf("active status=%+v", status)
	}
}

// TestUpdateProfile 只允许改姓名和手机号，撞别人的手机号要报冲突。
func TestUpdateProfile(t *testing.T) {
	dir, ledger := newDirectory(t)
	ctx := context.Background()
	alice := seedCustomer(t, ledger.db, "alice", 0, model.StatusActive)
	bob := seedCustomer(t, ledger.db, "bob", 0, model.StatusActive)

	updated, err := dir.UpdateProfile(ctx, alice.ID, "alice chen", "13712345678")
	if err != nil {
		t.Fatalf("UpdateProfile err=%v", err)
	}
	if updated.Name != "alice chen" || updated.Phone != "13712345678" {
		t.Fatalf("updated=%+v", updated)
	}
	if updated.Email != alice.Email {
		t.Fatal("资料更新不应该改动邮箱")
	}

	if _, err := dir.UpdateProfile(ctx, bob.ID, "bob", "13712345678"); !errors.Is(err, ErrEmailOrPhoneTaken) {
		t.Fatalf("want ErrEmailOrPhoneTaken, got %v", err)
	}
}

// TestGetDashboardStats 管理员统计：客户数、激活数、待审批数、余额总和。
func TestGetDashboardStats(t *testing.T) {
	dir, ledger := newDirectory(t)
	ctx := context.Background()

	seedCustomer(t, ledger.db, "a", 100, model.StatusActive)
	seedCustomer(t, ledger.db, "b", 250, model.StatusActive)
	seedCustomer(t, ledger.db, "c", 0, model.StatusPending)

	stats, err := dir.GetDashboardStats(ctx)
	if err != nil {
		t.Fatalf("GetDashboardStats err=%v", err)
	}
	if stats.TotalCustomers != 3 || stats.ActiveAccounts != 2 || stats.PendingApprovals != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if stats.TotalDeposits != 350 {
		t.Fatalf("totalDeposits=%d want=350", stats.TotalDeposits)
	}
}

// TestDeleteCustomer 删除账户后历史流水必须留着（审计用），
// 流水里冗余的账号字段还能对上人。
func TestDeleteCustomer(t *testing.T) {
	dir, ledger := newDirectory(t)
	ctx := context.Background()
	acc := seedCustomer(t, ledger.db, "alice", 0, model.StatusActive)

	if _, err := ledger.Deposit(ctx, acc.ID, 500, ""); err != nil {
		t.Fatalf("Deposit err=%v", err)
	}

	if err := dir.DeleteCustomer(ctx, acc.ID); err != nil {
		t.Fatalf("DeleteCustomer err=%v", err)
	}

	if _, err := dir.GetAccount(ctx, acc.ID); !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}

	if n := countTransactions(t, ledger.db, acc.ID); n != 1 {
		t.Fatalf("transactions=%d want=1", n)
	}
	if got := lastTransaction(t, ledger.db, acc.ID).AccountNumber; got != acc.AccountNo() {
		t.Fatalf("accountNumber=%q want=%q", got, acc.AccountNo())
	}
}
