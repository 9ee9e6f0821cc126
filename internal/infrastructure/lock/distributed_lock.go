package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：管理员给同一账户连续快速点两次取款（或取款和转账同时到达）
//
// 如果没有锁：
//   goroutine1: 查询余额=100 -> 扣款80 -> 余额=20   OK
//   goroutine2: 查询余额=100 -> 扣款80 -> 余额=-60  超扣了！
//
// 本系统有两层防护：数据库乐观锁（version 条件更新）是正确性兜底，
// 这里的 Redis 锁把同账户的并发请求排队，减少乐观锁冲突重试
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//   - 先检查 value 是否是自己的
//   - 再删除 key
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
//
// 【关键点】使用 SetNX 命令，只有当 key 不存在时才能设置成功
// 这保证了同一时刻只有一个客户端能获取到锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	// SET key value NX EX timeout
	// NX: 只有 key 不存在时才设置
	// EX: 设置过期时间，防止死锁（持有锁的进程崩溃时，锁会自动释放）
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		// 等待一段时间后重试
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】使用 Lua 脚本保证"检查+删除"操作的原子性
//
// 为什么要检查 value？
//
//	场景：A 获取锁 -> A 处理超时，锁自动过期 -> B 获取锁 -> A 执行完毕，调用 Unlock
//	如果不检查 value，A 会把 B 的锁删掉！
func (l *DistributedLock) Unlock(ctx context.Context) error {
	// Lua 脚本：检查 value 是否匹配，匹配则删除
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数：按账户维度的记账锁
// ============================================================================

// NewAccountLock 创建账户锁（按账户维度）
// 同一账户的记账请求排队，不同账户互不影响
func NewAccountLock(client *redis.Client, accountID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("ledger:lock:account:%d", accountID)
	// value 使用调用方生成的 holder 标识，便于追踪是哪个请求持有锁
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// AcquireOrdered 按账户ID升序依次加锁，全部成功后返回逆序释放函数
//
// 【关键点】转账要同时锁住转出方和转入方。
// 如果 A->B 和 B->A 两笔转账各自先锁自己再锁对方，会互相等待死锁；
// 全局固定按账户ID升序加锁后，两笔转账的加锁顺序一致，不会交叉
func AcquireOrdered(ctx context.Context, client *redis.Client, holder string, accountIDs ...int64) (func(), error) {
	ids := append([]int64(nil), accountIDs...)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	held := make([]*DistributedLock, 0, len(ids))
	release := func() {
		// 逆序释放
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock(context.Background())
		}
	}

	for _, id := range ids {
		l := NewAccountLock(client, id, holder)
		if err := l.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			release()
			return nil, err
		}
		held = append(held, l)
	}

	return release, nil
}
