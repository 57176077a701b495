// internal/service/order/application/tx.go
package application

import "context"

// TxRunner 抽象一个数据库事务边界。
// 编排器不直接依赖 *gorm.DB，事务实现放在基础设施层，测试里可以换成直通实现。
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxRunnerFunc 便于用函数直接充当 TxRunner。
type TxRunnerFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f TxRunnerFunc) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}
