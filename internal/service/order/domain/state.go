// internal/service/order/domain/state.go
package domain

// Status 定义订单的生命周期状态。
// 正向流转: PENDING -> PAID -> (PARTIAL_SHIPPED -> SHIPPED) -> COMPLETED。
// 分支: PENDING -> CANCELLED（未支付取消）、PAID -> REFUNDED（拼团失败等退款）。
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPaid           Status = "PAID"
	StatusPartialShipped Status = "PARTIAL_SHIPPED"
	StatusShipped        Status = "SHIPPED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusRefunded       Status = "REFUNDED"
)

// allowedTransitions 是状态机的唯一事实来源，仓储层的 CAS 更新以此为条件。
var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusPaid, StatusCancelled},
	StatusPaid:           {StatusPartialShipped, StatusShipped, StatusCompleted, StatusRefunded},
	StatusPartialShipped: {StatusShipped},
	StatusShipped:        {StatusCompleted},
}

// CanTransition 判断 from -> to 是否是合法流转。
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
