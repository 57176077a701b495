// internal/service/order/interfaces/handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	gbdomain "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
	invdomain "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/application"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
	skdomain "github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

// Handler 订单 HTTP 接口层。
type Handler struct {
	service *application.OrderService
}

func NewHandler(service *application.OrderService) *Handler {
	return &Handler{service: service}
}

// RegisterHandlers 把订单接口挂到服务 mux 上。
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/order/place", h.placeOrder)
	mux.HandleFunc("/api/order/pay-callback", h.payCallback)
	mux.HandleFunc("/api/order/cancel", h.cancel)
	mux.HandleFunc("/api/order/get", h.get)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor 把领域错误映射到 HTTP 状态码。业务拒绝是 409，不是 500。
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, invdomain.ErrOutOfStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, skdomain.ErrSoldOut),
		errors.Is(err, skdomain.ErrCapExceeded),
		errors.Is(err, skdomain.ErrSessionNotActive),
		errors.Is(err, gbdomain.ErrSoldOut),
		errors.Is(err, gbdomain.ErrGroupFull),
		errors.Is(err, gbdomain.ErrGroupExpired),
		errors.Is(err, gbdomain.ErrGroupNotJoinable),
		errors.Is(err, gbdomain.ErrDuplicateMember),
		errors.Is(err, gbdomain.ErrActivityNotActive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedOrderType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cmd application.PlaceOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := h.service.PlaceOrder(r.Context(), &cmd)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Str("member_no", cmd.MemberNo).Msg("place order rejected")
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) payCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	orderNo := r.URL.Query().Get("orderNo")
	if orderNo == "" {
		writeError(w, http.StatusBadRequest, errors.New("orderNo is required"))
		return
	}
	if err := h.service.MarkPaid(r.Context(), orderNo); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderNo": orderNo, "status": "PAID"})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	orderNo := r.URL.Query().Get("orderNo")
	if orderNo == "" {
		writeError(w, http.StatusBadRequest, errors.New("orderNo is required"))
		return
	}
	if err := h.service.Cancel(r.Context(), orderNo); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderNo": orderNo, "status": "CANCELLED"})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orderNo := r.URL.Query().Get("orderNo")
	if orderNo == "" {
		writeError(w, http.StatusBadRequest, errors.New("orderNo is required"))
		return
	}
	order, err := h.service.Get(r.Context(), orderNo)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
