// internal/service/order/infrastructure/snapshot_adapter.go
package infrastructure

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/httpclient"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain/port"
)

// HTTPSnapshotAdapter 通过商品中心的 HTTP 接口读取 SKU 快照。
type HTTPSnapshotAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPSnapshotAdapter(client *httpclient.Client, baseURL string) *HTTPSnapshotAdapter {
	return &HTTPSnapshotAdapter{client: client, baseURL: baseURL}
}

type skuSnapshotResponse struct {
	SkuID     string `json:"skuId"`
	Price     string `json:"price"`
	OnSale    bool   `json:"onSale"`
	StockBase int64  `json:"stockBase"`
}

func (a *HTTPSnapshotAdapter) GetSkuSnapshot(ctx context.Context, skuID string) (*port.SkuSnapshot, error) {
	params := url.Values{}
	params.Set("skuId", skuID)

	var resp skuSnapshotResponse
	err := a.client.GetJSON(ctx, a.baseURL+"/api/sku/snapshot", params, &resp)
	if errors.Is(err, httpclient.ErrNotFound) {
		return nil, port.ErrSkuNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get sku snapshot %s", skuID)
	}

	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return nil, errors.Wrapf(err, "parse sku %s price %q", skuID, resp.Price)
	}
	return &port.SkuSnapshot{
		SkuID:     resp.SkuID,
		Price:     price,
		OnSale:    resp.OnSale,
		StockBase: resp.StockBase,
	}, nil
}
