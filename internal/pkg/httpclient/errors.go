// internal/pkg/httpclient/errors.go
package httpclient

import "errors"

// ErrNotFound 下游返回 404。调用方据此区分“资源不存在”和真正的调用失败。
var ErrNotFound = errors.New("httpclient: resource not found")
