package session

import (
	"errors"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/directory"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/pool"
)

// 回送给客户端和指标中使用的失败原因
const (
	ReasonTenantUnknown        = "tenant_unknown"
	ReasonDirectoryUnavailable = "directory_unavailable"
	ReasonPoolExhausted        = "pool_exhausted"
	ReasonPoolOpenFailed       = "pool_open_failed"
	ReasonInvalidPayload       = "invalid_payload"
	ReasonNotBound             = "not_bound"
	ReasonRateLimited          = "rate_limited"
	ReasonInternal             = "internal"
)

// Reason 把绑定或更新错误归类为原因码
func Reason(err error) string {
	switch {
	case errors.Is(err, pool.ErrTenantUnknown):
		return ReasonTenantUnknown
	case errors.Is(err, directory.ErrDirectoryUnavailable):
		return ReasonDirectoryUnavailable
	case errors.Is(err, pool.ErrPoolExhausted):
		return ReasonPoolExhausted
	case errors.Is(err, pool.ErrPoolOpen):
		return ReasonPoolOpenFailed
	case errors.Is(err, progress.ErrInvalidEvent):
		return ReasonInvalidPayload
	case errors.Is(err, ErrNotBound), errors.Is(err, ErrClosed):
		return ReasonNotBound
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	default:
		return ReasonInternal
	}
}
