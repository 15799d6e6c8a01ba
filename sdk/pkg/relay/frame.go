package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
)

// 事件名
const (
	EventCreateConnection = "create-connection"
	EventUpdateTracking   = "video:update-tracking"
	EventBindFailed       = "bind-failed"
	EventUpdateFailed     = "update-failed"
)

// Frame 一帧 websocket 消息
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// BindFailed bind-failed 的内容
type BindFailed struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// UpdateFailed update-failed 的内容
type UpdateFailed struct {
	Reason   string `json:"reason"`
	ModuleID string `json:"module_id,omitempty"`
	Message  string `json:"message"`
}

type bindPayload struct {
	Domain interface{} `json:"domain"`
	User   interface{} `json:"user"`
}

// ParseBind 解析 create-connection 的 domain 和 user，user 可以是数字
func ParseBind(data []byte) (domain, user string, err error) {
	var payload bindPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", "", fmt.Errorf("%w: %v", progress.ErrInvalidEvent, err)
	}

	domain, err = cast.ToStringE(payload.Domain)
	if err != nil || strings.TrimSpace(domain) == "" {
		return "", "", fmt.Errorf("%w: domain is required", progress.ErrInvalidEvent)
	}
	user, err = cast.ToStringE(payload.User)
	if err != nil || strings.TrimSpace(user) == "" {
		return "", "", fmt.Errorf("%w: user is required", progress.ErrInvalidEvent)
	}
	return domain, user, nil
}

// moduleIDOf 尽量从无法解析的上报中取出 module_id，用于 update-failed
func moduleIDOf(data []byte) string {
	var payload struct {
		ModuleID interface{} `json:"module_id"`
	}
	if json.Unmarshal(data, &payload) != nil {
		return ""
	}
	return cast.ToString(payload.ModuleID)
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

func decodeFrame(message []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(message, &f); err != nil {
		return Frame{}, err
	}
	if f.Event == "" {
		return Frame{}, errors.New("frame without event")
	}
	return f, nil
}
