package progress

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/json"
)

// ErrInvalidEvent 上报内容无法解析
var ErrInvalidEvent = errors.New("invalid tracking event")

var validate = validator.New()

// 客户端时间戳允许的格式，没有时区的按 UTC 处理
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Event 一次播放进度上报
type Event struct {
	ModuleID        string
	Timestamp       time.Time
	CurrentProgress float64
}

type trackingPayload struct {
	ModuleID        interface{} `json:"module_id" validate:"required"`
	Timestamp       interface{} `json:"timestamp" validate:"required"`
	CurrentProgress interface{} `json:"current_progress"`
}

// ParseEvent 解析 video:update-tracking 的 data 部分
// module_id 可以是字符串或数字，current_progress 可以是数字或数字字符串，
// timestamp 为 ISO-8601 字符串或毫秒时间戳
func ParseEvent(data []byte) (Event, error) {
	var payload trackingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := validate.Struct(&payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if payload.CurrentProgress == nil {
		return Event{}, fmt.Errorf("%w: current_progress is required", ErrInvalidEvent)
	}

	moduleID, err := cast.ToStringE(payload.ModuleID)
	if err != nil || strings.TrimSpace(moduleID) == "" {
		return Event{}, fmt.Errorf("%w: module_id %v", ErrInvalidEvent, payload.ModuleID)
	}

	current, err := cast.ToFloat64E(payload.CurrentProgress)
	if err != nil {
		return Event{}, fmt.Errorf("%w: current_progress: %v", ErrInvalidEvent, err)
	}

	ts, err := parseTimestamp(payload.Timestamp)
	if err != nil {
		return Event{}, err
	}

	return Event{ModuleID: moduleID, Timestamp: ts, CurrentProgress: current}, nil
}

func parseTimestamp(v interface{}) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: timestamp %q is not ISO-8601", ErrInvalidEvent, s)
	}

	ms, err := cast.ToInt64E(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidEvent, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
