package notify

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/json"
)

// EventTypeProgressUpdated 进度写入成功后发布的事件类型
const EventTypeProgressUpdated = "progress.updated"

// ProgressUpdate 一次已写入的进度变更
type ProgressUpdate struct {
	Domain          string    `json:"domain"`
	User            string    `json:"user"`
	ModuleID        string    `json:"module_id"`
	CurrentProgress float64   `json:"current_progress"`
	DeltaSeconds    float64   `json:"delta_seconds"`
	TimeAccounted   bool      `json:"time_accounted"` // 会话内第一次上报不累加时长
	Timestamp       time.Time `json:"timestamp"`      // 客户端上报的时间戳
}

// Envelope 通知消息包络
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	TenantID  string          `json:"tenant_id"`
	Timestamp time.Time       `json:"timestamp"` // 发布时间
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope 包装一次进度变更，EventID 使用 UUID v7
func NewEnvelope(u ProgressUpdate) (*Envelope, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		eventID = uuid.New()
	}

	return &Envelope{
		EventID:   eventID.String(),
		EventType: EventTypeProgressUpdated,
		TenantID:  u.Domain,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

// Validate 校验包络字段
func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("event_id is required")
	}
	if strings.TrimSpace(e.TenantID) == "" {
		return errors.New("tenant_id is required")
	}
	if len(e.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

// ToBytes 序列化包络
func (e *Envelope) ToBytes() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// FromBytes 反序列化包络
func FromBytes(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Update 解出包络中的进度变更
func (e *Envelope) Update() (ProgressUpdate, error) {
	var u ProgressUpdate
	err := json.Unmarshal(e.Payload, &u)
	return u, err
}
