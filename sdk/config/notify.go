package config

// 通知驱动
const (
	NotifyDriverNATS  = "nats"
	NotifyDriverKafka = "kafka"
	NotifyDriverNSQ   = "nsq"
)

// Notify 进度变更通知配置，未配置任何驱动地址时不发送通知
type Notify struct {
	Driver        string   `mapstructure:"driver"` // nats / kafka / nsq，为空时按 NatsURL 推断
	NatsURL       string   `mapstructure:"natsUrl"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"` // NATS 主题前缀，<prefix>.<domain>.updated
	ClientName    string   `mapstructure:"clientName"`
	KafkaBrokers  []string `mapstructure:"kafkaBrokers"`
	NsqdAddr      string   `mapstructure:"nsqdAddr"`
	Topic         string   `mapstructure:"topic"` // kafka / nsq 主题
}

// GetDriver 实际使用的驱动
func (n *Notify) GetDriver() string {
	if n == nil {
		return ""
	}
	if n.Driver != "" {
		return n.Driver
	}
	if n.NatsURL != "" {
		return NotifyDriverNATS
	}
	return ""
}

// Enabled 是否启用通知
func (n *Notify) Enabled() bool {
	switch n.GetDriver() {
	case NotifyDriverNATS:
		return n.NatsURL != ""
	case NotifyDriverKafka:
		return len(n.KafkaBrokers) > 0
	case NotifyDriverNSQ:
		return n.NsqdAddr != ""
	default:
		return false
	}
}

var NotifyConfig = new(Notify)
