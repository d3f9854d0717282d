package model

type SessionID string
type TargetID string

// Exchange 领域模型：一次被观察到的请求/响应
type Exchange struct {
	// ID 由存储层在插入时分配，捕获层永远不会设置它
	ID uint `json:"id" gorm:"primaryKey;autoIncrement"`

	SessionID string `json:"sessionId" gorm:"index"`
	URL       string `json:"url" gorm:"index"`
	Method    string `json:"method"`

	// ResponseBody 解码后的响应体文本，持久化前尚未验证为 JSON
	ResponseBody string `json:"responseBody"`

	// ContentType 原始 Content-Type 响应头，缺失时为 nil
	ContentType *string `json:"contentType"`

	// Timestamp 捕获时刻，毫秒级 Unix 时间戳
	Timestamp int64 `json:"timestamp" gorm:"index"`
}

// Capture 拦截层向桥接层发送的事件，不携带会话标识（打标是桥的职责）
type Capture struct {
	URL          string
	Method       string
	ResponseBody string
	ContentType  *string
	Timestamp    int64
}

// Event 面向上层的领域事件
type Event struct {
	Type      string    `json:"type"`
	Session   SessionID `json:"session"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Timestamp int64     `json:"timestamp"`
	Error     error     `json:"error"`
}

// ContentTypeOf 便于构造可选 Content-Type 字段
func ContentTypeOf(s string) *string { return &s }
