package bridge

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"netlens/internal/logger"
	"netlens/internal/observer"
	"netlens/pkg/model"

	"github.com/google/uuid"
)

// LogStore 桥接层对存储的最小依赖
type LogStore interface {
	Put(ex *model.Exchange) (uint, error)
	ClearAll() error
}

// OriginPrefs 按来源的拦截开关偏好
type OriginPrefs interface {
	OriginArmed(origin string) (bool, error)
	SetOriginArmed(origin string, armed bool) error
}

// Bridge 会话桥：页面注入侧与持久层之间的信任边界。
// 负责会话标识的铸造、armed 开关的下发、以及捕获事件的打标转发。
type Bridge struct {
	mu      sync.RWMutex
	session model.SessionID
	origin  string

	obs    observer.NetworkObserver
	store  LogStore
	prefs  OriginPrefs
	log    logger.Logger
	events chan model.Event
}

// New 创建会话桥并接管观察器的回调
func New(obs observer.NetworkObserver, store LogStore, prefs OriginPrefs, l logger.Logger) *Bridge {
	if l == nil {
		l = logger.NewNop()
	}
	b := &Bridge{
		obs:    obs,
		store:  store,
		prefs:  prefs,
		log:    l,
		events: make(chan model.Event, 64),
	}
	obs.OnExchange(b.forward)
	obs.OnNavigate(func(pageURL string) { b.StartSession(pageURL) })
	return b
}

// Events 领域事件流，满时丢弃，仅供展示层消费
func (b *Bridge) Events() <-chan model.Event { return b.events }

// StartSession 在页面开始加载时开启新会话：
// 铸造新会话 id、清空存储（会话隔离的实现机制）、
// 按来源偏好决定初始 armed 状态。
// 偏好读取失败或 URL 不可解析时一律保持未开启（fail closed）。
func (b *Bridge) StartSession(pageURL string) model.SessionID {
	id := newSessionID()

	b.mu.Lock()
	b.session = id
	b.origin = originOf(pageURL)
	origin := b.origin
	b.mu.Unlock()

	// 先清库再打标：新会话的任何记录都不会与旧会话共存
	if err := b.store.ClearAll(); err != nil {
		b.log.Err(err, "清空旧会话记录失败", "session", string(id))
	}

	armed := false
	if origin != "" {
		v, err := b.prefs.OriginArmed(origin)
		if err != nil {
			b.log.Err(err, "读取来源偏好失败，保持未开启", "origin", origin)
		} else {
			armed = v
		}
	}
	b.obs.SetArmed(armed)

	b.log.Info("开启新会话", "session", string(id), "origin", origin, "armed", armed)
	b.sendEvent(model.Event{Type: "session_started", Session: id, URL: pageURL})
	return id
}

// SetArmed 响应用户开关：下发到观察器并持久化当前来源的偏好，
// 只对后续观察到的流量生效
func (b *Bridge) SetArmed(armed bool) error {
	b.obs.SetArmed(armed)

	b.mu.RLock()
	origin := b.origin
	b.mu.RUnlock()
	if origin == "" {
		return nil
	}
	if err := b.prefs.SetOriginArmed(origin, armed); err != nil {
		return fmt.Errorf("persist origin preference: %w", err)
	}
	return nil
}

// CurrentSessionID 只读查询当前会话 id
func (b *Bridge) CurrentSessionID() model.SessionID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// forward 给捕获事件打上转发时刻的会话 id 并交给存储。
// 注意打标用的是"转发时"的会话：跨越会话切换的在途捕获
// 会落入新会话，这是既定策略而非缺陷。
// 存储故障只记日志，绝不回传到拦截路径。
func (b *Bridge) forward(c model.Capture) {
	b.mu.RLock()
	session := b.session
	b.mu.RUnlock()
	if session == "" {
		return // 尚无会话，无处可归
	}

	ex := &model.Exchange{
		SessionID:    string(session),
		URL:          c.URL,
		Method:       c.Method,
		ResponseBody: c.ResponseBody,
		ContentType:  c.ContentType,
		Timestamp:    c.Timestamp,
	}
	id, err := b.store.Put(ex)
	if err != nil {
		b.log.Err(err, "捕获记录持久化失败", "url", c.URL, "session", string(session))
		b.sendEvent(model.Event{Type: "store_failed", Session: session, URL: c.URL, Error: err})
		return
	}
	if id == 0 {
		return // 未通过 JSON 过滤策略，静默丢弃
	}
	b.sendEvent(model.Event{Type: "captured", Session: session, URL: c.URL, Method: c.Method})
}

// sendEvent 非阻塞发送事件，自动补时间戳
func (b *Bridge) sendEvent(evt model.Event) {
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case b.events <- evt:
	default:
	}
}

// newSessionID 铸造会话 id：毫秒时间戳 + 随机后缀。
// 纯时间戳在同一毫秒内的两次加载会碰撞，随机成分消除了这一风险
func newSessionID() model.SessionID {
	suffix := uuid.NewString()[:8]
	return model.SessionID(fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix))
}

// originOf 提取 scheme://host 形式的来源，解析失败返回空串
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
