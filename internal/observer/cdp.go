package observer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"netlens/internal/logger"
	"netlens/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/rpcc"
)

// CDPObserver 基于 Chrome DevTools Protocol 的 NetworkObserver 实现。
// 只订阅 Network 域的事件流，从不使用 Fetch 域暂停请求，
// 因此页面代码对响应体的消费完全不受影响。
type CDPObserver struct {
	conn   *rpcc.Conn
	client *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc
	log    logger.Logger

	armed      atomic.Bool
	onExchange func(model.Capture)
	onNavigate func(string)

	// pending 仅由 consume 单协程访问，事件流经 rpcc.Sync
	// 同步后按到达顺序交付，不存在跨流乱序
	pending map[network.RequestID]*pendingRequest
}

// pendingRequest 在 requestWillBeSent 时记录的方法与 URL，
// 对应 XHR 在 open 阶段就已知的信息
type pendingRequest struct {
	url         string
	method      string
	contentType *string
	resource    network.ResourceType
	responded   bool
}

// NewCDP 创建 CDP 观察器
func NewCDP(l logger.Logger) *CDPObserver {
	if l == nil {
		l = logger.NewNop()
	}
	return &CDPObserver{
		log:     l,
		pending: make(map[network.RequestID]*pendingRequest),
	}
}

func (o *CDPObserver) OnExchange(cb func(model.Capture)) { o.onExchange = cb }
func (o *CDPObserver) OnNavigate(cb func(string))        { o.onNavigate = cb }
func (o *CDPObserver) SetArmed(armed bool)               { o.armed.Store(armed) }
func (o *CDPObserver) Armed() bool                       { return o.armed.Load() }

// Attach 连接 DevTools 并附加到指定页面目标，target 为空时取第一个 page 目标
func (o *CDPObserver) Attach(ctx context.Context, devtoolsURL string, target model.TargetID) error {
	octx, cancel := context.WithCancel(ctx)
	o.ctx = octx
	o.cancel = cancel

	dt := devtool.New(devtoolsURL)
	targets, err := dt.List(octx)
	if err != nil {
		cancel()
		return fmt.Errorf("list targets: %w", err)
	}
	var sel *devtool.Target
	for i := range targets {
		if targets[i].Type != devtool.Page {
			continue
		}
		if target == "" || string(targets[i].ID) == string(target) {
			sel = targets[i]
			break
		}
	}
	if sel == nil {
		cancel()
		return fmt.Errorf("no page target")
	}

	conn, err := rpcc.DialContext(octx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return fmt.Errorf("dial target: %w", err)
	}
	o.conn = conn
	o.client = cdp.NewClient(conn)
	return nil
}

// Enable 开启事件订阅并启动消费循环。
// 所有事件流必须经 rpcc.Sync 同步：loadingFinished 先于
// responseReceived 被消费会丢失捕获，同步后交付顺序即到达顺序。
func (o *CDPObserver) Enable() error {
	if o.client == nil {
		return fmt.Errorf("not attached")
	}
	if err := o.client.Network.Enable(o.ctx, nil); err != nil {
		return fmt.Errorf("network enable: %w", err)
	}
	if err := o.client.Page.Enable(o.ctx); err != nil {
		return fmt.Errorf("page enable: %w", err)
	}

	reqC, err := o.client.Network.RequestWillBeSent(o.ctx)
	if err != nil {
		return fmt.Errorf("subscribe requestWillBeSent: %w", err)
	}
	respC, err := o.client.Network.ResponseReceived(o.ctx)
	if err != nil {
		return fmt.Errorf("subscribe responseReceived: %w", err)
	}
	finC, err := o.client.Network.LoadingFinished(o.ctx)
	if err != nil {
		return fmt.Errorf("subscribe loadingFinished: %w", err)
	}
	failC, err := o.client.Network.LoadingFailed(o.ctx)
	if err != nil {
		return fmt.Errorf("subscribe loadingFailed: %w", err)
	}
	cacheC, err := o.client.Network.RequestServedFromCache(o.ctx)
	if err != nil {
		return fmt.Errorf("subscribe requestServedFromCache: %w", err)
	}
	navC, err := o.client.Page.FrameNavigated(o.ctx)
	if err != nil {
		return fmt.Errorf("subscribe frameNavigated: %w", err)
	}

	if err := rpcc.Sync(reqC, respC, finC, failC, cacheC, navC); err != nil {
		return fmt.Errorf("sync streams: %w", err)
	}

	go o.consume(reqC, respC, finC, failC, cacheC, navC)
	return nil
}

// Detach 停止观察并断开连接
func (o *CDPObserver) Detach() error {
	if o.cancel != nil {
		o.cancel()
	}
	if o.conn != nil {
		return o.conn.Close()
	}
	return nil
}

// consume 按到达顺序消费全部事件流。
// pending 表只在这个协程里读写
func (o *CDPObserver) consume(
	reqC network.RequestWillBeSentClient,
	respC network.ResponseReceivedClient,
	finC network.LoadingFinishedClient,
	failC network.LoadingFailedClient,
	cacheC network.RequestServedFromCacheClient,
	navC page.FrameNavigatedClient,
) {
	for {
		select {
		case <-reqC.Ready():
			ev, err := reqC.Recv()
			if err != nil {
				return
			}
			o.trackRequest(ev)
		case <-respC.Ready():
			ev, err := respC.Recv()
			if err != nil {
				return
			}
			o.recordResponse(ev)
		case <-finC.Ready():
			ev, err := finC.Recv()
			if err != nil {
				return
			}
			if p := o.takeFinished(ev.RequestID); p != nil {
				go o.capture(ev.RequestID, p)
			}
		case <-failC.Ready():
			ev, err := failC.Recv()
			if err != nil {
				return
			}
			o.dropPending(ev.RequestID)
		case <-cacheC.Ready():
			// 缓存直出的请求不会再有 loadingFinished，及时清理
			ev, err := cacheC.Recv()
			if err != nil {
				return
			}
			o.dropPending(ev.RequestID)
		case <-navC.Ready():
			ev, err := navC.Recv()
			if err != nil {
				return
			}
			if ev.Frame.ParentID != nil {
				continue // 只有顶层 frame 的导航才算一次页面加载
			}
			// 上一页的在途请求不会再有下文，先清表再通知开新会话
			o.flushPending()
			if o.onNavigate != nil {
				o.onNavigate(ev.Frame.URL)
			}
		case <-o.ctx.Done():
			return
		}
	}
}

// trackRequest 记录每个请求的方法与 URL（open 阶段信息）
func (o *CDPObserver) trackRequest(ev *network.RequestWillBeSentReply) {
	o.pending[ev.RequestID] = &pendingRequest{
		url:    ev.Request.URL,
		method: strings.ToUpper(ev.Request.Method),
	}
}

// recordResponse 补充响应头信息并按资源类型筛选页面的两类请求原语
func (o *CDPObserver) recordResponse(ev *network.ResponseReceivedReply) {
	p, ok := o.pending[ev.RequestID]
	if !ok {
		return
	}
	// 只关注 fetch 与 XMLHttpRequest 两种发起方式；
	// 非 2xx 状态照样捕获，状态码不参与过滤策略
	if ev.Type != network.ResourceTypeFetch && ev.Type != network.ResourceTypeXHR {
		delete(o.pending, ev.RequestID)
		return
	}
	p.resource = ev.Type
	p.contentType = headerValue(ev.Response.Headers, "content-type")
	p.responded = true
}

// takeFinished 响应体就绪：取走挂起项并判定是否捕获。
// armed 开关在此刻读取，未开启时不发出捕获（事件流照常消费）
func (o *CDPObserver) takeFinished(id network.RequestID) *pendingRequest {
	p, ok := o.pending[id]
	delete(o.pending, id)
	if !ok || !p.responded {
		return nil
	}
	if !o.armed.Load() || o.onExchange == nil {
		return nil
	}
	return p
}

// dropPending 清理不会再产生响应体的挂起项
func (o *CDPObserver) dropPending(id network.RequestID) {
	delete(o.pending, id)
}

// flushPending 页面导航后上一页的在途请求不再有下文，整表清空
func (o *CDPObserver) flushPending() {
	if len(o.pending) > 0 {
		o.log.Debug("导航清空挂起请求", "count", len(o.pending))
	}
	o.pending = make(map[network.RequestID]*pendingRequest)
}

// capture 读取响应体并交付
func (o *CDPObserver) capture(id network.RequestID, p *pendingRequest) {
	ctx, cancel := context.WithTimeout(o.ctx, 3*time.Second)
	defer cancel()

	reply, err := o.client.Network.GetResponseBody(ctx, network.NewGetResponseBodyArgs(id))
	if err != nil {
		o.log.Debug("读取响应体失败，丢弃捕获", "url", p.url, "error", err)
		return
	}
	o.deliver(p, reply.Body, reply.Base64Encoded)
}

// deliver 解码响应体并发出一次捕获。
// 解码失败属于 DecodeFault：只记日志丢弃本次捕获，绝不影响页面
func (o *CDPObserver) deliver(p *pendingRequest, body string, base64Encoded bool) {
	if base64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			o.log.Debug("响应体解码失败，丢弃捕获", "url", p.url, "error", fmt.Errorf("%w: %v", model.ErrDecodeFault, err))
			return
		}
		body = string(raw)
	}

	o.onExchange(model.Capture{
		URL:          p.url,
		Method:       p.method,
		ResponseBody: body,
		ContentType:  p.contentType,
		Timestamp:    time.Now().UnixMilli(),
	})
}

// headerValue 从 CDP 头部 JSON 中取指定键的值（大小写不敏感），缺失时返回 nil
func headerValue(raw network.Headers, key string) *string {
	if len(raw) == 0 {
		return nil
	}
	var h map[string]string
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			value := v
			return &value
		}
	}
	return nil
}
