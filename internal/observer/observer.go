package observer

import "netlens/pkg/model"

// NetworkObserver 观察页面网络流量的能力接口。
// 观察是被动的：实现永远不能阻塞或改变页面看到的真实响应。
// armed 状态由实例自身持有，只通过 SetArmed 变更、在捕获时读取。
type NetworkObserver interface {
	// OnExchange 注册捕获回调，必须在 Enable 之前调用一次
	OnExchange(func(model.Capture))

	// OnNavigate 注册页面加载回调（参数为新页面 URL），同样在 Enable 前调用
	OnNavigate(func(url string))

	// SetArmed 切换拦截开关，对后续观察到的流量立即生效，不回溯
	SetArmed(armed bool)

	// Armed 返回当前开关状态
	Armed() bool
}
