package api

import (
	"context"

	"netlens/internal/config"
	"netlens/internal/logger"
	"netlens/internal/service"
	"netlens/pkg/model"
)

// Service 服务接口
type Service interface {
	// Attach 附加到页面目标并开始观察，target 为空时取第一个页面
	Attach(ctx context.Context, target model.TargetID) error

	// Detach 停止观察
	Detach() error

	// CurrentSessionID 获取当前会话 id
	CurrentSessionID() model.SessionID

	// SetArmed 切换拦截开关
	SetArmed(armed bool) error

	// Armed 查询开关状态
	Armed() bool

	// GetLogs 获取会话的捕获记录（时间戳降序）
	GetLogs(sessionID model.SessionID) ([]model.Exchange, error)

	// DeleteLog 删除单条记录
	DeleteLog(id uint) error

	// ClearAll 清空全部记录
	ClearAll() error

	// Ask 针对会话捕获数据提问
	Ask(ctx context.Context, sessionID model.SessionID, question string) (string, error)

	// SetCredential 保存提供方凭证
	SetCredential(provider, key string) error

	// Events 订阅领域事件
	Events() <-chan model.Event
}

// New 创建并返回服务接口实现
func New(cfg *config.Config, l logger.Logger) (Service, error) {
	return service.New(cfg, l)
}
