package service

import (
	"context"
	"sort"

	"netlens/internal/bridge"
	"netlens/internal/config"
	"netlens/internal/logger"
	"netlens/internal/observer"
	"netlens/internal/prefs"
	"netlens/internal/query"
	"netlens/internal/store"
	"netlens/pkg/model"
)

// Service 组装捕获管线：observer → bridge → store，以及只读的查询面
type Service struct {
	cfg   *config.Config
	log   logger.Logger
	obs   *observer.CDPObserver
	brid  *bridge.Bridge
	store *store.Store
	prefs *prefs.Prefs
	query *query.Service
}

// New 按配置构建全部组件并接好管线
func New(cfg *config.Config, l logger.Logger) (*Service, error) {
	if l == nil {
		l = logger.NewNop()
	}

	st, err := store.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l)
	if err != nil {
		return nil, err
	}
	pf, err := prefs.Open(st.DB())
	if err != nil {
		return nil, err
	}

	obs := observer.NewCDP(l)
	br := bridge.New(obs, st, pf, l)
	qs := query.New(st, pf, cfg.Provider.Name, cfg.Provider.Model, l)

	return &Service{
		cfg:   cfg,
		log:   l,
		obs:   obs,
		brid:  br,
		store: st,
		prefs: pf,
		query: qs,
	}, nil
}

// Attach 附加到一个页面目标并开始观察
func (s *Service) Attach(ctx context.Context, target model.TargetID) error {
	if err := s.obs.Attach(ctx, s.cfg.DevTools.URL, target); err != nil {
		return err
	}
	return s.obs.Enable()
}

// Detach 停止观察
func (s *Service) Detach() error {
	return s.obs.Detach()
}

// CurrentSessionID 当前会话 id
func (s *Service) CurrentSessionID() model.SessionID {
	return s.brid.CurrentSessionID()
}

// SetArmed 切换拦截开关
func (s *Service) SetArmed(armed bool) error {
	return s.brid.SetArmed(armed)
}

// Armed 当前开关状态
func (s *Service) Armed() bool {
	return s.obs.Armed()
}

// GetLogs 返回指定会话的捕获记录，按时间戳降序。
// 存储不承诺顺序，排序在这里完成。
func (s *Service) GetLogs(sessionID model.SessionID) ([]model.Exchange, error) {
	logs, err := s.store.QueryBySession(string(sessionID))
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp > logs[j].Timestamp })
	return logs, nil
}

// DeleteLog 删除单条记录，幂等
func (s *Service) DeleteLog(id uint) error {
	return s.store.DeleteByID(id)
}

// ClearAll 清空全部捕获记录
func (s *Service) ClearAll() error {
	return s.store.ClearAll()
}

// Ask 针对会话捕获数据发起一次问答
func (s *Service) Ask(ctx context.Context, sessionID model.SessionID, question string) (string, error) {
	return s.query.Ask(ctx, string(sessionID), question)
}

// SetCredential 保存提供方凭证
func (s *Service) SetCredential(provider, key string) error {
	return s.prefs.SetCredential(provider, key)
}

// Events 领域事件流
func (s *Service) Events() <-chan model.Event {
	return s.brid.Events()
}
