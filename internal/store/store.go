package store

import (
	"errors"
	"fmt"
	"strings"

	"netlens/internal/logger"
	"netlens/pkg/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// jsonMediaType 持久化过滤策略：只有 Content-Type 包含该子串的响应才会入库
const jsonMediaType = "application/json"

// Store 持久化的捕获日志存储，按会话划分，记录插入后不再变更
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开（必要时创建）sqlite 存储并就地升级表结构
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", model.ErrStorageFault, dsn, err)
	}
	// AutoMigrate 负责旧库的升级：新增索引和列在原地补齐，旧记录保留
	if err := db.AutoMigrate(&model.Exchange{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", model.ErrStorageFault, err)
	}
	return &Store{db: db, log: l}, nil
}

// DB 暴露底层句柄，供偏好存储共用同一个数据库文件
func (s *Store) DB() *gorm.DB { return s.db }

// Close 关闭底层数据库连接
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: close: %v", model.ErrStorageFault, err)
	}
	return sqlDB.Close()
}

// Put 过滤并持久化一条捕获记录。
// 不满足 JSON 过滤策略的记录静默丢弃（返回 0, nil）；
// 通过过滤的记录由存储分配自增 id 并返回。
func (s *Store) Put(ex *model.Exchange) (uint, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("%w: store not initialized", model.ErrStorageFault)
	}
	if ex.SessionID == "" {
		return 0, fmt.Errorf("%w: exchange without session id", model.ErrStorageFault)
	}
	if ex.ContentType == nil || !strings.Contains(*ex.ContentType, jsonMediaType) {
		s.log.Debug("丢弃非 JSON 捕获", "url", ex.URL, "contentType", derefOr(ex.ContentType, "<none>"))
		return 0, nil
	}

	rec := *ex
	rec.ID = 0 // id 只能由存储分配
	if err := s.db.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("%w: put: %v", model.ErrStorageFault, err)
	}
	return rec.ID, nil
}

// QueryBySession 返回指定会话的全部记录，顺序不作保证，空结果不是错误
func (s *Store) QueryBySession(sessionID string) ([]model.Exchange, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("%w: store not initialized", model.ErrStorageFault)
	}
	var out []model.Exchange
	if err := s.db.Where("session_id = ?", sessionID).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: query session %s: %v", model.ErrStorageFault, sessionID, err)
	}
	return out, nil
}

// DeleteByID 删除单条记录，删除不存在的 id 不算错误
func (s *Store) DeleteByID(id uint) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%w: store not initialized", model.ErrStorageFault)
	}
	if err := s.db.Delete(&model.Exchange{}, id).Error; err != nil {
		return fmt.Errorf("%w: delete %d: %v", model.ErrStorageFault, id, err)
	}
	return nil
}

// ClearAll 清空所有会话的捕获记录。每次新会话开始时调用一次，
// 这是"日志只属于当前页面加载"约束的实现机制。偏好表不受影响。
func (s *Store) ClearAll() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%w: store not initialized", model.ErrStorageFault)
	}
	if err := s.db.Where("1 = 1").Delete(&model.Exchange{}).Error; err != nil {
		return fmt.Errorf("%w: clear: %v", model.ErrStorageFault, err)
	}
	return nil
}

// Count 返回当前记录总数
func (s *Store) Count() (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("%w: store not initialized", model.ErrStorageFault)
	}
	var n int64
	if err := s.db.Model(&model.Exchange{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: count: %v", model.ErrStorageFault, err)
	}
	return n, nil
}

// IsStorageFault 判断错误是否属于存储故障
func IsStorageFault(err error) bool {
	return errors.Is(err, model.ErrStorageFault)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
