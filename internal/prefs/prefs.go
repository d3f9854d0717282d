package prefs

import (
	"errors"
	"fmt"

	"netlens/pkg/model"

	"gorm.io/gorm"
)

// Preference 键值偏好记录，与捕获日志同库不同表，
// 不受会话清库影响
type Preference struct {
	Name  string `gorm:"primaryKey"`
	Value string
}

// Prefs 偏好存储：按来源(origin)的拦截开关 + 提供方凭证。
// 语义上只承诺"读到最后一次写入的值"。
type Prefs struct {
	db *gorm.DB
}

// Open 在共享数据库句柄上初始化偏好表
func Open(db *gorm.DB) (*Prefs, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: prefs without database", model.ErrStorageFault)
	}
	if err := db.AutoMigrate(&Preference{}); err != nil {
		return nil, fmt.Errorf("%w: migrate preferences: %v", model.ErrStorageFault, err)
	}
	return &Prefs{db: db}, nil
}

// Set 写入偏好，后写覆盖先写
func (p *Prefs) Set(name, value string) error {
	rec := Preference{Name: name, Value: value}
	if err := p.db.Save(&rec).Error; err != nil {
		return fmt.Errorf("%w: set %s: %v", model.ErrStorageFault, name, err)
	}
	return nil
}

// Get 读取偏好，不存在时返回空串且 ok=false
func (p *Prefs) Get(name string) (string, bool, error) {
	var rec Preference
	err := p.db.First(&rec, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", model.ErrStorageFault, name, err)
	}
	return rec.Value, true, nil
}

// SetOriginArmed 记录某来源是否启用拦截
func (p *Prefs) SetOriginArmed(origin string, armed bool) error {
	v := "0"
	if armed {
		v = "1"
	}
	return p.Set("origin:"+origin, v)
}

// OriginArmed 查询某来源是否启用拦截，未记录的来源视为未启用
func (p *Prefs) OriginArmed(origin string) (bool, error) {
	v, ok, err := p.Get("origin:" + origin)
	if err != nil {
		return false, err
	}
	return ok && v == "1", nil
}

// SetCredential 保存提供方凭证
func (p *Prefs) SetCredential(provider, key string) error {
	return p.Set("credential:"+provider, key)
}

// Credential 读取提供方凭证，未配置时返回空串
func (p *Prefs) Credential(provider string) (string, error) {
	v, _, err := p.Get("credential:" + provider)
	return v, err
}
