package model

import (
	"errors"
	"fmt"
)

// 故障分类：拦截路径的故障就地吞掉，存储故障上抛一级，
// 查询路径的故障始终以结构化结果呈现给最终用户。
var (
	// ErrDecodeFault 响应体不可读（二进制载荷、流已被回收等），丢弃该次捕获
	ErrDecodeFault = errors.New("decode fault")

	// ErrStorageFault 底层存储不可用或写入被拒绝
	ErrStorageFault = errors.New("storage fault")

	// ErrMissingCredential 未配置提供方凭证
	ErrMissingCredential = errors.New("missing credential: configure an API key first")

	// ErrInvalidCredential 凭证格式检查未通过（仅语法检查，不代表鉴权结果）
	ErrInvalidCredential = errors.New("invalid credential: key does not match the provider's format")
)

// ProviderError 外部问答服务返回非成功状态
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (%d)", e.Status)
}
