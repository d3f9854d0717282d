package query

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"netlens/internal/logger"
	"netlens/pkg/model"

	"github.com/tidwall/gjson"
)

// fallbackAnswer 成功响应但缺少答案字段时的固定兜底
const fallbackAnswer = "(provider returned no answer)"

// ExchangeReader 查询层对存储的只读依赖
type ExchangeReader interface {
	QueryBySession(sessionID string) ([]model.Exchange, error)
}

// CredentialReader 提供方凭证来源
type CredentialReader interface {
	Credential(provider string) (string, error)
}

// Service 问答服务：把一个会话的捕获体与用户问题组装成单个提示词，
// 向外部提供方发起一次调用。不重试、不流式、不分块——
// 提示词超限时原样透传提供方错误。
type Service struct {
	store ExchangeReader
	creds CredentialReader
	log   logger.Logger

	providerName string
	model        string

	// BaseURL 覆盖提供方地址，测试用；为空时使用提供方默认
	BaseURL string

	httpc *http.Client
}

// New 创建问答服务
func New(store ExchangeReader, creds CredentialReader, providerName, model string, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{
		store:        store,
		creds:        creds,
		log:          l,
		providerName: providerName,
		model:        model,
		httpc:        &http.Client{Timeout: 60 * time.Second},
	}
}

// Ask 回答关于指定会话捕获数据的自然语言问题。
// 前置检查顺序：凭证存在 → 凭证格式。任何网络调用都发生在检查之后。
func (s *Service) Ask(ctx context.Context, sessionID, question string) (string, error) {
	p := providerByName(s.providerName)
	if p == nil {
		return "", fmt.Errorf("unknown provider %q", s.providerName)
	}

	key, err := s.creds.Credential(p.name)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", model.ErrMissingCredential
	}
	if !p.validKey(key) {
		return "", model.ErrInvalidCredential
	}

	logs, err := s.store.QueryBySession(sessionID)
	if err != nil {
		return "", err
	}
	prompt := buildPrompt(logs, question)

	base := s.BaseURL
	if base == "" {
		base = defaultBases[p.name]
	}
	body, err := p.body(s.model, prompt)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(base, s.model, key), strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if hk, hv := p.authHeader(key); hk != "" {
		req.Header.Set(hk, hv)
	}

	s.log.Debug("发起提供方调用", "provider", p.name, "logs", len(logs))
	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", &model.ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &model.ProviderError{Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(resp.Status)
		}
		return "", &model.ProviderError{Status: resp.StatusCode, Message: msg}
	}

	answer := gjson.GetBytes(raw, p.answerPath).String()
	if answer == "" {
		return fallbackAnswer, nil
	}
	return answer, nil
}

// buildPrompt 组装单个提示词：编号的捕获块、字面的用户问题、
// 以及"只依据给定数据作答，数据不足时明确说明"的指令
func buildPrompt(logs []model.Exchange, question string) string {
	sorted := make([]model.Exchange, len(logs))
	copy(sorted, logs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var b strings.Builder
	b.WriteString("You are analyzing network responses captured from a single page load.\n")
	b.WriteString("Captured exchanges:\n\n")
	for i, ex := range sorted {
		ts := time.UnixMilli(ex.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "[%d] %s %s at %s\n%s\n\n", i+1, ex.Method, ex.URL, ts, ex.ResponseBody)
	}
	if len(sorted) == 0 {
		b.WriteString("(no exchanges were captured)\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer using only the data above. If the data is insufficient to answer, say so explicitly.")
	return b.String()
}
