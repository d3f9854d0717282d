package query

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"
)

// provider 外部问答服务的请求/响应形状。
// 凭证检查只做浅层语法校验，不代表鉴权结果。
type provider struct {
	name string

	// validKey 凭证格式检查
	validKey func(key string) bool

	// endpoint 组装请求地址，凭证按提供方要求放在 URL 或头部
	endpoint func(base, model, key string) string

	// authHeader 返回鉴权头，不需要时返回空键
	authHeader func(key string) (string, string)

	// body 用 sjson 组装请求体
	body func(model, prompt string) (string, error)

	// answerPath 成功响应中答案字段的 gjson 路径
	answerPath string
}

var gemini = &provider{
	name: "gemini",
	validKey: func(key string) bool {
		return strings.HasPrefix(key, "AIza") && len(key) >= 30
	},
	endpoint: func(base, model, key string) string {
		return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", base, model, key)
	},
	authHeader: func(string) (string, string) { return "", "" },
	body: func(_, prompt string) (string, error) {
		return sjson.Set("{}", "contents.0.parts.0.text", prompt)
	},
	answerPath: "candidates.0.content.parts.0.text",
}

var openai = &provider{
	name: "openai",
	validKey: func(key string) bool {
		return strings.HasPrefix(key, "sk-") && len(key) >= 20
	},
	endpoint: func(base, _, _ string) string {
		return base + "/v1/chat/completions"
	},
	authHeader: func(key string) (string, string) {
		return "Authorization", "Bearer " + key
	},
	body: func(model, prompt string) (string, error) {
		b, err := sjson.Set("{}", "model", model)
		if err != nil {
			return "", err
		}
		b, err = sjson.Set(b, "messages.0.role", "user")
		if err != nil {
			return "", err
		}
		return sjson.Set(b, "messages.0.content", prompt)
	},
	answerPath: "choices.0.message.content",
}

var defaultBases = map[string]string{
	"gemini": "https://generativelanguage.googleapis.com",
	"openai": "https://api.openai.com",
}

// providerByName 按配置名查找提供方，未知名称返回 nil
func providerByName(name string) *provider {
	switch name {
	case "gemini":
		return gemini
	case "openai":
		return openai
	}
	return nil
}
