package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	DevTools struct {
		URL string `yaml:"url"`
	} `yaml:"devtools"`

	Provider struct {
		Name  string `yaml:"name"`  // gemini / openai
		Model string `yaml:"model"` // 提供方模型标识
	} `yaml:"provider"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Sqlite.Dsn = "db.sqlite3"
	cfg.Sqlite.Prefix = "netlens_"
	cfg.Log.Level = "info"
	cfg.Log.Writer = []string{"console"}
	cfg.DevTools.URL = "http://127.0.0.1:9222"
	cfg.Provider.Name = "gemini"
	cfg.Provider.Model = "gemini-2.0-flash"
	return cfg
}

// Load 从 yaml 文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
