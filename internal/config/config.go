package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合客户端网关的配置项。
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Protocol ProtocolConfig
	Cache    CacheConfig
}

// fileConfig mirrors the optional YAML file named by SUPPORT_CONFIG_FILE.
// Environment variables always win over file values.
type fileConfig struct {
	Port    string `yaml:"port"`
	Backend struct {
		URL            string `yaml:"url"`
		TimeoutSeconds *int   `yaml:"timeout_seconds"`
	} `yaml:"backend"`
	Protocol struct {
		StartMarker    string `yaml:"start_marker"`
		EndMarker      string `yaml:"end_marker"`
		FieldDelimiter string `yaml:"field_delimiter"`
	} `yaml:"protocol"`
	Cache struct {
		RedisURL   string `yaml:"redis_url"`
		TTLSeconds *int   `yaml:"ttl_seconds"`
	} `yaml:"cache"`
}

// Load 从环境变量（以及可选的 YAML 文件）加载配置。
func Load() (*Config, error) {
	file, err := loadFileConfig(strings.TrimSpace(os.Getenv("SUPPORT_CONFIG_FILE")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig(file)
	if err != nil {
		return nil, err
	}

	cache, err := loadCacheConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Backend:  backend,
		Protocol: loadProtocolConfig(file),
		Cache:    cache,
	}, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var file fileConfig
	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", file.Port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig 描述客服后端连接配置。
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadBackendConfig(file fileConfig) (BackendConfig, error) {
	baseURL := getEnvOrDefault("SUPPORT_BACKEND_URL", file.Backend.URL)
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	seconds, err := parseOptionalIntEnv("SUPPORT_BACKEND_TIMEOUT")
	if err != nil {
		return BackendConfig{}, err
	}
	if seconds == nil {
		seconds = file.Backend.TimeoutSeconds
	}

	timeout := 30 * time.Second
	if seconds != nil {
		if *seconds < 1 {
			return BackendConfig{}, fmt.Errorf("invalid backend timeout %d: must be at least 1 second", *seconds)
		}
		timeout = time.Duration(*seconds) * time.Second
	}

	return BackendConfig{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
	}, nil
}

// ProtocolConfig 描述回复中按钮协议的分隔符，必须与后端保持一致。
type ProtocolConfig struct {
	StartMarker    string
	EndMarker      string
	FieldDelimiter string
}

func loadProtocolConfig(file fileConfig) ProtocolConfig {
	return ProtocolConfig{
		StartMarker:    getEnvOrDefault("SUPPORT_CHOICE_START", file.Protocol.StartMarker),
		EndMarker:      getEnvOrDefault("SUPPORT_CHOICE_END", file.Protocol.EndMarker),
		FieldDelimiter: getEnvOrDefault("SUPPORT_CHOICE_DELIMITER", file.Protocol.FieldDelimiter),
	}
}

// CacheConfig 描述会话摘要缓存（Redis）配置。
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// Enabled 表示是否配置了 Redis。
func (c CacheConfig) Enabled() bool {
	return c.RedisURL != ""
}

func loadCacheConfig(file fileConfig) (CacheConfig, error) {
	seconds, err := parseOptionalIntEnv("SUPPORT_SESSION_CACHE_TTL")
	if err != nil {
		return CacheConfig{}, err
	}
	if seconds == nil {
		seconds = file.Cache.TTLSeconds
	}

	ttl := 30 * time.Second
	if seconds != nil && *seconds > 0 {
		ttl = time.Duration(*seconds) * time.Second
	}

	return CacheConfig{
		RedisURL: getEnvOrDefault("REDIS_URL", file.Cache.RedisURL),
		TTL:      ttl,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(defaultValue)
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
