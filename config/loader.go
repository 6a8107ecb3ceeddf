// =============================================================================
// 📦 AgentRelay 配置加载器
// =============================================================================
// 默认值 → YAML 文件 → 环境变量，后者覆盖前者
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTRELAY").
//	    Load()
//
// 环境变量名由 env 标签逐级拼接，例如 engine.max_steps 对应
// AGENTRELAY_ENGINE_MAX_STEPS。agents 列表只能写在文件里。
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "AGENTRELAY"

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath 设置 YAML 文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加加载完成后运行的校验
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 返回配置文件路径
func (l *Loader) ConfigPath() string { return l.configPath }

// Load 依次叠加默认值、文件与环境变量。文件不存在时按默认值继续。
// Load 本身不调用 Config.Validate，需要时通过 WithValidator 注册。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.mergeFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	if err := l.mergeEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) mergeFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", l.configPath, err)
	}
	return nil
}

// =============================================================================
// 🌱 环境变量
// =============================================================================

// envBinding 是一个叶子字段与它的环境变量名
type envBinding struct {
	key   string
	field reflect.Value
}

var durationType = reflect.TypeOf(time.Duration(0))

// EnvKeys 列出 prefix 下所有可识别的环境变量名，按字段声明顺序
func EnvKeys(prefix string) []string {
	var keys []string
	for _, b := range bindEnv(reflect.ValueOf(DefaultConfig()).Elem(), prefix, nil) {
		keys = append(keys, b.key)
	}
	return keys
}

func (l *Loader) mergeEnv(cfg *Config) error {
	for _, b := range bindEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix, nil) {
		raw, ok := os.LookupEnv(b.key)
		if !ok || raw == "" {
			continue
		}
		if err := decodeEnv(raw, b.field.Addr().Interface()); err != nil {
			return fmt.Errorf("%s=%q: %w", b.key, raw, err)
		}
	}
	return nil
}

// bindEnv 沿 env 标签展开嵌套结构体，env:"-" 的字段跳过
func bindEnv(v reflect.Value, prefix string, out []envBinding) []envBinding {
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != durationType {
			out = bindEnv(field, key, out)
			continue
		}
		out = append(out, envBinding{key: key, field: field})
	}
	return out
}

// decodeEnv 借助 mapstructure 的弱类型转换把字符串写入目标字段：
// 数字与布尔按字面解析，时长走 time.ParseDuration，字符串切片按逗号拆分。
func decodeEnv(raw string, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ZeroFields:       true, // 切片整体替换默认值，不按下标合并
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			trimStringsHook,
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func trimStringsHook(from, to reflect.Type, data any) (any, error) {
	parts, ok := data.([]string)
	if !ok {
		return data, nil
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
