package tokenizer

import (
	"sync"

	"github.com/BaSui01/agentrelay/types"
)

// Counter 是统一的 token 计数接口.
type Counter interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) int

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []types.Message) int

	// Name 返回计数器的名称.
	Name() string
}

// EncodingEstimator 选择字符估算器而不是 tiktoken 编码.
const EncodingEstimator = "estimator"

// New 返回指定编码的计数器。tiktoken 编码数据在首次使用时加载,
// 加载失败（例如离线环境）时自动回退到估算器。
func New(encoding string) Counter {
	if encoding == "" || encoding == EncodingEstimator {
		return NewEstimator()
	}
	return &fallbackCounter{
		primary:  NewTiktoken(encoding),
		fallback: NewEstimator(),
	}
}

// fallbackCounter 在 primary 初始化失败后永久使用 fallback.
type fallbackCounter struct {
	primary  *Tiktoken
	fallback *Estimator
	once     sync.Once
	useFB    bool
}

func (f *fallbackCounter) active() Counter {
	f.once.Do(func() {
		f.useFB = f.primary.init() != nil
	})
	if f.useFB {
		return f.fallback
	}
	return f.primary
}

func (f *fallbackCounter) CountTokens(text string) int { return f.active().CountTokens(text) }

func (f *fallbackCounter) CountMessages(messages []types.Message) int {
	return f.active().CountMessages(messages)
}

func (f *fallbackCounter) Name() string { return f.active().Name() }
