package tracker

import "time"

// RetryConfig 断线重连配置
type RetryConfig struct {
	MaxRetries   int           // 最大重试次数
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 最大延迟
}

// DefaultRetryConfig 默认重试配置
var DefaultRetryConfig = RetryConfig{
	MaxRetries:   5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Delay 第 attempt 次重试（从 1 开始）前的等待时间
// 指数退避：每次翻倍，但不超过 MaxDelay
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	return c
}
