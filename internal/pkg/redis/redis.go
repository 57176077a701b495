// internal/pkg/redis/redis.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装 go-redis，并维护一个 Lua 脚本注册表。
// 秒杀、领券这类"判断 + 扣减"必须在一个脚本里原子完成，调用方通过脚本名执行。
type Client struct {
	client goredis.UniversalClient

	scriptLock sync.RWMutex
	scripts    map[string]*goredis.Script
}

// NewClient 创建客户端。addrs 为逗号分隔的地址列表，多于一个时走集群模式。
func NewClient(addrs string) (*Client, error) {
	list := strings.Split(addrs, ",")
	var client goredis.UniversalClient
	if len(list) > 1 {
		client = goredis.NewClusterClient(&goredis.ClusterOptions{Addrs: list})
	} else {
		client = goredis.NewClient(&goredis.Options{Addr: list[0]})
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{
		client:  client,
		scripts: make(map[string]*goredis.Script),
	}, nil
}

// GetClient 暴露底层客户端，供 pipeline 等低频操作使用。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// LoadScriptFromContent 注册一段 Lua 脚本。重复注册同名脚本会覆盖。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("script %s is empty", name)
	}
	c.scriptLock.Lock()
	defer c.scriptLock.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 按名字执行已注册的脚本。Script.Run 自动走 EVALSHA，未命中时回退 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.scriptLock.RLock()
	script, ok := c.scripts[name]
	c.scriptLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %s is not registered", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.client.Close()
}
