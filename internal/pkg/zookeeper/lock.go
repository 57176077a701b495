// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/mineshop_promo_locks"

// Conn 封装一条 ZooKeeper 连接。
type Conn struct {
	conn *zk.Conn
}

// Connect 建立连接。addrs 为逗号分隔的地址列表。
func Connect(addrs string, sessionTimeout time.Duration) (*Conn, error) {
	c, _, err := zk.Connect(strings.Split(addrs, ","), sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect zookeeper: %w", err)
	}
	return &Conn{conn: c}, nil
}

// Close 关闭连接，会话内创建的临时节点随之消失。
func (c *Conn) Close() {
	c.conn.Close()
}

// JobLock 是调度任务的互斥锁：同一个任务名同一时刻只允许一个调度实例执行。
// 采用临时节点实现，抢不到就跳过本轮，不阻塞等待。任务本身是幂等的，
// 锁只是避免多实例重复扫表浪费资源，不承担正确性。
type JobLock struct {
	conn     *Conn
	path     string
	acquired bool
}

// NewJobLock 创建一个以 jobName 标识的任务锁。
func NewJobLock(conn *Conn, jobName string) (*JobLock, error) {
	if err := ensurePath(conn.conn, lockRoot); err != nil {
		return nil, err
	}
	return &JobLock{
		conn: conn,
		path: lockRoot + "/" + jobName,
	}, nil
}

// TryAcquire 尝试抢锁，抢不到立刻返回 false。
func (l *JobLock) TryAcquire() (bool, error) {
	_, err := l.conn.conn.Create(l.path, []byte(""), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create lock node %s: %w", l.path, err)
	}
	l.acquired = true
	return true, nil
}

// Release 释放锁。未持有或节点已随会话过期消失时是 no-op。
func (l *JobLock) Release() error {
	if !l.acquired {
		return nil
	}
	l.acquired = false
	err := l.conn.conn.Delete(l.path, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("delete lock node %s: %w", l.path, err)
	}
	return nil
}

func ensurePath(conn *zk.Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return fmt.Errorf("check path %s: %w", path, err)
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("create path %s: %w", path, err)
	}
	return nil
}
