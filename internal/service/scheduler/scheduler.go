// internal/service/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
)

var jobRunCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mineshop",
	Subsystem: "scheduler",
	Name:      "job_runs_total",
	Help:      "Scheduler job executions by job and outcome.",
}, []string{"job", "outcome"})

// JobLocker 任务互斥的出站端口，ZooKeeper 临时节点实现。
type JobLocker interface {
	TryAcquire() (bool, error)
	Release() error
}

// LockFactory 按任务名创建锁。
type LockFactory func(jobName string) (JobLocker, error)

// Job 一个轮询任务。Run 必须幂等：锁只用来省资源，不承担正确性，
// 两个实例偶尔同时扫到同一批数据时靠底层状态 CAS 保证只生效一次。
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

// Scheduler 跑一组轮询任务，每个任务独立节拍，抢到锁的实例执行本轮。
type Scheduler struct {
	locks LockFactory
	jobs  []Job
}

func New(locks LockFactory, jobs ...Job) *Scheduler {
	return &Scheduler{locks: locks, jobs: jobs}
}

// Run 启动全部任务循环，任一任务返回不可恢复错误或 ctx 取消时整体退出。
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			return s.runLoop(ctx, job)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) error {
	logger.Ctx(ctx).Info().
		Str("job", job.Name).
		Dur("interval", job.Interval).
		Msg("scheduler job loop started")

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	lock, err := s.locks(job.Name)
	if err != nil {
		jobRunCounter.WithLabelValues(job.Name, "lock_error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("job", job.Name).Msg("create job lock failed")
		return
	}
	acquired, err := lock.TryAcquire()
	if err != nil {
		jobRunCounter.WithLabelValues(job.Name, "lock_error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("job", job.Name).Msg("acquire job lock failed")
		return
	}
	if !acquired {
		// 别的实例在跑，本轮跳过
		jobRunCounter.WithLabelValues(job.Name, "skipped").Inc()
		return
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("job", job.Name).Msg("release job lock failed")
		}
	}()

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := time.Now()
	if err := job.Run(runCtx, started); err != nil {
		jobRunCounter.WithLabelValues(job.Name, "error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("job", job.Name).Msg("scheduler job failed")
		return
	}
	jobRunCounter.WithLabelValues(job.Name, "ok").Inc()
	logger.Ctx(ctx).Debug().
		Str("job", job.Name).
		Dur("elapsed", time.Since(started)).
		Msg("scheduler job finished")
}
