package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"
)

const (
	killTaskType  = "igor:kill_task"
	killTaskQueue = "kill"
)

// KillFunc performs the actual out-of-scope framework call: asking the
// Mesos-style driver to kill a task it has offered a host to. The driver
// connection itself is an external collaborator; AsynqDriver only owns
// the retry/rate-limit machinery around calling it.
type KillFunc func(taskId string) error

// AsynqDriver implements Driver by enqueuing kill requests on a
// redis-backed asynq queue, so a burst of kills (e.g. from a rolling
// update touching hundreds of shards) is rate-limited and individually
// retried rather than hammering the framework driver inline.
type AsynqDriver struct {
	cli     *asynq.Client
	srv     *asynq.Server
	limiter *rate.Limiter
	kill    KillFunc
}

// AsynqDriverOptions configures AsynqDriver.
type AsynqDriverOptions struct {
	RedisAddr string

	// KillsPerSecond bounds how fast KillTask enqueues work; 0 means
	// unlimited (bursts pass straight through to the queue).
	KillsPerSecond float64

	// Concurrency is the number of worker goroutines Serve runs.
	Concurrency int
}

// NewAsynqDriver builds a driver that enqueues onto redis at
// opts.RedisAddr. kill is invoked by Serve for each dequeued kill
// request.
func NewAsynqDriver(opts AsynqDriverOptions, kill KillFunc) *AsynqDriver {
	limit := rate.Inf
	if opts.KillsPerSecond > 0 {
		limit = rate.Limit(opts.KillsPerSecond)
	}
	return &AsynqDriver{
		cli:     asynq.NewClient(asynq.RedisClientOpt{Addr: opts.RedisAddr}),
		srv: asynq.NewServer(asynq.RedisClientOpt{Addr: opts.RedisAddr}, asynq.Config{
			Concurrency: maxInt(opts.Concurrency, 1),
			Queues:      map[string]int{killTaskQueue: 1},
		}),
		limiter: rate.NewLimiter(limit, 1),
		kill:    kill,
	}
}

// KillTask implements Driver.
func (a *AsynqDriver) KillTask(taskId string) error {
	if err := a.limiter.Wait(context.Background()); err != nil {
		return fmt.Errorf("driver: rate limit wait: %w", err)
	}
	task := asynq.NewTask(killTaskType, []byte(taskId))
	_, err := a.cli.Enqueue(task,
		asynq.Queue(killTaskQueue),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
	)
	return err
}

// Serve starts processing enqueued kill requests; it blocks until the
// process receives an interrupt or terminate signal.
func (a *AsynqDriver) Serve() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(killTaskType, func(ctx context.Context, t *asynq.Task) error {
		return a.kill(string(t.Payload()))
	})
	return a.srv.Run(mux)
}

// Close shuts down the asynq client and server.
func (a *AsynqDriver) Close() error {
	a.srv.Stop()
	a.srv.Shutdown()
	return a.cli.Close()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
