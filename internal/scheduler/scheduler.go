package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultStartupDelay 进程启动后延迟执行首轮采集，避免与首批 API 请求争抢资源
const DefaultStartupDelay = 15 * time.Second

// Scheduler 按 cron 表达式周期触发 Coordinator.Run，上一轮未结束时跳过本轮
type Scheduler struct {
	cron    *cron.Cron
	coord   *Coordinator
	req     RunRequest
	running atomic.Bool
	log     zerolog.Logger

	// StartupDelay 为 0 时不做首轮预跑
	StartupDelay time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun *RunReport
}

func New(spec string, coord *Coordinator, req RunRequest, log zerolog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:         cron.New(),
		coord:        coord,
		req:          req,
		log:          log.With().Str("component", "scheduler").Logger(),
		StartupDelay: DefaultStartupDelay,
		ctx:          ctx,
		cancel:       cancel,
	}

	if _, err := s.cron.AddFunc(spec, func() { s.tick("cron") }); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.StartupDelay > 0 {
		time.AfterFunc(s.StartupDelay, func() { s.tick("startup") })
	}
}

// Stop 停止定时器并取消进行中的运行，等待其结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

// Trigger 异步触发一次运行；已有运行时返回 false
func (s *Scheduler) Trigger(req RunRequest) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.run("manual", req)
	}()
	return true
}

// Running 是否有运行正在进行
func (s *Scheduler) Running() bool { return s.running.Load() }

// LastRun 最近一次完成的运行报告
func (s *Scheduler) LastRun() *RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Request 定时运行使用的默认请求
func (s *Scheduler) Request() RunRequest { return s.req }

func (s *Scheduler) tick(trigger string) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Info().Str("trigger", trigger).Msg("previous run still active, skipping")
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.running.Store(false)
	s.run(trigger, s.req)
}

func (s *Scheduler) run(trigger string, req RunRequest) {
	report, err := s.coord.Run(s.ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("trigger", trigger).Msg("run not started")
		return
	}
	s.mu.Lock()
	s.lastRun = report
	s.mu.Unlock()
	s.log.Info().Str("trigger", trigger).Str("run_id", report.RunID).Str("status", report.Status()).Msg("scheduled run done")
}
