package scheduler

import (
	"time"

	"github.com/LJTian/LingoNews/internal/persistor"
)

// 进程退出码
const (
	ExitOK        = 0
	ExitConfig    = 2
	ExitAllFailed = 3
	ExitPartial   = 4
	ExitCancelled = 130
)

// SourceReport 单个来源一次运行的结果
type SourceReport struct {
	Source    string             `json:"source"`
	Attempted int                `json:"attempted"`
	Yielded   int                `json:"yielded"`
	Saved     int                `json:"saved"`
	Skipped   int                `json:"skipped"`
	Errors    int                `json:"errors"`
	Outcomes  persistor.Counters `json:"outcomes"`
	// Failed 来源整体失败，例如所有 feed 都不可用
	Failed   bool          `json:"failed"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport 一次运行的汇总
type RunReport struct {
	RunID      string             `json:"runId"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	DryRun     bool               `json:"dryRun"`
	Cancelled  bool               `json:"cancelled"`
	TimedOut   bool               `json:"timedOut"`
	Sources    []SourceReport     `json:"sources"`
	Totals     persistor.Counters `json:"totals"`
}

// Failed 失败来源数
func (r *RunReport) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if s.Failed {
			n++
		}
	}
	return n
}

// ExitCode 0 全部成功且无错误，3 全部来源失败，4 部分失败或有错误，130 被取消
func (r *RunReport) ExitCode() int {
	if r.Cancelled {
		return ExitCancelled
	}
	if len(r.Sources) > 0 && r.Failed() == len(r.Sources) {
		return ExitAllFailed
	}
	if r.TimedOut || r.Failed() > 0 {
		return ExitPartial
	}
	for _, s := range r.Sources {
		if s.Errors > 0 {
			return ExitPartial
		}
	}
	return ExitOK
}

// Status 指标与日志使用的运行状态
func (r *RunReport) Status() string {
	switch r.ExitCode() {
	case ExitOK:
		return "ok"
	case ExitAllFailed:
		return "failed"
	case ExitCancelled:
		return "cancelled"
	default:
		return "partial"
	}
}
