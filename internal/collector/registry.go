package collector

import (
	"fmt"
	"strings"

	"github.com/LJTian/LingoNews/internal/config"
)

// SourceAll 选择当前模式下的全部来源
const SourceAll = "all"

type registration struct {
	src  Source
	mode config.Mode
}

// Registry 来源 id 到实现的映射，注册顺序即默认执行顺序
type Registry struct {
	byName map[string]registration
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]registration)}
}

// Register 注册来源；mode 为 traditional 或 fundus，重复的 id 覆盖旧值
func (r *Registry) Register(mode config.Mode, s Source) {
	name := s.Name()
	if _, ok := r.byName[name]; !ok {
		r.order = append(r.order, name)
	}
	r.byName[name] = registration{src: s, mode: mode}
}

// Names 返回 mode 下启用的来源 id
func (r *Registry) Names(mode config.Mode) []string {
	var out []string
	for _, name := range r.order {
		if enabled(r.byName[name].mode, mode) {
			out = append(out, name)
		}
	}
	return out
}

// Get 按 id 查找，大小写不敏感
func (r *Registry) Get(id string) (Source, config.Mode, bool) {
	if reg, ok := r.byName[id]; ok {
		return reg.src, reg.mode, true
	}
	for _, name := range r.order {
		if strings.EqualFold(name, id) {
			reg := r.byName[name]
			return reg.src, reg.mode, true
		}
	}
	return nil, "", false
}

// Resolve 将命令行给出的 id 列表解析为来源；未知 id 或不属于当前模式的 id 返回 ConfigError
func (r *Registry) Resolve(ids []string, mode config.Mode) ([]Source, error) {
	var wanted []string
	for _, id := range ids {
		for _, part := range strings.Split(id, ",") {
			if part = strings.TrimSpace(part); part != "" {
				wanted = append(wanted, part)
			}
		}
	}
	if len(wanted) == 0 {
		return nil, &config.ConfigError{Field: "source", Err: fmt.Errorf("no source given")}
	}

	var out []Source
	seen := make(map[string]struct{})
	add := func(s Source) {
		if _, ok := seen[s.Name()]; ok {
			return
		}
		seen[s.Name()] = struct{}{}
		out = append(out, s)
	}

	for _, id := range wanted {
		if strings.EqualFold(id, SourceAll) {
			for _, name := range r.Names(mode) {
				add(r.byName[name].src)
			}
			continue
		}
		src, srcMode, ok := r.Get(id)
		if !ok {
			return nil, &config.ConfigError{Field: "source", Err: fmt.Errorf("unknown source %q", id)}
		}
		if !enabled(srcMode, mode) {
			return nil, &config.ConfigError{Field: "source", Err: fmt.Errorf("source %q is not enabled in %s mode", id, mode)}
		}
		add(src)
	}

	if len(out) == 0 {
		return nil, &config.ConfigError{Field: "source", Err: fmt.Errorf("no sources enabled in %s mode", mode)}
	}
	return out, nil
}

func enabled(srcMode, runMode config.Mode) bool {
	return runMode == config.ModeBoth || srcMode == runMode
}
