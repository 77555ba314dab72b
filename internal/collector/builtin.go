package collector

import "github.com/LJTian/LingoNews/internal/config"

// Builtin 返回全部内置 RSS 来源，顺序固定
func Builtin(d Deps) []Source {
	return []Source{
		NewBBC(d),
		NewCNN(d),
		NewReuters(d),
		NewTechCrunch(d),
		NewGuardian(d),
		NewNPR(d),
		NewAlJazeera(d),
		NewHackerNews(d),
	}
}

// RegisterBuiltin 以 traditional 模式注册内置来源
func RegisterBuiltin(r *Registry, d Deps) {
	for _, s := range Builtin(d) {
		r.Register(config.ModeTraditional, s)
	}
}
