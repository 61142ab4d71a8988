package tracker

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"xfolio/internal/domain"
)

// Engine 组合聚合引擎（AggregateEngine）
// 每条行情都会重算所有资产的占比：O(n)/tick，适用于小规模持仓。
// 不做增量累加（running total），浮点漂移会破坏 Σ占比 == 1 的约束
type Engine struct {
	reg   *Registry
	store *Store
	now   func() time.Time
}

func NewEngine(reg *Registry, store *Store) *Engine {
	return &Engine{reg: reg, store: store, now: time.Now}
}

// ApplyUpdate 写入某资产的最新价格并重算全部占比
// 资产已被删除时为 no-op，返回 false；
// 导致总市值溢出（非有限值）的行情被拒绝，资产保持原价
func (e *Engine) ApplyUpdate(u domain.PriceUpdate) bool {
	a := e.reg.lookup(domain.NormalizeID(u.ID))
	if a == nil {
		return false
	}
	prevPrice, prevChange := a.CurrentPrice, a.Change24h
	a.CurrentPrice = u.Price
	a.Change24h = u.Change24h
	if total := e.total(); math.IsInf(total, 0) || math.IsNaN(total) {
		a.CurrentPrice, a.Change24h = prevPrice, prevChange
		log.Warn().Str("asset", a.ID).Float64("price", u.Price).Float64("quantity", a.Quantity).Msg("price update overflows portfolio total, ignored")
		return false
	}
	e.Recompute()
	return true
}

func (e *Engine) total() float64 {
	total := 0.0
	e.reg.each(func(a *domain.Asset) {
		total += a.Value()
	})
	return total
}

// Recompute 重算总市值和每个资产的占比，并发布快照
// 尚未收到行情的资产（价格为 0）计入总市值 0、占比 0
func (e *Engine) Recompute() float64 {
	total := e.total()

	e.reg.each(func(a *domain.Asset) {
		if total == 0 {
			a.PortfolioPercentage = 0
			return
		}
		a.PortfolioPercentage = a.Value() / total
	})

	if e.store != nil {
		e.store.publish(e.reg.List(), total, e.now())
	}
	return total
}
