package tracker

import (
	"math"

	"xfolio/internal/domain"
)

type ChangeKind int

const (
	AssetAdded ChangeKind = iota + 1
	AssetRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case AssetAdded:
		return "added"
	case AssetRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ChangeEvent 注册表变更通知
type ChangeEvent struct {
	Kind  ChangeKind
	Asset domain.Asset
}

type Listener func(ChangeEvent)

// Registry 持仓资产注册表（AssetRegistry）
// 非并发安全：运行期所有修改都必须通过 Router.Do 串行到路由循环中执行
type Registry struct {
	order     []string
	assets    map[string]*domain.Asset
	listeners []Listener
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[string]*domain.Asset)}
}

// OnChange 注册变更监听，按注册顺序同步回调
func (r *Registry) OnChange(l Listener) {
	if l != nil {
		r.listeners = append(r.listeners, l)
	}
}

// Add 新增持仓；重复 ID 或数量非正时拒绝，注册表不变
func (r *Registry) Add(id string, quantity float64) error {
	id = domain.NormalizeID(id)
	if id == "" {
		return domain.ErrInvalidAsset
	}
	if !(quantity > 0) || math.IsInf(quantity, 1) {
		return domain.ErrInvalidQuantity
	}
	if _, ok := r.assets[id]; ok {
		return domain.ErrDuplicateAsset
	}

	a := &domain.Asset{ID: id, Quantity: quantity}
	r.assets[id] = a
	r.order = append(r.order, id)
	r.emit(ChangeEvent{Kind: AssetAdded, Asset: *a})
	return nil
}

// Remove 删除持仓，不存在时返回 false 且不发通知
func (r *Registry) Remove(id string) bool {
	id = domain.NormalizeID(id)
	a, ok := r.assets[id]
	if !ok {
		return false
	}
	delete(r.assets, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.emit(ChangeEvent{Kind: AssetRemoved, Asset: *a})
	return true
}

// List 按插入顺序返回持仓副本
func (r *Registry) List() []domain.Asset {
	out := make([]domain.Asset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.assets[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }

// Get 按 ID 查询（返回副本）
func (r *Registry) Get(id string) (domain.Asset, bool) {
	a, ok := r.assets[domain.NormalizeID(id)]
	if !ok {
		return domain.Asset{}, false
	}
	return *a, true
}

func (r *Registry) lookup(id string) *domain.Asset {
	return r.assets[id]
}

func (r *Registry) each(fn func(a *domain.Asset)) {
	for _, id := range r.order {
		fn(r.assets[id])
	}
}

func (r *Registry) emit(ev ChangeEvent) {
	for _, l := range r.listeners {
		l(ev)
	}
}
