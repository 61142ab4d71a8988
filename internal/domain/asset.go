package domain

import "strings"

// Direction 24h 涨跌方向，用于展示层着色
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// Asset 持仓资产
// Quantity 只由用户通过 add/remove 修改；CurrentPrice/Change24h 只由聚合引擎修改；
// PortfolioPercentage 为派生值（占总市值的比例，0..1），每次价格更新都重新计算
type Asset struct {
	ID                  string  `json:"id"`                   // 交易所基础币种, e.g. "BTC"
	Quantity            float64 `json:"quantity"`             // 持有数量 (>0)
	CurrentPrice        float64 `json:"current_price"`        // 最新单价
	Change24h           float64 `json:"change_24h"`           // 24h 涨跌幅（百分比）
	PortfolioPercentage float64 `json:"portfolio_percentage"` // 占总市值比例
}

// Value 持仓市值
func (a Asset) Value() float64 {
	return a.Quantity * a.CurrentPrice
}

// Direction 根据 24h 涨跌幅返回方向
func (a Asset) Direction() Direction {
	switch {
	case a.Change24h > 0:
		return DirectionUp
	case a.Change24h < 0:
		return DirectionDown
	default:
		return DirectionSame
	}
}

// Holding 资产的持久化形态（只有身份和数量）
type Holding struct {
	ID       string  `json:"id"`
	Quantity float64 `json:"quantity"`
}

// PriceUpdate 一条已解析并路由到具体资产的行情
type PriceUpdate struct {
	ID        string
	Price     float64
	Change24h float64
}

// NormalizeID 统一资产 ID 格式（去空格、大写）
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
