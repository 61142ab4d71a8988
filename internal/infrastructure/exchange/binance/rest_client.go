package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"xfolio/internal/infrastructure/exchange"
)

// CatalogClient Binance 交易对目录 REST 客户端（只用于填充可选资产列表）
type CatalogClient struct {
	baseURL string
	client  *http.Client
}

// ExchangeInfoResp /api/v3/exchangeInfo 响应（只保留用到的字段）
type ExchangeInfoResp struct {
	Symbols []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// NewCatalogClient 创建 Binance REST 客户端
func NewCatalogClient(baseURL string) *CatalogClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &CatalogClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ExchangeInfo 获取全部交易对
func (c *CatalogClient) ExchangeInfo(ctx context.Context) (*ExchangeInfoResp, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance api error: %d %s", resp.StatusCode, string(body))
	}

	var result ExchangeInfoResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QuoteAssets 返回以 quote 计价的所有基础币种（去重、排序）
func (c *CatalogClient) QuoteAssets(ctx context.Context, quote string) ([]string, error) {
	info, err := c.ExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}

	conv := exchange.NewCommonSymbolConverter(quote)
	seen := map[string]struct{}{}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		coin := strings.ToUpper(strings.TrimSpace(s.BaseAsset))
		if coin == "" {
			coin = conv.Symbol2Coin(s.Symbol)
		}
		if coin == "" || conv.Symbol2Coin(s.Symbol) == "" {
			continue
		}
		if _, ok := seen[coin]; ok {
			continue
		}
		seen[coin] = struct{}{}
		out = append(out, coin)
	}
	sort.Strings(out)
	return out, nil
}
