package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	"xfolio/internal/application/port"
)

// FrameFields 行情帧中各字段的 JSONPath
type FrameFields struct {
	Stream string
	Price  string
	Change string
	// ChangeScale 涨跌幅换算成百分比的倍数（Bybit 推送小数，需要 100）；0 视为 1
	ChangeScale float64
}

// withDefaults 空字段用交易所默认值补齐
func (f FrameFields) withDefaults(d FrameFields) FrameFields {
	if strings.TrimSpace(f.Stream) == "" {
		f.Stream = d.Stream
	}
	if strings.TrimSpace(f.Price) == "" {
		f.Price = d.Price
	}
	if strings.TrimSpace(f.Change) == "" {
		f.Change = d.Change
	}
	if f.ChangeScale == 0 {
		f.ChangeScale = d.ChangeScale
	}
	if f.ChangeScale == 0 {
		f.ChangeScale = 1
	}
	return f
}

// FrameDecoder 按配置的 JSONPath 提取 topic、最新价、24h 涨跌幅
type FrameDecoder struct {
	stream gval.Evaluable
	price  gval.Evaluable
	change gval.Evaluable
	scale  float64
}

// NewFrameDecoder 编译字段路径；f 中的空字段使用 defaults
func NewFrameDecoder(f, defaults FrameFields) (*FrameDecoder, error) {
	f = f.withDefaults(defaults)

	stream, err := jsonpath.New(f.Stream)
	if err != nil {
		return nil, fmt.Errorf("stream field %q: %w", f.Stream, err)
	}
	price, err := jsonpath.New(f.Price)
	if err != nil {
		return nil, fmt.Errorf("price field %q: %w", f.Price, err)
	}
	change, err := jsonpath.New(f.Change)
	if err != nil {
		return nil, fmt.Errorf("change field %q: %w", f.Change, err)
	}
	return &FrameDecoder{stream: stream, price: price, change: change, scale: f.ChangeScale}, nil
}

// Decode 解码一帧；topic 或价格缺失、非数字时返回 port.ErrMalformedFrame
// 涨跌幅缺失或非数字按 0 处理，价格仍然生效
func (d *FrameDecoder) Decode(b []byte) (port.Frame, error) {
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return port.Frame{}, fmt.Errorf("%w: %v", port.ErrMalformedFrame, err)
	}

	ctx := context.Background()
	sv, err := d.stream(ctx, doc)
	if err != nil {
		return port.Frame{}, fmt.Errorf("%w: stream: %v", port.ErrMalformedFrame, err)
	}
	topic, ok := first(sv).(string)
	if !ok || topic == "" {
		return port.Frame{}, fmt.Errorf("%w: stream tag missing", port.ErrMalformedFrame)
	}

	price, err := number(ctx, d.price, doc)
	if err != nil {
		return port.Frame{}, fmt.Errorf("%w: price: %v", port.ErrMalformedFrame, err)
	}
	if price < 0 {
		return port.Frame{}, fmt.Errorf("%w: negative price %v", port.ErrMalformedFrame, price)
	}

	change, err := number(ctx, d.change, doc)
	if err != nil {
		change = 0
	}

	return port.Frame{Topic: topic, Price: price, Change24h: change * d.scale}, nil
}

func number(ctx context.Context, path gval.Evaluable, doc any) (float64, error) {
	v, err := path(ctx, doc)
	if err != nil {
		return 0, err
	}

	var n float64
	switch x := first(v).(type) {
	case float64:
		n = x
	case string:
		n, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not finite: %v", n)
	}
	return n, nil
}

// jsonpath 对通配符路径返回列表，这里只取第一个
func first(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

var _ port.FrameDecoder = (*FrameDecoder)(nil)
