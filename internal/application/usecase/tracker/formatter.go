package tracker

import (
	"fmt"
	"strings"

	"xfolio/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Render 把快照渲染成一行；占比在这里乘以 100 并做展示精度处理
func (f *Formatter) Render(snap Snapshot, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[XFOLIO] ", ansiDim))

	if len(snap.Assets) == 0 {
		sb.WriteString(colorize("no assets", ansiDim))
	}

	for i, a := range snap.Assets {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}

		px := "--"
		if a.CurrentPrice > 0 {
			px = fmt.Sprintf("%.2f", a.CurrentPrice)
		}

		chCol := ansiYellow
		switch a.Direction() {
		case domain.DirectionUp:
			chCol = ansiGreen
		case domain.DirectionDown:
			chCol = ansiRed
		}

		sb.WriteString(a.ID)
		sb.WriteString(" ")
		sb.WriteString(fmt.Sprintf("%g@%s", a.Quantity, px))
		sb.WriteString(" ")
		sb.WriteString(colorize(fmt.Sprintf("%+.2f%%", a.Change24h), chCol))
		sb.WriteString(" ")
		sb.WriteString(colorize(fmt.Sprintf("%.1f%%", a.PortfolioPercentage*100), ansiDim))
	}

	sb.WriteString(colorize("  |  ", ansiDim))
	sb.WriteString(fmt.Sprintf("total=%.2f", snap.TotalValue))

	feed := snap.Feed.State.String()
	feedCol := ansiDim
	switch {
	case snap.Feed.Degraded:
		feed += " (stale)"
		feedCol = ansiRed
	case snap.Feed.State == StateReconnecting:
		feedCol = ansiYellow
	}
	sb.WriteString(" ")
	sb.WriteString(colorize(feed, feedCol))

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}
