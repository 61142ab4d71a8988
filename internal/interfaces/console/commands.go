package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"xfolio/internal/application/usecase/tracker"
)

// Portfolio 命令行可操作的组合接口
type Portfolio interface {
	Add(ctx context.Context, id string, quantity float64) error
	Remove(ctx context.Context, id string) (bool, error)
	Snapshot() tracker.Snapshot
	Stats() tracker.Stats
}

// CatalogFunc 列出可选资产
type CatalogFunc func(ctx context.Context) ([]string, error)

// Commands 从 stdin 读取并执行交互命令
//
//	add <ID> <QTY>  新增持仓
//	rm <ID>         删除持仓
//	list            打印持仓
//	catalog         打印交易所可选资产
//	stats           打印行情路由计数
type Commands struct {
	pf      Portfolio
	catalog CatalogFunc
	out     *Sink
}

func NewCommands(pf Portfolio, catalog CatalogFunc, out *Sink) *Commands {
	return &Commands{pf: pf, catalog: catalog, out: out}
}

// Run 逐行执行命令，直到输入结束或 ctx 取消
func (c *Commands) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if err := c.Exec(ctx, line); err != nil {
				if errors.Is(err, tracker.ErrRouterStopped) || errors.Is(err, context.Canceled) {
					return nil
				}
				c.out.Printf("error: %v\n", err)
			}
		}
	}
}

// Exec 执行一条命令
func (c *Commands) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "add":
		if len(fields) != 3 {
			return errors.New("usage: add <ID> <QTY>")
		}
		qty, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return errors.New("quantity must be a number")
		}
		if err := c.pf.Add(ctx, fields[1], qty); err != nil {
			return err
		}
		log.Info().Str("asset", fields[1]).Float64("quantity", qty).Msg("asset added")
		return nil

	case "rm", "remove":
		if len(fields) != 2 {
			return errors.New("usage: rm <ID>")
		}
		removed, err := c.pf.Remove(ctx, fields[1])
		if err != nil {
			return err
		}
		if !removed {
			c.out.Printf("%s not held\n", strings.ToUpper(fields[1]))
			return nil
		}
		log.Info().Str("asset", fields[1]).Msg("asset removed")
		return nil

	case "list", "ls":
		snap := c.pf.Snapshot()
		var sb strings.Builder
		for _, a := range snap.Assets {
			sb.WriteString(formatAsset(a.ID, a.Quantity, a.CurrentPrice, a.Change24h, a.PortfolioPercentage))
		}
		sb.WriteString("total " + strconv.FormatFloat(snap.TotalValue, 'f', 2, 64) + "\n")
		c.out.Printf("%s", sb.String())
		return nil

	case "catalog":
		if c.catalog == nil {
			return errors.New("catalog not available")
		}
		coins, err := c.catalog(ctx)
		if err != nil {
			return err
		}
		c.out.Printf("%d assets: %s\n", len(coins), strings.Join(coins, " "))
		return nil

	case "stats":
		st := c.pf.Stats()
		feed := c.pf.Snapshot().Feed
		c.out.Printf("feed=%s gen=%d topics=%d attempts=%d frames=%d parse_failures=%d dropped=%d stale=%d dials=%d failures=%d\n",
			feed.State, feed.Generation, feed.Topics, feed.Attempts,
			st.Frames, st.ParseFailures, st.Dropped, st.Stale, st.Dials, st.Failures)
		return nil

	case "help", "?":
		c.out.Printf("commands: add <ID> <QTY> | rm <ID> | list | catalog | stats\n")
		return nil
	}
	return errors.New("unknown command " + strconv.Quote(fields[0]) + ", try help")
}

func formatAsset(id string, qty, price, change, share float64) string {
	return id + " qty=" + strconv.FormatFloat(qty, 'g', -1, 64) +
		" price=" + strconv.FormatFloat(price, 'f', 2, 64) +
		" 24h=" + strconv.FormatFloat(change, 'f', 2, 64) + "%" +
		" share=" + strconv.FormatFloat(share*100, 'f', 2, 64) + "%\n"
}
