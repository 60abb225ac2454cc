package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fakeoutBot/internal/adapters/logger"
	"fakeoutBot/internal/adapters/sqlite"
	"fakeoutBot/internal/strategy/analytics"
)

func main() {
	dbPath := flag.String("db", "./data/fakeout_bot.db", "path to the sqlite database")
	symbol := flag.String("symbol", "ETHUSDT", "symbol to report on")
	limit := flag.Int("limit", 1000, "maximum number of recent trades to analyze")
	balance := flag.Float64("balance", 10000, "initial balance for equity metrics")
	flag.Parse()

	appLogger := logger.NewConsoleLogger(logger.LevelWarn)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	trades, err := repo.FindBySymbol(ctx, *symbol, *limit)
	if err != nil {
		log.Fatalf("failed to load trades: %v", err)
	}
	if len(trades) == 0 {
		fmt.Printf("No settled trades found for %s.\n", *symbol)
		return
	}

	m := analytics.AnalyzePerformance(trades, *balance)

	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.SetTitle(fmt.Sprintf("Performance: %s (%d trades)", *symbol, m.TotalTrades))
	summary.AppendRows([]table.Row{
		{"Win rate", fmt.Sprintf("%.1f%%", m.WinRate*100)},
		{"Net profit", fmt.Sprintf("%.2f", m.NetProfit)},
		{"Profit factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Average win", fmt.Sprintf("%.2f", m.AverageWin)},
		{"Average loss", fmt.Sprintf("%.2f", m.AverageLoss)},
		{"Expectancy", fmt.Sprintf("%.2f", m.Expectancy)},
		{"Max drawdown", fmt.Sprintf("%.1f%%", m.MaxDrawdown*100)},
		{"Max consecutive wins", m.MaxConsecutiveWins},
		{"Max consecutive losses", m.MaxConsecutiveLosses},
		{"Average trade duration", m.AverageTradeDuration.Round(time.Second).String()},
	})
	summary.SetStyle(table.StyleLight)
	summary.Render()

	sides := table.NewWriter()
	sides.SetOutputMirror(os.Stdout)
	sides.SetTitle("By side")
	sides.AppendHeader(table.Row{"Side", "Trades", "Wins", "Net profit"})
	for side, sm := range m.BySide {
		sides.AppendRow(table.Row{side, sm.Trades, sm.Wins, fmt.Sprintf("%.2f", sm.NetProfit)})
	}
	sides.SetStyle(table.StyleLight)
	sides.Render()

	reasons := table.NewWriter()
	reasons.SetOutputMirror(os.Stdout)
	reasons.SetTitle("By close reason")
	reasons.AppendHeader(table.Row{"Reason", "Count"})
	for reason, count := range m.ByCloseReason {
		reasons.AppendRow(table.Row{reason, count})
	}
	reasons.SetStyle(table.StyleLight)
	reasons.Render()

	months := table.NewWriter()
	months.SetOutputMirror(os.Stdout)
	months.SetTitle("Monthly returns")
	months.AppendHeader(table.Row{"Month", "Return"})
	for _, mr := range m.GetMonthlyReturns() {
		row := table.Row{mr.Month.Format("2006-01"), fmt.Sprintf("%.2f", mr.Return)}
		months.AppendRow(row)
	}
	months.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	months.SetStyle(table.StyleLight)
	months.Render()
}
