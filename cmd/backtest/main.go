// Command backtest runs one market's simulation end to end: it loads
// configuration and cached candle history, drives internal/simulation's
// replay loop against the reference internal/bot.Trend, and logs the
// number of completed operations and the final chart snapshot. Wiring order is
// InitLogger, then LoadConfig, then construct and run — a single
// synchronous Environment.Run call in place of a live-exchange
// goroutine loop.
package main

import (
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"backtestsim/internal/bot"
	"backtestsim/internal/evalctx"
	"backtestsim/internal/loader"
	"backtestsim/internal/marketplace"
	"backtestsim/internal/model"
	"backtestsim/internal/service"
	"backtestsim/internal/simulation"
	"backtestsim/internal/stream"
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	marketName := flag.String("market", "", "market key from config.yaml's markets block")
	candleLengthFlag := flag.String("candle-length", "1m", "base candle length, e.g. 1m, 5m, 1h")
	flag.Parse()

	service.InitLogger()
	defer service.Logger.Sync()
	sugar := service.Logger.Sugar()

	if err := run(*configDir, *marketName, *candleLengthFlag, sugar); err != nil {
		sugar.Fatalw("backtest failed", "error", err)
	}
}

func run(configDir, marketName, candleLengthFlag string, sugar *zap.SugaredLogger) error {
	cfg, err := service.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("cmd/backtest: %w", err)
	}

	mc, ok := cfg.Markets[marketName]
	if !ok {
		return fmt.Errorf("cmd/backtest: no market %q in config.yaml's markets block", marketName)
	}
	mkt := mc.Market()

	start, err := cfg.Start()
	if err != nil {
		return fmt.Errorf("cmd/backtest: simulationStart: %w", err)
	}
	end, err := cfg.End()
	if err != nil {
		return fmt.Errorf("cmd/backtest: simulationEnd: %w", err)
	}

	candleLength, err := service.ParseIntervalDuration(candleLengthFlag)
	if err != nil {
		return fmt.Errorf("cmd/backtest: candle-length: %w", err)
	}

	loaderTimeout := cfg.LoaderTimeout
	if loaderTimeout <= 0 {
		loaderTimeout = 30 * time.Second
	}

	marketLogger := sugar.With(zap.String("market", mkt.String()))

	candleLoader := loader.CSVCandleLoader{CacheDirectory: cfg.CacheDirectory, Market: mkt, CandleLength: candleLength}
	candleSource := stream.CandleSource{Loader: candleLoader, Market: mkt, CandleLength: candleLength, Start: start}
	timeline, err := stream.Merge([]stream.Provider{candleSource}, start, end, loaderTimeout)
	if err != nil {
		return fmt.Errorf("cmd/backtest: loading candle history: %w", err)
	}

	tradeInput := model.TradeHistoryInput{Market: mkt, Start: start}
	ctx := evalctx.New().UpdateInput(tradeInput, model.NewTradeHistorySegment(mkt, start))

	mp, err := marketplace.New(mkt, mc.OrderConstraints.ToModel(), mc.FeeLevel, mc.VolumeReduction, marketLogger)
	if err != nil {
		return fmt.Errorf("cmd/backtest: constructing marketplace: %w", err)
	}

	reference := bot.NewTrend(bot.Config{
		Market:            mkt,
		CandleLength:      candleLength,
		HistoryStart:      start,
		RSIPeriod:         14,
		SMAPeriod:         20,
		ATRPeriod:         14,
		TrendRSIThreshold: 60,
		VolATRThreshold:   0.0005,
		OrderQuantity:     mc.TotalValue / 100,
		AggregationRatio:  1,
	})

	env := simulation.New(
		ctx,
		map[model.Market]*marketplace.Marketplace{mkt: mp},
		map[model.Market]model.TradeHistoryInput{mkt: tradeInput},
		timeline,
		reference,
		marketLogger,
	)

	ticks := 0
	runErr := env.Run(func(tickErr error) bool {
		ticks++
		if tickErr != nil {
			marketLogger.Errorw("tick failed", "tick", ticks, "error", tickErr)
			return true
		}
		return false
	})
	if runErr != nil {
		return fmt.Errorf("cmd/backtest: %w", runErr)
	}

	reportResult(marketLogger, env, mkt)
	return nil
}

func reportResult(sugar *zap.SugaredLogger, env *simulation.Environment, mkt model.Market) {
	ops := env.CompletedOperations()
	sugar.Infow("simulation complete", "completedOperations", len(ops))

	series := env.Chart().Series(mkt)
	if len(series) == 0 {
		return
	}
	last := series[len(series)-1]
	sugar.Infow("final chart snapshot", "openTime", last.OpenTime, "closeTime", last.CloseTime, "values", last.Values)
}
