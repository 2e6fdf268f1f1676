// Package main is the one-shot fetch CLI.
//
// It wires the same container the daemon uses, runs a single orchestrator
// operation and prints the normalized result as indented JSON on stdout.
// Diagnostics go to stderr so the output stays pipeable:
//
//	fetch -op quote -symbol AAPL
//	fetch -op history -symbol MSFT -period 6mo
//	fetch -op download -symbol BRK-B -start 2020-01-01 -end 2020-12-31
//	fetch -op status
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/aristath/datafeed/internal/config"
	"github.com/aristath/datafeed/internal/di"
	"github.com/aristath/datafeed/internal/domain"
	"github.com/aristath/datafeed/pkg/logger"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		op       string
		symbol   string
		period   string
		interval string
		start    string
		end      string
		timeout  int
		logLevel string
	)

	flag.StringVar(&op, "op", "quote", "operation: history|intraday|fundamentals|quote|info|earnings|download|status")
	flag.StringVar(&symbol, "symbol", "", "ticker symbol (required for every op except status)")
	flag.StringVar(&period, "period", "", "lookback window: 1d|5d|1mo|3mo|6mo|1y|2y|5y|10y|ytd|max (default 1y, intraday 1d)")
	flag.StringVar(&interval, "interval", "5m", "intraday bar interval, e.g. 1m|5m|15m|30m|60m")
	flag.StringVar(&start, "start", "", "download start date, "+dateLayout)
	flag.StringVar(&end, "end", "", "download end date, "+dateLayout+" (default today)")
	flag.IntVar(&timeout, "timeout", 120, "overall timeout in seconds")
	flag.StringVar(&logLevel, "log-level", "warn", "diagnostic verbosity on stderr")
	flag.Parse()

	log := logger.New(logger.Config{Level: logLevel, Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	out, err := run(ctx, container, op, symbol, period, interval, start, end)
	if err != nil {
		log.Fatal().Err(err).Str("op", op).Msg("Operation failed")
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
	fmt.Println(string(b))
}

// run dispatches one CLI operation to the orchestrator.
func run(ctx context.Context, container *di.Container, op, symbol, periodArg, interval, startArg, endArg string) (any, error) {
	orch := container.Orchestrator

	if op == "status" {
		return orch.Diagnostics(), nil
	}

	if symbol == "" {
		return nil, fmt.Errorf("-symbol is required for op %q", op)
	}

	switch op {
	case "history":
		period, err := parsePeriodArg(periodArg, domain.Period1Y)
		if err != nil {
			return nil, err
		}
		return orch.GetOHLCV(ctx, symbol, period)

	case "intraday":
		period, err := parsePeriodArg(periodArg, domain.Period1D)
		if err != nil {
			return nil, err
		}
		return orch.GetIntraday(ctx, symbol, interval, period)

	case "fundamentals":
		return orch.GetFundamentals(ctx, symbol)

	case "quote":
		return orch.GetQuote(ctx, symbol)

	case "info":
		return orch.GetSecurityInfo(ctx, symbol)

	case "earnings":
		event, err := orch.GetNextEarnings(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if event == nil {
			// Answered: the sources agree nothing is scheduled.
			return map[string]any{"symbol": symbol, "next_earnings": nil}, nil
		}
		return event, nil

	case "download":
		startDate, endDate, err := parseRange(startArg, endArg)
		if err != nil {
			return nil, err
		}
		return orch.DownloadRange(ctx, symbol, startDate, endDate)
	}

	return nil, fmt.Errorf("unknown op %q", op)
}

// parsePeriodArg applies the per-op default before validating.
func parsePeriodArg(arg string, fallback domain.Period) (domain.Period, error) {
	if arg == "" {
		return fallback, nil
	}
	return domain.ParsePeriod(arg)
}

func parseRange(startArg, endArg string) (time.Time, time.Time, error) {
	if startArg == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-start is required for download")
	}
	start, err := time.Parse(dateLayout, startArg)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -start: %w", err)
	}

	end := time.Now()
	if endArg != "" {
		end, err = time.Parse(dateLayout, endArg)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -end: %w", err)
		}
	}
	return start, end, nil
}
