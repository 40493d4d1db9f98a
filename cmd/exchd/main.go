package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/openexch/excore/params"
	"github.com/openexch/excore/pkg/api"
	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/engine"
	"github.com/openexch/excore/pkg/core/instrument"
	"github.com/openexch/excore/pkg/core/ledger"
	"github.com/openexch/excore/pkg/core/position"
	"github.com/openexch/excore/pkg/core/settle"
	"github.com/openexch/excore/pkg/idgen"
	"github.com/openexch/excore/pkg/storage"
	"github.com/openexch/excore/pkg/stream"
	"github.com/openexch/excore/pkg/util"
)

// genesis is the market seed file format (MARKETS_FILE).
type genesis struct {
	Assets []struct {
		Symbol string `json:"symbol"`
		Unit   string `json:"unit"`
	} `json:"assets"`
	Markets []instrument.Instrument `json:"markets"`
}

func main() {
	cfg := params.LoadFromEnv("")

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "data/exchd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Storage ----
	store, err := storage.Open(cfg.Storage.DataDir + "/exchange")
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()

	// ---- Core components ----
	registry := instrument.NewRegistry()
	if err := seedMarkets(registry, os.Getenv("MARKETS_FILE")); err != nil {
		sugar.Fatalw("market_seed_failed", "err", err)
	}
	sugar.Infow("markets_loaded", "count", registry.Count())

	led := ledger.New(logger)
	positions := position.NewManager(logger)

	// Rehydrate state persisted by earlier runs.
	var wallets, poss int
	if err := store.LoadWallets(func(w core.Wallet) { led.Restore(w); wallets++ }); err != nil {
		sugar.Fatalw("wallet_restore_failed", "err", err)
	}
	if err := store.LoadPositions(func(p core.Position) { positions.Restore(p); poss++ }); err != nil {
		sugar.Fatalw("position_restore_failed", "err", err)
	}
	sugar.Infow("state_restored", "wallets", wallets, "positions", poss)

	settler := settle.New(led, store, logger)
	ids, err := idgen.New(cfg.Engine.MachineID)
	if err != nil {
		sugar.Fatalw("idgen_init_failed", "err", err)
	}

	eng := engine.New(registry, led, settler, positions, ids, logger)
	eng.SetDefaultSTP(stpMode(cfg.Engine.DefaultSTP))

	// ---- Event fan-out ----
	apiServer := api.NewServer(eng, registry, led, positions, store)
	eng.RegisterHandler(apiServer.HandleEvent)

	var publisher *stream.Publisher
	if cfg.Kafka.Enabled {
		publisher = stream.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		eng.RegisterHandler(publisher.Handle)
		defer publisher.Close()
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	eng.Start()
	defer eng.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.Server.ListenAddr)
		if err := apiServer.Start(cfg.Server.ListenAddr, cfg.Server.AllowedOrigins); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// ---- Expiry sweep ----
	clock := util.RealClock{}
	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting down")
			return
		case <-clock.After(cfg.Engine.ExpirySweep):
			eng.SweepExpired()
		}
	}
}

// seedMarkets loads assets and instruments from a genesis file, falling
// back to a built-in BTC/USDT pair when none is given.
func seedMarkets(registry *instrument.Registry, path string) error {
	var gen genesis
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &gen); err != nil {
			return err
		}
	} else {
		gen = defaultGenesis()
	}

	for _, a := range gen.Assets {
		unit, err := decimal.NewFromString(a.Unit)
		if err != nil {
			return err
		}
		if err := registry.RegisterAsset(a.Symbol, unit); err != nil {
			return err
		}
	}
	for i := range gen.Markets {
		if err := registry.Register(&gen.Markets[i]); err != nil {
			return err
		}
	}
	return nil
}

func defaultGenesis() genesis {
	dec := decimal.RequireFromString
	spot := instrument.Instrument{
		Symbol:            "BTC-USDT",
		BaseAsset:         "BTC",
		QuoteAsset:        "USDT",
		Market:            core.Spot,
		Active:            true,
		TickSize:          dec("0.1"),
		StepSize:          dec("0.00001"),
		MinPrice:          dec("0.1"),
		MaxPrice:          dec("1000000"),
		MinQty:            dec("0.00001"),
		MaxQty:            dec("1000"),
		MinNotional:       dec("10"),
		PricePrecision:    1,
		QuantityPrecision: 5,
		AllowMarketOrders: true,
		MakerFeeBps:       10,
		TakerFeeBps:       20,
	}
	perp := spot
	perp.Symbol = "BTC-USDT-PERP"
	perp.Market = core.Futures
	perp.MaxLeverage = 20
	perp.InitialMarginBps = 500
	perp.MaintenanceMarginBps = 250

	g := genesis{Markets: []instrument.Instrument{spot, perp}}
	g.Assets = []struct {
		Symbol string `json:"symbol"`
		Unit   string `json:"unit"`
	}{
		{Symbol: "BTC", Unit: "0.00001"},
		{Symbol: "USDT", Unit: "0.000001"},
	}
	return g
}

func stpMode(s string) core.STPMode {
	switch s {
	case "EXPIRE_MAKER":
		return core.STPExpireMaker
	case "EXPIRE_TAKER":
		return core.STPExpireTaker
	case "EXPIRE_BOTH":
		return core.STPExpireBoth
	default:
		return core.STPNone
	}
}
