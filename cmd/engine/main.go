package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/payment-fabric/internal/api"
	"github.com/rawblock/payment-fabric/internal/config"
	"github.com/rawblock/payment-fabric/internal/fraud"
	"github.com/rawblock/payment-fabric/internal/orchestrator"
	"github.com/rawblock/payment-fabric/internal/pricing"
	"github.com/rawblock/payment-fabric/internal/profile"
	"github.com/rawblock/payment-fabric/internal/router"
	"github.com/rawblock/payment-fabric/internal/snapshot"
	"github.com/rawblock/payment-fabric/internal/swarm"
	"github.com/rawblock/payment-fabric/internal/yield"
)

func main() {
	log.Println("Starting RawBlock Payment Fabric (cross-chain orchestration engine)...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values.
	// ────────────────────────────────────────────────────────────────────

	cfgPath := getEnvOrDefault("CONFIG_FILE", "")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("FATAL: failed to load config: %v", err)
	}

	var snap *snapshot.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		s, err := snapshot.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without snapshot persistence. Error: %v", err)
		} else {
			defer s.Close()
			if err := s.InitSchema(); err != nil {
				log.Printf("Warning: snapshot schema init failed: %v", err)
			}
			snap = s
		}
	}

	// ─── Fraud Analyzer ───────────────────────────────────────────────
	fraudCfg := fraud.DefaultConfig()
	fraudCfg.VelocityThreshold1h = cfg.Fraud.VelocityThreshold1h
	fraudCfg.VelocityThreshold5m = cfg.Fraud.VelocityThreshold5m
	fraudCfg.DeviationThreshold = cfg.Fraud.DeviationThreshold
	analyzer := fraud.NewAnalyzer(fraudCfg, fraud.NewBlocklist(), profile.NewStore())

	// ─── Pricing Combiner ─────────────────────────────────────────────
	basePrice := envFloat("PRICE_BASE", 100)
	priceFloor := envFloat("PRICE_FLOOR", 50)
	priceCeiling := envFloat("PRICE_CEILING", 200)
	combiner := pricing.NewCombiner(pricing.DefaultConfig(basePrice, priceFloor, priceCeiling))

	// ─── Cross-Chain Router ───────────────────────────────────────────
	graph := router.NewGraph(cfg.Router.Chains, buildBridges(cfg.Router.Bridges))
	routerCfg := router.DefaultConfig()
	if cfg.Router.MaxHops > 0 {
		routerCfg.MaxHops = cfg.Router.MaxHops
	}
	r := router.NewRouter(routerCfg, graph, staticGasFeed{})

	// ─── Yield Allocator ──────────────────────────────────────────────
	yieldCfg := yield.DefaultConfig()
	if cfg.Yield.Profile != "" {
		yieldCfg.Profile = yield.RiskProfile(cfg.Yield.Profile)
	}
	allocator := yield.NewAllocator(yieldCfg, staticProtocolFeed{protocols: cfg.Yield.Protocols}, loggingProtocolAdapter{}, nil)
	allocator.StartCron("@every 1h", func() float64 { return envFloat("TREASURY_BALANCE", 1_000_000) })
	defer allocator.Stop()

	// ─── Swarm Coordinator ────────────────────────────────────────────
	swarmCfg := swarm.DefaultConfig()
	if cfg.Swarm.ConsensusThreshold > 0 {
		swarmCfg.ConsensusThreshold = cfg.Swarm.ConsensusThreshold
	}
	coordinator := swarm.NewCoordinator(swarmCfg, nil, loggingHandler{})
	for _, a := range cfg.Swarm.Agents {
		coordinator.AddAgent(swarm.Agent{ID: a.ID, Role: swarm.Role(a.Role), Weight: a.Weight})
	}
	defer coordinator.Shutdown()

	// ─── Orchestrator ─────────────────────────────────────────────────
	orch := orchestrator.New(orchestrator.DefaultConfig(), analyzer, combiner, coordinator, r)

	if snap != nil {
		startSnapshotLoop(context.Background(), snap, coordinator, allocator)
	}

	// ─── WebSocket hub + HTTP surface ─────────────────────────────────
	wsHub := api.NewHub()
	go wsHub.Run()

	orch.SetAlertManager(fraud.NewAlertManager(func(a fraud.Alert) {
		payload, err := json.Marshal(a)
		if err != nil {
			log.Printf("[Alert] failed to marshal: %v", err)
			return
		}
		wsHub.Broadcast(payload)
	}))

	engine := api.SetupRouter(orch, allocator, coordinator, r, wsHub)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Payment fabric listening on :%s\n", port)
	if err := engine.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// startSnapshotLoop periodically persists the swarm roster and yield
// positions to the optional snapshot store, per spec.md §6.
func startSnapshotLoop(ctx context.Context, snap *snapshot.Store, coordinator *swarm.Coordinator, allocator *yield.Allocator) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			if err := snap.SaveAgents(ctx, coordinator.Agents()); err != nil {
				log.Printf("[Snapshot] failed to save agents: %v", err)
			}
			if err := snap.SavePositions(ctx, allocator.Positions()); err != nil {
				log.Printf("[Snapshot] failed to save positions: %v", err)
			}
		}
	}()
}

func buildBridges(cfgs []config.BridgeConfig) []router.Bridge {
	out := make([]router.Bridge, 0, len(cfgs))
	for _, b := range cfgs {
		chains := make(map[string]bool, len(b.SupportedChains))
		for _, c := range b.SupportedChains {
			chains[c] = true
		}
		out = append(out, router.Bridge{
			Name:            b.Name,
			SupportedChains: chains,
			BaseFeeUSD:      b.BaseFeeUSD,
			FeePercent:      b.FeePercent,
			AvgSeconds:      b.AvgSeconds,
			MinAmount:       b.MinAmount,
			MaxAmount:       b.MaxAmount,
			Reliability:     b.Reliability,
			GasMultiplier:   b.GasMultiplier,
		})
	}
	return out
}

// staticGasFeed is a minimal GasPriceFeed that returns the same fixed
// estimates for every chain; a real deployment would inject a live gas oracle here per
// spec.md §6 ("Gas/price feed" is an external collaborator, never
// reimplemented as a real integration inside the core).
type staticGasFeed struct{}

func (staticGasFeed) Gas(chain string) (router.GasQuote, error) {
	return router.GasQuote{StandardGwei: 20, FastGwei: 40, InstantGwei: 80}, nil
}

func (staticGasFeed) NativePriceUSD(chain string) (float64, error) {
	return 2500, nil
}

// staticProtocolFeed serves the yield allocator's configured protocol
// roster; in production this would poll each protocol's on-chain state.
type staticProtocolFeed struct {
	protocols []config.ProtocolConfig
}

func (f staticProtocolFeed) SnapshotProtocols() ([]yield.Protocol, error) {
	out := make([]yield.Protocol, 0, len(f.protocols))
	for _, p := range f.protocols {
		out = append(out, yield.Protocol{
			Name:       p.Name,
			APY:        p.APY,
			TVL:        p.TVL,
			RiskTier:   yield.RiskTier(p.RiskTier),
			Weight:     p.Weight,
			MinDeposit: p.MinDeposit,
		})
	}
	return out, nil
}

// loggingProtocolAdapter logs deposit/withdraw calls instead of signing
// real transactions — wallet signing is an external collaborator per
// spec.md §1's non-goals.
type loggingProtocolAdapter struct{}

func (loggingProtocolAdapter) Deposit(protocol string, amount float64) error {
	log.Printf("[ProtocolAdapter] deposit %.2f into %s", amount, protocol)
	return nil
}

func (loggingProtocolAdapter) Withdraw(protocol string, amount float64) error {
	log.Printf("[ProtocolAdapter] withdraw %.2f from %s", amount, protocol)
	return nil
}

func (loggingProtocolAdapter) CurrentAPY(protocol string) (float64, error) { return 0, nil }
func (loggingProtocolAdapter) TVL(protocol string) (float64, error)        { return 0, nil }

// loggingHandler is the default swarm.Handler: it logs and synthesizes a
// plausible vote/execute outcome. A real deployment injects per-role agent
// logic (signing services, validators, ML risk models) here.
type loggingHandler struct{}

func (loggingHandler) Execute(task swarm.Task) (any, error) {
	log.Printf("[Swarm] executing task %s (kind=%s)", task.ID, task.Kind)
	return "ok", nil
}

func (loggingHandler) Vote(agentID string, role swarm.Role, topic string, payload any) (bool, float64, string) {
	confidence := 0.7 + rand.Float64()*0.3
	log.Printf("[Swarm] agent %s (%s) voting on %q", agentID, role, topic)
	return true, confidence, "default approve"
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}
