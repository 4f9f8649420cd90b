// Package orchestrator glues the fraud analyzer, pricing combiner, swarm
// coordinator, and cross-chain router together for one payment request, per
// spec.md §2's data flow: Fraud Analyzer -> Pricing Combiner -> (if high
// value) Swarm Consensus -> Router -> Swarm execute-task -> response.
//
// Grounded on the teacher's cmd/engine/main.go wiring style: construct each
// subsystem, wire callbacks, start background loops, hand everything to the
// HTTP layer.
package orchestrator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/payment-fabric/internal/fraud"
	"github.com/rawblock/payment-fabric/internal/pricing"
	"github.com/rawblock/payment-fabric/internal/router"
	"github.com/rawblock/payment-fabric/internal/swarm"
)

// Config tunes the orchestrator's decision policy.
type Config struct {
	// HighValueThreshold gates whether a payment requires swarm consensus
	// before routing, per spec.md §2.
	HighValueThreshold float64
	ExecutePriority     int
	ConsensusRoleFilter []swarm.Role
}

func DefaultConfig() Config {
	return Config{HighValueThreshold: 10000, ExecutePriority: 5}
}

// PaymentRequest is the orchestrator's entry-point shape, combining
// spec.md §6's AnalyzeRequest and RouteRequest fields.
type PaymentRequest struct {
	Tx        fraud.Transaction  `json:"tx"`
	DestChain string             `json:"dest_chain"` // the router's "to"; Tx.Chain is the route's "from"
	Objective router.Objective   `json:"objective"`
	Market    pricing.MarketData `json:"market"`
}

// PaymentResponse is the structured outcome of one ProcessPayment call.
// A non-approve path always carries the risk level, a reason, and — if
// rejected by the swarm — the consensus tally, per spec.md §7.
type PaymentResponse struct {
	Approved   bool
	RiskLevel  fraud.RiskLevel
	Reason     string
	Analysis   fraud.Analysis
	Price      *pricing.Recommendation
	Consensus  *swarm.ConsensusResult
	Route      *router.RouteResult
	ExecuteTaskID string
}

// Orchestrator is the top-level payment decision-and-execution fabric.
type Orchestrator struct {
	cfg     Config
	fraud   *fraud.Analyzer
	pricing *pricing.Combiner
	swarm   *swarm.Coordinator
	router  *router.Router
	alerts  *fraud.AlertManager
	log     zerolog.Logger
}

// SetAlertManager wires an optional alert sink; every non-safe fraud
// analysis produced by ProcessPayment is emitted through it (Analyze and
// ReplayBatch do not emit), per spec.md §5's supplemented alerting feature.
func (o *Orchestrator) SetAlertManager(am *fraud.AlertManager) { o.alerts = am }

func New(cfg Config, fraudAnalyzer *fraud.Analyzer, combiner *pricing.Combiner, coordinator *swarm.Coordinator, r *router.Router) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		fraud:   fraudAnalyzer,
		pricing: combiner,
		swarm:   coordinator,
		router:  r,
		log:     zerolog.New(zerologNopWriter{}).With().Str("component", "orchestrator").Logger(),
	}
}

// zerologNopWriter discards output; ProcessPayment's structured log lines
// stay silent by default so library consumers aren't forced into a log
// destination, until SetLogger supplies a real one.
type zerologNopWriter struct{}

func (zerologNopWriter) Write(p []byte) (int, error) { return len(p), nil }

// SetLogger lets the caller point orchestrator logging at a real writer.
func (o *Orchestrator) SetLogger(log zerolog.Logger) { o.log = log }

// Analyze exposes the fraud analyzer directly, for callers that only need
// a risk read without running the full payment pipeline.
func (o *Orchestrator) Analyze(tx fraud.Transaction) fraud.Analysis {
	return o.fraud.Analyze(tx)
}

// Blocklist exposes the underlying fraud blocklist for CRUD operations,
// per spec.md §5.
func (o *Orchestrator) Blocklist() *fraud.Blocklist {
	return o.fraud.Blocklist()
}

// ProcessPayment runs one transaction through the full decision pipeline.
func (o *Orchestrator) ProcessPayment(req PaymentRequest) PaymentResponse {
	analysis := o.fraud.Analyze(req.Tx)
	if o.alerts != nil {
		o.alerts.EmitFromAnalysis(analysis)
	}

	if analysis.Recommendation == fraud.RecommendBlock {
		o.log.Warn().Str("tx_id", req.Tx.ID).Str("risk_level", string(analysis.RiskLevel)).Msg("payment blocked by fraud analyzer")
		return PaymentResponse{
			Approved:  false,
			RiskLevel: analysis.RiskLevel,
			Reason:    "blocked by fraud analysis",
			Analysis:  analysis,
		}
	}

	price := o.pricing.Optimal(req.Market)

	resp := PaymentResponse{
		RiskLevel: analysis.RiskLevel,
		Analysis:  analysis,
		Price:     &price,
	}

	if req.Tx.Amount >= o.cfg.HighValueThreshold {
		consensus := o.swarm.RequestConsensus(swarm.ConsensusRequest{
			Topic:      "approve-high-value-payment:" + req.Tx.ID,
			Payload:    req.Tx,
			RoleFilter: o.cfg.ConsensusRoleFilter,
		})
		resp.Consensus = &consensus
		if !consensus.Decision {
			resp.Approved = false
			resp.Reason = "rejected by swarm consensus"
			o.log.Warn().Str("tx_id", req.Tx.ID).Float64("approval_ratio", consensus.ApprovalRatio).Msg("payment rejected by consensus")
			return resp
		}
	}

	route, err := o.router.Route(req.Tx.Chain, req.DestChain, req.Tx.Amount, req.Objective)
	if err != nil {
		resp.Approved = false
		resp.Reason = "no admissible route: " + err.Error()
		return resp
	}
	resp.Route = &route

	deadline := time.Now().Add(30 * time.Second)
	taskID, err := o.swarm.Submit(swarm.KindExecute, executePayload{tx: req.Tx, route: route}, o.cfg.ExecutePriority, &deadline)
	if err != nil {
		resp.Approved = false
		resp.Reason = "swarm rejected execution: " + err.Error()
		return resp
	}

	resp.Approved = true
	resp.Reason = "approved"
	resp.ExecuteTaskID = taskID
	return resp
}

// executePayload is the payload handed to the swarm's execute-task
// handler for an approved payment.
type executePayload struct {
	tx    fraud.Transaction
	route router.RouteResult
}

// ReplayBatch feeds historical transactions through the fraud analyzer
// sequentially, preserving per-user ordering per spec.md §5. Adapted from
// the teacher's BlockScanner batch-iteration shape
// (internal/scanner/block_scanner.go), generalized from block-by-block
// chain scanning to transaction-batch replay.
func (o *Orchestrator) ReplayBatch(txs []fraud.Transaction) []fraud.Analysis {
	out := make([]fraud.Analysis, 0, len(txs))
	for _, tx := range txs {
		out = append(out, o.fraud.Analyze(tx))
	}
	return out
}
