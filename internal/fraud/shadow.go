package fraud

import (
	"log"
)

// ShadowAnalyzer runs a second analyzer configuration (e.g. tuned
// thresholds) against the same transaction stream and records where it
// diverges from production, without affecting the production decision.
//
// Directly adapted from the teacher's ShadowRunner
// (internal/shadow/shadow_runner.go): same production-vs-shadow dual-run
// shape and divergence logging, retargeted from Bitcoin heuristic flags to
// fraud Analysis recommendations.
type ShadowAnalyzer struct {
	production *Analyzer
	shadow     *Analyzer
}

func NewShadowAnalyzer(production, shadow *Analyzer) *ShadowAnalyzer {
	return &ShadowAnalyzer{production: production, shadow: shadow}
}

// ShadowResult captures the diff between production and shadow analyses.
type ShadowResult struct {
	TxID                 string
	ProductionScore      float64
	ShadowScore          float64
	ProductionRecommend  Recommendation
	ShadowRecommend      Recommendation
	Diverged             bool
}

// Analyze runs both analyzers and returns the production result plus the
// divergence report. The shadow run never mutates production state.
func (sr *ShadowAnalyzer) Analyze(tx Transaction) (Analysis, ShadowResult) {
	prod := sr.production.Analyze(tx)
	shadow := sr.shadow.Analyze(tx)

	result := ShadowResult{
		TxID:                tx.ID,
		ProductionScore:     prod.RiskScore,
		ShadowScore:         shadow.RiskScore,
		ProductionRecommend: prod.Recommendation,
		ShadowRecommend:     shadow.Recommendation,
		Diverged:            prod.Recommendation != shadow.Recommendation,
	}

	if result.Diverged {
		log.Printf("[ShadowAnalyzer] DIVERGENCE on %s: production=%s shadow=%s", tx.ID, prod.Recommendation, shadow.Recommendation)
	}

	return prod, result
}
