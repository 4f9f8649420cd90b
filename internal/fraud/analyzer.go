package fraud

import (
	"fmt"
	"math"
	"time"

	"github.com/rawblock/payment-fabric/internal/profile"
)

// Analyzer is the fraud engine's public contract: analyze(tx) -> Analysis.
// It never raises; a blocked address produces a terminal critical analysis.
type Analyzer struct {
	cfg       Config
	blocklist *Blocklist
	store     *profile.Store
}

func NewAnalyzer(cfg Config, blocklist *Blocklist, store *profile.Store) *Analyzer {
	if blocklist == nil {
		blocklist = NewBlocklist()
	}
	if store == nil {
		store = profile.NewStore()
	}
	return &Analyzer{cfg: cfg, blocklist: blocklist, store: store}
}

func (a *Analyzer) Blocklist() *Blocklist { return a.blocklist }
func (a *Analyzer) Profiles() *profile.Store { return a.store }

// Analyze scores a transaction and records the observation afterward, per
// spec.md §4.2's side-effect ordering (the profile used for detection is
// the pre-observation profile; observe(tx) runs only once scoring is done).
func (a *Analyzer) Analyze(tx Transaction) Analysis {
	if a.blocklist.Contains(tx.From) || a.blocklist.Contains(tx.To) {
		analysis := Analysis{
			TxID:      tx.ID,
			RiskScore: 1.0,
			RiskLevel: LevelCritical,
			Signals: []Signal{{
				Kind:        SignalKnownFraud,
				Severity:    SeverityCritical,
				Confidence:  1.0,
				Description: "address present on blocklist",
			}},
			Recommendation: RecommendBlock,
			Confidence:     1.0,
			Reasoning:      []string{"blocklist short-circuit: from or to address is blocked"},
		}
		a.store.Observe(tx)
		return analysis
	}

	p := a.store.Get(tx.UserID)

	var signals []Signal
	signals = append(signals, a.detectVelocity(tx, p)...)
	signals = append(signals, a.detectAmountAnomaly(tx, p)...)
	signals = append(signals, a.detectPattern(tx, p)...)
	signals = append(signals, a.detectGeo(tx, p)...)
	signals = append(signals, a.detectBehavioral(tx, p)...)

	analysis := a.aggregate(tx, signals)
	a.store.Observe(tx)
	return analysis
}

func (a *Analyzer) aggregate(tx Transaction, signals []Signal) Analysis {
	score := 0.0
	for _, s := range signals {
		score += severityWeight(s.Severity) * s.Confidence
	}
	if len(signals) > 0 {
		score /= float64(len(signals))
	}
	score = clamp01(score)

	level := a.cfg.Thresholds.level(score)
	rec := a.cfg.recommendation(level)

	// Impossible-travel or blocklist signals always dominate toward block,
	// regardless of the aggregate score, per spec.md §4.2's tie-break rule.
	for _, s := range signals {
		if s.Kind == SignalGeoAnomaly && s.Severity == SeverityCritical {
			rec = RecommendBlock
		}
	}

	confidence := 1.0
	reasoning := []string{"no signals triggered; transaction appears safe"}
	if len(signals) > 0 {
		sum := 0.0
		reasoning = reasoning[:0]
		for _, s := range signals {
			sum += s.Confidence
			reasoning = append(reasoning, fmt.Sprintf("%s (%s, confidence %.2f): %s", s.Kind, s.Severity, s.Confidence, s.Description))
		}
		mean := sum / float64(len(signals))
		bonus := 0.05 * float64(len(signals))
		if bonus > 0.2 {
			bonus = 0.2
		}
		confidence = clamp01(mean + bonus)
	}

	return Analysis{
		TxID:           tx.ID,
		RiskScore:      score,
		RiskLevel:      level,
		Signals:        signals,
		Recommendation: rec,
		Confidence:     confidence,
		Reasoning:      reasoning,
	}
}

func (a *Analyzer) detectVelocity(tx Transaction, p *profile.Profile) []Signal {
	if p == nil {
		return nil
	}
	var out []Signal
	tau := a.cfg.VelocityThreshold1h
	if tau <= 0 {
		tau = 10
	}
	n1h := len(a.store.Recent(tx.UserID, time.Hour, tx.Timestamp))
	n5m := len(a.store.Recent(tx.UserID, 5*time.Minute, tx.Timestamp))

	if n1h >= tau {
		var sev Severity
		switch {
		case n1h >= 2*tau:
			sev = SeverityCritical
		case n1h >= int(1.5*float64(tau)):
			sev = SeverityHigh
		default:
			sev = SeverityMedium
		}
		confidence := math.Min(1, float64(n1h)/float64(2*tau))
		out = append(out, Signal{
			Kind:        SignalVelocity,
			Severity:    sev,
			Confidence:  confidence,
			Description: fmt.Sprintf("%d transactions in the last hour (threshold %d)", n1h, tau),
			Metadata:    map[string]any{"n1h": n1h, "threshold": tau},
		})
	}

	tau5m := a.cfg.VelocityThreshold5m
	if tau5m <= 0 {
		tau5m = 5
	}
	if n5m >= tau5m {
		out = append(out, Signal{
			Kind:        SignalVelocity,
			Severity:    SeverityHigh,
			Confidence:  0.9,
			Description: fmt.Sprintf("%d transactions in the last 5 minutes", n5m),
			Metadata:    map[string]any{"n5m": n5m},
		})
	}
	return out
}

func (a *Analyzer) detectAmountAnomaly(tx Transaction, p *profile.Profile) []Signal {
	var out []Signal
	if p == nil || p.TotalTx < 3 {
		return out
	}
	sigma := p.StdDev()
	if sigma > 0 {
		z := math.Abs(tx.Amount-p.MeanAmount()) / sigma
		d := a.cfg.DeviationThreshold
		if d <= 0 {
			d = 3.0
		}
		if z > d {
			var sev Severity
			switch {
			case z >= 2*d:
				sev = SeverityHigh
			case z >= 1.5*d:
				sev = SeverityMedium
			default:
				sev = SeverityLow
			}
			confidence := math.Min(1, z/(2*d))
			out = append(out, Signal{
				Kind:        SignalAmountAnomaly,
				Severity:    sev,
				Confidence:  confidence,
				Description: fmt.Sprintf("amount deviates %.2f standard deviations from user mean", z),
				Metadata:    map[string]any{"z": z},
			})
		}
	}

	if tx.Amount >= 1000 && math.Mod(tx.Amount, 1000) == 0 {
		out = append(out, Signal{
			Kind:        SignalAmountAnomaly,
			Severity:    SeverityLow,
			Confidence:  0.6,
			Description: "round number amount",
		})
	}
	return out
}

func (a *Analyzer) detectPattern(tx Transaction, p *profile.Profile) []Signal {
	var out []Signal
	if p == nil {
		return out
	}

	// Sequential amounts: last 3 prior + current, successive differences
	// all equal and nonzero.
	hist := p.History
	if len(hist) >= 3 {
		tail := hist[len(hist)-3:]
		amounts := []float64{tail[0].Amount, tail[1].Amount, tail[2].Amount, tx.Amount}
		d1 := amounts[1] - amounts[0]
		d2 := amounts[2] - amounts[1]
		d3 := amounts[3] - amounts[2]
		if d1 != 0 && d1 == d2 && d2 == d3 {
			out = append(out, Signal{
				Kind:        SignalPattern,
				Severity:    SeverityMedium,
				Confidence:  0.8,
				Description: "sequential amount pattern across recent transactions",
			})
		}
	}

	// Repeated amount: current amount appears >= 5 times in full history.
	repeats := 1 // the current transaction itself
	for _, h := range hist {
		if h.Amount == tx.Amount {
			repeats++
		}
	}
	if repeats >= 5 {
		out = append(out, Signal{
			Kind:        SignalPattern,
			Severity:    SeverityMedium,
			Confidence:  0.75,
			Description: fmt.Sprintf("amount %.2f repeated %d times recently", tx.Amount, repeats),
		})
	}

	// Address dispersion: >= 10 unique destinations in the last hour while
	// total recent transactions <= 15.
	recent1h := a.store.Recent(tx.UserID, time.Hour, tx.Timestamp)
	destinations := map[string]bool{tx.To: true}
	for _, h := range recent1h {
		destinations[h.To] = true
	}
	if len(destinations) >= 10 && len(recent1h)+1 <= 15 {
		out = append(out, Signal{
			Kind:        SignalPattern,
			Severity:    SeverityHigh,
			Confidence:  0.85,
			Description: fmt.Sprintf("%d unique destinations in the last hour", len(destinations)),
		})
	}
	return out
}

func (a *Analyzer) detectGeo(tx Transaction, p *profile.Profile) []Signal {
	var out []Signal
	if p == nil || tx.Geo == nil {
		return out
	}

	if len(p.Countries) > 0 && !p.Countries[tx.Geo.Country] {
		out = append(out, Signal{
			Kind:        SignalGeoAnomaly,
			Severity:    SeverityMedium,
			Confidence:  0.7,
			Description: fmt.Sprintf("transaction country %q is outside the user's typical countries", tx.Geo.Country),
		})
	}

	if len(p.History) > 0 {
		prior := p.History[len(p.History)-1]
		if prior.Geo != nil {
			dtHours := tx.Timestamp.Sub(prior.Timestamp).Hours()
			if dtHours > 0 {
				km := haversineKM(prior.Geo.Lat, prior.Geo.Lon, tx.Geo.Lat, tx.Geo.Lon)
				speed := km / dtHours
				if speed > 900 {
					out = append(out, Signal{
						Kind:        SignalGeoAnomaly,
						Severity:    SeverityCritical,
						Confidence:  0.95,
						Description: fmt.Sprintf("impossible travel: %.0f km in %.2f hours (%.0f km/h)", km, dtHours, speed),
						Metadata:    map[string]any{"speedKmh": speed},
					})
				}
			}
		}
	}
	return out
}

func (a *Analyzer) detectBehavioral(tx Transaction, p *profile.Profile) []Signal {
	var out []Signal
	if p == nil {
		return out
	}

	if p.AccountAgeDays < 7 && tx.Amount > 5000 {
		out = append(out, Signal{
			Kind:        SignalBehavioral,
			Severity:    SeverityMedium,
			Confidence:  0.65,
			Description: fmt.Sprintf("account age %d days with amount %.2f", p.AccountAgeDays, tx.Amount),
		})
	}

	if !p.Chains[tx.Chain] && p.TotalTx > 10 {
		out = append(out, Signal{
			Kind:        SignalBehavioral,
			Severity:    SeverityLow,
			Confidence:  0.5,
			Description: fmt.Sprintf("chain %q not previously seen for this user", tx.Chain),
		})
	}
	return out
}

// haversineKM computes great-circle distance in kilometers.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}
