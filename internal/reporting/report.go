// Package reporting renders gate activity and portfolio risk as an Excel
// workbook and as console tables.
package reporting

import (
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/ducminhle1904/trade-guard/internal/safety"
)

// DecisionRecord is one gate evaluation and the trade it judged
type DecisionRecord struct {
	Trade    risk.Trade
	Decision risk.Decision
	OrderID  string // set when the approved order was reserved
}

// Report is the content of a risk workbook. Nil sections are skipped.
type Report struct {
	GeneratedAt   time.Time
	Limits        risk.Limits
	Decisions     []DecisionRecord
	PortfolioRisk *riskmath.PortfolioRiskResult
	Concentration *riskmath.ConcentrationResult
	KillSwitch    safety.KillSwitchState
	Breakers      []safety.CircuitBreakerStats
	Alerts        []alerts.Alert
}

// Sheet names
const (
	DecisionsSheet     = "Decisions"
	PortfolioRiskSheet = "Portfolio Risk"
	AlertsSheet        = "Alerts"
)
