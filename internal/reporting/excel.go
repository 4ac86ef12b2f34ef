package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/xuri/excelize/v2"
)

// ExcelStyles holds the workbook cell styles
type ExcelStyles struct {
	HeaderStyle   int
	SectionStyle  int
	BaseStyle     int
	CurrencyStyle int
	PercentStyle  int
	RatioStyle    int
	ApprovedStyle int
	RejectedStyle int
	CriticalStyle int
}

// ExcelReporter writes risk workbooks
type ExcelReporter struct{}

// NewExcelReporter creates an Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// Write renders report to path, creating the directory if needed
func (r *ExcelReporter) Write(report Report, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), DecisionsSheet); err != nil {
		return err
	}
	for _, sheet := range []string{PortfolioRiskSheet, AlertsSheet} {
		if _, err := fx.NewSheet(sheet); err != nil {
			return err
		}
	}

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeDecisionsSheet(fx, report, styles); err != nil {
		return fmt.Errorf("decisions sheet: %w", err)
	}
	if err := r.writePortfolioRiskSheet(fx, report, styles); err != nil {
		return fmt.Errorf("portfolio risk sheet: %w", err)
	}
	if err := r.writeAlertsSheet(fx, report, styles); err != nil {
		return fmt.Errorf("alerts sheet: %w", err)
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	lightBorder := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}
	fill := func(color string) excelize.Fill {
		return excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
	}

	// Header style - dark slate gray with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill:      fill("2F4F4F"),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.SectionStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF", Family: "Calibri"},
		Fill: fill("4472C4"),
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{Border: lightBorder})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// 0.00%, values are written as fractions
	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.RatioStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    2,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.ApprovedStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "008000"},
		Fill:   fill("E6FFE6"),
		Border: lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.RejectedStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "C00000"},
		Fill:   fill("FFE6E6"),
		Border: lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.CriticalStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:   fill("C00000"),
		Border: lightBorder,
	})
	if err != nil {
		return styles, err
	}

	return styles, nil
}

func writeHeader(fx *excelize.File, sheet string, row int, headers []string, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

// writeRow writes values from column A; styles[i] applies to values[i]
func writeRow(fx *excelize.File, sheet string, row int, values []interface{}, styles []int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if i < len(styles) {
			if err := fx.SetCellStyle(sheet, cell, cell, styles[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func setWidths(fx *excelize.File, sheet string, widths []float64) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := fx.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

func (r *ExcelReporter) writeDecisionsSheet(fx *excelize.File, report Report, s ExcelStyles) error {
	const sheet = DecisionsSheet

	if err := setWidths(fx, sheet, []float64{20, 10, 8, 10, 12, 14, 11, 10, 12, 10, 14, 38, 38}); err != nil {
		return err
	}
	headers := []string{
		"Evaluated At", "Ticker", "Action", "Quantity", "Price", "Value",
		"Result", "Position %", "Exposure %", "Leverage", "Concentration %", "Violations", "Order ID",
	}
	if err := writeHeader(fx, sheet, 1, headers, s.HeaderStyle); err != nil {
		return err
	}
	if err := fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	for i, rec := range report.Decisions {
		d := rec.Decision
		result, resultStyle := "APPROVED", s.ApprovedStyle
		if !d.Approved {
			result, resultStyle = "REJECTED", s.RejectedStyle
		}
		values := []interface{}{
			d.EvaluatedAt.Format("2006-01-02 15:04:05"),
			rec.Trade.Ticker,
			string(rec.Trade.Action),
			rec.Trade.Quantity,
			rec.Trade.Price,
			d.Metrics.CandidateValue,
			result,
			d.Metrics.PositionPct / 100,
			d.Metrics.ExposurePct / 100,
			d.Metrics.Leverage,
			d.Metrics.ConcentrationPct / 100,
			strings.Join(d.ViolationTypes(), ", "),
			rec.OrderID,
		}
		styles := []int{
			s.BaseStyle, s.BaseStyle, s.BaseStyle, s.BaseStyle, s.CurrencyStyle, s.CurrencyStyle,
			resultStyle, s.PercentStyle, s.PercentStyle, s.RatioStyle, s.PercentStyle, s.BaseStyle, s.BaseStyle,
		}
		if err := writeRow(fx, sheet, i+2, values, styles); err != nil {
			return err
		}
	}

	if len(report.Decisions) > 0 {
		last, err := excelize.CoordinatesToCellName(len(headers), len(report.Decisions)+1)
		if err != nil {
			return err
		}
		if err := fx.AutoFilter(sheet, "A1:"+last, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *ExcelReporter) writePortfolioRiskSheet(fx *excelize.File, report Report, s ExcelStyles) error {
	const sheet = PortfolioRiskSheet

	if err := setWidths(fx, sheet, []float64{26, 16, 14, 14, 14, 14}); err != nil {
		return err
	}

	row := 1
	section := func(title string) error {
		if err := writeRow(fx, sheet, row, []interface{}{title}, []int{s.SectionStyle}); err != nil {
			return err
		}
		row++
		return nil
	}
	kv := func(label string, value interface{}, style int) error {
		if err := writeRow(fx, sheet, row, []interface{}{label, value}, []int{s.BaseStyle, style}); err != nil {
			return err
		}
		row++
		return nil
	}

	if err := section(fmt.Sprintf("Risk report %s", report.GeneratedAt.Format(time.RFC3339))); err != nil {
		return err
	}

	ksStatus, ksStyle := "INACTIVE", s.ApprovedStyle
	if report.KillSwitch.Active {
		ksStatus, ksStyle = "ACTIVE: "+report.KillSwitch.Reason, s.CriticalStyle
	}
	if err := kv("Kill switch", ksStatus, ksStyle); err != nil {
		return err
	}
	row++

	if err := section("Limits"); err != nil {
		return err
	}
	l := report.Limits
	limits := []struct {
		label string
		value float64
		style int
	}{
		{"Max position size", l.MaxPositionSizePct / 100, s.PercentStyle},
		{"Max total exposure", l.MaxTotalExposurePct / 100, s.PercentStyle},
		{"Max leverage", l.MaxLeverage, s.RatioStyle},
		{"Max daily loss", l.MaxDailyLossPct / 100, s.PercentStyle},
		{"Max drawdown", l.MaxDrawdownPct / 100, s.PercentStyle},
		{"Risk per trade", l.RiskPerTradePct / 100, s.PercentStyle},
		{"Concentration limit", l.ConcentrationLimitPct / 100, s.PercentStyle},
	}
	for _, lim := range limits {
		if err := kv(lim.label, lim.value, lim.style); err != nil {
			return err
		}
	}
	row++

	if pr := report.PortfolioRisk; pr != nil {
		if err := section("Value at Risk"); err != nil {
			return err
		}
		summary := []struct {
			label string
			value interface{}
			style int
		}{
			{"Total value", pr.TotalValue, s.CurrencyStyle},
			{"Confidence", pr.Confidence, s.RatioStyle},
			{"Horizon (days)", pr.HorizonDays, s.BaseStyle},
			{"Daily volatility", pr.DailyVolatility, s.PercentStyle},
			{"VaR", pr.VaR, s.CurrencyStyle},
			{"CVaR", pr.CVaR, s.CurrencyStyle},
			{"VaR % of value", pr.VaRPct / 100, s.PercentStyle},
			{"Risk band", string(pr.Band), s.BaseStyle},
		}
		for _, item := range summary {
			if err := kv(item.label, item.value, item.style); err != nil {
				return err
			}
		}
		row++

		if err := writeHeader(fx, sheet, row, []string{"Ticker", "Quantity", "Value", "Weight", "Unrealized P&L", "Unrealized %"}, s.HeaderStyle); err != nil {
			return err
		}
		row++
		for _, p := range pr.Positions {
			values := []interface{}{p.Ticker, p.Quantity, p.Value, p.WeightPct / 100, p.UnrealizedPnL, p.UnrealizedPnLPct / 100}
			styles := []int{s.BaseStyle, s.BaseStyle, s.CurrencyStyle, s.PercentStyle, s.CurrencyStyle, s.PercentStyle}
			if err := writeRow(fx, sheet, row, values, styles); err != nil {
				return err
			}
			row++
		}
		row++
	}

	if c := report.Concentration; c != nil {
		if err := section("Concentration"); err != nil {
			return err
		}
		if err := kv("HHI", c.HHI, s.RatioStyle); err != nil {
			return err
		}
		if err := kv("Band", string(c.Band), s.BaseStyle); err != nil {
			return err
		}
		if err := kv("Largest position", fmt.Sprintf("%s (%.2f%%)", c.LargestTicker, c.LargestWeightPct), s.BaseStyle); err != nil {
			return err
		}
		for _, v := range c.Violations {
			label := fmt.Sprintf("Breach: %s %s", v.Scope, v.Name)
			if err := kv(label, fmt.Sprintf("%.2f%% > %.2f%%", v.WeightPct, v.LimitPct), s.RejectedStyle); err != nil {
				return err
			}
		}
		row++
	}

	if len(report.Breakers) > 0 {
		if err := section("Circuit breakers"); err != nil {
			return err
		}
		if err := writeHeader(fx, sheet, row, []string{"Name", "State", "Calls", "Failures", "Rejected", "Failure rate"}, s.HeaderStyle); err != nil {
			return err
		}
		row++
		for _, b := range report.Breakers {
			stateStyle := s.ApprovedStyle
			if b.State != safety.StateClosed {
				stateStyle = s.RejectedStyle
			}
			values := []interface{}{b.Name, b.State.String(), b.TotalCalls, b.TotalFailures, b.TotalRejected, b.FailureRate()}
			styles := []int{s.BaseStyle, stateStyle, s.BaseStyle, s.BaseStyle, s.BaseStyle, s.PercentStyle}
			if err := writeRow(fx, sheet, row, values, styles); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func (r *ExcelReporter) writeAlertsSheet(fx *excelize.File, report Report, s ExcelStyles) error {
	const sheet = AlertsSheet

	if err := setWidths(fx, sheet, []float64{20, 16, 10, 36, 60, 8}); err != nil {
		return err
	}
	if err := writeHeader(fx, sheet, 1, []string{"Time", "Category", "Priority", "Title", "Message", "Forced"}, s.HeaderStyle); err != nil {
		return err
	}

	for i, a := range report.Alerts {
		priorityStyle := s.BaseStyle
		switch a.Priority {
		case alerts.PriorityCritical:
			priorityStyle = s.CriticalStyle
		case alerts.PriorityHigh:
			priorityStyle = s.RejectedStyle
		}
		values := []interface{}{
			a.Timestamp.Format("2006-01-02 15:04:05"),
			string(a.Category),
			a.Priority.String(),
			a.Title,
			a.Message,
			a.Forced,
		}
		styles := []int{s.BaseStyle, s.BaseStyle, priorityStyle, s.BaseStyle, s.BaseStyle, s.BaseStyle}
		if err := writeRow(fx, sheet, i+2, values, styles); err != nil {
			return err
		}
	}
	return nil
}
