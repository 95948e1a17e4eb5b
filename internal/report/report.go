// Package report renders screening, analysis and portfolio results as plain
// text for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
	"BotInvest/internal/screener"
)

const dateLayout = "2006-01-02 15:04"

// FormatScreening formats a screening result into ranked buckets.
func FormatScreening(res *screener.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Screening %s | %s | %d symbols, %d failed (%s)\n",
		shortID(res.RunID), res.StartedAt.Local().Format(dateLayout),
		len(res.Universe), len(res.Errors), res.Duration.Round(time.Millisecond))

	writeBucket(&b, "Long-term", res.LongTerm)
	writeBucket(&b, "Short-term", res.ShortTerm)
	writeBucket(&b, "Watch", res.Watch)

	if len(res.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  %s: %v\n", e.Symbol, e.Err)
		}
	}
	return b.String()
}

func writeBucket(w io.Writer, title string, opps []model.Opportunity) {
	fmt.Fprintf(w, "\n%s (%d)\n", title, len(opps))
	if len(opps) == 0 {
		fmt.Fprintln(w, "  -")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tSYMBOL\tSCORE\tCLOSE\tRSI\tREASON")
	for i, o := range opps {
		fmt.Fprintf(tw, "  %d\t%s\t%+.3f\t%.2f\t%s\t%s\n",
			i+1, o.Symbol, o.Score, o.Snapshot.Close, optFloat(o.Snapshot.RSI, 1), o.Reason)
	}
	tw.Flush()
}

// FormatAnalysis formats the single-symbol indicator snapshot with whatever
// rules the symbol matched.
func FormatAnalysis(a *screener.Analysis) string {
	var b strings.Builder
	s := &a.Snapshot

	fmt.Fprintf(&b, "%s | %s | %d bars\n\n", s.Symbol, s.AsOf.Format("2006-01-02"), a.Bars)
	fmt.Fprintf(&b, "Close:      %.2f (prev %s)\n", s.Close, optFloat(s.PrevClose, 2))
	fmt.Fprintf(&b, "RSI:        %s\n", optFloat(s.RSI, 2))
	for _, w := range sortedWindows(s.SMA) {
		fmt.Fprintf(&b, "SMA%-7s %.2f\n", fmt.Sprintf("%d:", w), s.SMA[w])
	}
	fmt.Fprintf(&b, "ATR:        %s\n", optFloat(s.ATR, 2))
	fmt.Fprintf(&b, "Support:    %s\n", optFloat(s.Support, 2))
	fmt.Fprintf(&b, "Resistance: %s\n", optFloat(s.Resistance, 2))

	b.WriteString("\n")
	for _, o := range a.Opportunities {
		if o.Tag == model.TagNone {
			b.WriteString("No rule matched.\n")
			continue
		}
		fmt.Fprintf(&b, "%s score %+.3f\n", o.Tag, o.Score)
		for _, f := range o.Factors {
			fmt.Fprintf(&b, "  %s(%s): %+.2f x %.2f = %+.3f\n",
				f.Name, f.Commentary, f.RawScore, f.Weight, f.Weighted)
		}
	}
	return b.String()
}

// FormatPortfolio formats a ledger valuation.
func FormatPortfolio(v *ledger.Valuation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Portfolio | %s\n\n", v.AsOf.Local().Format(dateLayout))
	if len(v.Positions) == 0 {
		b.WriteString("No open positions.\n")
	} else {
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tQTY\tAVG COST\tPRICE\tVALUE\tUNREALIZED")
		for _, p := range v.Positions {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
				p.Symbol, p.Quantity, money(p.AvgCost), money(p.Price),
				money(p.MarketValue), signed(p.UnrealizedPnL))
		}
		tw.Flush()
	}

	fmt.Fprintf(&b, "\nCash:         %s\n", money(v.Cash))
	fmt.Fprintf(&b, "Market value: %s\n", money(v.MarketValue))
	fmt.Fprintf(&b, "Unrealized:   %s\n", signed(v.UnrealizedPnL))
	fmt.Fprintf(&b, "Realized:     %s\n", signed(v.RealizedPnL))
	fmt.Fprintf(&b, "Equity:       %s\n", money(v.Equity))

	for _, w := range v.Warnings {
		fmt.Fprintf(&b, "warning: %v\n", w)
	}
	return b.String()
}

// FormatHistory formats trades oldest first.
func FormatHistory(trades []model.Trade) string {
	if len(trades) == 0 {
		return "No trades.\n"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSIDE\tSYMBOL\tQTY\tPRICE\tCASH\tREALIZED\tEXECUTOR")
	for _, t := range trades {
		realized := "-"
		if t.Side == model.SideSell {
			realized = signed(t.RealizedPnL)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			t.Timestamp.Local().Format(dateLayout), t.Side, t.Symbol, t.Quantity,
			money(t.Price), signed(t.CashDelta), realized, t.Executor)
	}
	tw.Flush()
	return b.String()
}

// FormatTrade is the one-line confirmation printed after buy or sell.
func FormatTrade(t model.Trade) string {
	line := fmt.Sprintf("%s %d %s @ %s, cash %s",
		strings.ToUpper(string(t.Side)), t.Quantity, t.Symbol, money(t.Price), signed(t.CashDelta))
	if t.Side == model.SideSell {
		line += ", realized " + signed(t.RealizedPnL)
	}
	return line
}

func optFloat(v *float64, prec int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sortedWindows(m map[int]float64) []int {
	out := make([]int, 0, len(m))
	for w := range m {
		out = append(out, w)
	}
	sort.Ints(out)
	return out
}
