package bridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/opbridge/opbridge/op-service/eth"
)

// Outcome classifies how a transfer ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeReverted is a transaction mined with a failed status.
	OutcomeReverted Outcome = "reverted"
	// OutcomeIndeterminate is a transfer whose progress could not be observed. It must not be resubmitted.
	OutcomeIndeterminate Outcome = "indeterminate"
	// OutcomeAborted is a transfer stopped by an error.
	OutcomeAborted Outcome = "aborted"
)

// TxRecord is a transaction submitted or observed during a transfer.
type TxRecord struct {
	Label string
	Chain Chain
	Hash  common.Hash
}

// Report is the result of a transfer run.
type Report struct {
	Direction Direction
	Amount    eth.ETH
	Stage     Stage
	Outcome   Outcome
	Txs       []TxRecord
	// Message is the final human-readable line: the completion text or the guidance.
	Message string
	Err     error
}

func (r Report) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Tx returns the hash recorded under label.
func (r Report) Tx(label string) (common.Hash, bool) {
	for _, tx := range r.Txs {
		if tx.Label == label {
			return tx.Hash, true
		}
	}
	return common.Hash{}, false
}

// Reporter writes the human-readable progress of a transfer.
type Reporter struct {
	out   io.Writer
	color bool
}

// NewReporter writes to out, with colour when out is a terminal.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out, color: IsTerminal(out)}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Reporter) Printf(format string, args ...any) {
	if r == nil {
		return
	}
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *Reporter) Balance(chain Chain, balance eth.ETH) {
	r.Printf("%s Balance: %s", chain.Label(), balance)
}

func (r *Reporter) Tx(label string, hash common.Hash) {
	r.Printf("%s tx: %s", label, hash)
}

func (r *Reporter) Status(label string, receipt *types.Receipt) {
	r.Printf("%s status: %s", label, ReceiptStatus(receipt))
}

// ReceiptStatus is "success" or "reverted".
func ReceiptStatus(receipt *types.Receipt) string {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return "success"
	}
	return "reverted"
}

// Final writes the final line of a report followed by its summary table.
func (r *Reporter) Final(report Report) {
	if r == nil {
		return
	}
	c := color.New(outcomeColor(report.Outcome), color.Bold)
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	_, _ = c.Fprintln(r.out, report.Message)
	r.Summary(report)
}

func (r *Reporter) Summary(report Report) {
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.Append([]string{"Direction", string(report.Direction)})
	table.Append([]string{"Amount", report.Amount.String()})
	table.Append([]string{"Stage", string(report.Stage)})
	table.Append([]string{"Outcome", string(report.Outcome)})
	for _, tx := range report.Txs {
		table.Append([]string{tx.Label + " tx", tx.Hash.Hex()})
	}
	if report.Err != nil {
		table.Append([]string{"Error", strings.TrimSpace(report.Err.Error())})
	}
	table.Render()
}

func outcomeColor(o Outcome) color.Attribute {
	switch o {
	case OutcomeSuccess:
		return color.FgGreen
	case OutcomeAborted:
		return color.FgRed
	default:
		return color.FgYellow
	}
}
