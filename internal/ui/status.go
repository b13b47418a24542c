// internal/ui/status.go
package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/dispatch"
	"github.com/rovshanmuradov/txdispatch/internal/events"
	"github.com/rovshanmuradov/txdispatch/internal/ui/style"
)

// StatusPrinter выводит события dispatch в терминал. Безопасен для нескольких горутин.
type StatusPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	styles style.StatusStyles
}

func NewStatusPrinter(w io.Writer) *StatusPrinter {
	return &StatusPrinter{w: w, styles: style.NewStatusStyles(style.DefaultPalette())}
}

// Print writes one event line, prefixed with label when it is not empty.
func (p *StatusPrinter) Print(label string, ev events.StatusEvent) {
	text := p.styles.Text.Render(ev.Text)
	switch ev.Stage {
	case events.StageConfirmed, events.StageSubmitted:
		text = p.styles.Success.Render(ev.Text)
	case events.StageFailed:
		text = p.styles.Failure.Render(ev.Text)
	}

	line := fmt.Sprintf("%s %s %s",
		p.styles.Seq.Render(fmt.Sprintf("#%d", ev.Seq)),
		p.styles.Stage.Render(ev.Stage.String()),
		text)
	if label != "" {
		line = p.styles.Label.Render(label) + line
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

// Drain печатает события потока, пока он не будет закрыт.
func (p *StatusPrinter) Drain(label string, stream *events.Stream) {
	for ev := range stream.C() {
		p.Print(label, ev)
	}
}

// Sink returns an events.Sink that prints synchronously.
func (p *StatusPrinter) Sink(label string) events.Sink {
	return events.SinkFunc(func(_ context.Context, ev events.StatusEvent) error {
		p.Print(label, ev)
		return nil
	})
}

// PrintResult writes the summary of a finished dispatch.
func (p *StatusPrinter) PrintResult(label string, res *dispatch.Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := ""
	if label != "" {
		prefix = p.styles.Label.Render(label)
	}
	if res != nil && !res.Signature.IsZero() {
		fmt.Fprintf(p.w, "%s%s %s (%s, %s)\n", prefix,
			p.styles.Seq.Render("signature"),
			p.styles.Signature.Render(res.Signature.String()),
			res.State, res.Elapsed.Round(time.Millisecond))
	}
	if err == nil {
		return
	}
	fmt.Fprintf(p.w, "%s%s\n", prefix, p.styles.Failure.Render("error: "+err.Error()))
	for _, line := range blockchain.ProgramLogs(err) {
		fmt.Fprintf(p.w, "%s  %s\n", prefix, p.styles.Seq.Render(line))
	}
	switch {
	case blockchain.IsInsufficientFunds(err):
		fmt.Fprintf(p.w, "%s%s\n", prefix, p.styles.Seq.Render("hint: fund the fee payer, see `balance`"))
	case blockchain.IsRetryable(err):
		fmt.Fprintf(p.w, "%s%s\n", prefix, p.styles.Seq.Render("hint: safe to retry with a fresh blockhash"))
	}
}

// PrintBalance writes an account balance.
func (p *StatusPrinter) PrintBalance(b *dispatch.Balance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s SOL %s\n",
		p.styles.Signature.Render(b.Owner.String()),
		p.styles.Success.Render(b.SOL.String()),
		p.styles.Seq.Render(fmt.Sprintf("(%d lamports)", b.Lamports)))
}
