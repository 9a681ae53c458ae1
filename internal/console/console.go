// Package console renders the envelopes of a run for a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/casualjim/strix/events"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// Printer writes envelopes as they arrive. Answer fragments are printed
// verbatim; every other stage gets a one line summary.
type Printer struct {
	w        io.Writer
	markdown *glamour.TermRenderer
	dump     *pp.PrettyPrinter

	mu        sync.Mutex
	streaming bool
}

// Option configures a Printer.
type Option func(*Printer) error

// Markdown renders the final answer again as markdown once the stream is done.
func Markdown() Option {
	return func(p *Printer) error {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
		if err != nil {
			return err
		}
		p.markdown = r
		return nil
	}
}

// Verbose dumps every payload under its summary.
func Verbose() Option {
	return func(p *Printer) error {
		p.dump = pp.New()
		p.dump.SetOutput(p.w)
		p.dump.SetColoringEnabled(!color.NoColor)
		return nil
	}
}

func New(w io.Writer, options ...Option) (*Printer, error) {
	p := &Printer{w: w}
	for _, o := range options {
		if err := o(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Drain prints envelopes from ch until it is closed or ctx is done.
func (p *Printer) Drain(ctx context.Context, ch <-chan events.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			p.OnEnvelope(ctx, env)
		}
	}
}

// OnEnvelope implements events.Hook.
func (p *Printer) OnEnvelope(_ context.Context, env events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if env.Stage == events.StageAnswerDelta {
		if p.streaming && env.Payload.Get("reset").Bool() {
			p.streaming = false
			fmt.Fprintln(p.w)
		}
		if !p.streaming {
			p.streaming = true
			fmt.Fprint(p.w, color.MagentaString("Answer")+": ")
		}
		fmt.Fprint(p.w, env.Payload.Get("text").String())
		return
	}
	if p.streaming {
		p.streaming = false
		fmt.Fprintln(p.w)
	}

	line := Summary(env)
	switch env.Stage {
	case events.StageError:
		fmt.Fprintln(p.w, color.RedString("Error")+": "+line)
	case events.StageAnswerFinal:
		fmt.Fprintln(p.w, color.GreenString("Done")+": "+line)
		if p.markdown != nil {
			if out, err := p.markdown.Render(env.Payload.Get("answer").String()); err == nil {
				fmt.Fprint(p.w, out)
			}
		}
	default:
		fmt.Fprintln(p.w, color.CyanString(string(env.Stage))+": "+line)
	}
	if p.dump != nil && env.Payload.Exists() {
		p.dump.Println(env.Payload.Value())
	}
}

// Summary describes an envelope in one line.
func Summary(env events.Envelope) string {
	pl := env.Payload
	status := pl.Get("status").String()
	var b strings.Builder
	if env.Message != "" {
		b.WriteString(env.Message)
	}
	add := func(format string, args ...any) {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, format, args...)
	}

	switch env.Stage {
	case events.StageStart:
		add("(mode=%s score=%.2f)", pl.Get("mode").String(), pl.Get("route_score").Float())
	case events.StageFileExtractItem:
		add("[%d] %s", pl.Get("index").Int(), pl.Get("url").String())
	case events.StageRAG:
		add("(%d hits)", pl.Get("hits").Int())
	case events.StageDeepToolOrchDone:
		add("(round %d: %d ok, %d failed)", pl.Get("round").Int(), pl.Get("success_count").Int(), pl.Get("failure_count").Int())
	case events.StageDeepVerification:
		add("(consistency %.2f)", pl.Get("consistency_score").Float())
	case events.StageDeepReflection:
		add("(%s, confidence %.2f)", pl.Get("action").String(), pl.Get("confidence").Float())
	case events.StageAnswerFinal:
		add("(%s, %dms)", pl.Get("mode").String(), pl.Get("latency_ms").Int())
	case events.StageError:
		add("%s: %s", pl.Get("stage").String(), pl.Get("error").String())
	}
	if status != "" && status != "ok" {
		add("[%s]", status)
	}
	if reason := pl.Get("reason").String(); reason != "" {
		add("- %s", reason)
	}
	return b.String()
}
