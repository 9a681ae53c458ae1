package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/casualjim/strix"
	"github.com/casualjim/strix/internal/console"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	askMode        string
	askSession     string
	askFiles       []string
	askMarkdown    bool
	askVerbose     bool
	askInteractive bool

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and stream the run to the terminal",
		Args:  cobra.ArbitraryArgs,
		RunE:  runAsk,
	}
)

func init() {
	askCmd.Flags().StringVarP(&askMode, "mode", "m", "auto", "fast, deep or auto")
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id that keeps conversation history")
	askCmd.Flags().StringSliceVarP(&askFiles, "file", "f", nil, "URL of a file to attach, may be repeated")
	askCmd.Flags().BoolVar(&askMarkdown, "markdown", false, "render the final answer as markdown")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print every envelope payload")
	askCmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "keep asking questions until exit")
}

func runAsk(cmd *cobra.Command, args []string) error {
	mode, err := runstate.ParseMode(askMode)
	if err != nil {
		return err
	}
	if !askInteractive && len(args) == 0 {
		return errors.New("a question is required unless --interactive is set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rt, err := buildEngine()
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Close(cctx)
	}()

	var popts []console.Option
	if askMarkdown {
		popts = append(popts, console.Markdown())
	}
	if askVerbose {
		popts = append(popts, console.Verbose())
	}
	printer, err := console.New(cmd.OutOrStdout(), popts...)
	if err != nil {
		return err
	}

	base := strix.Request{Files: askFiles, SessionID: askSession, Mode: mode}
	if !askInteractive {
		req := base
		req.Question = strings.Join(args, " ")
		return ask(ctx, rt.engine, printer, req)
	}

	if base.SessionID == "" {
		base.SessionID = uuidx.NewString()
	}
	files := base.Files
	return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), func(question string) error {
		req := base
		req.Question = question
		// attached files only go with the first question
		req.Files, files = files, nil
		return ask(ctx, rt.engine, printer, req)
	})
}

func ask(ctx context.Context, engine *strix.Engine, printer *console.Printer, req strix.Request) error {
	ch, fut := engine.Stream(ctx, req)
	if err := printer.Drain(ctx, ch); err != nil {
		for range ch {
		}
	}
	_, err := fut.Get(context.Background())
	return err
}

// repl reads questions line by line until EOF or exit.
func repl(ctx context.Context, in io.Reader, out io.Writer, fn func(string) error) error {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanLines)
	for {
		fmt.Fprintf(out, "%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			fmt.Fprintln(out, "Exiting...")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "exit") {
			return nil
		}
		if input == "" {
			continue
		}
		if err := fn(input); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "%s: %v\n", color.RedString("Error"), err)
		}
		fmt.Fprintln(out)
	}
}
