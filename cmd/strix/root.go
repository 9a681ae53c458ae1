package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casualjim/strix"
	"github.com/casualjim/strix/config"
	"github.com/casualjim/strix/internal/broker"
	"github.com/casualjim/strix/pkg/natsx"
	"github.com/casualjim/strix/pkg/tprl"
	"github.com/casualjim/strix/provider/openai"
	"github.com/casualjim/strix/telemetry"
	"github.com/casualjim/strix/tool"
	"github.com/casualjim/strix/tool/remote"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
)

var (
	configPath string
	logLevel   string

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "strix",
		Short: "Answer questions through the fast or deep pipeline",
		Long: `strix routes every question to a single pass retrieval augmented answer or
to a plan, reason, act, verify and reflect loop, and streams its progress.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			level := cfg.LogLevel
			if cmd.Flags().Changed("log-level") || level == "" {
				level = logLevel
			}
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
				return fmt.Errorf("invalid log level %q: %w", level, err)
			}
			setLogLevel(lvl)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	rootCmd.AddCommand(askCmd, serveCmd, watchCmd, toolsCmd, workerCmd)
}

// runtime holds the connections an engine was built with.
type runtime struct {
	engine *strix.Engine
	nats     *nats.Conn
	async    *telemetry.Async
	temporal client.Client
}

func (r *runtime) Close(ctx context.Context) error {
	err := r.engine.Close(ctx)
	if r.async != nil {
		if aerr := r.async.Close(ctx); aerr != nil && err == nil {
			err = aerr
		}
	}
	if r.nats != nil {
		r.nats.Close()
	}
	if r.temporal != nil {
		r.temporal.Close()
	}
	return err
}

func localTools() (*tool.Registry, error) {
	reg := tool.NewRegistry()
	if err := reg.Register(tool.Builtins(tool.NewMemoryStore())...); err != nil {
		return nil, err
	}
	return reg, nil
}

// buildEngine wires the engine from cfg: the OpenAI provider, local or
// Temporal tools, and NATS for telemetry and envelopes when enabled.
func buildEngine(extra ...strix.Option) (*runtime, error) {
	var providerOpts []option.RequestOption
	if cfg.Provider.BaseURL != "" {
		providerOpts = append(providerOpts, option.WithBaseURL(cfg.Provider.BaseURL))
	}
	model := cfg.Provider.Model
	if model == "" {
		model = openai.DefaultModelName()
	}

	rt := &runtime{}
	options := []strix.Option{
		strix.WithProvider(openai.Model(model, providerOpts...)),
		strix.WithConfig(cfg),
	}

	if cfg.Temporal.Enabled {
		tc, err := tprl.NewClient(cfg.Temporal.Address)
		if err != nil {
			return nil, err
		}
		rt.temporal = tc
		options = append(options, strix.WithTools(remote.NewInvoker(tc, cfg.Temporal.TaskQueue)))
	} else {
		reg, err := localTools()
		if err != nil {
			return nil, err
		}
		options = append(options, strix.WithTools(reg))
	}

	if cfg.NATS.Enabled {
		nc, err := natsx.NewClient(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		rt.nats = nc
		rt.async = telemetry.NewAsync(telemetry.NewNATSPublisher(nc, cfg.NATS.Subject), 0)
		options = append(options,
			strix.WithTelemetry(rt.async),
			strix.WithHook(broker.PublishHook(broker.NATS(nc), nil)),
		)
	} else {
		options = append(options, strix.WithTelemetry(telemetry.LogPublisher(nil)))
	}

	engine, err := strix.New(append(options, extra...)...)
	if err != nil {
		if rt.nats != nil {
			rt.nats.Close()
		}
		if rt.temporal != nil {
			rt.temporal.Close()
		}
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}
