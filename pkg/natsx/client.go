package natsx

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"

	"github.com/casualjim/strix/pkg/slogx"
	"github.com/nats-io/nats.go"
)

// ClientName is the connection name strix processes announce to the NATS server.
const ClientName = "strix"

// NewClient connects to the NATS server at url, falling back to the NATS_URL
// environment variable and then to nats.DefaultURL. Without explicit options the
// connection is named after strix, compressed, and reconnects forever.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	url = cmp.Or(url, os.Getenv("NATS_URL"), nats.DefaultURL)
	if len(opts) == 0 {
		opts = DefaultOptions()
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// DefaultOptions are the connection options used when NewClient receives none.
func DefaultOptions() []nats.Option {
	lg := slog.Default().With(slogx.LoggerName("strix.nats"))
	return []nats.Option{
		nats.Name(ClientName),
		nats.Compression(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				lg.Warn("nats disconnected", slogx.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			lg.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
}
