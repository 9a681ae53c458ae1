package tprl

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"

	"github.com/casualjim/strix/pkg/slogx"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

// NewClient returns a lazily connecting temporal client. The host is taken from
// address, then TEMPORAL_ADDRESS, then the sdk default.
func NewClient(address string) (client.Client, error) {
	lg := slog.Default().With(slogx.LoggerName("strix.temporal"))

	cl, err := client.NewLazyClient(client.Options{
		HostPort: cmp.Or(address, os.Getenv("TEMPORAL_ADDRESS"), client.DefaultHostPort),
		Logger:   log.NewStructuredLogger(lg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}
	return cl, nil
}
