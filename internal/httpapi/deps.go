package httpapi

import (
	"context"
	"database/sql"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/config"
	"github.com/shalom-dev-bot/astremina/internal/dispatch"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
)

// Runner is the ingest surface the API drives.
type Runner interface {
	Enqueue(ctx context.Context, sourceID int64) error
	Cancel(sourceID int64) error
	InFlight() []int64
}

// Broker is the SSE side of events.Hub.
type Broker interface {
	Subscribe() chan string
	Unsubscribe(ch chan string)
}

type Deps struct {
	DB     *sql.DB
	Hub    Broker
	Runner Runner
	// Clock stamps registry writes. Nil means clock.System().
	Clock clock.Clock

	// Config is the loaded configuration; secrets are redacted before it is
	// served.
	Config      config.Config
	SourcesPath string

	PollStatus func() types.ScrapeStatus
	Queues     []func() dispatch.QueueStats

	// SetPassword stores a mailbox password; secrets.SetIMAPPassword in
	// production.
	SetPassword func(account, password string) error

	// ShutdownToken guards POST /shutdown. Shutdown is called after the
	// response is written.
	ShutdownToken string
	Shutdown      func()

	// AllowedOrigins feeds the CORS middleware. Empty allows any origin.
	AllowedOrigins []string
}
