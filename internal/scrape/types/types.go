package types

import (
	"context"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

type ScrapeResult struct {
	Source  string
	Records []domain.RawListing
	// Finalize, when set, is always called once the run is over. ok is true
	// only when every record was reconciled (mailbox messages are flagged
	// seen then, and just released otherwise).
	Finalize func(ctx context.Context, ok bool) error
}

// ScrapeStatus is the poller's view of the last registry tick.
type ScrapeStatus struct {
	LastTickAt string `json:"last_tick_at"`
	LastError  string `json:"last_error"`
	LastQueued int    `json:"last_queued"`
	Running    bool   `json:"running"`
}

// Fetcher is one source-family adapter bound to a single source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (ScrapeResult, error)
}
