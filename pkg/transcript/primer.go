package transcript

import (
	"context"
	"log/slog"
)

// DefaultPrimingTurns is how many recent turns feed the priming context.
const DefaultPrimingTurns = 20

const primingHeader = "Context from the previous conversation with this user:\n"

// Primer builds the priming context for a new realtime session.
type Primer struct {
	log        *Log
	summarizer Summarizer
	limit      int
	logger     *slog.Logger
}

// NewPrimer creates a Primer over log. A nil summarizer uses the raw turns.
func NewPrimer(log *Log, summarizer Summarizer, limit int, logger *slog.Logger) *Primer {
	if limit <= 0 {
		limit = DefaultPrimingTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Primer{
		log:        log,
		summarizer: summarizer,
		limit:      limit,
		logger:     logger.With("component", "transcript.primer"),
	}
}

// GetPrimingContext returns text describing the previous session, or ""
// when there is none. With an empty sessionID the newest turns of any
// session are used. A failed summary falls back to the raw turns.
func (p *Primer) GetPrimingContext(ctx context.Context, sessionID string) (string, error) {
	turns := p.log.Recent(sessionID, p.limit)
	if len(turns) == 0 {
		return "", nil
	}

	if p.summarizer != nil {
		summary, err := p.summarizer.Summarize(ctx, turns)
		if err == nil && summary != "" {
			return primingHeader + summary, nil
		}
		if err != nil {
			p.logger.Warn("summary failed, using raw turns", "error", err, "turns", len(turns))
		}
	}

	text := FormatTurns(turns)
	if text == "" {
		return "", nil
	}
	return primingHeader + text, nil
}
