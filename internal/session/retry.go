package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds the attempts made to answer one question.
//
// With RetryOnError unset the loop stops at the first outcome, success or failure, so a single
// attempt is made whatever MaxRetries says. RetryOnError turns it into a real retry with
// exponential backoff starting at Backoff.
type RetryPolicy struct {
	MaxRetries   int
	RetryOnError bool
	Backoff      time.Duration
}

// Do runs fn until it succeeds or the policy gives up, returning the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxRetries, 1)
	wait := p.Backoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		log.Error().Err(err).Int("attempt", attempt).Int("max_retries", attempts).Msg("An error occurred")
		if !p.RetryOnError || attempt == attempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
	return err
}
