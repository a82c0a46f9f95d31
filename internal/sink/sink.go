// Package sink delivers scrape results to their destination.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/baxromumarov/portal-scraper/internal/model"
)

// Sink receives every task result of a run, one call at a time.
type Sink interface {
	Emit(ctx context.Context, res model.ScrapeResult) error
	Close() error
}

// Console writes each result as one JSON line.
type Console struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewConsole(w io.Writer) *Console {
	return &Console{enc: json.NewEncoder(w)}
}

func (c *Console) Emit(_ context.Context, res model.ScrapeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func (c *Console) Close() error { return nil }

// Multi fans each result out to every sink. An error from one sink does not
// stop delivery to the rest.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, res model.ScrapeResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every result.
type Discard struct{}

func (Discard) Emit(context.Context, model.ScrapeResult) error { return nil }
func (Discard) Close() error                                    { return nil }
