package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Counter reports the size of one collection.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context) (int, error)

// Count implements Counter.
func (f CounterFunc) Count(ctx context.Context) (int, error) { return f(ctx) }

// Stat is a single dashboard figure.
type Stat struct {
	Value int `json:"value"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	Products Stat `json:"products"`
	Media    Stat `json:"media"`
	Users    Stat `json:"users"`
}

// Service computes dashboard figures.
type Service struct {
	products Counter
	media    Counter
	users    Counter
}

// NewService builds Service instance.
func NewService(products, media, users Counter) *Service {
	return &Service{products: products, media: media, users: users}
}

// Stats counts products, media files and users concurrently. Any failure
// fails the whole summary.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	g, ctx := errgroup.WithContext(ctx)
	count := func(name string, c Counter, dst *Stat) {
		g.Go(func() error {
			n, err := c.Count(ctx)
			if err != nil {
				return fmt.Errorf("dashboard: count %s: %w", name, err)
			}
			dst.Value = n
			return nil
		})
	}
	count("products", s.products, &out.Products)
	count("media", s.media, &out.Media)
	count("users", s.users, &out.Users)
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return out, nil
}
