package cosim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Scenario runs one complete co-simulation and returns the controller result.
type Scenario func(ctx context.Context) (*Result, error)

// Sweep runs named scenarios concurrently, one goroutine each.
type Sweep struct {
	names     []string
	scenarios []Scenario
}

func NewSweep() *Sweep {
	return &Sweep{}
}

func (s *Sweep) Add(name string, sc Scenario) {
	s.names = append(s.names, name)
	s.scenarios = append(s.scenarios, sc)
}

func (s *Sweep) Len() int { return len(s.scenarios) }

// Run returns results in the order scenarios were added. The first failing
// scenario cancels the rest.
func (s *Sweep) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, len(s.scenarios))

	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range s.scenarios {
		i, sc := i, sc
		g.Go(func() error {
			res, err := sc(gctx)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", s.names[i], err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
