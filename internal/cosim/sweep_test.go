package cosim

import (
	"context"
	"errors"
	"testing"
)

func TestSweepOrder(t *testing.T) {
	s := NewSweep()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.Add(name, func(ctx context.Context) (*Result, error) {
			return &Result{Name: name}, nil
		})
	}

	results, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Name != want {
			t.Errorf("result %d: expected %s, got %s", i, want, results[i].Name)
		}
	}
}

func TestSweepError(t *testing.T) {
	boom := errors.New("boom")
	s := NewSweep()
	s.Add("ok", func(ctx context.Context) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s.Add("bad", func(ctx context.Context) (*Result, error) {
		return nil, boom
	})

	if _, err := s.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
