package resilience

import (
	"errors"
	"strings"
	"testing"
)

type countingBackend struct {
	err   error
	calls int
}

func (b *countingBackend) call() error {
	b.calls++
	return b.err
}

func TestChainPrimaryServesWhileHealthy(t *testing.T) {
	t.Parallel()

	primary := &countingBackend{}
	secondary := &countingBackend{}
	c := NewChain("primary", primary, ChainConfig{})
	c.Add("secondary", secondary)

	for i := 0; i < 3; i++ {
		if err := c.Run(func(_ string, b *countingBackend) error { return b.call() }); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if primary.calls != 3 || secondary.calls != 0 {
		t.Errorf("calls = %d/%d, want 3/0", primary.calls, secondary.calls)
	}
}

func TestChainFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	primary := &countingBackend{err: errors.New("primary down")}
	secondary := &countingBackend{}
	c := NewChain("primary", primary, ChainConfig{})
	c.Add("secondary", secondary)

	if err := c.Run(func(_ string, b *countingBackend) error { return b.call() }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, secondary.calls)
	}
}

func TestChainCombinedErrorNamesAllBackends(t *testing.T) {
	t.Parallel()

	primary := &countingBackend{err: errors.New("primary down")}
	secondary := &countingBackend{err: errors.New("secondary down")}
	c := NewChain("primary", primary, ChainConfig{})
	c.Add("secondary", secondary)

	err := c.Run(func(_ string, b *countingBackend) error { return b.call() })
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}
	for _, want := range []string{"primary: primary down", "secondary: secondary down"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error %q missing %q", err, want)
		}
	}
}

func TestChainSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	primary := &countingBackend{err: errors.New("primary down")}
	secondary := &countingBackend{}
	c := NewChain("primary", primary, ChainConfig{
		Breaker: BreakerConfig{FailureLimit: 2},
	})
	c.Add("secondary", secondary)

	run := func() error {
		return c.Run(func(_ string, b *countingBackend) error { return b.call() })
	}
	// Two failures trip the primary's breaker.
	for i := 0; i < 2; i++ {
		if err := run(); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if err := run(); err != nil {
		t.Fatalf("Run with open breaker: %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want 2 (skipped after breaker opened)", primary.calls)
	}
	if secondary.calls != 3 {
		t.Errorf("secondary calls = %d, want 3", secondary.calls)
	}
}

func TestChainOnFallbackHook(t *testing.T) {
	t.Parallel()

	primary := &countingBackend{err: errors.New("primary down")}
	secondary := &countingBackend{}
	var served []string
	c := NewChain("primary", primary, ChainConfig{
		OnFallback: func(name string) { served = append(served, name) },
	})
	c.Add("secondary", secondary)

	if err := c.Run(func(_ string, b *countingBackend) error { return b.call() }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(served) != 1 || served[0] != "secondary" {
		t.Errorf("OnFallback calls = %v, want [secondary]", served)
	}

	// A healthy primary must not fire the hook.
	primary.err = nil
	served = nil
	if err := c.Run(func(_ string, b *countingBackend) error { return b.call() }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(served) != 0 {
		t.Errorf("OnFallback fired for primary success: %v", served)
	}
}

func TestChainNames(t *testing.T) {
	t.Parallel()

	c := NewChain("a", &countingBackend{}, ChainConfig{})
	c.Add("b", &countingBackend{})

	names := c.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v, want [a b]", names)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestRunWithReturnsResult(t *testing.T) {
	t.Parallel()

	primary := &countingBackend{err: errors.New("primary down")}
	secondary := &countingBackend{}
	c := NewChain("primary", primary, ChainConfig{})
	c.Add("secondary", secondary)

	got, err := RunWith(c, func(name string, b *countingBackend) (string, error) {
		if err := b.call(); err != nil {
			return "", err
		}
		return name, nil
	})
	if err != nil {
		t.Fatalf("RunWith: %v", err)
	}
	if got != "secondary" {
		t.Errorf("result = %q, want secondary", got)
	}
}
