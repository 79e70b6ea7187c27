package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"diagnosticfee": "89 dollars", "city": "Austin"}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"simple", "Our visit is {diagnosticfee}.", "Our visit is 89 dollars."},
		{"case-insensitive name", "Our visit is {DiagnosticFee}.", "Our visit is 89 dollars."},
		{"unknown stays visible", "Call us in {state}.", "Call us in {state}."},
		{"multiple", "{city} visits are {diagnosticfee}", "Austin visits are 89 dollars"},
		{"no placeholders", "Flat text.", "Flat text."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Substitute(tc.text, vars); got != tc.want {
				t.Errorf("Substitute = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSubstitute_NilVars(t *testing.T) {
	if got := Substitute("fee is {fee}", nil); got != "fee is {fee}" {
		t.Errorf("Substitute = %q, want placeholder preserved", got)
	}
}

// countingVarStore counts Load invocations.
type countingVarStore struct {
	mu    sync.Mutex
	loads int
	vars  map[string]string
	err   error
}

func (s *countingVarStore) Load(_ context.Context, _ string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.vars, nil
}

func (s *countingVarStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestVarCache_LoadsOncePerVersion(t *testing.T) {
	st := &countingVarStore{vars: map[string]string{"Fee": "80 dollars"}}
	c := NewVarCache(st)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "acme", 1, map[string]string{"fee": "default", "extra": "kept"})
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got["fee"] != "80 dollars" {
			t.Errorf("fee = %q, want store value", got["fee"])
		}
		if got["extra"] != "kept" {
			t.Errorf("extra = %q, want default preserved", got["extra"])
		}
	}
	if n := st.loadCount(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestVarCache_VersionBumpReloads(t *testing.T) {
	st := &countingVarStore{vars: map[string]string{"fee": "80"}}
	c := NewVarCache(st)
	ctx := context.Background()

	if _, err := c.Get(ctx, "acme", 1, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(ctx, "acme", 2, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := st.loadCount(); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestVarCache_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	st := &countingVarStore{vars: map[string]string{"fee": "80"}}
	c := NewVarCache(st)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), "acme", 1, nil); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := st.loadCount(); n != 1 {
		t.Errorf("loads = %d, want 1 (singleflight)", n)
	}
}

func TestVarCache_ErrorPropagates(t *testing.T) {
	st := &countingVarStore{err: errors.New("boom")}
	c := NewVarCache(st)

	if _, err := c.Get(context.Background(), "acme", 1, nil); err == nil {
		t.Fatal("Get returned nil error")
	}
}

func TestVarCache_NilStoreReturnsDefaults(t *testing.T) {
	c := NewVarCache(nil)
	got, err := c.Get(context.Background(), "acme", 1, map[string]string{"Fee": "80"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["fee"] != "80" {
		t.Errorf("fee = %q, want lowercased default", got["fee"])
	}
}

func TestVarCache_Invalidate(t *testing.T) {
	st := &countingVarStore{vars: map[string]string{"fee": "80"}}
	c := NewVarCache(st)
	ctx := context.Background()

	if _, err := c.Get(ctx, "acme", 1, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Invalidate("acme")
	if _, err := c.Get(ctx, "acme", 1, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := st.loadCount(); n != 2 {
		t.Errorf("loads = %d, want 2 after invalidate", n)
	}
}
