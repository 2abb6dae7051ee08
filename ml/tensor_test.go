package ml

import (
	"encoding/json"
	"errors"
	"testing"
)

// countingTensor records its Destroy calls in a shared ledger.
type countingTensor struct {
	destroyed *int
	fail      bool
}

func (t *countingTensor) Destroy() error {
	*t.destroyed += 1
	if t.fail {
		return errors.New("native free failed")
	}
	return nil
}

func newCountingSet(n int, destroyed *int) *InputSet {
	names := make([]string, n)
	values := make([]Tensor, n)
	for i := range n {
		names[i] = inputIDs
		values[i] = &countingTensor{destroyed: destroyed}
	}
	return NewInputSet(names, values, []int64{1, 2, 3})
}

func TestReleaseDestroysEveryTensor(t *testing.T) {
	var destroyed int
	set := newCountingSet(3, &destroyed)

	if err := set.Release(); err != nil {
		t.Fatal(err)
	}
	if destroyed != 3 {
		t.Errorf("destroyed = %d, want 3", destroyed)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	var destroyed int
	set := newCountingSet(2, &destroyed)

	if err := set.Release(); err != nil {
		t.Fatal(err)
	}
	if err := set.Release(); err != nil {
		t.Fatal(err)
	}
	if destroyed != 2 {
		t.Errorf("destroyed = %d after double release, want 2", destroyed)
	}
}

func TestReleaseContinuesPastFailures(t *testing.T) {
	var destroyed int
	values := []Tensor{
		&countingTensor{destroyed: &destroyed, fail: true},
		&countingTensor{destroyed: &destroyed},
		&countingTensor{destroyed: &destroyed, fail: true},
	}
	set := NewInputSet([]string{"a", "b", "c"}, values, nil)

	err := set.Release()
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if destroyed != 3 {
		t.Errorf("destroyed = %d, want 3: every tensor must get its Destroy call", destroyed)
	}
}

func TestValueLookup(t *testing.T) {
	var destroyed int
	a := &countingTensor{destroyed: &destroyed}
	b := &countingTensor{destroyed: &destroyed}
	set := NewInputSet([]string{inputIDs, pixelValues}, []Tensor{a, b}, nil)

	if got := set.value(pixelValues); got != Tensor(b) {
		t.Error("value lookup returned wrong tensor")
	}
	if got := set.value("nope"); got != nil {
		t.Error("expected nil for unknown input name")
	}
}

func TestArgmax(t *testing.T) {
	cases := []struct {
		logits []float32
		want   int64
	}{
		{[]float32{0.1, 0.9, 0.5}, 1},
		{[]float32{-1, -2, -3}, 0},
		{[]float32{0, 0, 1e-6}, 2},
	}

	for _, tt := range cases {
		if got := argmax(tt.logits); got != tt.want {
			t.Errorf("argmax(%v) = %d, want %d", tt.logits, got, tt.want)
		}
	}
}

func TestEosTokenIDs(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want []int64
	}{
		"single": {`{"eos_token_id": 2}`, []int64{2}},
		"list":   {`{"eos_token_id": [2, 32000]}`, []int64{2, 32000}},
		"absent": {`{}`, nil},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			var config modelConfig
			if err := json.Unmarshal([]byte(tt.raw), &config); err != nil {
				t.Fatal(err)
			}
			ids := config.eosTokenIDs()
			if len(ids) != len(tt.want) {
				t.Fatalf("got %d eos ids, want %d", len(ids), len(tt.want))
			}
			for _, id := range tt.want {
				if !ids[id] {
					t.Errorf("missing eos id %d", id)
				}
			}
		})
	}
}
