package embeddings_test

import (
	"context"
	"testing"

	"github.com/stratumhealth/carepipe/internal/embeddings"
)

func TestHashDriverDeterministic(t *testing.T) {
	d := embeddings.NewHashDriver(16)
	ctx := context.Background()

	a, err := d.Embed(ctx, []string{"chest tightness and fatigue"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := d.Embed(ctx, []string{"chest tightness and fatigue"})
	if err != nil {
		t.Fatalf("Embed() second call error = %v", err)
	}

	if len(a[0]) != 16 {
		t.Fatalf("vector length = %d, want 16", len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Errorf("component %d differs across calls: %v vs %v", i, a[0][i], b[0][i])
		}
	}
}

func TestHashDriverDistinctTexts(t *testing.T) {
	d := embeddings.NewHashDriver(16)
	vecs, err := d.Embed(context.Background(), []string{"headache", "sore throat"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
}

func TestHashDriverEmptyText(t *testing.T) {
	d := embeddings.NewHashDriver(8)
	vecs, err := d.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i, v := range vecs[0] {
		if v != 0 {
			t.Errorf("empty text component %d = %v, want 0", i, v)
		}
	}
}

func TestHashDriverComponentRange(t *testing.T) {
	d := embeddings.NewHashDriver(32)
	vecs, err := d.Embed(context.Background(), []string{"persistent cough for two weeks"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i, v := range vecs[0] {
		if v < 0 || v >= 1 {
			t.Errorf("component %d = %v, want in [0, 1)", i, v)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := embeddings.NewRegistry()
	r.Register("hash", embeddings.NewHashDriver(16))

	d, err := r.Get("hash")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Kind() != "hash" {
		t.Errorf("Kind() = %q, want %q", d.Kind(), "hash")
	}

	if _, err := r.Get("missing"); err == nil {
		t.Error("Get(missing) should return error, got nil")
	}
}
