package postgres

import (
	"math"
	"testing"
)

func TestVectorType(t *testing.T) {
	s := New(nil)
	if got := s.vectorType(); got != "vector" {
		t.Errorf("vectorType() = %q, want vector", got)
	}

	s = New(nil, WithEmbeddingDimension(1536))
	if got := s.vectorType(); got != "vector(1536)" {
		t.Errorf("vectorType() = %q, want vector(1536)", got)
	}
}

func TestHNSWWithClause(t *testing.T) {
	s := New(nil)
	if got := s.hnswWithClause(); got != "" {
		t.Errorf("hnswWithClause() = %q, want empty", got)
	}

	s = New(nil, WithHNSWM(32), WithEFConstruction(128))
	got := s.hnswWithClause()
	if got != " WITH (m = 32, ef_construction = 128)" {
		t.Errorf("hnswWithClause() = %q", got)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{0.1, -0.5, 1, 0}
	text := serializeEmbedding(in)
	out := deserializeEmbedding(text)

	if len(out) != len(in) {
		t.Fatalf("round trip length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-6 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDeserializeEmbeddingEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty string", "", 0},
		{"empty vector", "[]", 0},
		{"single value", "[0.25]", 1},
		{"malformed part dropped", "[0.1,garbage,0.3]", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deserializeEmbedding(tt.in); len(got) != tt.want {
				t.Errorf("len = %d, want %d (got %v)", len(got), tt.want, got)
			}
		})
	}
}
