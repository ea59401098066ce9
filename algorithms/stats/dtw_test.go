package stats

import (
	"math"
	"testing"
)

func onehot(class int) []float64 {
	v := make([]float64, 12)
	v[class] = 1
	return v
}

func TestPrefixAlignIdentity(t *testing.T) {
	seq := [][]float64{onehot(0), onehot(4), onehot(7), onehot(2)}
	ref := append(append([][]float64{}, seq...), onehot(0), onehot(4), onehot(7), onehot(2))

	res, err := NewDTWAlignment().PrefixAlign(seq, ref)
	if err != nil {
		t.Fatalf("PrefixAlign: %v", err)
	}
	if res.Offset != 0 || res.PrefixLen != 4 {
		t.Errorf("offset/prefix = %d/%d, want 0/4", res.Offset, res.PrefixLen)
	}
	if math.Abs(res.Cost) > 1e-12 {
		t.Errorf("cost = %v, want 0", res.Cost)
	}
}

func TestPrefixAlignShifted(t *testing.T) {
	query := [][]float64{onehot(0), onehot(4), onehot(7)}
	// reference lingers one extra frame on the first chord
	ref := [][]float64{onehot(0), onehot(0), onehot(4), onehot(7), onehot(9), onehot(11)}

	res, err := NewDTWAlignment().PrefixAlign(query, ref)
	if err != nil {
		t.Fatalf("PrefixAlign: %v", err)
	}
	if res.PrefixLen != 4 || res.Offset != 1 {
		t.Errorf("prefix/offset = %d/%d, want 4/1", res.PrefixLen, res.Offset)
	}
}

func TestPrefixAlignTieBreak(t *testing.T) {
	// constant sequences cost 0 for every prefix length, so j* == K
	query := [][]float64{onehot(3), onehot(3)}
	ref := [][]float64{onehot(3), onehot(3), onehot(3), onehot(3)}

	res, err := NewDTWAlignment().PrefixAlign(query, ref)
	if err != nil {
		t.Fatalf("PrefixAlign: %v", err)
	}
	if res.Offset != 0 {
		t.Errorf("offset = %d, want 0", res.Offset)
	}
}

func TestPrefixAlignEmpty(t *testing.T) {
	if _, err := NewDTWAlignment().PrefixAlign(nil, [][]float64{onehot(0)}); err == nil {
		t.Errorf("expected error for empty query")
	}
}
