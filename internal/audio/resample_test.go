package audio

import (
	"math"
	"testing"
)

func TestResampleSameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out, err := Resample(in, 16000, 16000)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if &out[0] != &in[0] {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestResampleInvalidRates(t *testing.T) {
	for _, rates := range [][2]int{{0, 16000}, {16000, 0}, {-1, 8000}} {
		if _, err := Resample([]float32{0}, rates[0], rates[1]); err == nil {
			t.Errorf("Resample(%d -> %d) should fail", rates[0], rates[1])
		}
	}
}

func TestResampleLength(t *testing.T) {
	tests := []struct {
		from, to int
	}{
		{44100, 16000},
		{48000, 16000},
		{8000, 16000},
	}
	for _, tt := range tests {
		in := make([]float32, tt.from) // one second
		for i := range in {
			in[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/float64(tt.from)))
		}
		out, err := Resample(in, tt.from, tt.to)
		if err != nil {
			t.Fatalf("Resample(%d -> %d) error = %v", tt.from, tt.to, err)
		}
		if diff := math.Abs(float64(len(out) - tt.to)); diff > float64(tt.to)/100 {
			t.Errorf("Resample(%d -> %d) produced %d samples, want about %d", tt.from, tt.to, len(out), tt.to)
		}
		for i, s := range out {
			if s < -1 || s > 1 {
				t.Fatalf("sample %d = %v out of range", i, s)
			}
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	out, err := Resample(nil, 44100, 16000)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}
