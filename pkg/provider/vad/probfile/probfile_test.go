package probfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/hushcut/pkg/provider/vad"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    []float64
		wantErr bool
	}{
		{"json", "[0.1, 0.9, 1, 0]", []float64{0.1, 0.9, 1, 0}, false},
		{"json with whitespace", "\n  [0.5]\n", []float64{0.5}, false},
		{"lines", "0.1\n0.9\n\n# comment\n0.4\n", []float64{0.1, 0.9, 0.4}, false},
		{"crlf lines", "0.2\r\n0.3\r\n", []float64{0.2, 0.3}, false},
		{"empty", "  \n", nil, true},
		{"empty json", "[]", nil, true},
		{"comments only", "# nothing\n", nil, true},
		{"bad json", "[0.1,", nil, true},
		{"bad number", "0.1\nabc\n", nil, true},
		{"out of range", "[0.2, 1.5]", nil, true},
		{"negative", "-0.1", nil, true},
		{"nan", "NaN", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse([]byte(tc.in))
			if tc.wantErr {
				if !errors.Is(err, vad.ErrProber) {
					t.Fatalf("err = %v, want ErrProber", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Errorf("Parse = %v, want %v", got, tc.want)
			}
		})
	}
}

func writeProbs(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probs.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProber(t *testing.T) {
	t.Parallel()

	p, err := New(writeProbs(t, "[0.1, 0.8, 0.9]"), WithWindowSize(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.WindowSize() != 4 || p.Len() != 3 {
		t.Fatalf("WindowSize=%d Len=%d, want 4 and 3", p.WindowSize(), p.Len())
	}

	tests := []struct {
		name    string
		samples int
		wantErr bool
	}{
		{"exact", 12, false},
		{"partial last window", 10, false},
		{"one window short", 13, false},
		{"no samples", 0, false},
		{"too many windows", 20, true},
		{"too few windows", 4, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			probs, err := p.Probabilities(context.Background(), make([]float32, tc.samples))
			if tc.wantErr {
				if !errors.Is(err, vad.ErrProber) {
					t.Fatalf("err = %v, want ErrProber", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(probs, []float64{0.1, 0.8, 0.9}) {
				t.Errorf("probs = %v", probs)
			}
		})
	}
}

func TestProber_ReturnsCopy(t *testing.T) {
	t.Parallel()

	p, err := New(writeProbs(t, "0.3\n0.7\n"))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := p.Probabilities(context.Background(), nil)
	a[0] = 1
	b, _ := p.Probabilities(context.Background(), nil)
	if b[0] != 0.3 {
		t.Errorf("stored probabilities mutated through returned slice: %v", b)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want ErrNotExist", err)
	}
	if _, err := New(writeProbs(t, "[0.5]"), WithWindowSize(0)); err == nil {
		t.Error("zero window: want error")
	}
	if _, err := New(writeProbs(t, "[2]")); !errors.Is(err, vad.ErrProber) {
		t.Errorf("bad content: err = %v, want ErrProber", err)
	}
}
