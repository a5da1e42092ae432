package executor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/hushcut/internal/executor"
	"github.com/MrWong99/hushcut/internal/plan"
)

var common = []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y"}

func TestFFmpeg_Args(t *testing.T) {
	t.Parallel()

	extract := plan.Operation{
		Kind: plan.OpExtract, SpanIndex: 1, Input: "/v/in.mp4",
		StartSec: 11.778, DurationSec: 111.932, Output: "/w/1.mp4",
	}
	tests := []struct {
		name     string
		reencode bool
		op       plan.Operation
		want     []string
	}{
		{
			name: "extract stream copy",
			op:   extract,
			want: []string{"-ss", "11.778000", "-t", "111.932000", "-i", "/v/in.mp4",
				"-c", "copy", "-avoid_negative_ts", "make_zero", "/w/1.mp4"},
		},
		{
			name:     "extract reencode",
			reencode: true,
			op:       extract,
			want:     []string{"-ss", "11.778000", "-t", "111.932000", "-i", "/v/in.mp4", "/w/1.mp4"},
		},
		{
			name: "speed adjust",
			op:   plan.Operation{Kind: plan.OpSpeedAdjust, Input: "/w/0.mp4", Factor: 2, Output: "/w/0.fast.mp4"},
			want: []string{"-i", "/w/0.mp4", "-filter:v", "setpts=PTS/2", "-filter:a", "atempo=2", "/w/0.fast.mp4"},
		},
		{
			name: "speed adjust fractional",
			op:   plan.Operation{Kind: plan.OpSpeedAdjust, Input: "/w/0.mp4", Factor: 1.5, Output: "/w/0.fast.mp4"},
			want: []string{"-i", "/w/0.mp4", "-filter:v", "setpts=PTS/1.5", "-filter:a", "atempo=1.5", "/w/0.fast.mp4"},
		},
		{
			name: "concat",
			op:   plan.Operation{Kind: plan.OpConcat, SpanIndex: -1, Input: "/w/concat.txt", Output: "/w/merged.mp4"},
			want: []string{"-f", "concat", "-safe", "0", "-i", "/w/concat.txt", "-c", "copy", "/w/merged.mp4"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := executor.NewFFmpeg(executor.WithReencode(tc.reencode)).Args(tc.op)
			if err != nil {
				t.Fatalf("Args: %v", err)
			}
			want := append(slices.Clone(common), tc.want...)
			if !slices.Equal(got, want) {
				t.Errorf("Args =\n%v\nwant\n%v", got, want)
			}
		})
	}
}

func TestFFmpeg_ArgsErrors(t *testing.T) {
	t.Parallel()

	f := executor.NewFFmpeg()
	if _, err := f.Args(plan.Operation{Kind: plan.OpSpeedAdjust, Factor: 0}); err == nil {
		t.Error("zero factor: want error")
	}
	if _, err := f.Args(plan.Operation{Kind: plan.Kind(42)}); err == nil {
		t.Error("unknown kind: want error")
	}
}

func TestAtempoChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		factor float64
		want   string
	}{
		{1, "atempo=1"},
		{2, "atempo=2"},
		{3, "atempo=2,atempo=1.5"},
		{4, "atempo=2,atempo=2"},
		{10, "atempo=2,atempo=2,atempo=2,atempo=1.25"},
		{0.5, "atempo=0.5"},
		{0.25, "atempo=0.5,atempo=0.5"},
	}
	for _, tc := range tests {
		if got := executor.AtempoChain(tc.factor); got != tc.want {
			t.Errorf("AtempoChain(%v) = %q, want %q", tc.factor, got, tc.want)
		}
	}
}

func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFFmpeg_Run(t *testing.T) {
	out := filepath.Join(t.TempDir(), "0.mp4")
	bin := fakeFFmpeg(t, `for a; do last="$a"; done
echo "$@" > "$last"
`)
	f := executor.NewFFmpeg(executor.WithBinary(bin))
	if f.Binary() != bin {
		t.Errorf("Binary() = %q", f.Binary())
	}
	op := plan.Operation{Kind: plan.OpExtract, Input: "/v/in.mp4", DurationSec: 1, Output: out}
	if err := f.Run(context.Background(), op); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "-ss 0.000000 -t 1.000000 -i /v/in.mp4") {
		t.Errorf("ffmpeg saw args %q", data)
	}
}

func TestFFmpeg_RunFailure(t *testing.T) {
	bin := fakeFFmpeg(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")
	err := executor.NewFFmpeg(executor.WithBinary(bin)).Run(context.Background(),
		plan.Operation{Kind: plan.OpConcat, Input: "m.txt", Output: "o.mp4"})
	if !errors.Is(err, executor.ErrExternalProcess) {
		t.Fatalf("err = %v, want ErrExternalProcess", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error lacks stderr tail: %v", err)
	}
}

func TestFFmpeg_RunMissingBinary(t *testing.T) {
	t.Parallel()

	bin := filepath.Join(t.TempDir(), "no-ffmpeg")
	err := executor.NewFFmpeg(executor.WithBinary(bin)).Run(context.Background(),
		plan.Operation{Kind: plan.OpConcat, Input: "m.txt", Output: "o.mp4"})
	if !errors.Is(err, executor.ErrExternalProcess) {
		t.Errorf("err = %v, want ErrExternalProcess", err)
	}
}
