// Package mock provides a test double for [audio.Decoder].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hushcut/pkg/audio"
)

var _ audio.Decoder = (*Decoder)(nil)

// Decoder is a mock implementation of audio.Decoder.
type Decoder struct {
	mu sync.Mutex

	// Samples is returned by every Decode call.
	Samples *audio.Samples

	// Err, if non-nil, is returned by Decode.
	Err error

	// Paths records the path of every Decode call in order.
	Paths []string
}

// Decode records the call and returns a copy of Samples, or Err.
func (d *Decoder) Decode(ctx context.Context, path string) (*audio.Samples, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Paths = append(d.Paths, path)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Samples == nil {
		return &audio.Samples{SampleRate: 16000}, nil
	}
	return &audio.Samples{
		Data:       append([]float32(nil), d.Samples.Data...),
		SampleRate: d.Samples.SampleRate,
	}, nil
}

// CallCount returns the number of Decode calls. Thread-safe.
func (d *Decoder) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Paths)
}
