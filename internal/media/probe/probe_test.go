package probe

import (
	"context"
	"errors"
	"testing"

	"slidecast/internal/logging"
	"slidecast/internal/testsupport"
)

func newTestProber(t *testing.T, run commandOutput) *Prober {
	t.Helper()
	p := New(testsupport.NewConfig(t), logging.NewNop())
	p.WithCommandOutput(run)
	return p
}

func TestDurationParsesOutput(t *testing.T) {
	p := newTestProber(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("12.480000\n"), nil
	})

	seconds, ok := p.Duration(context.Background(), "/tmp/audio.mp3")
	if !ok {
		t.Fatal("expected probe to succeed")
	}
	if seconds != 12.48 {
		t.Fatalf("expected 12.48, got %f", seconds)
	}
}

func TestDurationSwallowsFailures(t *testing.T) {
	p := newTestProber(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("ffprobe exited 1")
	})
	if _, ok := p.Duration(context.Background(), "/tmp/audio.mp3"); ok {
		t.Fatal("expected failed probe to report no duration")
	}

	p = newTestProber(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("N/A"), nil
	})
	if _, ok := p.Duration(context.Background(), "/tmp/audio.mp3"); ok {
		t.Fatal("expected unparseable output to report no duration")
	}

	if _, ok := p.Duration(context.Background(), ""); ok {
		t.Fatal("expected empty path to report no duration")
	}
}
