package ai

import (
	"context"
	"fmt"
	"math"
	"testing"
)

// stubEmbedder детерминированный экстрактор для тестов
type stubEmbedder struct {
	dim    int
	encode func(samples []float32) ([]float32, error)
}

func (s *stubEmbedder) Encode(samples []float32) ([]float32, error) {
	return s.encode(samples)
}

func (s *stubEmbedder) Dim() int { return s.dim }

// constEmbedder всегда возвращает один и тот же вектор
func constEmbedder() *stubEmbedder {
	return &stubEmbedder{
		dim: 4,
		encode: func(samples []float32) ([]float32, error) {
			return []float32{1, 0, 0, 0}, nil
		},
	}
}

func TestExtractEmptyAudio(t *testing.T) {
	w := NewWindower(constEmbedder(), DefaultWindowerConfig())
	if _, _, err := w.Extract(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestExtractShortAudioDegenerateWindow(t *testing.T) {
	w := NewWindower(constEmbedder(), DefaultWindowerConfig())

	// 1 секунда - короче одного окна 2.0s
	samples := make([]float32, SampleRate)
	windows, insufficient, err := w.Extract(context.Background(), samples)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !insufficient {
		t.Error("expected insufficient flag for sub-window recording")
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 degenerate window, got %d", len(windows))
	}
	if windows[0].Start != 0 || math.Abs(windows[0].End-1.0) > 1e-9 {
		t.Errorf("degenerate window must span whole recording: %+v", windows[0])
	}
}

func TestExtractWindowPositions(t *testing.T) {
	var lengths []int
	emb := &stubEmbedder{
		dim: 4,
		encode: func(samples []float32) ([]float32, error) {
			lengths = append(lengths, len(samples))
			return []float32{1, 0, 0, 0}, nil
		},
	}
	cfg := DefaultWindowerConfig()
	cfg.Workers = 1 // Последовательно, чтобы lengths собирался без гонок
	w := NewWindower(emb, cfg)

	// 3.2s: окна на 0 и 0.75, хвост с 1.5s короче окна - отбрасывается
	samples := make([]float32, int(3.2*SampleRate))
	windows, insufficient, err := w.Extract(context.Background(), samples)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if insufficient {
		t.Error("unexpected insufficient flag")
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].Start != 0 || math.Abs(windows[1].Start-0.75) > 1e-9 {
		t.Errorf("wrong window starts: %f, %f", windows[0].Start, windows[1].Start)
	}
	for _, l := range lengths {
		if l != 2*SampleRate {
			t.Errorf("expected window of %d samples, got %d", 2*SampleRate, l)
		}
	}
}

func TestExtractOrderedByStart(t *testing.T) {
	cfg := DefaultWindowerConfig()
	cfg.Workers = 4
	w := NewWindower(constEmbedder(), cfg)

	samples := make([]float32, 10*SampleRate)
	windows, _, err := w.Extract(context.Background(), samples)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for i := 1; i < len(windows); i++ {
		if windows[i].Start <= windows[i-1].Start {
			t.Fatalf("windows out of order at %d: %f after %f", i, windows[i].Start, windows[i-1].Start)
		}
	}
}

func TestExtractSkipsFailedWindows(t *testing.T) {
	emb := &stubEmbedder{
		dim: 4,
		encode: func(samples []float32) ([]float32, error) {
			// Проваливаем окно, начинающееся ровно с нулевого сэмпла со значением 1
			if samples[0] == 1 {
				return nil, fmt.Errorf("extraction error")
			}
			return []float32{1, 0, 0, 0}, nil
		},
	}
	cfg := DefaultWindowerConfig()
	cfg.Workers = 1
	w := NewWindower(emb, cfg)

	samples := make([]float32, 5*SampleRate)
	samples[0] = 1 // Только первое окно провалится
	windows, _, err := w.Extract(context.Background(), samples)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// 5s: окна на 0, 0.75, 1.5, 2.25, 3.0; первое пропущено
	if len(windows) != 4 {
		t.Fatalf("expected 4 windows after 1 failure, got %d", len(windows))
	}
	if math.Abs(windows[0].Start-0.75) > 1e-9 {
		t.Errorf("first surviving window must start at 0.75, got %f", windows[0].Start)
	}
}

func TestExtractAllWindowsFailed(t *testing.T) {
	emb := &stubEmbedder{
		dim: 4,
		encode: func(samples []float32) ([]float32, error) {
			return nil, fmt.Errorf("extraction error")
		},
	}
	w := NewWindower(emb, DefaultWindowerConfig())

	samples := make([]float32, 5*SampleRate)
	if _, _, err := w.Extract(context.Background(), samples); err == nil {
		t.Fatal("expected error when all windows fail")
	}
}

func TestExtractCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWindower(constEmbedder(), DefaultWindowerConfig())
	samples := make([]float32, 10*SampleRate)
	if _, _, err := w.Extract(ctx, samples); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
