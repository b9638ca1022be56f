package ai

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
)

// SampleRate частота дискретизации всего пайплайна (16kHz mono)
const SampleRate = 16000

// Window окно аудио с извлечённым вектором голоса
type Window struct {
	Embedding []float32
	Start     float64 // Секунды от начала записи
	End       float64
}

// WindowerConfig параметры нарезки записи на окна
type WindowerConfig struct {
	WindowSec float64 // Длина окна (default: 2.0)
	HopSec    float64 // Шаг между окнами (default: 0.75)
	Workers   int     // Параллельных вызовов Embedder (default: NumCPU, максимум 8)
}

// DefaultWindowerConfig возвращает параметры по умолчанию
func DefaultWindowerConfig() WindowerConfig {
	return WindowerConfig{
		WindowSec: 2.0,
		HopSec:    0.75,
	}
}

// Windower нарезает запись на окна фиксированной длины и извлекает
// вектор голоса для каждого окна
type Windower struct {
	config   WindowerConfig
	embedder Embedder
}

// NewWindower создаёт новый windower
func NewWindower(embedder Embedder, config WindowerConfig) *Windower {
	if config.WindowSec <= 0 {
		config.WindowSec = 2.0
	}
	if config.HopSec <= 0 {
		config.HopSec = 0.75
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
		if config.Workers > 8 {
			config.Workers = 8
		}
	}
	return &Windower{config: config, embedder: embedder}
}

// Extract нарезает samples на окна и извлекает вектор для каждого
// Возвращает окна в порядке времени и признак insufficient: запись короче
// одного окна (одно вырожденное окно на всю запись, кластеризация невозможна)
//
// Хвост короче окна отбрасывается (без zero-padding). Вызовы Embedder
// выполняются параллельно на пуле воркеров; окна с ошибкой извлечения
// пропускаются, полный провал извлечения - ошибка
func (w *Windower) Extract(ctx context.Context, samples []float32) ([]Window, bool, error) {
	if len(samples) == 0 {
		return nil, false, fmt.Errorf("empty audio")
	}

	winLen := int(w.config.WindowSec * SampleRate)
	hop := int(w.config.HopSec * SampleRate)

	// Запись короче одного окна: одно вырожденное окно на всю запись
	if len(samples) < winLen {
		emb, err := w.embedder.Encode(samples)
		if err != nil {
			return nil, true, fmt.Errorf("embedding extraction failed: %w", err)
		}
		return []Window{{
			Embedding: emb,
			Start:     0,
			End:       float64(len(samples)) / SampleRate,
		}}, true, nil
	}

	// Позиции окон: последнее неполное окно отбрасывается
	var starts []int
	for pos := 0; pos+winLen <= len(samples); pos += hop {
		starts = append(starts, pos)
	}

	type job struct {
		index int
		start int
	}

	jobs := make(chan job)
	results := make([]*Window, len(starts))
	var wg sync.WaitGroup
	var failed int
	var failMu sync.Mutex

	workers := w.config.Workers
	if workers > len(starts) {
		workers = len(starts)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				emb, err := w.embedder.Encode(samples[j.start : j.start+winLen])
				if err != nil {
					failMu.Lock()
					failed++
					failMu.Unlock()
					continue
				}
				results[j.index] = &Window{
					Embedding: emb,
					Start:     float64(j.start) / SampleRate,
					End:       float64(j.start+winLen) / SampleRate,
				}
			}
		}()
	}

	for i, start := range starts {
		select {
		case jobs <- job{index: i, start: start}:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, false, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	windows := make([]Window, 0, len(starts))
	for _, r := range results {
		if r != nil {
			windows = append(windows, *r)
		}
	}

	if len(windows) == 0 {
		return nil, false, fmt.Errorf("embedding extraction failed for all %d windows", len(starts))
	}
	if failed > 0 {
		log.Printf("[Windower] %d of %d windows failed extraction, continuing", failed, len(starts))
	}

	// Воркеры заполняют results по индексам, но на всякий случай гарантируем порядок
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })

	return windows, false, nil
}
