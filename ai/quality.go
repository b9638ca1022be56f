package ai

import (
	"math"
	"sort"
)

// AudioQuality сводка качества аудио для вердикта по звонку
type AudioQuality struct {
	SNR      float64 `json:"snr"`          // Оценка отношения сигнал/шум, dB
	Clarity  float64 `json:"clarity"`      // Оценка разборчивости 0..1
	Duration float64 `json:"duration_sec"` // Длительность записи, сек
}

// AnalyzeQuality вычисляет сводку качества записи
// samples - float32 PCM, 16kHz mono
func AnalyzeQuality(samples []float32) AudioQuality {
	return AudioQuality{
		SNR:      EstimateSNR(samples),
		Clarity:  EstimateClarity(samples),
		Duration: float64(len(samples)) / SampleRate,
	}
}

// EstimateSNR оценивает отношение сигнал/шум в dB по энергии фреймов:
// тихие фреймы (нижние 20% по RMS) считаются шумом, громкие (верхние 20%) - сигналом
func EstimateSNR(samples []float32) float64 {
	const frameLen = SampleRate / 50 // 20ms
	if len(samples) < frameLen*5 {
		return 0
	}

	var rms []float64
	for start := 0; start+frameLen <= len(samples); start += frameLen {
		var sum float64
		for _, s := range samples[start : start+frameLen] {
			sum += float64(s) * float64(s)
		}
		rms = append(rms, math.Sqrt(sum/float64(frameLen)))
	}

	sort.Float64s(rms)
	n := len(rms)
	quintile := n / 5
	if quintile == 0 {
		quintile = 1
	}

	var noiseSum, signalSum float64
	for i := 0; i < quintile; i++ {
		noiseSum += rms[i]
	}
	for i := n - quintile; i < n; i++ {
		signalSum += rms[i]
	}
	noise := noiseSum / float64(quintile)
	signal := signalSum / float64(quintile)

	if noise < 1e-8 {
		noise = 1e-8
	}
	snr := 20 * math.Log10(signal/noise)
	if snr < 0 {
		snr = 0
	}
	return snr
}

// EstimateClarity оценивает разборчивость 0..1 как долю фреймов
// с энергией заметно выше уровня шума
func EstimateClarity(samples []float32) float64 {
	const frameLen = SampleRate / 50
	if len(samples) < frameLen*5 {
		return 0
	}

	var rms []float64
	for start := 0; start+frameLen <= len(samples); start += frameLen {
		var sum float64
		for _, s := range samples[start : start+frameLen] {
			sum += float64(s) * float64(s)
		}
		rms = append(rms, math.Sqrt(sum/float64(frameLen)))
	}

	sorted := append([]float64{}, rms...)
	sort.Float64s(sorted)
	noiseFloor := sorted[len(sorted)/10] // 10-й перцентиль

	threshold := noiseFloor * 3
	if threshold < 0.005 {
		threshold = 0.005
	}

	active := 0
	for _, r := range rms {
		if r > threshold {
			active++
		}
	}
	return float64(active) / float64(len(rms))
}
