package audio

import (
	"log"
	"math"
)

// FilterConfig конфигурация фильтров предобработки записи
type FilterConfig struct {
	// Noise Gate - затухание участков ниже порога
	NoiseGateEnabled   bool
	NoiseGateThreshold float32 // Порог RMS (default: 0.008)

	// Normalization - нормализация громкости
	NormalizationEnabled bool
	TargetPeakLevel      float32 // Целевой пик (default: 0.9)

	// High-Pass Filter - убирает DC offset и низкочастотный гул
	HighPassEnabled bool
	HighPassCutoff  float32 // Частота среза в Hz (default: 80)

	// De-click - удаление щелчков
	DeClickEnabled   bool
	DeClickThreshold float32 // Порог обнаружения щелчка (default: 0.4)
}

// DefaultFilterConfig возвращает конфигурацию по умолчанию
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		NoiseGateEnabled:     true,
		NoiseGateThreshold:   0.008,
		NormalizationEnabled: true,
		TargetPeakLevel:      0.9,
		HighPassEnabled:      true,
		HighPassCutoff:       80,
		DeClickEnabled:       true,
		DeClickThreshold:     0.4,
	}
}

// ApplyFilters применяет все включённые фильтры к записи
// Возвращает обработанные сэмплы (исходные не изменяются)
func ApplyFilters(samples []float32, sampleRate int, config FilterConfig) []float32 {
	if len(samples) == 0 {
		return samples
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	// Порядок важен: сначала убираем гул и щелчки, нормализация в конце
	if config.HighPassEnabled {
		result = applyHighPassFilter(result, sampleRate, config.HighPassCutoff)
	}
	if config.DeClickEnabled {
		result = applyDeClick(result, config.DeClickThreshold)
	}
	if config.NoiseGateEnabled {
		result = applyNoiseGate(result, sampleRate, config.NoiseGateThreshold)
	}
	if config.NormalizationEnabled {
		result = applyNormalization(result, config.TargetPeakLevel)
	}

	return result
}

// PrepareForEmbedding применяет фильтры перед извлечением векторов голоса
// Тихие записи не трогаем, фильтры на них только усиливают шум
func PrepareForEmbedding(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 {
		return samples
	}

	var peak float32
	for _, s := range samples {
		if a := abs32(s); a > peak {
			peak = a
		}
	}
	if peak < 0.01 {
		log.Printf("[AudioFilter] Signal too quiet (peak=%.4f), skipping filters", peak)
		return samples
	}

	return ApplyFilters(samples, sampleRate, DefaultFilterConfig())
}

// applyHighPassFilter IIR фильтр первого порядка
func applyHighPassFilter(samples []float32, sampleRate int, cutoffHz float32) []float32 {
	if len(samples) == 0 || cutoffHz <= 0 {
		return samples
	}

	// RC = 1 / (2 * PI * cutoff), alpha = RC / (RC + dt)
	rc := 1.0 / (2.0 * math.Pi * float64(cutoffHz))
	dt := 1.0 / float64(sampleRate)
	alpha := float32(rc / (rc + dt))

	result := make([]float32, len(samples))
	result[0] = samples[0]

	prevInput := samples[0]
	prevOutput := samples[0]

	for i := 1; i < len(samples); i++ {
		// y[i] = alpha * (y[i-1] + x[i] - x[i-1])
		result[i] = alpha * (prevOutput + samples[i] - prevInput)
		prevInput = samples[i]
		prevOutput = result[i]
	}

	return result
}

// applyDeClick интерполирует резкие одиночные скачки амплитуды
func applyDeClick(samples []float32, threshold float32) []float32 {
	if len(samples) < 3 {
		return samples
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	clickCount := 0
	for i := 1; i < len(samples)-1; i++ {
		diffPrev := abs32(samples[i] - samples[i-1])
		diffNext := abs32(samples[i] - samples[i+1])

		if diffPrev > threshold && diffNext > threshold {
			result[i] = (samples[i-1] + samples[i+1]) / 2
			clickCount++
		}
	}

	if clickCount > 0 {
		log.Printf("[AudioFilter] De-click removed %d clicks", clickCount)
	}

	return result
}

// applyNoiseGate затухание окон ниже порогового RMS
func applyNoiseGate(samples []float32, sampleRate int, threshold float32) []float32 {
	if len(samples) == 0 {
		return samples
	}

	// Окна 10ms
	windowSize := sampleRate / 100
	if windowSize < 1 {
		windowSize = 1
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		if end > len(samples) {
			end = len(samples)
		}

		rms := calculateRMS(samples[i:end])
		if rms < threshold {
			// Плавное затухание вместо обнуления
			attenuation := rms / threshold
			if attenuation < 0.1 {
				attenuation = 0.1
			}
			for j := i; j < end; j++ {
				result[j] *= attenuation
			}
		}
	}

	return result
}

// applyNormalization приводит пик к целевому уровню
func applyNormalization(samples []float32, targetPeak float32) []float32 {
	if len(samples) == 0 || targetPeak <= 0 {
		return samples
	}

	var maxAbs float32
	for _, s := range samples {
		if a := abs32(s); a > maxAbs {
			maxAbs = a
		}
	}

	if maxAbs < 0.001 {
		// Усиление тишины только поднимет шум
		return samples
	}

	gain := targetPeak / maxAbs
	if gain > 20 {
		gain = 20
	}

	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = s * gain
		if result[i] > 1 {
			result[i] = 1
		} else if result[i] < -1 {
			result[i] = -1
		}
	}

	return result
}

// calculateRMS вычисляет RMS набора сэмплов
func calculateRMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s * s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
