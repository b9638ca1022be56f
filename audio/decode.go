package audio

import (
	"bytes"
	"fmt"
	"log"
)

// TargetSampleRate частота дискретизации пайплайна (16kHz mono)
const TargetSampleRate = 16000

// Decode распознаёт формат записи по заголовку (WAV или MP3),
// декодирует в моно float32 и приводит к частоте пайплайна
// Возвращает сэмплы и длительность в секундах
func Decode(raw []byte) ([]float32, float64, error) {
	if len(raw) < 4 {
		return nil, 0, fmt.Errorf("audio payload too short: %d bytes", len(raw))
	}

	var samples []float32
	var srcRate int
	var err error

	switch {
	case bytes.HasPrefix(raw, []byte("RIFF")):
		samples, srcRate, err = decodeWAV(raw)
	case isMP3Header(raw):
		samples, srcRate, err = decodeMP3(raw)
	default:
		return nil, 0, fmt.Errorf("unsupported audio format (expected WAV or MP3)")
	}
	if err != nil {
		return nil, 0, err
	}
	if len(samples) == 0 {
		return nil, 0, fmt.Errorf("decoded audio is empty")
	}

	if srcRate != TargetSampleRate {
		log.Printf("[Audio] Resampling %dHz -> %dHz (%d samples)", srcRate, TargetSampleRate, len(samples))
		samples = resampleLinear(samples, srcRate, TargetSampleRate)
	}

	duration := float64(len(samples)) / float64(TargetSampleRate)
	return samples, duration, nil
}

// isMP3Header проверяет сигнатуру MP3: ID3-тег или frame sync
func isMP3Header(raw []byte) bool {
	if bytes.HasPrefix(raw, []byte("ID3")) {
		return true
	}
	// Frame sync: 11 единичных бит
	return raw[0] == 0xFF && raw[1]&0xE0 == 0xE0
}

// resampleLinear выполняет линейную интерполяцию для ресемплинга
func resampleLinear(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	newLen := int(float64(len(samples)) / ratio)
	resampled := make([]float32, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(samples) {
			resampled[i] = samples[srcIdx]*(1-frac) + samples[srcIdx+1]*frac
		} else if srcIdx < len(samples) {
			resampled[i] = samples[srcIdx]
		}
	}

	return resampled
}
