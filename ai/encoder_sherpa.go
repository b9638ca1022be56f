// SherpaEncoder - альтернативный бэкенд извлечения векторов голоса через sherpa-onnx
package ai

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaEncoderConfig конфигурация для SherpaEncoder
type SherpaEncoderConfig struct {
	ModelPath  string // Путь к модели эмбеддингов (wespeaker/3dspeaker)
	NumThreads int    // Количество потоков
	Provider   string // ONNX provider: cpu, cuda, coreml, auto
}

// detectBestProvider определяет лучший provider для текущей платформы
func detectBestProvider() string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	// На Linux/Windows по умолчанию cpu - безопасный вариант
	return "cpu"
}

// DefaultSherpaEncoderConfig возвращает конфигурацию по умолчанию
func DefaultSherpaEncoderConfig(modelPath string) SherpaEncoderConfig {
	return SherpaEncoderConfig{
		ModelPath:  modelPath,
		NumThreads: 4,
		Provider:   "auto",
	}
}

// SherpaEncoder извлекает векторы голоса через sherpa-onnx
type SherpaEncoder struct {
	config      SherpaEncoderConfig
	extractor   *sherpa.SpeakerEmbeddingExtractor
	mu          sync.Mutex
	initialized bool
}

// NewSherpaEncoder создаёт новый энкодер на базе sherpa-onnx
func NewSherpaEncoder(config SherpaEncoderConfig) (*SherpaEncoder, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found: %s", config.ModelPath)
	}

	provider := config.Provider
	if provider == "auto" || provider == "" {
		provider = detectBestProvider()
	}
	log.Printf("[Encoder] sherpa-onnx: using provider=%s (requested=%s)", provider, config.Provider)

	sherpaConfig := sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      config.ModelPath,
		NumThreads: config.NumThreads,
		Debug:      0,
		Provider:   provider,
	}

	extractor := sherpa.NewSpeakerEmbeddingExtractor(&sherpaConfig)
	if extractor == nil {
		// Если аппаратный provider не сработал, пробуем CPU
		if provider != "cpu" {
			log.Printf("[Encoder] sherpa-onnx: %s provider failed, falling back to CPU", provider)
			sherpaConfig.Provider = "cpu"
			extractor = sherpa.NewSpeakerEmbeddingExtractor(&sherpaConfig)
		}
		if extractor == nil {
			return nil, fmt.Errorf("failed to create sherpa-onnx embedding extractor")
		}
	}

	log.Printf("[Encoder] sherpa-onnx initialized: model=%s, dim=%d", config.ModelPath, extractor.Dim())

	return &SherpaEncoder{
		config:      config,
		extractor:   extractor,
		initialized: true,
	}, nil
}

// Dim возвращает размерность вектора голоса
func (e *SherpaEncoder) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor != nil {
		return e.extractor.Dim()
	}
	return 0
}

// Encode извлекает вектор голоса из аудио
// samples - float32 PCM, 16kHz mono
func (e *SherpaEncoder) Encode(samples []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("encoder not initialized")
	}
	if len(samples) < 1600 {
		return nil, fmt.Errorf("audio too short: %d samples", len(samples))
	}

	stream := e.extractor.CreateStream()
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(16000, samples)
	stream.InputFinished()

	if !e.extractor.IsReady(stream) {
		return nil, fmt.Errorf("not enough audio for embedding")
	}

	embedding := e.extractor.Compute(stream)
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from extractor")
	}

	return normalizeEmbedding(embedding), nil
}

// Close освобождает ресурсы
func (e *SherpaEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.extractor)
		e.extractor = nil
	}
	e.initialized = false
}
