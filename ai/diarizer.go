package ai

import (
	"context"
	"log"
)

// DiarizerConfig параметры диаризации
type DiarizerConfig struct {
	Windower  WindowerConfig
	Clusterer ClustererConfig
	MergeGap  float64 // Пауза слияния сегментов (default: 0.5)
}

// DefaultDiarizerConfig возвращает параметры по умолчанию
func DefaultDiarizerConfig() DiarizerConfig {
	return DiarizerConfig{
		Windower:  DefaultWindowerConfig(),
		Clusterer: DefaultClustererConfig(),
		MergeGap:  DefaultMergeGapSec,
	}
}

// DiarizationResult результат диаризации одной записи
type DiarizationResult struct {
	Segments    []SpeakerSegment
	NumSpeakers int
	// Centroids центроид голоса на каждую call-local метку спикера
	Centroids map[int][]float32
	// Durations суммарная длительность речи на спикера (сек)
	Durations map[int]float64
	// Insufficient true если запись короче одного окна
	// (кластеризация невозможна, один вырожденный сегмент)
	Insufficient bool
}

// Diarizer разбивает запись на сегменты по спикерам:
// нарезка на окна -> кластеризация векторов -> реконструкция сегментов
type Diarizer struct {
	windower  *Windower
	clusterer *Clusterer
	mergeGap  float64
}

// NewDiarizer создаёт новый диаризатор
func NewDiarizer(embedder Embedder, config DiarizerConfig) *Diarizer {
	if config.MergeGap <= 0 {
		config.MergeGap = DefaultMergeGapSec
	}
	return &Diarizer{
		windower:  NewWindower(embedder, config.Windower),
		clusterer: NewClusterer(config.Clusterer),
		mergeGap:  config.MergeGap,
	}
}

// Diarize обрабатывает запись и возвращает сегменты с call-local метками
// samples - float32 PCM, 16kHz mono
func (d *Diarizer) Diarize(ctx context.Context, samples []float32) (*DiarizationResult, error) {
	windows, insufficient, err := d.windower.Extract(ctx, samples)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(windows))
	for i, w := range windows {
		embeddings[i] = w.Embedding
	}

	clusters := d.clusterer.Cluster(embeddings)
	segments := ReconstructSegments(windows, clusters.Labels, d.mergeGap)

	// Центроиды и длительности по спикерам
	grouped := make(map[int][][]float32)
	for i, label := range clusters.Labels {
		grouped[label] = append(grouped[label], windows[i].Embedding)
	}
	centroids := make(map[int][]float32, len(grouped))
	for label, embs := range grouped {
		centroids[label] = centroidOf(embs)
	}

	durations := make(map[int]float64, len(grouped))
	for _, seg := range segments {
		durations[seg.Speaker] += seg.End - seg.Start
	}

	log.Printf("[Diarizer] %d windows -> %d speakers, %d segments",
		len(windows), clusters.NumSpeakers, len(segments))

	return &DiarizationResult{
		Segments:     segments,
		NumSpeakers:  clusters.NumSpeakers,
		Centroids:    centroids,
		Durations:    durations,
		Insufficient: insufficient,
	}, nil
}

// centroidOf вычисляет нормализованный средний вектор
func centroidOf(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for _, e := range embeddings {
		for i := 0; i < dim && i < len(e); i++ {
			sum[i] += float64(e[i])
		}
	}
	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(len(embeddings)))
	}
	return normalizeEmbedding(mean)
}
