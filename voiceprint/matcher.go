package voiceprint

import "math"

// CosineSimilarity вычисляет косинусное сходство между двумя векторами
// Возвращает значение от -1 до 1, где 1 = идентичные
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// CosineDistance = 1 - CosineSimilarity
// Диапазон: [0, 2]. 0 - идентичные векторы
func CosineDistance(a, b []float32) float64 {
	return 1.0 - float64(CosineSimilarity(a, b))
}

// Normalize нормализует вектор до единичной длины (копия)
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	if sumSq < 1e-10 {
		copy(out, v)
		return out
	}

	norm := float32(1.0 / math.Sqrt(sumSq))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}

// Centroid вычисляет средний вектор набора embeddings и нормализует его
// для косинусных сравнений
func Centroid(embeddings [][]float32) []float32 {
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
	n := float64(len(embeddings))
	for i := range sum {
		mean[i] = float32(sum[i] / n)
	}

	return Normalize(mean)
}

// Mean вычисляет средний вектор без нормализации
func Mean(embeddings [][]float32) []float32 {
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
	n := float64(len(embeddings))
	for i := range sum {
		mean[i] = float32(sum[i] / n)
	}
	return mean
}
