package ai

import (
	"log"
	"math"
)

// OutlierLabel метка окна, не попавшего ни в один плотный кластер
const OutlierLabel = -1

// ClustererConfig параметры кластеризации спикеров
type ClustererConfig struct {
	MaxSpeakers int     // Потолок количества спикеров K_max (default: 6)
	MinWindows  int     // Минимум окон для кластеризации N_min (default: 3)
	Eps         float64 // Радиус соседства DBSCAN в cosine distance (default: 0.35)
	MinPts      int     // Минимум соседей для плотной точки (default: 2)
}

// DefaultClustererConfig возвращает параметры по умолчанию
// Eps 0.35 - консервативный порог для ECAPA/WeSpeaker косинусных расстояний
func DefaultClustererConfig() ClustererConfig {
	return ClustererConfig{
		MaxSpeakers: 6,
		MinWindows:  3,
		Eps:         0.35,
		MinPts:      2,
	}
}

// ClusterResult результат кластеризации окон
type ClusterResult struct {
	Labels      []int // Метка кластера (call-local) на каждое входное окно
	NumSpeakers int   // Количество уникальных спикеров
}

// Clusterer группирует векторы окон в кластеры спикеров без
// априорного количества спикеров
type Clusterer struct {
	config ClustererConfig
}

// NewClusterer создаёт новый кластеризатор
func NewClusterer(config ClustererConfig) *Clusterer {
	if config.MaxSpeakers <= 0 {
		config.MaxSpeakers = 6
	}
	if config.MinWindows <= 0 {
		config.MinWindows = 3
	}
	if config.Eps <= 0 {
		config.Eps = 0.35
	}
	if config.MinPts <= 0 {
		config.MinPts = 2
	}
	return &Clusterer{config: config}
}

// Cluster выполняет кластеризацию векторов
//
// Политика:
//  1. < 2 окон или < MinWindows окон - один кластер (метка 0), не ошибка
//  2. Основная стратегия - DBSCAN по косинусному расстоянию: количество
//     спикеров определяется плотностью, точки вне плотных областей - outliers
//  3. Если DBSCAN не нашёл ни одного кластера - иерархическая кластеризация
//     с перебором количества кластеров 2..min(MaxSpeakers, n)
//  4. Outlier-окна становятся синглтон-кластерами, чтобы их время
//     не терялось при реконструкции сегментов
func (c *Clusterer) Cluster(embeddings [][]float32) ClusterResult {
	n := len(embeddings)
	if n == 0 {
		return ClusterResult{Labels: []int{}, NumSpeakers: 0}
	}
	if n < 2 || n < c.config.MinWindows {
		labels := make([]int, n)
		return ClusterResult{Labels: labels, NumSpeakers: 1}
	}

	dist := cosineDistanceMatrix(embeddings)

	labels := dbscan(dist, c.config.Eps, c.config.MinPts)
	numClusters := countClusters(labels)

	if numClusters == 0 {
		// DBSCAN выродился - все точки outliers, пробуем иерархическую
		fallback, ok := c.hierarchicalFallback(dist)
		if ok {
			labels = fallback
		} else {
			// Ни один кандидат не дал больше одного нетривиального кластера
			for i := range labels {
				labels[i] = 0
			}
		}
	}

	// Outliers поднимаем до синглтон-кластеров
	labels = promoteOutliers(labels)

	return ClusterResult{
		Labels:      labels,
		NumSpeakers: countClusters(labels),
	}
}

// dbscan плотностная кластеризация по готовой матрице расстояний
// Возвращает метки кластеров (0..k-1) и OutlierLabel для шумовых точек
func dbscan(dist [][]float64, eps float64, minPts int) []int {
	n := len(dist)
	const unvisited = -2

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighborsOf := func(i int) []int {
		var result []int
		for j := 0; j < n; j++ {
			if j != i && dist[i][j] <= eps {
				result = append(result, j)
			}
		}
		return result
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}

		neighbors := neighborsOf(i)
		if len(neighbors) < minPts {
			labels[i] = OutlierLabel
			continue
		}

		// Новая плотная область: расширяем её
		labels[i] = cluster
		queue := append([]int{}, neighbors...)
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]

			if labels[p] == OutlierLabel {
				labels[p] = cluster // Пограничная точка
			}
			if labels[p] != unvisited {
				continue
			}
			labels[p] = cluster

			pn := neighborsOf(p)
			if len(pn) >= minPts {
				queue = append(queue, pn...)
			}
		}
		cluster++
	}

	return labels
}

// candidateScore результат оценки одного кандидата количества кластеров
// Вместо проглатывания ошибок кандидат явно помечается как infeasible
type candidateScore struct {
	k        int
	score    float64 // meanInter / meanIntra, больше = лучше разделены
	feasible bool
}

// hierarchicalFallback перебирает количество кластеров 2..min(MaxSpeakers, n)
// average-linkage иерархической кластеризацией и выбирает кандидата
// с максимальным feasible score. Возвращает (labels, false) если ни один
// кандидат не дал больше одного нетривиального кластера
func (c *Clusterer) hierarchicalFallback(dist [][]float64) ([]int, bool) {
	n := len(dist)
	kMax := c.config.MaxSpeakers
	if kMax > n {
		kMax = n
	}

	snapshots := agglomerate(dist, 2, kMax)

	best := candidateScore{feasible: false}
	var bestLabels []int

	for k := 2; k <= kMax; k++ {
		labels, ok := snapshots[k]
		if !ok {
			continue
		}
		cand := scoreCandidate(dist, labels, k)
		if !cand.feasible {
			continue
		}
		if !best.feasible || cand.score > best.score {
			best = cand
			bestLabels = labels
		}
	}

	if !best.feasible {
		return nil, false
	}

	log.Printf("[Clusterer] hierarchical fallback: k=%d (separation=%.3f)", best.k, best.score)
	return bestLabels, true
}

// agglomerate выполняет average-linkage слияние и снимает снапшоты меток
// для каждого количества кластеров в диапазоне [kMin, kMax]
func agglomerate(dist [][]float64, kMin, kMax int) map[int][]int {
	n := len(dist)

	// Каждая точка - свой кластер
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	snapshots := make(map[int][]int)
	snapshot := func() []int {
		labels := make([]int, n)
		for id, members := range clusters {
			for _, m := range members {
				labels[m] = id
			}
		}
		return normalizeLabels(labels)
	}

	if n >= kMin && n <= kMax {
		snapshots[n] = snapshot()
	}

	for len(clusters) > 1 {
		// Ближайшая пара кластеров по среднему расстоянию
		bestI, bestJ := -1, -1
		bestDist := math.MaxFloat64
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := averageLinkage(dist, clusters[i], clusters[j])
				if d < bestDist {
					bestDist = d
					bestI, bestJ = i, j
				}
			}
		}

		merged := append(append([]int{}, clusters[bestI]...), clusters[bestJ]...)
		clusters[bestI] = merged
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)

		k := len(clusters)
		if k >= kMin && k <= kMax {
			snapshots[k] = snapshot()
		}
		if k < kMin {
			break
		}
	}

	return snapshots
}

func averageLinkage(dist [][]float64, a, b []int) float64 {
	sum := 0.0
	for _, i := range a {
		for _, j := range b {
			sum += dist[i][j]
		}
	}
	return sum / float64(len(a)*len(b))
}

// scoreCandidate оценивает качество разбиения как отношение среднего
// межкластерного расстояния к среднему внутрикластерному
func scoreCandidate(dist [][]float64, labels []int, k int) candidateScore {
	n := len(labels)

	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}

	// Кандидат feasible только если есть больше одного нетривиального кластера
	nonTrivial := 0
	for _, size := range sizes {
		if size >= 2 {
			nonTrivial++
		}
	}
	if nonTrivial < 2 {
		return candidateScore{k: k, feasible: false}
	}

	var intraSum, interSum float64
	var intraCount, interCount int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if labels[i] == labels[j] {
				intraSum += dist[i][j]
				intraCount++
			} else {
				interSum += dist[i][j]
				interCount++
			}
		}
	}

	if intraCount == 0 || interCount == 0 {
		return candidateScore{k: k, feasible: false}
	}
	meanIntra := intraSum / float64(intraCount)
	meanInter := interSum / float64(interCount)
	if meanIntra < 1e-9 {
		// Нулевое внутрикластерное расстояние - разбиение вырождено
		return candidateScore{k: k, feasible: false}
	}

	return candidateScore{k: k, score: meanInter / meanIntra, feasible: true}
}

// promoteOutliers превращает каждую outlier-точку в отдельный синглтон-кластер
func promoteOutliers(labels []int) []int {
	next := 0
	for _, l := range labels {
		if l >= next {
			next = l + 1
		}
	}
	result := make([]int, len(labels))
	for i, l := range labels {
		if l == OutlierLabel {
			result[i] = next
			next++
		} else {
			result[i] = l
		}
	}
	return result
}

// normalizeLabels перенумеровывает метки в 0, 1, 2... в порядке появления
func normalizeLabels(labels []int) []int {
	mapping := make(map[int]int)
	result := make([]int, len(labels))
	next := 0
	for i, l := range labels {
		id, ok := mapping[l]
		if !ok {
			id = next
			mapping[l] = id
			next++
		}
		result[i] = id
	}
	return result
}

func countClusters(labels []int) int {
	unique := make(map[int]bool)
	for _, l := range labels {
		if l != OutlierLabel {
			unique[l] = true
		}
	}
	return len(unique)
}

// cosineDistanceMatrix вычисляет матрицу косинусных расстояний
// Векторы предварительно нормализуются до единичной длины
func cosineDistanceMatrix(embeddings [][]float32) [][]float64 {
	n := len(embeddings)
	normalized := make([][]float32, n)
	for i, e := range embeddings {
		normalized[i] = normalizeEmbedding(e)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := cosineDistance(normalized[i], normalized[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// cosineDistance возвращает косинусное расстояние (1 - cosine_similarity)
// Диапазон: [0, 2]. 0 - идентичные векторы
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}

	return 1.0 - similarity
}
