package ai

// Embedder преобразует аудио-фрагмент (float32, 16kHz, mono) в вектор голоса
// фиксированной размерности. Реализация детерминирована: одинаковый вход
// даёт одинаковый вектор
type Embedder interface {
	// Encode возвращает нормализованный вектор голоса
	Encode(samples []float32) ([]float32, error)
	// Dim возвращает размерность вектора
	Dim() int
}
