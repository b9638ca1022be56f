// Package voiceprint хранит голосовые профили спикеров (voiceprints)
// и связи контакт -> спикеры для верификации звонков
package voiceprint

import "time"

// EmbeddingDim размерность вектора голоса (ECAPA-TDNN / WeSpeaker)
const EmbeddingDim = 192

// SpeakerProfile сохранённый профиль спикера
type SpeakerProfile struct {
	ID         string      `json:"id"`         // UUID
	Embeddings [][]float32 `json:"embeddings"` // Все сэмплы голоса профиля
	Centroid   []float32   `json:"centroid"`   // Среднее всех embeddings (нормализованное)
	ContactIDs []string    `json:"contactIds"` // Контакты, которым принадлежит профиль
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`

	// Опционально: путь к аудио-сэмплу для воспроизведения в UI
	SamplePath string `json:"samplePath,omitempty"`
}

// profileDB структура для хранения в JSON файле
type profileDB struct {
	Version  int                 `json:"version"`  // Версия формата (проверка при загрузке)
	Profiles []SpeakerProfile    `json:"profiles"` // Порядок вставки = порядок итерации
	Contacts map[string][]string `json:"contacts"` // contact_id -> список speaker_id
}

// MatchResult результат поиска совпадения
type MatchResult struct {
	Profile    *SpeakerProfile
	Similarity float32 // Косинусное сходство
	Confidence string  // "high", "medium", "low", "none"
}

// RemovalPolicy поведение RemoveContact для профилей, разделённых
// между несколькими контактами
type RemovalPolicy int

const (
	// RemoveHard удаляет профиль целиком, даже если он привязан
	// к другим контактам (поведение исходной системы)
	RemoveHard RemovalPolicy = iota
	// RemoveDetach убирает только связь с контактом; профиль удаляется
	// лишь когда у него не остаётся контактов
	RemoveDetach
)

// Пороги для matching (косинусное сходство)
const (
	ThresholdMatch   float32 = 0.70 // Порог авторизации
	ThresholdHigh    float32 = 0.85 // Высокая уверенность
	ThresholdUnknown float32 = 0.55 // Ниже - гарантированно неизвестный голос
)

// GetConfidence возвращает уровень уверенности для similarity
func GetConfidence(similarity float32) string {
	switch {
	case similarity >= ThresholdHigh:
		return "high"
	case similarity >= ThresholdMatch:
		return "medium"
	case similarity >= ThresholdUnknown:
		return "low"
	default:
		return "none"
	}
}

// CurrentVersion текущая версия формата хранения
const CurrentVersion = 1
