// Package service реализует операции верификации и регистрации голосов
// поверх диаризации и хранилища профилей
package service

import (
	"time"

	"prisonvoice/ai"
	"prisonvoice/voiceprint"
)

// Config параметры сервиса
type Config struct {
	// MinSamples минимум аудио-сэмплов для регистрации контакта
	MinSamples int
	// MaxSamples лишние сэмплы молча отбрасываются
	MaxSamples int
	// MinSpeakerDuration спикеры с меньшей суммарной речью
	// не участвуют в matching (сегменты остаются в ответе)
	MinSpeakerDuration float64
	// RequestTimeout ограничение на обработку одного запроса
	RequestTimeout time.Duration
	// ApplyFilters включает предобработку записи перед извлечением векторов
	ApplyFilters bool
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		MinSamples:         3,
		MaxSamples:         10,
		MinSpeakerDuration: 1.0,
		RequestTimeout:     120 * time.Second,
		ApplyFilters:       true,
	}
}

// Service объединяет диаризацию, хранилище профилей и пороги решения
type Service struct {
	store     *voiceprint.Store
	embedder  ai.Embedder
	diarizer  *ai.Diarizer
	clusterer *ai.Clusterer
	config    Config
}

// New создаёт сервис
func New(store *voiceprint.Store, embedder ai.Embedder, diarizerConfig ai.DiarizerConfig, config Config) *Service {
	if config.MinSamples <= 0 {
		config.MinSamples = 1
	}
	if config.MaxSamples <= 0 {
		config.MaxSamples = 10
	}
	if config.MinSpeakerDuration <= 0 {
		config.MinSpeakerDuration = 1.0
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 120 * time.Second
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		diarizer:  ai.NewDiarizer(embedder, diarizerConfig),
		clusterer: ai.NewClusterer(diarizerConfig.Clusterer),
		config:    config,
	}
}

// Store возвращает хранилище профилей
func (s *Service) Store() *voiceprint.Store {
	return s.store
}
