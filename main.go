package main

import (
	"log"
	"strings"

	"prisonvoice/ai"
	"prisonvoice/internal/api"
	"prisonvoice/internal/config"
	"prisonvoice/internal/service"
	"prisonvoice/voiceprint"
)

func main() {
	log.Println("PrisonVoice backend starting...")

	cfg := config.Load()

	log.Printf("Model path: %s", cfg.ModelPath)
	log.Printf("Data directory: %s", cfg.DataDir)

	// Политика удаления контактов
	var policy voiceprint.RemovalPolicy
	switch strings.ToLower(cfg.RemovalPolicy) {
	case "hard":
		policy = voiceprint.RemoveHard
	case "detach":
		policy = voiceprint.RemoveDetach
	default:
		log.Fatalf("Unknown removal policy: %s (expected hard or detach)", cfg.RemovalPolicy)
	}

	// Хранилище голосовых профилей
	log.Println("Initializing voiceprint store...")
	store, err := voiceprint.NewStore(cfg.DataDir, policy)
	if err != nil {
		log.Fatalf("Failed to init voiceprint store: %v", err)
	}
	log.Printf("Voiceprint store initialized: %d profiles", store.Count())

	// Энкодер голоса
	log.Printf("Loading speaker encoder (engine=%s)...", cfg.Engine)
	var embedder ai.Embedder
	switch cfg.Engine {
	case "onnx":
		encoder, err := ai.NewSpeakerEncoder(ai.DefaultSpeakerEncoderConfig(cfg.ModelPath))
		if err != nil {
			log.Fatalf("Failed to load speaker encoder: %v", err)
		}
		defer encoder.Close()
		embedder = encoder
	case "sherpa":
		encoder, err := ai.NewSherpaEncoder(ai.DefaultSherpaEncoderConfig(cfg.ModelPath))
		if err != nil {
			log.Fatalf("Failed to load sherpa encoder: %v", err)
		}
		defer encoder.Close()
		embedder = encoder
	default:
		log.Fatalf("Unknown embedding engine: %s (expected onnx or sherpa)", cfg.Engine)
	}
	log.Println("Speaker encoder loaded successfully")

	// Сервис верификации
	svcConfig := service.DefaultConfig()
	svcConfig.MinSamples = cfg.MinSamples
	svcConfig.ApplyFilters = cfg.Filters
	voice := service.New(store, embedder, ai.DefaultDiarizerConfig(), svcConfig)

	server := api.NewServer(cfg, voice)
	server.Start()
}
