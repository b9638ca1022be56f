package config

import (
	"flag"
)

type Config struct {
	ModelPath     string // Путь к ONNX модели голосового энкодера
	Engine        string // Движок извлечения векторов: "onnx" или "sherpa"
	DataDir       string // Каталог хранилища профилей
	Port          string
	GRPCAddr      string // unix:/path, npipe:\\.\pipe\name или host:port
	RemovalPolicy string // "hard" или "detach"
	MinSamples    int    // Минимум сэмплов для регистрации
	Filters       bool   // Предобработка записи перед извлечением векторов
}

func Load() *Config {
	modelPath := flag.String("model", "models/voice-encoder.onnx", "Path to speaker encoder ONNX model")
	engine := flag.String("engine", "onnx", "Embedding engine: onnx or sherpa")
	dataDir := flag.String("data", "data/voiceprints", "Directory for voiceprint storage")
	port := flag.String("port", "8080", "Server port")
	grpcAddr := flag.String("grpc", "", "gRPC control stream address (default: platform socket)")
	removal := flag.String("removal", "hard", "Contact removal policy: hard or detach")
	minSamples := flag.Int("min-samples", 3, "Minimum enrollment samples per contact")
	filters := flag.Bool("filters", true, "Apply audio pre-processing filters")
	flag.Parse()

	return &Config{
		ModelPath:     *modelPath,
		Engine:        *engine,
		DataDir:       *dataDir,
		Port:          *port,
		GRPCAddr:      *grpcAddr,
		RemovalPolicy: *removal,
		MinSamples:    *minSamples,
		Filters:       *filters,
	}
}
