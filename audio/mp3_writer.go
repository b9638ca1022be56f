package audio

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// MP3Writer писатель MP3 через shine-mp3, для архива голосовых образцов
type MP3Writer struct {
	file       *os.File
	encoder    *mp3.Encoder
	filePath   string
	sampleRate int
	channels   int

	// shine кодирует блоками по 1152 сэмпла на канал
	buffer []int16

	samplesWritten int64
	mu             sync.Mutex
	closed         bool
}

// NewMP3Writer создаёт новый MP3 writer
func NewMP3Writer(filePath string, sampleRate, channels int) (*MP3Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &MP3Writer{
		file:       file,
		encoder:    mp3.NewEncoder(sampleRate, channels),
		filePath:   filePath,
		sampleRate: sampleRate,
		channels:   channels,
		buffer:     make([]int16, 0, 8192),
	}, nil
}

// Write записывает float32 сэмплы
func (w *MP3Writer) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		w.buffer = append(w.buffer, int16(s*32767))
	}
	w.samplesWritten += int64(len(samples))

	// Пишем кратными блоку порциями, хвост остаётся в буфере
	minBufferSize := 1152 * w.channels * 4
	if len(w.buffer) >= minBufferSize {
		flush := len(w.buffer) - len(w.buffer)%(1152*w.channels)
		if err := w.encoder.Write(w.file, w.buffer[:flush]); err != nil {
			return fmt.Errorf("mp3 encode failed: %w", err)
		}
		w.buffer = append(w.buffer[:0], w.buffer[flush:]...)
	}

	return nil
}

// SamplesWritten возвращает количество записанных сэмплов
func (w *MP3Writer) SamplesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samplesWritten
}

// Close дописывает остаток буфера и закрывает файл
func (w *MP3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buffer) > 0 {
		blockSize := 1152 * w.channels
		for len(w.buffer)%blockSize != 0 {
			w.buffer = append(w.buffer, 0)
		}
		if err := w.encoder.Write(w.file, w.buffer); err != nil {
			w.file.Close()
			return fmt.Errorf("mp3 encode failed: %w", err)
		}
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	log.Printf("[MP3Writer] Closed %s (%d samples)", w.filePath, w.samplesWritten)
	return nil
}

// FilePath возвращает путь к файлу
func (w *MP3Writer) FilePath() string {
	return w.filePath
}

// SaveMP3 кодирует запись в MP3 файл одним вызовом
func SaveMP3(filePath string, samples []float32, sampleRate int) error {
	w, err := NewMP3Writer(filePath, sampleRate, 1)
	if err != nil {
		return err
	}
	if err := w.Write(samples); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
