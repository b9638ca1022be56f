package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// decodeWAV разбирает RIFF/WAVE контейнер и возвращает моно float32
// Поддерживаются PCM16 и IEEE float32, многоканальное аудио сводится
// в моно усреднением каналов
func decodeWAV(raw []byte) ([]float32, int, error) {
	if len(raw) < 44 {
		return nil, 0, fmt.Errorf("WAV too short: %d bytes", len(raw))
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var format, channels, bitsPerSample int
	var sampleRate int
	var data []byte

	// Обход чанков: нужны fmt и data, остальные пропускаем
	pos := 12
	for pos+8 <= len(raw) {
		chunkID := string(raw[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkSize > len(raw) {
			chunkSize = len(raw) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("malformed fmt chunk: %d bytes", chunkSize)
			}
			format = int(binary.LittleEndian.Uint16(raw[body:]))
			channels = int(binary.LittleEndian.Uint16(raw[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4:]))
			bitsPerSample = int(binary.LittleEndian.Uint16(raw[body+14:]))
		case "data":
			data = raw[body : body+chunkSize]
		}

		// Чанки выравниваются на чётный размер
		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, fmt.Errorf("missing fmt chunk")
	}
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("missing data chunk")
	}

	var mono []float32
	switch {
	case format == wavFormatPCM && bitsPerSample == 16:
		mono = pcm16ToMono(data, channels)
	case format == wavFormatFloat && bitsPerSample == 32:
		mono = float32ToMono(data, channels)
	default:
		return nil, 0, fmt.Errorf("unsupported WAV encoding: format=%d, bits=%d", format, bitsPerSample)
	}

	return mono, sampleRate, nil
}

// pcm16ToMono конвертирует interleaved PCM16 в моно float32 [-1, 1]
func pcm16ToMono(data []byte, channels int) []float32 {
	frameSize := 2 * channels
	numFrames := len(data) / frameSize
	mono := make([]float32, numFrames)

	for i := 0; i < numFrames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			s := int16(binary.LittleEndian.Uint16(data[i*frameSize+ch*2:]))
			sum += float32(s) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// float32ToMono конвертирует interleaved IEEE float32 в моно
func float32ToMono(data []byte, channels int) []float32 {
	frameSize := 4 * channels
	numFrames := len(data) / frameSize
	mono := make([]float32, numFrames)

	for i := 0; i < numFrames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			bits := binary.LittleEndian.Uint32(data[i*frameSize+ch*4:])
			sum += math.Float32frombits(bits)
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// WAVWriter потоковый писатель WAV файлов (PCM16)
type WAVWriter struct {
	file           *os.File
	filePath       string
	sampleRate     int
	channels       int
	samplesWritten int64
	mu             sync.Mutex
}

// NewWAVWriter создаёт новый WAV writer
func NewWAVWriter(filePath string, sampleRate, channels int) (*WAVWriter, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	w := &WAVWriter{
		file:       file,
		filePath:   filePath,
		sampleRate: sampleRate,
		channels:   channels,
	}

	// Placeholder header, финальный размер допишется при Close
	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, err
	}

	return w, nil
}

func (w *WAVWriter) writeHeader() error {
	if _, err := w.file.Seek(0, 0); err != nil {
		return err
	}

	const bitsPerSample = 16
	byteRate := w.sampleRate * w.channels * bitsPerSample / 8
	blockAlign := w.channels * bitsPerSample / 8
	dataSize := uint32(w.samplesWritten * int64(bitsPerSample/8))

	w.file.WriteString("RIFF")
	binary.Write(w.file, binary.LittleEndian, uint32(36+dataSize))
	w.file.WriteString("WAVE")

	w.file.WriteString("fmt ")
	binary.Write(w.file, binary.LittleEndian, uint32(16))
	binary.Write(w.file, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(w.file, binary.LittleEndian, uint16(w.channels))
	binary.Write(w.file, binary.LittleEndian, uint32(w.sampleRate))
	binary.Write(w.file, binary.LittleEndian, uint32(byteRate))
	binary.Write(w.file, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w.file, binary.LittleEndian, uint16(bitsPerSample))

	w.file.WriteString("data")
	return binary.Write(w.file, binary.LittleEndian, dataSize)
}

// Write записывает float32 сэмплы (конвертирует в PCM16)
func (w *WAVWriter) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}

	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	w.samplesWritten += int64(len(samples))
	return nil
}

// SamplesWritten возвращает количество записанных сэмплов
func (w *WAVWriter) SamplesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samplesWritten
}

// Close дописывает header с финальным размером и закрывает файл
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeHeader(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// FilePath возвращает путь к файлу
func (w *WAVWriter) FilePath() string {
	return w.filePath
}

// EncodeWAV собирает WAV (PCM16 mono) в память, для тестов и ответов API
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := uint32(len(samples) * 2)
	buf := make([]byte, 0, 44+int(dataSize))

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:], 2)
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:], dataSize)
	buf = append(buf, header...)

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767)))
	}
	return append(buf, pcm...)
}
