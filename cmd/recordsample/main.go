// Запись эталонного сэмпла голоса с микрофона для регистрации контакта.
// Запуск: go run ./cmd/recordsample -out sample.wav
// Остановка: Ctrl+C

package main

import (
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"

	"prisonvoice/audio"
)

const channels = 1

func main() {
	outputFile := flag.String("out", "sample.wav", "Output WAV file")
	flag.Parse()

	log.Println("=== Запись сэмпла голоса ===")
	log.Printf("Выходной файл: %s", *outputFile)
	log.Printf("Формат: %dHz, %d каналов, 16 бит", audio.TargetSampleRate, channels)
	log.Println("Нажмите Ctrl+C для остановки...")

	// Инициализируем miniaudio
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("Ошибка инициализации контекста: %v", err)
	}
	defer ctx.Uninit()
	defer ctx.Free()

	writer, err := audio.NewWAVWriter(*outputFile, audio.TargetSampleRate, channels)
	if err != nil {
		log.Fatalf("Ошибка создания файла: %v", err)
	}

	// Настраиваем устройство захвата: пишем сразу в целевом формате,
	// чтобы сэмпл не проходил ресемплинг при регистрации
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = audio.TargetSampleRate
	deviceConfig.Alsa.NoMMap = 1

	startTime := time.Now()

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		sampleCount := int(framecount) * channels

		if len(pInputSamples) != sampleCount*4 {
			return
		}

		samples := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			bits := uint32(pInputSamples[i*4]) | uint32(pInputSamples[i*4+1])<<8 | uint32(pInputSamples[i*4+2])<<16 | uint32(pInputSamples[i*4+3])<<24
			samples[i] = math.Float32frombits(bits)
		}

		if err := writer.Write(samples); err != nil {
			log.Printf("Ошибка записи: %v", err)
			return
		}

		// Логируем прогресс каждые 5 секунд
		elapsed := time.Since(startTime)
		if int(elapsed.Seconds())%5 == 0 && elapsed.Seconds() > 0 {
			log.Printf("Записано: %.1f сек (%d семплов)", elapsed.Seconds(), writer.SamplesWritten())
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		log.Fatalf("Ошибка инициализации устройства: %v", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatalf("Ошибка запуска устройства: %v", err)
	}

	log.Println("Запись началась...")

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	<-stopChan
	log.Println("\nОстановка записи...")

	device.Stop()

	samplesWritten := writer.SamplesWritten()
	if err := writer.Close(); err != nil {
		log.Fatalf("Ошибка закрытия файла: %v", err)
	}

	duration := float64(samplesWritten) / float64(audio.TargetSampleRate)
	log.Printf("Готово! Записано %.1f секунд (%d семплов)", duration, samplesWritten)
	log.Printf("Файл: %s", *outputFile)

	if duration < 10 {
		log.Println("Внимание: для надёжной регистрации рекомендуется сэмпл не короче 10 секунд")
	}
}
