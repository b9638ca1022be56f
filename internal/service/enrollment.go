package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"prisonvoice/audio"
)

// SampleReport результат обработки одного сэмпла регистрации
type SampleReport struct {
	Index    int     `json:"index"`
	Duration float64 `json:"duration_sec"`
	Speakers int     `json:"speakers"`
	Error    string  `json:"error,omitempty"`
}

// EnrollmentReport итог регистрации контакта
type EnrollmentReport struct {
	ContactID     string         `json:"contact_id"`
	SpeakerIDs    []string       `json:"speaker_ids"`
	SamplesUsed   int            `json:"samples_used"`
	SamplesFailed int            `json:"samples_failed"`
	Samples       []SampleReport `json:"samples"`
}

// Enroll регистрирует контакт по нескольким аудио-сэмплам
//
// Каждый сэмпл диаризуется отдельно, центроиды спикеров всех сэмплов
// собираются в общий пул и кластеризуются повторно: один голос в разных
// сэмплах сливается в один профиль, посторонний голос в сэмпле становится
// отдельным профилем. Сбой обработки одного сэмпла фиксируется в отчёте,
// регистрация продолжается на оставшихся
func (s *Service) Enroll(ctx context.Context, contactID string, rawSamples [][]byte) (*EnrollmentReport, error) {
	if contactID == "" {
		return nil, NewInputError("contact_id is required")
	}
	if len(rawSamples) < s.config.MinSamples {
		return nil, NewInputError("at least %d audio samples required, got %d",
			s.config.MinSamples, len(rawSamples))
	}
	if len(rawSamples) > s.config.MaxSamples {
		log.Printf("[Enroll] Capping %d samples to %d (contact=%s)",
			len(rawSamples), s.config.MaxSamples, contactID)
		rawSamples = rawSamples[:s.config.MaxSamples]
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	report := &EnrollmentReport{ContactID: contactID}

	// Пул кандидатов: центроиды спикеров каждого сэмпла
	var pool [][]float32
	var firstSample []float32

	for i, raw := range rawSamples {
		sr := SampleReport{Index: i}

		samples, duration, err := s.prepare(raw)
		if err != nil {
			sr.Error = err.Error()
			report.SamplesFailed++
			report.Samples = append(report.Samples, sr)
			log.Printf("[Enroll] Sample %d failed: %v (contact=%s)", i, err, contactID)
			continue
		}
		sr.Duration = duration

		result, err := s.diarizer.Diarize(ctx, samples)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			sr.Error = err.Error()
			report.SamplesFailed++
			report.Samples = append(report.Samples, sr)
			log.Printf("[Enroll] Sample %d extraction failed: %v (contact=%s)", i, err, contactID)
			continue
		}

		sr.Speakers = result.NumSpeakers
		for _, centroid := range result.Centroids {
			pool = append(pool, centroid)
		}
		if firstSample == nil {
			firstSample = samples
		}
		report.SamplesUsed++
		report.Samples = append(report.Samples, sr)
	}

	if len(pool) == 0 {
		return nil, fmt.Errorf("all %d enrollment samples failed", len(rawSamples))
	}

	// Повторная кластеризация пула: голоса из разных сэмплов сливаются
	fused := s.clusterer.Cluster(pool)
	grouped := make(map[int][][]float32)
	for i, label := range fused.Labels {
		grouped[label] = append(grouped[label], pool[i])
	}

	// Профили в порядке меток, чтобы результат не зависел от порядка map
	for label := 0; label < fused.NumSpeakers; label++ {
		members := grouped[label]
		if len(members) == 0 {
			continue
		}
		profile, err := s.store.AddSpeaker(contactID, members)
		if err != nil {
			return nil, fmt.Errorf("failed to save profile: %w", err)
		}
		report.SpeakerIDs = append(report.SpeakerIDs, profile.ID)
	}

	// Архив первого удачного сэмпла для воспроизведения в UI
	if firstSample != nil && len(report.SpeakerIDs) > 0 {
		if path, err := s.archiveSample(contactID, report.SpeakerIDs[0], firstSample); err != nil {
			log.Printf("[Enroll] Sample archival failed: %v (contact=%s)", err, contactID)
		} else if err := s.store.SetSamplePath(report.SpeakerIDs[0], path); err != nil {
			log.Printf("[Enroll] Failed to record sample path: %v", err)
		}
	}

	log.Printf("[Enroll] Contact %s enrolled: %d profiles from %d/%d samples",
		contactID, len(report.SpeakerIDs), report.SamplesUsed, len(rawSamples))
	return report, nil
}

// archiveSample сохраняет сэмпл в MP3 рядом с хранилищем
func (s *Service) archiveSample(contactID, speakerID string, samples []float32) (string, error) {
	dir := s.store.SamplesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.mp3", contactID, speakerID))
	if err := audio.SaveMP3(path, samples, audio.TargetSampleRate); err != nil {
		return "", err
	}
	return path, nil
}
