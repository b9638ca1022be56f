package service

import (
	"context"
	"fmt"
	"log"
	"sort"

	"prisonvoice/ai"
	"prisonvoice/audio"
	"prisonvoice/voiceprint"
)

// Статусы вердикта по звонку
const (
	StatusFullyAuthorized     = "FULLY_AUTHORIZED"
	StatusPartiallyAuthorized = "PARTIALLY_AUTHORIZED"
	StatusMixedAuthorization  = "MIXED_AUTHORIZATION"
	StatusUnauthorized        = "UNAUTHORIZED"
)

// Статусы одного спикера
const (
	TierAuthorized = "AUTHORIZED"
	TierUncertain  = "UNCERTAIN"
	TierUnknown    = "UNKNOWN"
)

// Уровни риска
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// VerifyResult результат верификации 1:1
type VerifyResult struct {
	ContactID  string  `json:"contact_id"`
	Authorized bool    `json:"authorized"`
	Score      float32 `json:"score"`
	Confidence string  `json:"confidence"`
}

// SpeakerResult результат matching одного call-local спикера
type SpeakerResult struct {
	Speaker    int     `json:"speaker"`
	Duration   float64 `json:"duration_sec"`
	Score      float32 `json:"score"`
	SpeakerID  string  `json:"speaker_id,omitempty"`
	Status     string  `json:"status"`
	Confidence string  `json:"confidence"`
	// Excluded true для спикеров с суммарной речью меньше минимума:
	// в вердикте не участвуют, но их сегменты остаются в ответе
	Excluded bool `json:"excluded,omitempty"`
}

// CallVerdict вердикт по звонку целиком
type CallVerdict struct {
	ContactID         string              `json:"contact_id"`
	Status            string              `json:"status"`
	Risk              string              `json:"risk"`
	Authorized        bool                `json:"authorized"`
	OverallConfidence float32             `json:"overall_confidence"`
	NumSpeakers       int                 `json:"num_speakers"`
	Speakers          []SpeakerResult     `json:"speakers"`
	Segments          []ai.SpeakerSegment `json:"segments"`
	Quality           ai.AudioQuality     `json:"quality"`
	// Fallback true если ни один спикер не пригоден для matching
	// и вердикт построен по записи целиком
	Fallback bool `json:"fallback,omitempty"`
}

// AnalysisResult разбор записи без верификации
type AnalysisResult struct {
	SpeakerCount int                 `json:"speaker_count"`
	Segments     []ai.SpeakerSegment `json:"segments"`
	Quality      ai.AudioQuality     `json:"quality"`
	// Insufficient true если запись короче одного окна
	Insufficient bool `json:"insufficient,omitempty"`
}

// ProfileSummary краткая сводка профиля для API
type ProfileSummary struct {
	ID         string `json:"id"`
	NumSamples int    `json:"num_samples"`
	CreatedAt  string `json:"created_at"`
	SamplePath string `json:"sample_path,omitempty"`
}

// ContactInfo сводка по контакту
type ContactInfo struct {
	ContactID    string           `json:"contact_id"`
	Enrolled     bool             `json:"enrolled"`
	SpeakerCount int              `json:"speaker_count"`
	Profiles     []ProfileSummary `json:"profiles"`
}

// Verify1to1 сравнивает запись целиком с профилями контакта
// Контакт без профилей - не авторизован с нулевым score
func (s *Service) Verify1to1(ctx context.Context, contactID string, raw []byte) (*VerifyResult, error) {
	if contactID == "" {
		return nil, NewInputError("contact_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	samples, _, err := s.prepare(raw)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedRecording(ctx, samples)
	if err != nil {
		return nil, err
	}

	score, speakerID := s.bestContactScore(contactID, embedding)
	result := &VerifyResult{
		ContactID:  contactID,
		Authorized: score >= voiceprint.ThresholdMatch,
		Score:      score,
		Confidence: voiceprint.GetConfidence(score),
	}

	log.Printf("[Verify] 1:1 contact=%s score=%.3f authorized=%v (speaker=%s)",
		contactID, score, result.Authorized, speakerID)
	return result, nil
}

// VerifyAdvanced диаризует запись и выносит вердикт по каждому спикеру
// и звонку целиком
func (s *Service) VerifyAdvanced(ctx context.Context, contactID string, raw []byte) (*CallVerdict, error) {
	if contactID == "" {
		return nil, NewInputError("contact_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	samples, _, err := s.prepare(raw)
	if err != nil {
		return nil, err
	}

	result, err := s.diarizer.Diarize(ctx, samples)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	quality := ai.AnalyzeQuality(samples)

	var speakers []SpeakerResult
	var usable []SpeakerResult

	// Стабильный порядок спикеров в ответе
	labels := make([]int, 0, len(result.Centroids))
	for label := range result.Centroids {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	for _, label := range labels {
		duration := result.Durations[label]
		sr := SpeakerResult{Speaker: label, Duration: duration}

		if duration < s.config.MinSpeakerDuration {
			sr.Excluded = true
			sr.Status = TierUnknown
			sr.Confidence = "none"
			speakers = append(speakers, sr)
			continue
		}

		score, speakerID := s.bestContactScore(contactID, result.Centroids[label])
		sr.Score = score
		sr.SpeakerID = speakerID
		sr.Status = tierFor(score)
		sr.Confidence = voiceprint.GetConfidence(score)
		speakers = append(speakers, sr)
		usable = append(usable, sr)
	}

	verdict := &CallVerdict{
		ContactID:   contactID,
		NumSpeakers: result.NumSpeakers,
		Speakers:    speakers,
		Segments:    result.Segments,
		Quality:     quality,
	}

	if len(usable) == 0 {
		// Ни одного пригодного спикера: вердикт по записи целиком
		embedding, err := s.embedRecording(ctx, samples)
		if err != nil {
			return nil, err
		}
		score, speakerID := s.bestContactScore(contactID, embedding)
		fallback := SpeakerResult{
			Speaker:    0,
			Duration:   quality.Duration,
			Score:      score,
			SpeakerID:  speakerID,
			Status:     tierFor(score),
			Confidence: voiceprint.GetConfidence(score),
		}
		usable = []SpeakerResult{fallback}
		verdict.Fallback = true
		log.Printf("[Verify] No usable speakers, falling back to whole-recording match (contact=%s)", contactID)
	}

	verdict.Status, verdict.Risk = aggregateVerdict(usable)
	verdict.Authorized = verdict.Status == StatusFullyAuthorized

	var sum float64
	for _, sr := range usable {
		sum += float64(sr.Score)
	}
	verdict.OverallConfidence = float32(sum / float64(len(usable)))

	log.Printf("[Verify] 1:N contact=%s speakers=%d status=%s risk=%s confidence=%.3f",
		contactID, result.NumSpeakers, verdict.Status, verdict.Risk, verdict.OverallConfidence)
	return verdict, nil
}

// Analyze диаризует запись без сравнения с профилями
func (s *Service) Analyze(ctx context.Context, raw []byte) (*AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	samples, _, err := s.prepare(raw)
	if err != nil {
		return nil, err
	}

	result, err := s.diarizer.Diarize(ctx, samples)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	return &AnalysisResult{
		SpeakerCount: result.NumSpeakers,
		Segments:     result.Segments,
		Quality:      ai.AnalyzeQuality(samples),
		Insufficient: result.Insufficient,
	}, nil
}

// GetContactInfo возвращает сводку по контакту
func (s *Service) GetContactInfo(contactID string) *ContactInfo {
	profiles := s.store.GetProfilesForContact(contactID)
	info := &ContactInfo{
		ContactID:    contactID,
		Enrolled:     len(profiles) > 0,
		SpeakerCount: len(profiles),
		Profiles:     make([]ProfileSummary, 0, len(profiles)),
	}
	for _, p := range profiles {
		info.Profiles = append(info.Profiles, ProfileSummary{
			ID:         p.ID,
			NumSamples: len(p.Embeddings),
			CreatedAt:  p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			SamplePath: p.SamplePath,
		})
	}
	return info
}

// RemoveContact удаляет контакт и его профили согласно политике хранилища
func (s *Service) RemoveContact(contactID string) (int, error) {
	if !s.store.HasContact(contactID) {
		return 0, NewInputError("contact %q not found", contactID)
	}
	return s.store.RemoveContact(contactID)
}

// prepare декодирует запись и применяет фильтры предобработки
func (s *Service) prepare(raw []byte) ([]float32, float64, error) {
	if len(raw) == 0 {
		return nil, 0, NewInputError("empty audio payload")
	}

	samples, duration, err := audio.Decode(raw)
	if err != nil {
		return nil, 0, NewInputError("failed to decode audio: %v", err)
	}

	if s.config.ApplyFilters {
		samples = audio.PrepareForEmbedding(samples, audio.TargetSampleRate)
	}
	return samples, duration, nil
}

// embedRecording извлекает один вектор по записи целиком
func (s *Service) embedRecording(ctx context.Context, samples []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embedding, err := s.embedder.Encode(samples)
	if err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("whole-recording embedding: %w", err)}
	}
	return embedding, nil
}

// bestContactScore возвращает лучший score по профилям контакта
// (включая значения ниже порога) и ID лучшего профиля
func (s *Service) bestContactScore(contactID string, embedding []float32) (float32, string) {
	profiles := s.store.GetProfilesForContact(contactID)
	if len(profiles) == 0 {
		return 0, ""
	}

	var bestScore float32
	var bestID string
	for i := range profiles {
		score := voiceprint.CosineSimilarity(embedding, profiles[i].Centroid)
		if i == 0 || score > bestScore {
			bestScore = score
			bestID = profiles[i].ID
		}
	}
	return bestScore, bestID
}

// tierFor возвращает статус спикера по score
func tierFor(score float32) string {
	switch {
	case score >= voiceprint.ThresholdMatch:
		return TierAuthorized
	case score >= voiceprint.ThresholdUnknown:
		return TierUncertain
	default:
		return TierUnknown
	}
}

// aggregateVerdict сводит статусы спикеров в вердикт по звонку
func aggregateVerdict(speakers []SpeakerResult) (status, risk string) {
	var authorized, unknown int
	for _, sr := range speakers {
		switch sr.Status {
		case TierAuthorized:
			authorized++
		case TierUnknown:
			unknown++
		}
	}

	switch {
	case authorized == len(speakers):
		return StatusFullyAuthorized, RiskLow
	case authorized > 0 && unknown == 0:
		return StatusPartiallyAuthorized, RiskMedium
	case authorized > 0:
		return StatusMixedAuthorization, RiskHigh
	default:
		return StatusUnauthorized, RiskCritical
	}
}
