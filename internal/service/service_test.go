package service

import (
	"context"
	"math"
	"testing"
	"time"

	"prisonvoice/ai"
	"prisonvoice/audio"
	"prisonvoice/voiceprint"
)

// fakeEmbedder различает два голоса по среднему уровню сэмплов
type fakeEmbedder struct{}

func (fakeEmbedder) Encode(samples []float32) ([]float32, error) {
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := sum / float64(len(samples))
	v := make([]float32, 8)
	if mean < 0.5 {
		v[0] = 1
	} else {
		v[1] = 1
	}
	return v, nil
}

func (fakeEmbedder) Dim() int { return 8 }

// voiceA и voiceB - WAV записи двух различимых "голосов"
func voiceWAV(seconds, level float64) []byte {
	samples := make([]float32, int(seconds*audio.TargetSampleRate))
	for i := range samples {
		samples[i] = float32(level)
	}
	return audio.EncodeWAV(samples, audio.TargetSampleRate)
}

// twoVoiceWAV - запись с двумя голосами по половинам
func twoVoiceWAV(seconds float64) []byte {
	samples := make([]float32, int(seconds*audio.TargetSampleRate))
	for i := range samples {
		if i < len(samples)/2 {
			samples[i] = 0.2
		} else {
			samples[i] = 0.8
		}
	}
	return audio.EncodeWAV(samples, audio.TargetSampleRate)
}

func embA() []float32 { return []float32{1, 0, 0, 0, 0, 0, 0, 0} }
func embB() []float32 { return []float32{0, 1, 0, 0, 0, 0, 0, 0} }

func newTestService(t *testing.T, minSamples int) *Service {
	t.Helper()
	store, err := voiceprint.NewStore(t.TempDir(), voiceprint.RemoveHard)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	config := Config{
		MinSamples:         minSamples,
		MaxSamples:         10,
		MinSpeakerDuration: 1.0,
		RequestTimeout:     30 * time.Second,
		ApplyFilters:       false,
	}
	return New(store, fakeEmbedder{}, ai.DefaultDiarizerConfig(), config)
}

func TestVerify1to1Authorized(t *testing.T) {
	s := newTestService(t, 1)
	if _, err := s.Store().AddSpeaker("alice", [][]float32{embA()}); err != nil {
		t.Fatalf("AddSpeaker failed: %v", err)
	}

	result, err := s.Verify1to1(context.Background(), "alice", voiceWAV(3, 0.2))
	if err != nil {
		t.Fatalf("Verify1to1 failed: %v", err)
	}
	if !result.Authorized {
		t.Errorf("expected authorized, got %+v", result)
	}
	if result.Score < 0.99 {
		t.Errorf("expected score ~1.0 for same voice, got %f", result.Score)
	}
	if result.Confidence != "high" {
		t.Errorf("expected high confidence, got %q", result.Confidence)
	}
}

func TestVerify1to1EmptyStore(t *testing.T) {
	s := newTestService(t, 1)

	result, err := s.Verify1to1(context.Background(), "nobody", voiceWAV(3, 0.2))
	if err != nil {
		t.Fatalf("Verify1to1 failed: %v", err)
	}
	if result.Authorized {
		t.Error("unknown contact must not be authorized")
	}
	if result.Score != 0 {
		t.Errorf("expected score 0 for unknown contact, got %f", result.Score)
	}
}

func TestVerify1to1WrongVoice(t *testing.T) {
	s := newTestService(t, 1)
	if _, err := s.Store().AddSpeaker("alice", [][]float32{embA()}); err != nil {
		t.Fatalf("AddSpeaker failed: %v", err)
	}

	result, err := s.Verify1to1(context.Background(), "alice", voiceWAV(3, 0.8))
	if err != nil {
		t.Fatalf("Verify1to1 failed: %v", err)
	}
	if result.Authorized {
		t.Error("different voice must not be authorized")
	}
}

func TestVerify1to1EmptyContactID(t *testing.T) {
	s := newTestService(t, 1)
	if _, err := s.Verify1to1(context.Background(), "", voiceWAV(3, 0.2)); !IsInputError(err) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestVerifyAdvancedFullyAuthorized(t *testing.T) {
	s := newTestService(t, 1)
	s.Store().AddSpeaker("alice", [][]float32{embA()})
	s.Store().AddSpeaker("alice", [][]float32{embB()})

	verdict, err := s.VerifyAdvanced(context.Background(), "alice", twoVoiceWAV(10))
	if err != nil {
		t.Fatalf("VerifyAdvanced failed: %v", err)
	}
	if verdict.NumSpeakers != 2 {
		t.Fatalf("expected 2 speakers, got %d", verdict.NumSpeakers)
	}
	if verdict.Status != StatusFullyAuthorized {
		t.Errorf("expected %s, got %s", StatusFullyAuthorized, verdict.Status)
	}
	if verdict.Risk != RiskLow {
		t.Errorf("expected risk %s, got %s", RiskLow, verdict.Risk)
	}
	if !verdict.Authorized {
		t.Error("fully authorized call must set authorized")
	}
	if verdict.OverallConfidence < 0.99 {
		t.Errorf("expected overall confidence ~1.0, got %f", verdict.OverallConfidence)
	}
	if len(verdict.Segments) != 2 {
		t.Errorf("expected 2 segments, got %d", len(verdict.Segments))
	}
}

func TestVerifyAdvancedMixedAuthorization(t *testing.T) {
	s := newTestService(t, 1)
	s.Store().AddSpeaker("alice", [][]float32{embA()})

	verdict, err := s.VerifyAdvanced(context.Background(), "alice", twoVoiceWAV(10))
	if err != nil {
		t.Fatalf("VerifyAdvanced failed: %v", err)
	}
	if verdict.Status != StatusMixedAuthorization {
		t.Errorf("expected %s, got %s", StatusMixedAuthorization, verdict.Status)
	}
	if verdict.Risk != RiskHigh {
		t.Errorf("expected risk %s, got %s", RiskHigh, verdict.Risk)
	}
	if verdict.Authorized {
		t.Error("mixed call must not be authorized")
	}

	var authorized, unknown int
	for _, sr := range verdict.Speakers {
		switch sr.Status {
		case TierAuthorized:
			authorized++
		case TierUnknown:
			unknown++
		}
	}
	if authorized != 1 || unknown != 1 {
		t.Errorf("expected 1 authorized + 1 unknown speaker, got %d/%d", authorized, unknown)
	}
}

func TestVerifyAdvancedUnauthorized(t *testing.T) {
	s := newTestService(t, 1)

	verdict, err := s.VerifyAdvanced(context.Background(), "bob", twoVoiceWAV(10))
	if err != nil {
		t.Fatalf("VerifyAdvanced failed: %v", err)
	}
	if verdict.Status != StatusUnauthorized {
		t.Errorf("expected %s, got %s", StatusUnauthorized, verdict.Status)
	}
	if verdict.Risk != RiskCritical {
		t.Errorf("expected risk %s, got %s", RiskCritical, verdict.Risk)
	}
	if verdict.Authorized {
		t.Error("unauthorized call must not be authorized")
	}
}

func TestVerifyAdvancedShortRecordingFallback(t *testing.T) {
	s := newTestService(t, 1)
	s.Store().AddSpeaker("alice", [][]float32{embA()})

	// 0.8s: единственный спикер короче минимума, вердикт по записи целиком
	verdict, err := s.VerifyAdvanced(context.Background(), "alice", voiceWAV(0.8, 0.2))
	if err != nil {
		t.Fatalf("VerifyAdvanced failed: %v", err)
	}
	if !verdict.Fallback {
		t.Error("expected whole-recording fallback")
	}
	if verdict.Status != StatusFullyAuthorized {
		t.Errorf("expected %s via fallback, got %s", StatusFullyAuthorized, verdict.Status)
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestService(t, 1)

	result, err := s.Analyze(context.Background(), twoVoiceWAV(10))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.SpeakerCount != 2 {
		t.Errorf("expected 2 speakers, got %d", result.SpeakerCount)
	}
	if len(result.Segments) != 2 {
		t.Errorf("expected 2 segments, got %d", len(result.Segments))
	}
	if math.Abs(result.Quality.Duration-10.0) > 0.01 {
		t.Errorf("expected duration ~10s, got %f", result.Quality.Duration)
	}
}

func TestAnalyzeBadPayload(t *testing.T) {
	s := newTestService(t, 1)
	if _, err := s.Analyze(context.Background(), []byte("not audio at all")); !IsInputError(err) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestEnrollSingleVoice(t *testing.T) {
	s := newTestService(t, 3)

	samples := [][]byte{voiceWAV(3, 0.2), voiceWAV(3, 0.2), voiceWAV(3, 0.2)}
	report, err := s.Enroll(context.Background(), "alice", samples)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if report.SamplesUsed != 3 || report.SamplesFailed != 0 {
		t.Errorf("expected 3 used / 0 failed, got %d/%d", report.SamplesUsed, report.SamplesFailed)
	}
	if len(report.SpeakerIDs) != 1 {
		t.Fatalf("same voice across samples must fuse into 1 profile, got %d", len(report.SpeakerIDs))
	}
	if !s.Store().HasContact("alice") {
		t.Error("contact must exist after enrollment")
	}
}

func TestEnrollForeignVoiceSeparateProfile(t *testing.T) {
	s := newTestService(t, 3)

	// Два сэмпла одного голоса и один постороннего
	samples := [][]byte{voiceWAV(3, 0.2), voiceWAV(3, 0.2), voiceWAV(3, 0.8)}
	report, err := s.Enroll(context.Background(), "alice", samples)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if len(report.SpeakerIDs) != 2 {
		t.Fatalf("foreign voice must become separate profile, got %d profiles", len(report.SpeakerIDs))
	}
}

func TestEnrollOrderInvariant(t *testing.T) {
	// Порядок сэмплов не влияет на итоговый набор профилей
	samples := [][]byte{voiceWAV(3, 0.2), voiceWAV(3, 0.2), voiceWAV(3, 0.8)}
	reversed := [][]byte{voiceWAV(3, 0.8), voiceWAV(3, 0.2), voiceWAV(3, 0.2)}

	s1 := newTestService(t, 3)
	r1, err := s1.Enroll(context.Background(), "alice", samples)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	s2 := newTestService(t, 3)
	r2, err := s2.Enroll(context.Background(), "alice", reversed)
	if err != nil {
		t.Fatalf("Enroll (reversed) failed: %v", err)
	}
	if len(r1.SpeakerIDs) != len(r2.SpeakerIDs) {
		t.Errorf("profile count must not depend on sample order: %d vs %d",
			len(r1.SpeakerIDs), len(r2.SpeakerIDs))
	}
	if got, want := s1.Store().Contacts()["alice"], s2.Store().Contacts()["alice"]; got != want {
		t.Errorf("stored profile count differs: %d vs %d", got, want)
	}
}

func TestEnrollTooFewSamples(t *testing.T) {
	s := newTestService(t, 3)
	if _, err := s.Enroll(context.Background(), "alice", [][]byte{voiceWAV(3, 0.2)}); !IsInputError(err) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestEnrollBadSampleAbsorbed(t *testing.T) {
	s := newTestService(t, 3)

	samples := [][]byte{voiceWAV(3, 0.2), []byte("garbage"), voiceWAV(3, 0.2), voiceWAV(3, 0.2)}
	report, err := s.Enroll(context.Background(), "alice", samples)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if report.SamplesFailed != 1 {
		t.Errorf("expected 1 failed sample, got %d", report.SamplesFailed)
	}
	if report.SamplesUsed != 3 {
		t.Errorf("expected 3 used samples, got %d", report.SamplesUsed)
	}
	if len(report.SpeakerIDs) != 1 {
		t.Errorf("expected 1 profile, got %d", len(report.SpeakerIDs))
	}

	// Отчёт фиксирует ошибку по конкретному сэмплу
	if report.Samples[1].Error == "" {
		t.Error("failed sample must carry error in report")
	}
}

func TestEnrollAllSamplesFailed(t *testing.T) {
	s := newTestService(t, 1)
	if _, err := s.Enroll(context.Background(), "alice", [][]byte{[]byte("junk")}); err == nil {
		t.Fatal("expected error when all samples fail")
	}
}

func TestRemoveContact(t *testing.T) {
	s := newTestService(t, 1)
	s.Store().AddSpeaker("alice", [][]float32{embA()})

	removed, err := s.RemoveContact("alice")
	if err != nil {
		t.Fatalf("RemoveContact failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 profile removed, got %d", removed)
	}
	if s.Store().HasContact("alice") {
		t.Error("contact must be gone")
	}

	if _, err := s.RemoveContact("alice"); !IsInputError(err) {
		t.Errorf("expected input error for repeated removal, got %v", err)
	}
}

func TestGetContactInfo(t *testing.T) {
	s := newTestService(t, 1)
	s.Store().AddSpeaker("alice", [][]float32{embA(), embB()})

	info := s.GetContactInfo("alice")
	if !info.Enrolled {
		t.Error("expected enrolled contact")
	}
	if len(info.Profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(info.Profiles))
	}
	if info.SpeakerCount != 1 {
		t.Errorf("expected speaker count 1, got %d", info.SpeakerCount)
	}
	if info.Profiles[0].NumSamples != 2 {
		t.Errorf("expected 2 samples in profile, got %d", info.Profiles[0].NumSamples)
	}

	empty := s.GetContactInfo("nobody")
	if empty.Enrolled {
		t.Error("unknown contact must not be enrolled")
	}
	if empty.SpeakerCount != 0 {
		t.Errorf("expected speaker count 0 for unknown contact, got %d", empty.SpeakerCount)
	}
}
