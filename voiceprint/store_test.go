package voiceprint

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// makeEmbedding создаёт единичный вектор с пиком в позиции idx
func makeEmbedding(idx int) []float32 {
	v := make([]float32, EmbeddingDim)
	v[idx%EmbeddingDim] = 1.0
	return v
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), RemoveHard)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestAddSpeakerAndFindMatch(t *testing.T) {
	store := newTestStore(t)

	emb := makeEmbedding(0)
	profile, err := store.AddSpeaker("contact-1", [][]float32{emb})
	if err != nil {
		t.Fatalf("AddSpeaker failed: %v", err)
	}
	if profile.ID == "" {
		t.Error("expected generated speaker id")
	}

	match := store.FindMatch(emb, 0.7)
	if match == nil {
		t.Fatal("expected match for identical embedding")
	}
	if match.Profile.ID != profile.ID {
		t.Errorf("matched wrong profile: %s", match.Profile.ID)
	}
	if match.Similarity < 0.99 {
		t.Errorf("expected similarity ~1.0, got %f", match.Similarity)
	}
	if match.Confidence != "high" {
		t.Errorf("expected high confidence, got %s", match.Confidence)
	}
}

func TestFindMatchEmptyStore(t *testing.T) {
	store := newTestStore(t)

	if match := store.FindMatch(makeEmbedding(0), 0.5); match != nil {
		t.Errorf("expected nil match for empty store, got %+v", match)
	}
}

func TestFindMatchNeverBelowThreshold(t *testing.T) {
	store := newTestStore(t)

	// Ортогональные векторы: сходство 0
	if _, err := store.AddSpeaker("contact-1", [][]float32{makeEmbedding(0)}); err != nil {
		t.Fatal(err)
	}

	if match := store.FindMatch(makeEmbedding(1), 0.5); match != nil {
		t.Errorf("expected nil match below threshold, got similarity %f", match.Similarity)
	}
}

func TestCentroidRecomputeOnAppend(t *testing.T) {
	store := newTestStore(t)

	a := makeEmbedding(0)
	b := makeEmbedding(1)
	profile, err := store.AddSpeaker("contact-1", [][]float32{a})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.AppendEmbedding(profile.ID, b); err != nil {
		t.Fatalf("AppendEmbedding failed: %v", err)
	}

	profiles := store.GetProfilesForContact("contact-1")
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}

	// Центроид = mean(a, b), нормализованный
	want := Centroid([][]float32{a, b})
	got := profiles[0].Centroid
	for i := range want {
		if math.Abs(float64(want[i]-got[i])) > 1e-6 {
			t.Fatalf("centroid mismatch at %d: want %f, got %f", i, want[i], got[i])
		}
	}
}

func TestRemoveContactHard(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.AddSpeaker("contact-1", [][]float32{makeEmbedding(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.AddSpeaker("contact-2", [][]float32{makeEmbedding(5)}); err != nil {
		t.Fatal(err)
	}

	removed, err := store.RemoveContact("contact-1")
	if err != nil {
		t.Fatalf("RemoveContact failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed profiles, got %d", removed)
	}
	if store.HasContact("contact-1") {
		t.Error("contact index entry should be gone")
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 remaining profile, got %d", store.Count())
	}
}

func TestRemoveContactUnknown(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.RemoveContact("nobody"); err == nil {
		t.Error("expected error for unknown contact")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, RemoveHard)
	if err != nil {
		t.Fatal(err)
	}

	emb := makeEmbedding(0)
	if _, err := store.AddSpeaker("contact-1", [][]float32{emb}); err != nil {
		t.Fatal(err)
	}

	// Перезагружаем из файла
	reloaded, err := NewStore(dir, RemoveHard)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Count() != 1 {
		t.Fatalf("expected 1 profile after reload, got %d", reloaded.Count())
	}
	if match := reloaded.FindMatch(emb, 0.9); match == nil {
		t.Error("expected match after reload")
	}
}

func TestCorruptedStoreResetsToEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "speakers.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir, RemoveHard)
	if err != nil {
		t.Fatalf("corrupted store must not be fatal: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("expected empty store after corruption, got %d profiles", store.Count())
	}

	// Запись после сброса должна работать
	if _, err := store.AddSpeaker("contact-1", [][]float32{makeEmbedding(0)}); err != nil {
		t.Fatalf("AddSpeaker after reset failed: %v", err)
	}
}

func TestRemoveContactRollbackKeepsSharedAssociations(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, RemoveDetach)
	if err != nil {
		t.Fatal(err)
	}

	profile, err := store.AddSpeaker("contact-a", [][]float32{makeEmbedding(0)})
	if err != nil {
		t.Fatal(err)
	}

	// Профиль разделён между двумя контактами (как после загрузки базы,
	// где один голос привязан к нескольким контактам)
	store.data.Profiles[0].ContactIDs = append(store.data.Profiles[0].ContactIDs, "contact-b")
	store.data.Contacts["contact-b"] = []string{profile.ID}
	if err := store.saveUnsafe(); err != nil {
		t.Fatal(err)
	}

	// Директория на месте временного файла ломает запись
	if err := os.MkdirAll(filepath.Join(dir, "speakers.json.tmp"), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := store.RemoveContact("contact-a"); err == nil {
		t.Fatal("expected save failure")
	}

	// После неудачной записи состояние должно быть прежним целиком
	if !store.HasContact("contact-a") {
		t.Error("contact-a must survive a failed removal")
	}
	profiles := store.GetProfilesForContact("contact-b")
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile for contact-b, got %d", len(profiles))
	}
	got := profiles[0].ContactIDs
	if len(got) != 2 || got[0] != "contact-a" || got[1] != "contact-b" {
		t.Errorf("rollback must restore contact associations: got %v, want [contact-a contact-b]", got)
	}
}

func TestRemovalPolicyDetach(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, RemoveDetach)
	if err != nil {
		t.Fatal(err)
	}

	// Профиль принадлежит только одному контакту - при detach всё равно удаляется
	if _, err := store.AddSpeaker("contact-1", [][]float32{makeEmbedding(0)}); err != nil {
		t.Fatal(err)
	}
	removed, err := store.RemoveContact("contact-1")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if store.Count() != 0 {
		t.Errorf("expected empty store, got %d", store.Count())
	}
}
