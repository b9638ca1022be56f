package voiceprint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store хранилище голосовых профилей
// Все записи сериализуются через mu; файл переписывается целиком
// на каждую успешную запись (атомарно, через tmp + rename)
type Store struct {
	path   string
	data   profileDB
	policy RemovalPolicy
	mu     sync.RWMutex
}

// NewStore создаёт хранилище профилей
// dataDir - директория с данными приложения, speakers.json создаётся внутри неё
func NewStore(dataDir string, policy RemovalPolicy) (*Store, error) {
	path := filepath.Join(dataDir, "speakers.json")

	store := &Store{
		path:   path,
		policy: policy,
		data:   emptyDB(),
	}

	if err := store.load(); err != nil {
		if os.IsNotExist(err) {
			// Первый запуск - пустая база
		} else {
			// Повреждённый файл не должен ронять процесс:
			// сбрасываемся на пустую базу и предупреждаем
			log.Printf("[VoicePrint] WARNING: store unreadable (%v), resetting to empty", err)
			store.data = emptyDB()
		}
	}

	log.Printf("[VoicePrint] Store initialized: %s (%d profiles, %d contacts)",
		path, len(store.data.Profiles), len(store.data.Contacts))
	return store, nil
}

func emptyDB() profileDB {
	return profileDB{
		Version:  CurrentVersion,
		Contacts: make(map[string][]string),
	}
}

// load загружает данные из файла
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var db profileDB
	if err := json.Unmarshal(data, &db); err != nil {
		return fmt.Errorf("failed to parse speakers.json: %w", err)
	}

	// Проверка версии - неизвестный формат считаем повреждением
	if db.Version < 1 || db.Version > CurrentVersion {
		return fmt.Errorf("unsupported store version %d (expected <= %d)", db.Version, CurrentVersion)
	}

	if db.Contacts == nil {
		db.Contacts = make(map[string][]string)
	}

	// Висячие ссылки из индекса - признак частичной записи; чистим и предупреждаем
	known := make(map[string]bool, len(db.Profiles))
	for i := range db.Profiles {
		known[db.Profiles[i].ID] = true
	}
	for contactID, ids := range db.Contacts {
		valid := ids[:0]
		for _, id := range ids {
			if known[id] {
				valid = append(valid, id)
			} else {
				log.Printf("[VoicePrint] WARNING: dropping dangling speaker ref %s for contact %s", id, contactID)
			}
		}
		if len(valid) == 0 {
			delete(db.Contacts, contactID)
		} else {
			db.Contacts[contactID] = valid
		}
	}

	s.data = db
	return nil
}

// saveUnsafe сохраняет без блокировки (вызывать только при удержании mu)
func (s *Store) saveUnsafe() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal speakers: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Атомарная запись через временный файл
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) // Cleanup
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// AddSpeaker создаёт новый профиль для контакта
// Профиль создаётся безусловно (без слияния с существующими профилями контакта),
// центроид вычисляется из переданных embeddings
func (s *Store) AddSpeaker(contactID string, embeddings [][]float32) (*SpeakerProfile, error) {
	if contactID == "" {
		return nil, fmt.Errorf("contact id is empty")
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings provided")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	profile := SpeakerProfile{
		ID:         uuid.New().String(),
		Embeddings: copyEmbeddings(embeddings),
		Centroid:   Centroid(embeddings),
		ContactIDs: []string{contactID},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.data.Profiles = append(s.data.Profiles, profile)
	s.data.Contacts[contactID] = append(s.data.Contacts[contactID], profile.ID)

	if err := s.saveUnsafe(); err != nil {
		// Откатываем изменения, запись должна быть все-или-ничего
		s.data.Profiles = s.data.Profiles[:len(s.data.Profiles)-1]
		ids := s.data.Contacts[contactID]
		if len(ids) <= 1 {
			delete(s.data.Contacts, contactID)
		} else {
			s.data.Contacts[contactID] = ids[:len(ids)-1]
		}
		return nil, err
	}

	log.Printf("[VoicePrint] Added speaker %s for contact %s (%d embeddings)",
		profile.ID[:8], contactID, len(embeddings))
	result := profile
	return &result, nil
}

// AppendEmbedding добавляет embedding к профилю и пересчитывает центроид
func (s *Store) AppendEmbedding(speakerID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Profiles {
		if s.data.Profiles[i].ID != speakerID {
			continue
		}
		p := &s.data.Profiles[i]

		emb := make([]float32, len(embedding))
		copy(emb, embedding)
		p.Embeddings = append(p.Embeddings, emb)
		p.Centroid = Centroid(p.Embeddings)
		p.UpdatedAt = time.Now()

		if err := s.saveUnsafe(); err != nil {
			p.Embeddings = p.Embeddings[:len(p.Embeddings)-1]
			p.Centroid = Centroid(p.Embeddings)
			return err
		}
		return nil
	}

	return fmt.Errorf("speaker not found: %s", speakerID)
}

// FindMatch ищет профиль с наибольшим сходством центроида, не ниже threshold
// Возвращает nil если совпадений нет или база пуста
// При равных score побеждает ранее добавленный профиль (стабильный порядок слайса)
func (s *Store) FindMatch(embedding []float32, threshold float32) *MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return bestMatch(s.data.Profiles, embedding, threshold)
}

// FindMatchForContact как FindMatch, но только среди профилей контакта
func (s *Store) FindMatchForContact(contactID string, embedding []float32, threshold float32) *MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return bestMatch(s.profilesForContactUnsafe(contactID), embedding, threshold)
}

func bestMatch(profiles []SpeakerProfile, embedding []float32, threshold float32) *MatchResult {
	var best *MatchResult
	bestSim := float32(-1)

	for i := range profiles {
		sim := CosineSimilarity(embedding, profiles[i].Centroid)
		if sim < threshold || sim <= bestSim {
			continue
		}
		bestSim = sim
		// Копируем чтобы не отдавать указатель внутрь хранилища
		p := profiles[i]
		best = &MatchResult{
			Profile:    &p,
			Similarity: sim,
			Confidence: GetConfidence(sim),
		}
	}

	return best
}

// GetProfilesForContact возвращает копии профилей контакта в порядке создания
func (s *Store) GetProfilesForContact(contactID string) []SpeakerProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.profilesForContactUnsafe(contactID)
}

func (s *Store) profilesForContactUnsafe(contactID string) []SpeakerProfile {
	ids := s.data.Contacts[contactID]
	if len(ids) == 0 {
		return nil
	}
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}

	var result []SpeakerProfile
	for i := range s.data.Profiles {
		if member[s.data.Profiles[i].ID] {
			result = append(result, s.data.Profiles[i])
		}
	}
	return result
}

// HasContact проверяет есть ли у контакта хотя бы один профиль
func (s *Store) HasContact(contactID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Contacts[contactID]) > 0
}

// RemoveContact удаляет запись контакта из индекса и его профили
// Поведение для профилей, разделённых между контактами, задаётся RemovalPolicy
// Возвращает количество удалённых профилей
func (s *Store) RemoveContact(contactID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.data.Contacts[contactID]
	if !ok {
		return 0, fmt.Errorf("contact not found: %s", contactID)
	}

	toRemove := make(map[string]bool, len(ids))
	for _, id := range ids {
		toRemove[id] = true
	}

	// Снимок для отката
	prevProfiles := copyProfiles(s.data.Profiles)
	prevContacts := copyContacts(s.data.Contacts)

	removed := 0
	kept := s.data.Profiles[:0]
	for i := range s.data.Profiles {
		p := s.data.Profiles[i]
		if !toRemove[p.ID] {
			kept = append(kept, p)
			continue
		}

		if s.policy == RemoveDetach {
			p.ContactIDs = removeString(p.ContactIDs, contactID)
			if len(p.ContactIDs) > 0 {
				// Профиль разделён с другим контактом - оставляем
				p.UpdatedAt = time.Now()
				kept = append(kept, p)
				continue
			}
		}
		removed++
	}
	s.data.Profiles = kept
	delete(s.data.Contacts, contactID)

	if err := s.saveUnsafe(); err != nil {
		s.data.Profiles = prevProfiles
		s.data.Contacts = prevContacts
		return 0, err
	}

	log.Printf("[VoicePrint] Removed contact %s (%d profiles deleted)", contactID, removed)
	return removed, nil
}

// SetSamplePath привязывает путь к аудио-сэмплу профиля
func (s *Store) SetSamplePath(speakerID, samplePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Profiles {
		if s.data.Profiles[i].ID == speakerID {
			s.data.Profiles[i].SamplePath = samplePath
			s.data.Profiles[i].UpdatedAt = time.Now()
			return s.saveUnsafe()
		}
	}

	return fmt.Errorf("speaker not found: %s", speakerID)
}

// Count возвращает количество сохранённых профилей
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Profiles)
}

// Contacts возвращает список contact_id с количеством профилей
func (s *Store) Contacts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(s.data.Contacts))
	for id, ids := range s.data.Contacts {
		result[id] = len(ids)
	}
	return result
}

// SamplesDir возвращает директорию для хранения аудио-сэмплов профилей
func (s *Store) SamplesDir() string {
	return filepath.Join(filepath.Dir(s.path), "samples")
}

func copyEmbeddings(embeddings [][]float32) [][]float32 {
	result := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		result[i] = make([]float32, len(e))
		copy(result[i], e)
	}
	return result
}

func copyProfiles(profiles []SpeakerProfile) []SpeakerProfile {
	result := make([]SpeakerProfile, len(profiles))
	copy(result, profiles)
	for i := range result {
		ids := make([]string, len(result[i].ContactIDs))
		copy(ids, result[i].ContactIDs)
		result[i].ContactIDs = ids
	}
	return result
}

func copyContacts(contacts map[string][]string) map[string][]string {
	result := make(map[string][]string, len(contacts))
	for k, v := range contacts {
		ids := make([]string, len(v))
		copy(ids, v)
		result[k] = ids
	}
	return result
}

// removeString возвращает новый slice без value; исходный не трогает,
// чтобы снимок для отката оставался пригодным
func removeString(list []string, value string) []string {
	result := make([]string, 0, len(list))
	for _, v := range list {
		if v != value {
			result = append(result, v)
		}
	}
	return result
}
