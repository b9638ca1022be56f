package api

import (
	"prisonvoice/internal/service"
)

// Message сообщение канала live-мониторинга (WebSocket и gRPC stream)
type Message struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`

	// Запросы
	ContactID string `json:"contactId,omitempty"`

	// Ответы
	Verify     *service.VerifyResult     `json:"verify,omitempty"`
	Verdict    *service.CallVerdict      `json:"verdict,omitempty"`
	Enrollment *service.EnrollmentReport `json:"enrollment,omitempty"`
	Analysis   *service.AnalysisResult   `json:"analysis,omitempty"`
	Contact    *service.ContactInfo      `json:"contact,omitempty"`

	// Список контактов: contact_id -> количество профилей
	Contacts map[string]int `json:"contacts,omitempty"`

	RemovedProfiles int    `json:"removedProfiles,omitempty"`
	Error           string `json:"error,omitempty"`
}

// HealthResponse ответ GET /api/health
type HealthResponse struct {
	Status   string `json:"status"`
	Profiles int    `json:"profiles"`
	Contacts int    `json:"contacts"`
}

// RemoveResponse ответ DELETE /api/contacts/{id}
type RemoveResponse struct {
	ContactID       string `json:"contact_id"`
	RemovedProfiles int    `json:"removed_profiles"`
}

// ErrorResponse ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}
