package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"prisonvoice/internal/config"
	"prisonvoice/internal/service"

	"github.com/gorilla/websocket"
)

// Лимит на размер запроса с аудио (64 MB)
const maxRequestBytes = 64 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	Config *config.Config
	Voice  *service.Service

	clients map[*websocket.Conn]bool
	streams map[Control_StreamServer]bool
	mu      sync.Mutex
}

func NewServer(cfg *config.Config, voice *service.Service) *Server {
	return &Server{
		Config:  cfg,
		Voice:   voice,
		clients: make(map[*websocket.Conn]bool),
		streams: make(map[Control_StreamServer]bool),
	}
}

// Routes собирает HTTP маршруты сервера
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/voice/enroll", s.handleEnroll)
	mux.HandleFunc("/api/voice/verify", s.handleVerify)
	mux.HandleFunc("/api/voice/verify_advanced", s.handleVerifyAdvanced)
	mux.HandleFunc("/api/voice/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/contacts/", s.handleContacts)
	return mux
}

func (s *Server) Start() {
	go s.startGRPCServer()

	log.Printf("[API] Backend listening on :%s", s.Config.Port)
	if err := http.ListenAndServe(":"+s.Config.Port, s.Routes()); err != nil {
		log.Fatal("ListenAndServe:", err)
	}
}

// writeCORS заголовки для dev-режима (UI на другом порту)
func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if service.IsInputError(err) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	log.Printf("[API] Internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Profiles: s.Voice.Store().Count(),
		Contacts: len(s.Voice.Store().Contacts()),
	})
}

// handleEnroll POST multipart: contact_id + файлы "samples"
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid multipart form"})
		return
	}
	contactID := r.FormValue("contact_id")

	var samples [][]byte
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["samples"] {
			f, err := fh.Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable sample file"})
				return
			}
			raw, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable sample file"})
				return
			}
			samples = append(samples, raw)
		}
	}

	report, err := s.Voice.Enroll(r.Context(), contactID, samples)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.broadcast(Message{Type: "enrollment_completed", ContactID: contactID, Enrollment: report})
	writeJSON(w, http.StatusOK, report)
}

// handleVerify POST multipart: contact_id + файл "audio", сравнение 1:1
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contactID, raw, ok := s.readAudioForm(w, r)
	if !ok {
		return
	}

	result, err := s.Voice.Verify1to1(r.Context(), contactID, raw)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.broadcast(Message{Type: "verification_completed", ContactID: contactID, Verify: result})
	writeJSON(w, http.StatusOK, result)
}

// handleVerifyAdvanced POST multipart: contact_id + файл "audio",
// диаризация и вердикт по звонку
func (s *Server) handleVerifyAdvanced(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contactID, raw, ok := s.readAudioForm(w, r)
	if !ok {
		return
	}

	verdict, err := s.Voice.VerifyAdvanced(r.Context(), contactID, raw)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.broadcast(Message{Type: "call_verdict", ContactID: contactID, Verdict: verdict})
	writeJSON(w, http.StatusOK, verdict)
}

// handleAnalyze POST multipart: файл "audio", разбор без верификации
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, raw, ok := s.readAudioForm(w, r)
	if !ok {
		return
	}

	result, err := s.Voice.Analyze(r.Context(), raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleContacts GET/DELETE /api/contacts/{id}
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	contactID := strings.TrimPrefix(r.URL.Path, "/api/contacts/")
	if contactID == "" {
		writeJSON(w, http.StatusOK, s.Voice.Store().Contacts())
		return
	}

	switch r.Method {
	case http.MethodGet:
		info := s.Voice.GetContactInfo(contactID)
		if !info.Enrolled {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "contact not found"})
			return
		}
		writeJSON(w, http.StatusOK, info)

	case http.MethodDelete:
		removed, err := s.Voice.RemoveContact(contactID)
		if err != nil {
			if service.IsInputError(err) {
				writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
				return
			}
			s.writeError(w, err)
			return
		}
		s.broadcast(Message{Type: "contact_removed", ContactID: contactID, RemovedProfiles: removed})
		writeJSON(w, http.StatusOK, RemoveResponse{ContactID: contactID, RemovedProfiles: removed})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// readAudioForm извлекает contact_id и файл "audio" из multipart формы
func (s *Server) readAudioForm(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid multipart form"})
		return "", nil, false
	}

	f, _, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "audio file is required"})
		return "", nil, false
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable audio file"})
		return "", nil, false
	}

	return r.FormValue("contact_id"), raw, true
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[API] Upgrade:", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		reply := s.processMessage(msg)
		s.mu.Lock()
		err := conn.WriteJSON(reply)
		s.mu.Unlock()
		if err != nil {
			break
		}
	}
}

// processMessage обрабатывает управляющие сообщения WS/gRPC каналов
func (s *Server) processMessage(msg Message) Message {
	switch msg.Type {
	case "get_contacts":
		return Message{Type: "contacts_list", Contacts: s.Voice.Store().Contacts()}

	case "get_contact":
		if msg.ContactID == "" {
			return Message{Type: "error", Error: "contactId is required"}
		}
		return Message{Type: "contact_info", Contact: s.Voice.GetContactInfo(msg.ContactID)}

	case "remove_contact":
		if msg.ContactID == "" {
			return Message{Type: "error", Error: "contactId is required"}
		}
		removed, err := s.Voice.RemoveContact(msg.ContactID)
		if err != nil {
			return Message{Type: "error", Error: err.Error()}
		}
		s.broadcast(Message{Type: "contact_removed", ContactID: msg.ContactID, RemovedProfiles: removed})
		return Message{Type: "contact_removed", ContactID: msg.ContactID, RemovedProfiles: removed}

	default:
		return Message{Type: "error", Error: "unknown message type: " + msg.Type}
	}
}

// broadcast рассылает событие всем WS клиентам и gRPC стримам
func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[API] WS write error: %v", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
	for stream := range s.streams {
		if err := stream.Send(&msg); err != nil {
			delete(s.streams, stream)
		}
	}
}
