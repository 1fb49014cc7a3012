package consultation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medical-voice-agent/internal/platform/lock"
)

const maxUploadSize = 10 << 20

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type ChatRequest struct {
	ConsultationID string `json:"consultation_id"`
	Text           string `json:"text"`
}

type CreateConsultationRequest struct {
	PatientID string `json:"patient_id"`
}

type CreateConsultationResponse struct {
	ConsultationID string `json:"consultation_id"`
	Response       string `json:"response"`
}

type AudioResponse struct {
	Text        string `json:"text"`
	Response    string `json:"response"`
	Done        bool   `json:"done"`
	State       string `json:"state,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	var req CreateConsultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	pid, err := uuid.Parse(req.PatientID)
	if err != nil {
		// Anonymous patients get a fresh ID
		pid = uuid.New()
	}

	c, greeting, err := h.svc.CreateConsultation(r.Context(), pid)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateConsultationResponse{
		ConsultationID: c.ID.String(),
		Response:       greeting,
	})
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetConsultation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(req.ConsultationID)
	if err != nil {
		http.Error(w, "Invalid consultation ID", http.StatusBadRequest)
		return
	}

	reply, err := h.svc.ProcessUserText(r.Context(), id, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reply, err := h.svc.Reset(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pdf, err := h.svc.Report(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=report_%s.pdf", id))
	_, _ = w.Write(pdf)
}

type TTSRequest struct {
	Text string `json:"text"`
}

func (h *Handler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	var req TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	audioData, err := h.svc.SynthesizeSpeech(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(audioData)
}

// readAudioUpload parses the multipart form shared by both audio endpoints.
func readAudioUpload(w http.ResponseWriter, r *http.Request) (uuid.UUID, []byte, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return uuid.Nil, nil, false
	}

	consultationIDStr := r.FormValue("consultation_id")
	if consultationIDStr == "" {
		http.Error(w, "Missing consultation_id", http.StatusBadRequest)
		return uuid.Nil, nil, false
	}
	id, err := uuid.Parse(consultationIDStr)
	if err != nil {
		http.Error(w, "Invalid consultation ID", http.StatusBadRequest)
		return uuid.Nil, nil, false
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error retrieving audio file", http.StatusBadRequest)
		return uuid.Nil, nil, false
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		http.Error(w, "Failed to read audio file", http.StatusInternalServerError)
		return uuid.Nil, nil, false
	}
	return id, buf.Bytes(), true
}

func (h *Handler) HandleAudioUpload(w http.ResponseWriter, r *http.Request) {
	id, audio, ok := readAudioUpload(w, r)
	if !ok {
		return
	}

	// 1. Transcribe
	text, err := h.svc.TranscribeAudio(r.Context(), audio)
	if err != nil {
		h.fail(w, r, fmt.Errorf("transcription failed: %w", err))
		return
	}
	if text == "" {
		// Silence or no speech detected
		writeJSON(w, http.StatusOK, AudioResponse{})
		return
	}

	// 2. Process as if it was text input
	reply, err := h.svc.ProcessUserText(r.Context(), id, text)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// 3. Synthesize right away to save a roundtrip
	resp := AudioResponse{Text: text, Response: reply.Text, Done: reply.Done, State: string(reply.State)}
	if audioData, err := h.svc.SynthesizeSpeech(r.Context(), reply.Text); err == nil {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(audioData)
	} else {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("speech synthesis failed")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleAudioUploadStream(w http.ResponseWriter, r *http.Request) {
	id, audio, ok := readAudioUpload(w, r)
	if !ok {
		return
	}

	// 1. Transcribe (blocking)
	text, err := h.svc.TranscribeAudio(r.Context(), audio)
	if err != nil {
		h.fail(w, r, fmt.Errorf("transcription failed: %w", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent(w, flusher, StreamEvent{Type: EventUserText, Data: text})
	if text == "" {
		return
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		if err := h.svc.ProcessUserTextStream(r.Context(), id, text, events); err != nil {
			select {
			case events <- StreamEvent{Type: EventError, Data: err.Error()}:
			case <-r.Context().Done():
			}
		}
	}()

	for event := range events {
		writeEvent(w, flusher, event)
	}
}

func writeEvent(w io.Writer, flusher http.Flusher, event StreamEvent) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid consultation ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Consultation not found", http.StatusNotFound)
	case errors.Is(err, lock.ErrLocked), errors.Is(err, lock.ErrLost):
		http.Error(w, "Consultation is busy, try again", http.StatusConflict)
	case errors.Is(err, ErrSpeechUnavailable), errors.Is(err, ErrReportUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		http.Error(w, "Processing failed: "+err.Error(), http.StatusInternalServerError)
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/consultation", h.CreateConsultation)
	r.Get("/consultation/{id}", h.GetConsultation)
	r.Post("/consultation/{id}/reset", h.HandleReset)
	r.Get("/consultation/{id}/report", h.HandleReport)
	r.Post("/consultation/chat", h.HandleChat)
	r.Post("/consultation/audio", h.HandleAudioUpload)
	r.Post("/consultation/audio/stream", h.HandleAudioUploadStream)
	r.Post("/tts", h.HandleTTS)
}
