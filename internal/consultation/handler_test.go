package consultation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-voice-agent/internal/dialogue"
)

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		RegisterRoutes(r, NewHandler(f.svc))
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createVia(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/consultation", CreateConsultationRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateConsultationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Response)
	return resp.ConsultationID
}

func audioRequest(t *testing.T, path, consultationID string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("consultation_id", consultationID))
	part, err := w.CreateFormFile("audio", "audio.wav")
	require.NoError(t, err)
	_, _ = part.Write([]byte("RIFF"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandlerChat(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	id := createVia(t, h)

	rec := do(t, h, http.MethodPost, "/api/consultation/chat", ChatRequest{ConsultationID: id, Text: "Boli mnie głowa i mam gorączkę"})
	require.Equal(t, http.StatusOK, rec.Code)

	var reply Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.False(t, reply.Done)
	assert.Equal(t, dialogue.StateClarifying, reply.State)
	assert.True(t, strings.HasSuffix(reply.Text, "wymioty?"))

	rec = do(t, h, http.MethodGet, "/api/consultation/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c Consultation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.Equal(t, "vomiting", c.Session.Pending)
	assert.Len(t, c.History, 3)
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad chat id", http.MethodPost, "/api/consultation/chat", ChatRequest{ConsultationID: "nope", Text: "tak"}, http.StatusBadRequest},
		{"unknown chat", http.MethodPost, "/api/consultation/chat", ChatRequest{ConsultationID: uuid.NewString(), Text: "tak"}, http.StatusNotFound},
		{"unknown consultation", http.MethodGet, "/api/consultation/" + uuid.NewString(), nil, http.StatusNotFound},
		{"bad path id", http.MethodGet, "/api/consultation/xyz", nil, http.StatusBadRequest},
		{"unknown reset", http.MethodPost, "/api/consultation/" + uuid.NewString() + "/reset", nil, http.StatusNotFound},
		{"empty tts", http.MethodPost, "/api/tts", TTSRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerBusyConsultation(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Locker = failingLocker{} })
	h := newRouter(f)

	rec := do(t, h, http.MethodPost, "/api/consultation/chat", ChatRequest{ConsultationID: uuid.NewString(), Text: "tak"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestHandlerReset(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	id := createVia(t, h)
	do(t, h, http.MethodPost, "/api/consultation/chat", ChatRequest{ConsultationID: id, Text: "boli mnie głowa"})

	rec := do(t, h, http.MethodPost, "/api/consultation/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reply Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Equal(t, f.catalog.Messages.Reset[0], reply.Text)
	assert.Equal(t, dialogue.StateAwaitingMonolog, reply.State)
}

func TestHandlerReport(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	id := createVia(t, h)

	rec := do(t, h, http.MethodGet, "/api/consultation/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestHandlerTTS(t *testing.T) {
	h := newRouter(newFixture(t))
	rec := do(t, h, http.MethodPost, "/api/tts", TTSRequest{Text: "Cześć"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "audio:Cześć", rec.Body.String())

	h = newRouter(newFixture(t, func(d *Deps) { d.TTS = nil }))
	rec = do(t, h, http.MethodPost, "/api/tts", TTSRequest{Text: "Cześć"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerAudioUpload(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	id := createVia(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, audioRequest(t, "/api/consultation/audio", id))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AudioResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "boli mnie głowa", resp.Text)
	assert.True(t, strings.HasPrefix(resp.Response, "Rozumiem. Czyli twoje objawy to: Ból głowy."))
	assert.NotEmpty(t, resp.AudioBase64)
	assert.Equal(t, string(dialogue.StateClarifying), resp.State)
}

func TestHandlerAudioUploadSilence(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.STT = stubSTT{} })
	h := newRouter(f)
	id := createVia(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, audioRequest(t, "/api/consultation/audio", id))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AudioResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, AudioResponse{}, resp)
}

func TestHandlerAudioStream(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	id := createVia(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, audioRequest(t, "/api/consultation/audio/stream", id))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var types []string
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventUserText, EventResponse, EventAudio, EventDone}, types)
}

func TestHandlerAudioMissingID(t *testing.T) {
	h := newRouter(newFixture(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, audioRequest(t, "/api/consultation/audio", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
