package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/MrWong99/hallvoice/internal/gateway"
)

// Response headers describing which candidate satisfied a synthesis request.
const (
	HeaderVoiceID       = "X-Voice-Id"
	HeaderModelID       = "X-Model-Id"
	HeaderVoiceFallback = "X-Voice-Fallback"
	HeaderAttempts      = "X-Attempts"
)

// ttsRequest is the /voice/tts body.
type ttsRequest struct {
	Text          string                    `json:"text"`
	Mode          string                    `json:"mode"`
	ModelID       string                    `json:"modelId"`
	Language      string                    `json:"language"`
	VoiceSettings *gateway.SettingsOverride `json:"voice_settings"`
	OutputFormat  string                    `json:"output_format"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	res, err := s.synth.Synthesize(r.Context(), gateway.SynthesisRequest{
		Text:          req.Text,
		Mode:          req.Mode,
		ModelID:       req.ModelID,
		Language:      req.Language,
		VoiceSettings: req.VoiceSettings,
		OutputFormat:  req.OutputFormat,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	ct := res.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", ct)
	h.Set("Content-Length", strconv.Itoa(len(res.Audio)))
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderVoiceID, res.VoiceID)
	h.Set(HeaderModelID, res.ModelID)
	h.Set(HeaderVoiceFallback, strconv.FormatBool(!res.PrimaryVoice))
	h.Set(HeaderAttempts, strconv.Itoa(res.Attempts))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	res, err := s.tokens.Issue(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenBody{OK: true, Endpoint: res.Endpoint, Data: res.Data})
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFailure(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return
	}
	writeFailure(w, http.StatusBadRequest, "malformed request body", nil)
}
