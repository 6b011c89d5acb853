package api

import (
	"encoding/json"
	"net/http"
	"time"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/persona"
)

type personaView struct {
	Mode        model.Mode `json:"mode"`
	DisplayName string     `json:"display_name"`
	ThemeColor  string     `json:"theme_color"`
}

func toPersonaView(p persona.Persona) personaView {
	return personaView{Mode: p.Mode, DisplayName: p.DisplayName, ThemeColor: p.ThemeColor}
}

type messageView struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

func toMessageView(m model.ChatMessage) messageView {
	return messageView{ID: m.ID, Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
}

type errorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// sessionView is what a client renders: the transcript never includes the
// system prompt.
type sessionView struct {
	ID        string              `json:"id"`
	Persona   personaView         `json:"persona"`
	Status    model.SessionStatus `json:"status"`
	Messages  []messageView       `json:"messages"`
	LastError *errorView          `json:"last_error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toSessionView(s *model.SessionSnapshot, p persona.Persona) sessionView {
	v := sessionView{
		ID:        s.ID,
		Persona:   toPersonaView(p),
		Status:    s.Status,
		Messages:  make([]messageView, 0, len(s.History)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	for _, m := range s.Transcript() {
		v.Messages = append(v.Messages, toMessageView(m))
	}
	if s.LastError != "" || s.ErrorKind != domain.KindNone {
		v.LastError = &errorView{Kind: string(s.ErrorKind), Message: s.LastError}
	}
	return v
}

type replyView struct {
	Reply   messageView `json:"reply"`
	Session sessionView `json:"session"`
}

type errorBody struct {
	Error   errorView    `json:"error"`
	Session *sessionView `json:"session,omitempty"`
}

type createSessionRequest struct {
	Mode string `json:"mode"`
}

type sendRequest struct {
	Text string `json:"text"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBody = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}
