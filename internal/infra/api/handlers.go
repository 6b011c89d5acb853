package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/infra/logging"
	"expert-assistant/internal/usecase"
)

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	ps := s.personas.Personas()
	items := make([]personaView, 0, len(ps))
	for _, p := range ps {
		items = append(items, toPersonaView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.registry.List(r.Context(), ClientID(r.Context()))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	items := make([]sessionView, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, toSessionView(snap, s.personas.Resolve(snap.Mode)))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
	}
	mode := s.defaultMode
	if m := strings.TrimSpace(req.Mode); m != "" {
		mode = model.Mode(strings.ToLower(m))
	}
	sess, err := s.registry.Create(r.Context(), ClientID(r.Context()), mode)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), ClientID(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	defer logging.TraceDuration(logging.With(r.Context(), s.log), "SessionAPI.Send")()
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, sess)
		return
	}
	reply, err := sess.Send(r.Context(), req.Text, s.credentials(r))
	s.writeReply(w, r, sess, reply, err)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	reply, err := sess.Retry(r.Context(), s.credentials(r))
	s.writeReply(w, r, sess, reply, err)
}

func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, sess)
		return
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		s.writeError(w, r, domain.Validationf("mode is required"), sess)
		return
	}
	if err := sess.SwitchMode(model.Mode(mode)); err != nil {
		s.writeError(w, r, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ClearHistory(); err != nil {
		s.writeError(w, r, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Server) handlePutAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if err := s.creds.Put(r.Context(), ClientID(r.Context()), req.APIKey); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	l := logging.With(r.Context(), s.log)
	l.Info().Str("api_key", logging.Redact(strings.TrimSpace(req.APIKey), false)).Msg("api key stored")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.creds.Delete(r.Context(), ClientID(r.Context())); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (usecase.SessionStore, bool) {
	sess, err := s.registry.Get(r.Context(), ClientID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return nil, false
	}
	return sess, true
}

// credentials prefers a key sent with the request over the client's stored one.
func (s *Server) credentials(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	ctx := r.Context()
	key, err := s.creds.Get(ctx, ClientID(ctx))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			l := logging.With(ctx, s.log)
			l.Warn().Err(err).Msg("read stored api key")
		}
		return ""
	}
	return key
}

func (s *Server) view(sess usecase.SessionStore) sessionView {
	return toSessionView(sess.Snapshot(), sess.Persona())
}

func (s *Server) writeReply(w http.ResponseWriter, r *http.Request, sess usecase.SessionStore, reply model.ChatMessage, err error) {
	if err != nil {
		s.writeError(w, r, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, replyView{Reply: toMessageView(reply), Session: s.view(sess)})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, sess usecase.SessionStore) {
	status := statusFor(err)
	ctx := r.Context()
	if sess != nil {
		ctx = logging.WithSessID(ctx, sess.ID())
	}
	l := logging.With(ctx, s.log)
	ev := l.Debug()
	if status >= http.StatusInternalServerError {
		ev = l.Warn()
	}
	ev.Err(err).Int("status", status).Msg("request failed")

	body := errorBody{Error: errorView{Kind: errorKind(err), Message: err.Error()}}
	if sess != nil {
		v := s.view(sess)
		body.Session = &v
	}
	writeJSON(w, status, body)
}
