package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"postergen/internal/domain"
	"postergen/internal/middleware"
	"postergen/internal/pipeline"
)

type sessionResponse struct {
	ID         string           `json:"id"`
	Generation uint64           `json:"generation"`
	State      domain.State     `json:"state"`
	Character  domain.Character `json:"character"`
	HasImage   bool             `json:"has_image"`
	ImageName  string           `json:"image_name,omitempty"`
	ImageReady bool             `json:"image_ready"`
	Result     *resultResponse  `json:"result,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type resultResponse struct {
	Status    domain.State     `json:"status"`
	PosterURL string           `json:"poster_url,omitempty"`
	Error     *failureResponse `json:"error,omitempty"`
}

type failureResponse struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
	Remote  bool             `json:"remote"`
}

type characterRequest struct {
	Character string `json:"character"`
}

type startResponse struct {
	SessionID  string       `json:"session_id"`
	Generation uint64       `json:"generation"`
	State      domain.State `json:"state"`
}

func presentSnapshot(id string, snap pipeline.Snapshot, locale string) sessionResponse {
	resp := sessionResponse{
		ID:         id,
		Generation: snap.Generation,
		State:      snap.State,
		Character:  snap.Character,
		HasImage:   snap.HasImage,
		ImageName:  snap.ImageName,
		ImageReady: snap.ImageReady,
		UpdatedAt:  snap.UpdatedAt,
	}
	switch res := snap.Result; {
	case res == nil:
	case res.Success != nil:
		resp.Result = &resultResponse{Status: domain.StateSucceeded, PosterURL: res.Success.PosterURL}
	case res.Failure != nil:
		resp.Result = &resultResponse{
			Status: domain.StateFailed,
			Error: &failureResponse{
				Kind:    res.Failure.Kind,
				Message: failureMessage(locale, res.Failure),
				Remote:  res.Failure.Remote,
			},
		}
	}
	return resp
}

func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := a.Sessions.Create()
	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, http.StatusCreated, presentSnapshot(s.ID, s.Pipeline.Snapshot(), locale))
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, http.StatusOK, presentSnapshot(s.ID, s.Pipeline.Snapshot(), locale))
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := a.Sessions.Delete(s.ID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutImage stages the multipart "file" part and starts normalizing it in the
// background.
func (a *App) PutImage(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(a.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds upload limit")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "multipart form with a file field required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file field required")
		return
	}
	defer file.Close()
	if header.Size > a.maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds upload limit")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}

	raw := domain.NewRawImage(header.Filename, header.Header.Get("Content-Type"), data)
	if err := s.Pipeline.SetImage(raw); err != nil {
		if domain.IsValidation(err) {
			a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type",
				failureMessage(locale, &domain.Failure{Kind: domain.KindValidation}))
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to stage image")
		return
	}
	a.Logger.Debug().
		Str("session_id", s.ID).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("media_type", raw.MediaType).
		Int64("bytes", raw.Size).
		Msg("http: image staged")
	a.json(w, http.StatusOK, presentSnapshot(s.ID, s.Pipeline.Snapshot(), locale))
}

func (a *App) PutCharacter(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())

	var req characterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	character, err := domain.ParseCharacter(req.Character)
	if err != nil {
		a.error(w, http.StatusBadRequest, "unknown_character", requestMessage(locale, "unknown_character"))
		return
	}
	if err := s.Pipeline.SetCharacter(character); err != nil {
		a.error(w, http.StatusBadRequest, "unknown_character", requestMessage(locale, "unknown_character"))
		return
	}
	a.json(w, http.StatusOK, presentSnapshot(s.ID, s.Pipeline.Snapshot(), locale))
}

// StartSession launches a run. The body is optional and may select the
// character for this and later runs.
func (a *App) StartSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())

	var req characterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Character != "" {
		if s.Pipeline.Snapshot().State != domain.StateIdle {
			a.error(w, http.StatusConflict, "busy", requestMessage(locale, "busy"))
			return
		}
		character, err := domain.ParseCharacter(req.Character)
		if err != nil {
			a.error(w, http.StatusBadRequest, "unknown_character", requestMessage(locale, "unknown_character"))
			return
		}
		_ = s.Pipeline.SetCharacter(character)
	}

	generation, err := s.Pipeline.Start(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBusy):
		a.error(w, http.StatusConflict, "busy", requestMessage(locale, "busy"))
		return
	case errors.Is(err, domain.ErrNoImage):
		a.error(w, http.StatusBadRequest, "no_image", requestMessage(locale, "no_image"))
		return
	case domain.IsValidation(err):
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type",
			failureMessage(locale, &domain.Failure{Kind: domain.KindValidation}))
		return
	default:
		a.Logger.Error().Err(err).Str("session_id", s.ID).Msg("http: start failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start generation")
		return
	}

	a.json(w, http.StatusAccepted, startResponse{
		SessionID:  s.ID,
		Generation: generation,
		State:      s.Pipeline.Snapshot().State,
	})
}

func (a *App) ResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	s.Pipeline.Reset()
	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, http.StatusOK, presentSnapshot(s.ID, s.Pipeline.Snapshot(), locale))
}
