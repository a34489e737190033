package handlers

import (
	"net/http"

	"postergen/internal/domain"
)

func (a *App) Characters(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"items":   domain.Characters(),
		"default": domain.DefaultCharacter,
	})
}
