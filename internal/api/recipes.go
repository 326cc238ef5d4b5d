package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/recetario/recipe-app/internal/media"
	"github.com/recetario/recipe-app/internal/ratelimit"
	"github.com/recetario/recipe-app/internal/recipe"
)

// PhotoStore persists uploaded images. *media.Store satisfies it.
type PhotoStore interface {
	Save(r io.Reader) (media.Photo, error)
}

// handleSearchRecipes lists recipes, optionally filtered by the q parameter
// matching title or ingredients.
func (s *Server) handleSearchRecipes(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recipes, err := s.deps.Recipes.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		log.Printf("[api] recipe search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not search recipes")
		return
	}
	if recipes == nil {
		recipes = []recipe.Recipe{}
	}
	writeJSON(w, http.StatusOK, recipes)
}

// handleCreateRecipe creates a recipe authored by the current user.
func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var draft recipe.Draft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := draft.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_recipe", err.Error())
		return
	}

	created, err := s.deps.Recipes.Create(r.Context(), sess.UserID, draft)
	if err != nil {
		log.Printf("[api] recipe create failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not create recipe")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetRecipe returns a single recipe with its author block.
func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Recipes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, recipe.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "recipe not found")
		return
	}
	if err != nil {
		log.Printf("[api] recipe get failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load recipe")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateRecipe replaces a recipe's content. Only the author or an
// admin may edit.
func (s *Server) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	id := chi.URLParam(r, "id")

	var draft recipe.Draft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := draft.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_recipe", err.Error())
		return
	}

	authorID, err := s.deps.Recipes.AuthorOf(r.Context(), id)
	if errors.Is(err, recipe.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "recipe not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not update recipe")
		return
	}
	if authorID != sess.UserID && !sess.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "not the recipe author")
		return
	}

	if err := s.deps.Recipes.Update(r.Context(), id, draft); err != nil {
		log.Printf("[api] recipe update failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not update recipe")
		return
	}

	updated, err := s.deps.Recipes.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("[api] recipe reload failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not update recipe")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteRecipe removes a recipe. Only the author or an admin may
// delete.
func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	id := chi.URLParam(r, "id")

	authorID, err := s.deps.Recipes.AuthorOf(r.Context(), id)
	if errors.Is(err, recipe.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "recipe not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not delete recipe")
		return
	}
	if authorID != sess.UserID && !sess.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "not the recipe author")
		return
	}

	if err := s.deps.Recipes.Delete(r.Context(), id); err != nil {
		log.Printf("[api] recipe delete failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not delete recipe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadPhoto attaches a photo to a recipe. The upload is re-encoded
// and thumbnailed by the media store; uploads are rate limited per user.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	id := chi.URLParam(r, "id")

	if s.deps.Limiter != nil {
		allowed, _ := s.deps.Limiter.Allow(r.Context(), sess.UserID, ratelimit.RuleUpload)
		if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many uploads")
			return
		}
	}

	authorID, err := s.deps.Recipes.AuthorOf(r.Context(), id)
	if errors.Is(err, recipe.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "recipe not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not upload photo")
		return
	}
	if authorID != sess.UserID && !sess.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "not the recipe author")
		return
	}

	if err := r.ParseMultipartForm(media.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart upload")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "photo field required")
		return
	}
	defer file.Close()

	photo, err := s.deps.Photos.Save(file)
	if errors.Is(err, media.ErrInvalidImage) {
		writeError(w, http.StatusBadRequest, "invalid_image", "file is not a supported image")
		return
	}
	if err != nil {
		log.Printf("[api] photo save failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not store photo")
		return
	}

	if err := s.deps.Recipes.SetImageURL(r.Context(), id, photo.URL); err != nil {
		log.Printf("[api] set image url failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not store photo")
		return
	}
	writeJSON(w, http.StatusOK, photo)
}
