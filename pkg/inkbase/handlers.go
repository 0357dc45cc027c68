package inkbase

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/inkbase/inkbase/pkg/client"
	"github.com/inkbase/inkbase/pkg/models"
	"github.com/inkbase/inkbase/pkg/store"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// parseIfMatch reads the optional If-Match header carrying an expected
// revision. A missing header means unconditional writes.
func parseIfMatch(r *http.Request) (*int64, error) {
	h := r.Header.Get("If-Match")
	if h == "" {
		return nil, nil
	}
	rev, err := strconv.ParseInt(strings.Trim(h, `"`), 10, 64)
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleListPublished(w http.ResponseWriter, r *http.Request) {
	posts, err := a.store.ListPublishedPosts(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("listing published posts")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, posts)
}

func (a *App) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePostID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid blog id")
		return
	}
	post, err := a.store.GetPost(r.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Stringer("post", id).Msg("getting post")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if post == nil {
		respondError(w, http.StatusNotFound, "Blog not found")
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (a *App) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	var req client.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "Content is required")
		return
	}
	category := req.Category
	if category == "" {
		category = models.DefaultCategory
	}

	post := &models.BlogPost{
		Title:    title,
		Content:  req.Content,
		AuthorID: userID,
		Tags:     models.TrimTags(req.Tags),
		Category: category,
	}
	if err := a.store.CreatePost(r.Context(), post); err != nil {
		a.logger.Error().Err(err).Msg("creating post")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, post)
}

func (a *App) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	id, err := models.ParsePostID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid blog id")
		return
	}
	expectedRevision, err := parseIfMatch(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid If-Match header")
		return
	}

	var req client.UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	post, err := a.store.GetPost(r.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Stringer("post", id).Msg("getting post")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if post == nil {
		respondError(w, http.StatusNotFound, "Blog not found")
		return
	}
	if !post.IsAuthoredBy(userID) {
		respondError(w, http.StatusForbidden, "Not authorized")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			respondError(w, http.StatusBadRequest, "Title is required")
			return
		}
		post.Title = title
	}
	if req.Content != nil {
		if *req.Content == "" {
			respondError(w, http.StatusBadRequest, "Content is required")
			return
		}
		post.Content = *req.Content
	}
	if req.Tags != nil {
		post.Tags = models.TrimTags(*req.Tags)
	}
	if req.Category != nil {
		category := *req.Category
		if category == "" {
			category = models.DefaultCategory
		}
		post.Category = category
	}
	if req.Published != nil {
		post.Published = *req.Published
	}

	if err := a.store.UpdatePost(r.Context(), post, expectedRevision); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "Blog not found")
		case errors.Is(err, store.ErrConflict):
			respondError(w, http.StatusConflict, "Blog was modified by another request")
		default:
			a.logger.Error().Err(err).Stringer("post", id).Msg("updating post")
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (a *App) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	id, err := models.ParsePostID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid blog id")
		return
	}
	expectedRevision, err := parseIfMatch(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid If-Match header")
		return
	}

	post, err := a.store.GetPost(r.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Stringer("post", id).Msg("getting post")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if post == nil {
		respondError(w, http.StatusNotFound, "Blog not found")
		return
	}
	if !post.IsAuthoredBy(userID) {
		respondError(w, http.StatusForbidden, "Not authorized")
		return
	}

	if err := a.store.DeletePost(r.Context(), id, expectedRevision); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "Blog not found")
		case errors.Is(err, store.ErrConflict):
			respondError(w, http.StatusConflict, "Blog was modified by another request")
		default:
			a.logger.Error().Err(err).Stringer("post", id).Msg("deleting post")
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Blog deleted successfully"})
}

func (a *App) handleListMyPosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	posts, err := a.store.ListPostsByAuthor(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Stringer("author", userID).Msg("listing posts by author")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, posts)
}
