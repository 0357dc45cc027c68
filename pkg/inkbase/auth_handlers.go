package inkbase

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inkbase/inkbase/pkg/client"
	"github.com/inkbase/inkbase/pkg/models"
	"github.com/inkbase/inkbase/pkg/store"
)

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req client.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Name, username, email and password are required")
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		a.logger.Error().Err(err).Msg("hashing password")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user := &models.User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := a.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(w, http.StatusConflict, "Username or email already taken")
			return
		}
		a.logger.Error().Err(err).Msg("creating user")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := a.tokens.Issue(user)
	if err != nil {
		a.logger.Error().Err(err).Msg("issuing token")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, client.AuthResponse{Token: token, User: user})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req client.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := a.store.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		a.logger.Error().Err(err).Msg("looking up user")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil || !checkPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := a.tokens.Issue(user)
	if err != nil {
		a.logger.Error().Err(err).Msg("issuing token")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, client.AuthResponse{Token: token, User: user})
}

func (a *App) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	user, err := a.store.GetUser(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Stringer("user", userID).Msg("getting user")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, user)
}
