package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ValenteCreativo/carepilot/internal/storage"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type userResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	OnboardingState string `json:"onboarding_state"`
}

func toUserResponse(u storage.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		Phone:           u.Phone,
		OnboardingState: string(u.OnboardingState),
	}
}

func handleRegister(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		if _, err := deps.Store.GetUserByEmail(req.Email); err == nil {
			httpError(w, http.StatusBadRequest, "email already registered")
			return
		} else if err != storage.ErrNotFound {
			httpError(w, http.StatusInternalServerError, "looking up user: %v", err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "hashing password: %v", err)
			return
		}
		u := storage.User{
			ID:              uuid.NewString(),
			Email:           req.Email,
			PasswordHash:    string(hash),
			Phone:           req.Phone,
			OnboardingState: storage.OnboardingNotStarted,
			CreatedAt:       time.Now().UTC(),
		}
		if err := deps.Store.CreateUser(u); err != nil {
			httpError(w, http.StatusInternalServerError, "creating user: %v", err)
			return
		}

		token, err := IssueSession(deps.SessionSecret, u.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "issuing session: %v", err)
			return
		}
		setSessionCookie(w, token)
		writeJSON(w, http.StatusCreated, toUserResponse(u))
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		u, err := deps.Store.GetUserByEmail(req.Email)
		if err == storage.ErrNotFound {
			httpError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "looking up user: %v", err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			httpError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		token, err := IssueSession(deps.SessionSecret, u.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "issuing session: %v", err)
			return
		}
		setSessionCookie(w, token)
		writeJSON(w, http.StatusOK, toUserResponse(u))
	}
}

func handleLogout(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMe(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Store.GetUser(userIDFrom(r.Context()))
		if err == storage.ErrNotFound {
			httpError(w, http.StatusUnauthorized, "user no longer exists")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "loading user: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
	}
}
