package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Old6Man6/Qtime/internal/accounts"
	"github.com/Old6Man6/Qtime/internal/authz"
	"github.com/Old6Man6/Qtime/internal/model"
	"github.com/Old6Man6/Qtime/internal/outbox"
	"github.com/Old6Man6/Qtime/internal/sessions"
	"github.com/Old6Man6/Qtime/libs/auth"
)

type AuthHandler struct {
	jwtSecret   string
	users       *accounts.UserRepository
	otp         *accounts.OTP
	outbox      *outbox.Repository
	refreshRepo *sessions.RefreshRepository
	refreshTTL  time.Duration
	logger      *slog.Logger
}

func NewAuthHandler(
	jwtSecret string,
	users *accounts.UserRepository,
	otp *accounts.OTP,
	outboxRepo *outbox.Repository,
	refreshRepo *sessions.RefreshRepository,
	refreshTTL time.Duration,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		jwtSecret:   jwtSecret,
		users:       users,
		otp:         otp,
		outbox:      outboxRepo,
		refreshRepo: refreshRepo,
		refreshTTL:  refreshTTL,
		logger:      logger,
	}
}

type registerRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
}

type tokenRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

type otpRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type otpVerifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type profileResponse struct {
	UserID      string `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

type profileUpdateRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Password = strings.TrimSpace(req.Password)
	if !accounts.ValidPhone(req.PhoneNumber) {
		http.Error(w, "phone number must match 09xxxxxxxxx", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "password required", http.StatusBadRequest)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	userID, err := h.users.Create(ctx, model.User{
		PhoneNumber:  req.PhoneNumber,
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         model.RoleUser,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrPhoneTaken) {
			http.Error(w, "phone number already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"user_id": userID,
		"phone":   req.PhoneNumber,
	})
	if err != nil {
		http.Error(w, "failed to marshal user event", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, outbox.Event{
		AggregateType: "user",
		AggregateID:   userID,
		EventType:     outbox.EventUserRegistered,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("failed to enqueue user event", "err", err)
	}

	h.writeTokens(w, r, http.StatusCreated, model.User{ID: userID, PhoneNumber: req.PhoneNumber, Role: model.RoleUser})
}

func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Password = strings.TrimSpace(req.Password)
	if req.PhoneNumber == "" || req.Password == "" {
		http.Error(w, "phone_number and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		if accounts.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	if err := verifyPassword(user.PasswordHash, req.Password); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.writeTokens(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.refreshRepo.GetByHash(r.Context(), sessions.HashToken(req.RefreshToken))
	if err != nil {
		if sessions.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt != nil || record.ExpiresAt.Before(time.Now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), record.UserID)
	if err != nil {
		if accounts.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	if err := h.refreshRepo.Revoke(r.Context(), record.ID); err != nil {
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}

	h.writeTokens(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.refreshRepo.GetByHash(r.Context(), sessions.HashToken(req.RefreshToken))
	if err != nil {
		if sessions.IsNotFound(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}

	if req.All {
		if err := h.refreshRepo.RevokeAllForUser(r.Context(), record.UserID); err != nil {
			http.Error(w, "failed to revoke sessions", http.StatusInternalServerError)
			return
		}
	} else if record.RevokedAt == nil {
		if err := h.refreshRepo.Revoke(r.Context(), record.ID); err != nil {
			http.Error(w, "failed to revoke refresh token", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if !accounts.ValidPhone(req.PhoneNumber) {
		http.Error(w, "phone number must match 09xxxxxxxxx", http.StatusBadRequest)
		return
	}

	if err := h.otp.Request(r.Context(), req.PhoneNumber); err != nil {
		if errors.Is(err, accounts.ErrTooManyRequests) {
			http.Error(w, "code already sent, retry later", http.StatusTooManyRequests)
			return
		}
		http.Error(w, "failed to send code", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req otpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Code = strings.TrimSpace(req.Code)
	if req.PhoneNumber == "" || req.Code == "" {
		http.Error(w, "phone_number and code required", http.StatusBadRequest)
		return
	}

	if err := h.otp.Verify(r.Context(), req.PhoneNumber, req.Code); err != nil {
		if errors.Is(err, accounts.ErrInvalidCode) {
			http.Error(w, "invalid or expired code", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to verify code", http.StatusInternalServerError)
		return
	}

	// First OTP login creates the account; the user can set a password later.
	user, err := h.users.GetByPhone(r.Context(), req.PhoneNumber)
	if accounts.IsNotFound(err) {
		user, err = h.registerByPhone(r.Context(), req.PhoneNumber)
	}
	if err != nil {
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	h.writeTokens(w, r, http.StatusOK, user)
}

func (h *AuthHandler) registerByPhone(ctx context.Context, phone string) (model.User, error) {
	// A random throwaway password keeps password login closed until the user
	// sets one.
	raw, err := newRefreshToken()
	if err != nil {
		return model.User{}, err
	}
	hash, err := hashPassword(raw)
	if err != nil {
		return model.User{}, err
	}

	userID, err := h.users.Create(ctx, model.User{
		PhoneNumber:  phone,
		PasswordHash: hash,
		Role:         model.RoleUser,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrPhoneTaken) {
			// Lost a race with a concurrent registration.
			return h.users.GetByPhone(ctx, phone)
		}
		return model.User{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"user_id": userID,
		"phone":   phone,
	})
	if err == nil {
		if err := h.outbox.Insert(ctx, outbox.Event{
			AggregateType: "user",
			AggregateID:   userID,
			EventType:     outbox.EventUserRegistered,
			Payload:       payload,
		}); err != nil {
			h.logger.Error("failed to enqueue user event", "err", err)
		}
	}

	return model.User{ID: userID, PhoneNumber: phone, Role: model.RoleUser}, nil
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := authz.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := h.users.GetByID(r.Context(), claims.Sub)
		if err != nil {
			if accounts.IsNotFound(err) {
				http.Error(w, "user not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, profileResponse{
			UserID:      user.ID,
			PhoneNumber: user.PhoneNumber,
			FullName:    user.FullName,
			Email:       user.Email,
			Role:        user.Role,
		})

	case http.MethodPatch:
		var req profileUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}

		user, err := h.users.GetByID(r.Context(), claims.Sub)
		if err != nil {
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		if req.FullName != nil {
			name := strings.TrimSpace(*req.FullName)
			if len(name) < 3 {
				http.Error(w, "full_name must be at least 3 characters", http.StatusBadRequest)
				return
			}
			user.FullName = name
		}
		if req.Email != nil {
			user.Email = strings.TrimSpace(*req.Email)
		}

		if err := h.users.UpdateProfile(r.Context(), user.ID, user.FullName, user.Email); err != nil {
			http.Error(w, "failed to update profile", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, profileResponse{
			UserID:      user.ID,
			PhoneNumber: user.PhoneNumber,
			FullName:    user.FullName,
			Email:       user.Email,
			Role:        user.Role,
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, status int, user model.User) {
	now := time.Now()
	accessToken, err := auth.SignHS256(auth.Claims{
		Sub:   user.ID,
		Phone: user.PhoneNumber,
		Role:  user.Role,
		Iat:   now.Unix(),
		Exp:   now.Add(1 * time.Hour).Unix(),
	}, h.jwtSecret)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := h.issueRefreshToken(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, status, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	})
}

func (h *AuthHandler) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(h.refreshTTL)
	if _, err := h.refreshRepo.Create(ctx, userID, raw, expiresAt); err != nil {
		return "", err
	}
	return raw, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
