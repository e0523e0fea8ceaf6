package user_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/user"
	"ms-booking/internal/utils"
)

type Handler struct {
	UserService *user.Service
	Logger      *logger.Logger
}

// RegisterPublicRoutes mounts signup and login.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
}

// RegisterRoutes mounts routes that need an authenticated caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/auth/me", h.Me)
	r.Post("/auth/logout", h.Logout)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req user.SignupRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Signup: invalid request: %v", err))
		utils.WriteError(w, err)
		return
	}

	session, err := h.UserService.Signup(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Signup: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("User created successfully", session))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req user.LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	session, err := h.UserService.Login(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Login successful", session))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFrom(r.Context())
	u, err := h.UserService.Me(r.Context(), caller)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Current user", u))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	if err := h.UserService.Logout(r.Context(), claims); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Logout: %v", err))
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
