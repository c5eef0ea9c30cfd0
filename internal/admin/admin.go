package admin

import (
	"encoding/json"
	"log"
	"net/http"

	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/closetmind/stylescan/internal/db"
	"github.com/closetmind/stylescan/internal/models"
)

type AdminHandler struct {
	db *db.DB
}

func NewAdminHandler(database *db.DB) *AdminHandler {
	return &AdminHandler{db: database}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	// User management
	router.HandleFunc("/admin/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/admin/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/admin/users/{id}/rotate-key", h.RotateAPIKey).Methods("POST")

	// Quota management
	router.HandleFunc("/admin/users/{id}/usage", h.GetUsage).Methods("GET")
	router.HandleFunc("/admin/users/{id}/quota", h.SetQuotaLimit).Methods("PUT")
	router.HandleFunc("/admin/users/{id}/quota/reset", h.ResetQuota).Methods("POST")

	// Analytics
	router.HandleFunc("/admin/users/{id}/analytics", h.GetAnalytics).Methods("GET")
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Plan string `json:"plan"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}
	if req.Plan == "" {
		req.Plan = "free"
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		http.Error(w, "Failed to generate API key", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:     uuid.NewString(),
		Name:   req.Name,
		APIKey: apiKey,
		Plan:   req.Plan,
	}

	if err := h.db.CreateUser(r.Context(), user); err != nil {
		log.Printf("Failed to create user: %v", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	user, err := h.db.GetUserByID(r.Context(), vars["id"])
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *AdminHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	newAPIKey, err := generateAPIKey()
	if err != nil {
		http.Error(w, "Failed to generate API key", http.StatusInternalServerError)
		return
	}

	if err := h.db.RotateAPIKey(r.Context(), vars["id"], newAPIKey); err != nil {
		http.Error(w, "Failed to rotate API key", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"api_key": newAPIKey,
		"status":  "rotated",
	})
}

func (h *AdminHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	stats, err := h.db.GetUserUsage(r.Context(), vars["id"])
	if err != nil {
		http.Error(w, "Failed to get usage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *AdminHandler) SetQuotaLimit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Operation    string `json:"operation"`
		MonthlyLimit int    `json:"monthly_limit"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Operation != "scan" && req.Operation != "wardrobe_add" {
		http.Error(w, "Operation must be scan or wardrobe_add", http.StatusBadRequest)
		return
	}
	if req.MonthlyLimit < 0 {
		http.Error(w, "monthly_limit must be >= 0", http.StatusBadRequest)
		return
	}

	if err := h.db.SetQuotaLimit(r.Context(), vars["id"], req.Operation, req.MonthlyLimit); err != nil {
		log.Printf("Failed to set quota limit: %v", err)
		http.Error(w, "Failed to set quota limit", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
}

func (h *AdminHandler) ResetQuota(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Operation string `json:"operation"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.db.ResetQuota(r.Context(), vars["id"], req.Operation); err != nil {
		http.Error(w, "Failed to reset quota", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

func (h *AdminHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	from := r.URL.Query().Get("from") // e.g., "2026-01-01"
	to := r.URL.Query().Get("to")

	stats, err := h.db.GetScanAnalytics(r.Context(), vars["id"], from, to)
	if err != nil {
		http.Error(w, "Failed to get analytics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
