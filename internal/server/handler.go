package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/closetmind/stylescan/internal/analyzer"
	"github.com/closetmind/stylescan/internal/auth"
	"github.com/closetmind/stylescan/internal/db"
	"github.com/closetmind/stylescan/internal/imaging"
	"github.com/closetmind/stylescan/internal/models"
	"github.com/closetmind/stylescan/internal/ranker"
)

// Handler serves the authenticated pipeline endpoints. The db may be nil
// when running without Postgres (usage reporting and scan logs are skipped).
type Handler struct {
	db      *db.DB
	invoker *analyzer.Invoker
}

func NewHandler(database *db.DB, invoker *analyzer.Invoker) *Handler {
	return &Handler{db: database, invoker: invoker}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/scan/analyze", h.AnalyzeScan).Methods("POST")
	router.HandleFunc("/wardrobe/addons/rank", h.RankAddOns).Methods("POST")
	router.HandleFunc("/usage", h.GetUsage).Methods("GET")
}

type analyzeScanRequest struct {
	Filename string `json:"filename"`
	Image    string `json:"image"` // base64-encoded source image
}

func (h *Handler) AnalyzeScan(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Request bodies over the transfer cap are rejected with 413 before any
	// pipeline work happens.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxPayloadBytes)

	filename, raw, err := readScanUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, claims.UserID, startTime, &models.PipelineError{Kind: models.ErrPayloadTooLarge})
			return
		}
		h.writeError(w, r, claims.UserID, startTime, &models.PipelineError{Kind: models.ErrBadRequest, Message: err.Error()})
		return
	}

	identity := filename
	if identity == "" {
		identity = fmt.Sprintf("%x", sha256.Sum256(raw))
	}

	res, err := h.invoker.Analyze(r.Context(), claims.UserID, analyzer.Image{Identity: identity, Data: raw})
	if err != nil {
		h.writeError(w, r, claims.UserID, startTime, err)
		return
	}

	cacheStatus := "MISS"
	if res.CacheHit {
		cacheStatus = "HIT"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache-Status", cacheStatus)
	body, _ := json.Marshal(res.Signal)
	w.Write(body)

	elapsed := time.Since(startTime)
	h.logScan(claims.UserID, r.URL.Path, http.StatusOK, res.CacheHit, elapsed, r.ContentLength, int64(len(body)))
	log.Printf("✅ scan for user %s completed in %dms (cache %s)", claims.UserID, elapsed.Milliseconds(), cacheStatus)
}

// readScanUpload accepts either a JSON body with a base64 image field or a
// multipart form with an "image" file part.
func readScanUpload(r *http.Request) (filename string, raw []byte, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("image")
		if err != nil {
			return "", nil, fmt.Errorf("missing image part: %w", err)
		}
		defer file.Close()
		raw, err := io.ReadAll(file)
		if err != nil {
			return "", nil, err
		}
		if len(raw) == 0 {
			return "", nil, errors.New("empty image part")
		}
		return header.Filename, raw, nil
	}

	var req analyzeScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", nil, err
	}
	raw, err = base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(raw) == 0 {
		return "", nil, errors.New("image must be base64")
	}
	return req.Filename, raw, nil
}

type rankAddOnsRequest struct {
	Items       []models.AddOnItem     `json:"items"`
	Suggestions []models.ElevateBullet `json:"suggestions"`
}

func (h *Handler) RankAddOns(w http.ResponseWriter, r *http.Request) {
	var req rankAddOnsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ranked := ranker.Rank(req.Items, req.Suggestions)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": ranked,
	})
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.db == nil {
		http.Error(w, "Usage reporting unavailable", http.StatusServiceUnavailable)
		return
	}

	stats, err := h.db.GetUserUsage(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("❌ usage lookup failed for %s: %v", claims.UserID, err)
		http.Error(w, "Failed to get usage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// writeError maps pipeline error kinds onto response codes, attaches
// Retry-After on 429, and logs the access row.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, userID string, startTime time.Time, err error) {
	var perr *models.PipelineError
	if !errors.As(err, &perr) {
		perr = &models.PipelineError{Kind: models.ErrUnknown, Err: err}
	}

	status := statusForKind(perr.Kind)
	if perr.Kind == models.ErrRateLimited && perr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(perr.RetryAfterSeconds))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(perr)

	log.Printf("❌ scan for user %s failed: %v", userID, perr)
	h.logScan(userID, r.URL.Path, status, false, time.Since(startTime), r.ContentLength, 0)
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrUnauthorized:
		return http.StatusUnauthorized
	case models.ErrBadRequest:
		return http.StatusBadRequest
	case models.ErrPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.ErrRateLimited:
		return http.StatusTooManyRequests
	case models.ErrQuotaExceeded:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logScan(userID, endpoint string, status int, cacheHit bool, elapsed time.Duration, reqSize, respSize int64) {
	if h.db == nil {
		return
	}
	scanLog := &models.ScanLog{
		UserID:         userID,
		Endpoint:       endpoint,
		StatusCode:     status,
		CacheHit:       cacheHit,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		RequestSize:    reqSize,
		ResponseSize:   respSize,
	}
	go func() {
		if err := h.db.LogScan(context.Background(), scanLog); err != nil {
			log.Printf("❌ failed to log scan: %v", err)
		}
	}()
}
