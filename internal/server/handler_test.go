package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/closetmind/stylescan/internal/analyzer"
	"github.com/closetmind/stylescan/internal/auth"
	"github.com/closetmind/stylescan/internal/cache"
	"github.com/closetmind/stylescan/internal/imaging"
	"github.com/closetmind/stylescan/internal/models"
	"github.com/closetmind/stylescan/internal/quota"
	"github.com/closetmind/stylescan/internal/ratelimit"
	"github.com/closetmind/stylescan/internal/vision"
)

const testSecret = "test-secret"

const providerSignal = `{
	"version": 1,
	"aesthetic": {"primary": "street", "confidence": 0.9},
	"formality": "casual",
	"statement": "bold",
	"season": "heavy",
	"palette": {"colors": ["black"], "confidence": 0.85},
	"pattern": "graphic",
	"material": "denim"
}`

type env struct {
	server   *httptest.Server
	provider *httptest.Server
	quota    *quota.MemoryStore
	token    string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	providerCalls := 0
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalls++
		fmt.Fprint(w, providerSignal)
	}))
	t.Cleanup(provider.Close)

	qstore := quota.NewMemoryStore()
	invoker := analyzer.NewInvoker(
		imaging.NewSizer(),
		cache.New(10, 20*time.Minute),
		qstore,
		ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig()),
		vision.NewClient(provider.URL, ""),
	)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.NewMiddleware(testSecret).Authenticate)
	NewHandler(nil, invoker).RegisterRoutes(api)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := auth.GenerateToken("user-1", "key-1", testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	return &env{server: srv, provider: provider, quota: qstore, token: token}
}

func (e *env) post(t *testing.T, path string, body []byte, withAuth bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func scanBody(t *testing.T, filename string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	body, _ := json.Marshal(map[string]string{
		"filename": filename,
		"image":    base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	return body
}

func TestAnalyzeEndpointSuccessAndCacheHit(t *testing.T) {
	e := newEnv(t)
	body := scanBody(t, "fit-check.png")

	resp := e.post(t, "/api/scan/analyze", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache-Status"); got != "MISS" {
		t.Fatalf("cache status = %s, want MISS", got)
	}

	var signal models.StyleSignal
	if err := json.NewDecoder(resp.Body).Decode(&signal); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if signal.Aesthetic.Primary != "street" {
		t.Fatalf("primary = %s", signal.Aesthetic.Primary)
	}

	resp2 := e.post(t, "/api/scan/analyze", body, true)
	defer resp2.Body.Close()
	if got := resp2.Header.Get("X-Cache-Status"); got != "HIT" {
		t.Fatalf("cache status = %s, want HIT", got)
	}
}

func TestAnalyzeEndpointRequiresAuth(t *testing.T) {
	e := newEnv(t)
	resp := e.post(t, "/api/scan/analyze", scanBody(t, "a.png"), false)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAnalyzeEndpointQuotaExceeded(t *testing.T) {
	e := newEnv(t)
	e.quota.SetLimit("user-1", quota.OpScan, 0)

	resp := e.post(t, "/api/scan/analyze", scanBody(t, "a.png"), true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	var errBody models.PipelineError
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Kind != models.ErrQuotaExceeded || errBody.Scope != "monthly" {
		t.Fatalf("error = %+v, want monthly quota_exceeded", errBody)
	}
}

func TestAnalyzeEndpointRateLimited(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 10; i++ {
		resp := e.post(t, "/api/scan/analyze", scanBody(t, fmt.Sprintf("img-%d.png", i)), true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("warmup %d status = %d", i, resp.StatusCode)
		}
	}

	resp := e.post(t, "/api/scan/analyze", scanBody(t, "one-too-many.png"), true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("missing Retry-After header")
	}
	if strings.Contains(retryAfter, ".") {
		t.Fatalf("Retry-After = %q, want integer seconds", retryAfter)
	}
}

func TestAnalyzeEndpointOversizedBody(t *testing.T) {
	e := newEnv(t)

	// A body just over the 6 MB transfer cap.
	huge := bytes.Repeat([]byte("A"), imaging.MaxPayloadBytes+1024)
	body, _ := json.Marshal(map[string]string{"filename": "big.png", "image": string(huge)})

	resp := e.post(t, "/api/scan/analyze", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestAnalyzeEndpointBadBase64(t *testing.T) {
	e := newEnv(t)
	body, _ := json.Marshal(map[string]string{"filename": "a.png", "image": "%%% not base64 %%%"})

	resp := e.post(t, "/api/scan/analyze", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalyzeEndpointMultipartUpload(t *testing.T) {
	e := newEnv(t)

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "upload.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(pngBuf.Bytes())
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/scan/analyze", &body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var signal models.StyleSignal
	if err := json.NewDecoder(resp.Body).Decode(&signal); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if !signal.Valid() {
		t.Fatalf("incomplete signal: %+v", signal)
	}
}

func TestRankEndpoint(t *testing.T) {
	e := newEnv(t)

	body, _ := json.Marshal(map[string]interface{}{
		"items": []models.AddOnItem{
			{ID: "acc", Category: "accessories", DetectedLabel: "pendant"},
			{ID: "bag", Category: "bags", DetectedLabel: "leather tote"},
		},
		"suggestions": []models.ElevateBullet{
			{Category: "bags"},
			{Category: "accessories"},
		},
	})

	resp := e.post(t, "/api/wardrobe/addons/rank", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Items []models.AddOnItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 2 || out.Items[0].ID != "bag" {
		t.Fatalf("ranked order = %v, want bag first", out.Items)
	}
}
