package apiapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phillip-england/attendsuite/internal/attendance"
	"github.com/phillip-england/attendsuite/internal/envutil"
	"github.com/phillip-england/attendsuite/internal/middleware"
	"github.com/phillip-england/attendsuite/internal/security"
	"github.com/phillip-england/attendsuite/internal/sheetstore"
)

const (
	defaultSheetKey = "attendance"
	maxJSONBody     = 1 << 20
	xlsxMime        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Config struct {
	Addr              string
	UploadDir         string
	StaticDir         string
	OperatorTokenHash string
	MaxUploadBytes    int64
}

type markRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

type legacyUpdateRequest struct {
	QRSubstring    string `json:"qrSubstring"`
	AttendanceDate string `json:"attendanceDate"`
	Subject        string `json:"subject"`
}

type server struct {
	store     *sheetstore.FileStore
	engine    *attendance.Engine
	tokenHash string
	maxUpload int64
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:              envutil.OrDefault("API_ADDR", ":3000"),
		UploadDir:         envutil.OrDefault("UPLOAD_DIR", "uploads"),
		StaticDir:         envutil.OrDefault("STATIC_DIR", "public"),
		OperatorTokenHash: strings.TrimSpace(os.Getenv("OPERATOR_TOKEN_HASH")),
		MaxUploadBytes:    int64(envutil.IntOrDefault("MAX_UPLOAD_MB", 10)) << 20,
	}
}

func Run(ctx context.Context, cfg Config) error {
	handler, err := NewHandler(cfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("attendance api listening on http://localhost%s (sheets in %s)", cfg.Addr, cfg.UploadDir)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewHandler wires the routes for cfg without starting a listener.
func NewHandler(cfg Config) (http.Handler, error) {
	store, err := sheetstore.New(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("initialize sheet store: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	s := &server{
		store:     store,
		engine:    attendance.NewEngine(store),
		tokenHash: cfg.OperatorTokenHash,
		maxUpload: cfg.MaxUploadBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /api/sheets", s.listSheets)
	mux.HandleFunc("GET /api/sheets/{key}", s.downloadSheet)
	mux.Handle("POST /api/sheets/{key}", middleware.Chain(http.HandlerFunc(s.uploadSheet), s.requireOperator(writeError)))
	mux.Handle("POST /api/sheets/{key}/attendance", middleware.Chain(http.HandlerFunc(s.markAttendance), s.requireOperator(writeError)))

	// Routes used by the original scanner page, which reads errors from
	// "message".
	mux.Handle("POST /upload-excel", middleware.Chain(http.HandlerFunc(s.legacyUpload), s.requireOperator(writeLegacyError)))
	mux.Handle("POST /update-excel", middleware.Chain(http.HandlerFunc(s.legacyUpdate), s.requireOperator(writeLegacyError)))
	mux.HandleFunc("GET /uploads/{file}", s.legacyDownload)

	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: blob:",
		"media-src 'self' blob:",
		"script-src 'self'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		mux,
		middleware.RequestLog(log.Default()),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	), nil
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) listSheets(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.List(r.Context())
	if err != nil {
		log.Printf("list sheets: %v", err)
		writeError(w, http.StatusInternalServerError, "unable to list sheets")
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sheets": keys})
}

func (s *server) uploadSheet(w http.ResponseWriter, r *http.Request) {
	s.importUpload(w, r, r.PathValue("key"), writeError)
}

func (s *server) legacyUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUpload + (2 << 20)); err != nil {
		writeLegacyError(w, http.StatusBadRequest, "invalid upload form")
		return
	}
	key := strings.TrimSpace(r.FormValue("subject"))
	if key == "" {
		key = defaultSheetKey
	}
	s.importUpload(w, r, key, writeLegacyError)
}

func (s *server) importUpload(w http.ResponseWriter, r *http.Request, key string, fail errorWriter) {
	data, fileName, err := parseUploadedFile(r, "file", s.maxUpload)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.engine.Exclusive(key, func() error {
		return s.store.Import(r.Context(), key, fileName, data)
	})
	if err != nil {
		switch {
		case errors.Is(err, sheetstore.ErrInvalidKey),
			errors.Is(err, sheetstore.ErrUnsupportedFormat),
			errors.Is(err, sheetstore.ErrInvalidWorkbook):
			fail(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("import sheet %q: %v", key, err)
			fail(w, http.StatusInternalServerError, "Error uploading file.")
		}
		return
	}

	log.Printf("imported sheet %q from %s (%d bytes)", key, fileName, len(data))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "File uploaded successfully",
		"sheet":   key,
	})
}

func (s *server) markAttendance(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := r.PathValue("key")
	res, ok := s.update(w, r, key, req.Date, req.Name, writeError)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, markResponse(res, "/api/sheets/"+key))
}

func (s *server) legacyUpdate(w http.ResponseWriter, r *http.Request) {
	var req legacyUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeLegacyError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := strings.TrimSpace(req.Subject)
	if key == "" {
		key = defaultSheetKey
	}
	res, ok := s.update(w, r, key, req.AttendanceDate, req.QRSubstring, writeLegacyError)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, markResponse(res, "/uploads/"+key+".xlsx"))
}

func (s *server) update(w http.ResponseWriter, r *http.Request, key, date, name string, fail errorWriter) (attendance.Result, bool) {
	res, err := s.engine.Update(r.Context(), key, date, name)
	if err == nil {
		log.Printf("marked %q present on %s in %q at %s", res.Name, res.Date, key, res.Cell)
		return res, true
	}

	switch {
	case errors.Is(err, attendance.ErrInvalidInput), errors.Is(err, sheetstore.ErrInvalidKey):
		fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, attendance.ErrDateNotFound):
		fail(w, http.StatusNotFound, "Date not found in the Excel sheet.")
	case errors.Is(err, attendance.ErrNameNotFound):
		fail(w, http.StatusNotFound, "No match found for QR code.")
	case errors.Is(err, attendance.ErrSheetNotFound):
		fail(w, http.StatusNotFound, "No Excel file for this subject uploaded.")
	default:
		log.Printf("update attendance in %q: %v", key, err)
		fail(w, http.StatusInternalServerError, "Error updating attendance.")
	}
	return attendance.Result{}, false
}

func markResponse(res attendance.Result, downloadLink string) map[string]any {
	return map[string]any{
		"message":       fmt.Sprintf("Updated attendance for %s on %s", res.Query, res.Date),
		"sheet":         res.Sheet,
		"name":          res.Name,
		"date":          res.Date,
		"cell":          res.Cell,
		"alreadyMarked": res.AlreadyMarked,
		"downloadLink":  downloadLink,
	}
}

func (s *server) downloadSheet(w http.ResponseWriter, r *http.Request) {
	s.serveSheet(w, r, r.PathValue("key"))
}

func (s *server) legacyDownload(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if !strings.HasSuffix(file, ".xlsx") {
		http.NotFound(w, r)
		return
	}
	s.serveSheet(w, r, strings.TrimSuffix(file, ".xlsx"))
}

func (s *server) serveSheet(w http.ResponseWriter, r *http.Request, key string) {
	data, err := s.store.Open(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, sheetstore.ErrInvalidKey):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, attendance.ErrSheetNotFound):
			writeError(w, http.StatusNotFound, "sheet not found")
		default:
			log.Printf("open sheet %q: %v", key, err)
			writeError(w, http.StatusInternalServerError, "unable to read sheet")
		}
		return
	}
	w.Header().Set("Content-Type", xlsxMime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", key+".xlsx"))
	http.ServeContent(w, r, key+".xlsx", time.Time{}, bytes.NewReader(data))
}

func (s *server) requireOperator(fail errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, err := security.BearerToken(r.Header.Get("Authorization"))
			if err != nil || !security.VerifyToken(token, s.tokenHash) {
				fail(w, http.StatusUnauthorized, "operator token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseUploadedFile(r *http.Request, fieldName string, maxBytes int64) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxBytes + (2 << 20)); err != nil {
		return nil, "", errors.New("invalid upload form")
	}
	file, header, err := r.FormFile(fieldName)
	if err != nil {
		return nil, "", errors.New("No file uploaded.")
	}
	defer file.Close()
	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", errors.New("unable to read uploaded file")
	}
	if int64(len(raw)) > maxBytes {
		return nil, "", fmt.Errorf("uploaded file exceeds %d MB", maxBytes>>20)
	}
	if len(raw) == 0 {
		return nil, "", errors.New("uploaded file is empty")
	}
	fileName := filepath.Base(strings.TrimSpace(header.Filename))
	if fileName == "." || fileName == "/" {
		fileName = fieldName + ".xlsx"
	}
	return raw, fileName, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

type errorWriter func(w http.ResponseWriter, status int, message string)

func writeLegacyError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message, "message": message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
