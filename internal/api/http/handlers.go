package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/hrload/hrload/internal/auth"
	"github.com/hrload/hrload/internal/backup"
	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/loader"
	"github.com/hrload/hrload/internal/store"
)

const (
	internalErrorMessage  = "Internal Server Error"
	invalidTableMessage   = "Invalid table name"
	badCredentialsMessage = "Bad username or password"
	maxRequestBodyBytes   = 32 << 20
	defaultMetricsYear    = 2021
)

// Loader runs insert requests.
type Loader interface {
	Load(ctx context.Context, batches []loader.TableBatch) (*loader.Result, error)
}

// BackupService backs up and restores whole tables.
type BackupService interface {
	Backup(ctx context.Context, table string) (string, error)
	Restore(ctx context.Context, table string) (string, error)
	List(ctx context.Context) ([]backup.Entry, error)
	Delete(ctx context.Context, table string) (string, error)
}

// MetricsStore answers the reporting queries.
type MetricsStore interface {
	HiresPerQuarter(ctx context.Context, year int) ([]store.QuarterHires, error)
	AboveMeanHires(ctx context.Context, year int) ([]store.DepartmentHires, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the handlers to their collaborators.
type Config struct {
	Loader      Loader
	Backups     BackupService
	Metrics     MetricsStore
	Auth        *auth.Authenticator
	Health      Pinger
	MetricsYear int
}

// Handler serves the HTTP API.
type Handler struct {
	cfg Config
}

// NewHandler creates the API handler set.
func NewHandler(cfg Config) *Handler {
	if cfg.MetricsYear == 0 {
		cfg.MetricsYear = defaultMetricsYear
	}
	return &Handler{cfg: cfg}
}

// Routes returns the router with all endpoints mounted. Every data route
// requires a bearer token; /login and /health do not.
func (h *Handler) Routes(extra ...func(http.Handler) http.Handler) http.Handler {
	chain := make([]func(http.Handler) http.Handler, 0, len(extra)+1)
	chain = append(chain, extra...)
	chain = append(chain, DefaultMiddleware())
	base := ChainMiddleware(chain...)
	authed := ChainMiddleware(base, AuthMiddleware(h.cfg.Auth))

	mux := http.NewServeMux()
	mux.Handle("POST /login", base(http.HandlerFunc(h.login)))
	mux.Handle("GET /health", base(http.HandlerFunc(h.health)))
	mux.Handle("POST /insert", authed(http.HandlerFunc(h.insert)))
	mux.Handle("GET /backups", authed(http.HandlerFunc(h.listBackups)))
	mux.Handle("GET /backup/{table}", authed(http.HandlerFunc(h.backup)))
	mux.Handle("DELETE /backup/{table}", authed(http.HandlerFunc(h.deleteBackup)))
	mux.Handle("POST /restore/{table}", authed(http.HandlerFunc(h.restore)))
	mux.Handle("GET /metrics/hires_per_quarter", authed(http.HandlerFunc(h.hiresPerQuarter)))
	mux.Handle("GET /metrics/above_mean_hires", authed(http.HandlerFunc(h.aboveMeanHires)))
	return mux
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

// LoginError is the body of a rejected login.
type LoginError struct {
	Msg string `json:"msg"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, LoginError{Msg: "Missing username or password"})
		return
	}

	token, err := h.cfg.Auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, hrerrors.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, LoginError{Msg: badCredentialsMessage})
			return
		}
		h.fail(w, r, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token})
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request) {
	var batches []loader.TableBatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&batches); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.cfg.Loader.Load(r.Context(), batches)
	if err != nil {
		h.fail(w, r, "insert", err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// BackupResponse is the body of a successful backup.
type BackupResponse struct {
	Message string `json:"message"`
	File    string `json:"file"`
}

func (h *Handler) backup(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")

	location, err := h.cfg.Backups.Backup(r.Context(), table)
	if err != nil {
		h.fail(w, r, "backup", err)
		return
	}

	writeJSON(w, http.StatusOK, BackupResponse{
		Message: fmt.Sprintf("Backup of %s completed", table),
		File:    location,
	})
}

func (h *Handler) listBackups(w http.ResponseWriter, r *http.Request) {
	entries, err := h.cfg.Backups.List(r.Context())
	if err != nil {
		h.fail(w, r, "list_backups", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) deleteBackup(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")

	location, err := h.cfg.Backups.Delete(r.Context(), table)
	if err != nil {
		h.fail(w, r, "delete_backup", err)
		return
	}

	writeJSON(w, http.StatusOK, BackupResponse{
		Message: fmt.Sprintf("Backup of %s deleted", table),
		File:    location,
	})
}

// RestoreResponse is the body of a successful restore.
type RestoreResponse struct {
	Message string `json:"message"`
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	msg, err := h.cfg.Backups.Restore(r.Context(), r.PathValue("table"))
	if err != nil {
		h.fail(w, r, "restore", err)
		return
	}
	writeJSON(w, http.StatusOK, RestoreResponse{Message: msg})
}

func (h *Handler) hiresPerQuarter(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}
	rows, err := h.cfg.Metrics.HiresPerQuarter(r.Context(), year)
	if err != nil {
		h.fail(w, r, "hires_per_quarter", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) aboveMeanHires(w http.ResponseWriter, r *http.Request) {
	year, ok := h.year(w, r)
	if !ok {
		return
	}
	rows, err := h.cfg.Metrics.AboveMeanHires(r.Context(), year)
	if err != nil {
		h.fail(w, r, "above_mean_hires", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// year reads the optional ?year= parameter, falling back to the configured
// reporting year.
func (h *Handler) year(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return h.cfg.MetricsYear, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "invalid year")
		return 0, false
	}
	return year, true
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Health != nil {
		if err := h.cfg.Health.Ping(r.Context()); err != nil {
			log.Printf("http: health check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: "store unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// fail maps an error to its response. Internal details are logged, never
// returned to the caller.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestID := GetRequestID(r.Context())

	switch {
	case errors.Is(err, hrerrors.ErrInvalidTableName):
		writeError(w, http.StatusBadRequest, invalidTableMessage)
	case errors.Is(err, hrerrors.ErrBackupNotFound):
		writeError(w, http.StatusNotFound, "Backup not found")
	case errors.Is(err, hrerrors.ErrCorruptSnapshot):
		logFailure("http", op, requestID, err)
		writeError(w, http.StatusUnprocessableEntity, "Corrupt snapshot")
	case errors.Is(err, hrerrors.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	default:
		logFailure("http", op, requestID, err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
	}
}

// logFailure logs err with its category and code, or "UNCLASSIFIED" for
// errors that carry neither.
func logFailure(component, op, requestID string, err error) {
	category, code := string(hrerrors.GetCategory(err)), hrerrors.GetCode(err)
	if category == "" {
		category, code = "UNCLASSIFIED", "-"
	}
	log.Printf("%s: %s failed [%s/%s] (request %s): %v", component, op, category, code, requestID, err)
}
