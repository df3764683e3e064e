package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Stub — локальный backend gate status сервер для разработки и тестов.
// Отдаёт состояние gate'а per-account; состояние можно переключать через
// PUT (например, curl'ом во время отладки CI-пайплайна).
type Stub struct {
	mu      sync.RWMutex
	gates   map[string]Status // account -> состояние
	secret  []byte
	defOpen bool // Дефолт для незнакомых аккаунтов
	logger  *zap.Logger
}

func NewStub(secret []byte, defaultOpen bool, logger *zap.Logger) *Stub {
	return &Stub{
		gates:   make(map[string]Status),
		secret:  secret,
		defOpen: defaultOpen,
		logger:  logger.With(zap.String("mod", "backend-stub")),
	}
}

// SetGate выставляет состояние gate'а для аккаунта.
func (s *Stub) SetGate(accountID string, open, promote bool) {
	status := GateClosed
	if open {
		status = GateOpen
	}
	s.mu.Lock()
	s.gates[accountID] = Status{GateStatus: status, Promote: promote, Timestamp: time.Now()}
	s.mu.Unlock()
}

// Routes собирает chi-роутер стаба.
func (s *Stub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/gate/{accountID}", s.handleGet)
	r.Put("/api/gate/{accountID}", s.handlePut)
	return r
}

func (s *Stub) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, `{"error":"invalid or missing token"}`, http.StatusUnauthorized)
		return
	}

	accountID := chi.URLParam(r, "accountID")
	s.mu.RLock()
	st, ok := s.gates[accountID]
	s.mu.RUnlock()

	if !ok {
		status := GateClosed
		if s.defOpen {
			status = GateOpen
		}
		st = Status{GateStatus: status, Promote: s.defOpen, Timestamp: time.Now()}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (s *Stub) handlePut(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, `{"error":"invalid or missing token"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		GateStatus string `json:"gateStatus"`
		Promote    bool   `json:"promote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"bad request body"}`, http.StatusBadRequest)
		return
	}
	if body.GateStatus != GateOpen && body.GateStatus != GateClosed {
		http.Error(w, fmt.Sprintf(`{"error":"gateStatus must be %s or %s"}`, GateOpen, GateClosed), http.StatusBadRequest)
		return
	}

	accountID := chi.URLParam(r, "accountID")
	s.SetGate(accountID, body.GateStatus == GateOpen, body.Promote)
	s.logger.Info("gate state updated",
		zap.String("account", accountID), zap.String("status", body.GateStatus))
	w.WriteHeader(http.StatusNoContent)
}

// authorized проверяет HS256-подпись запроса.
func (s *Stub) authorized(r *http.Request) bool {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		return false
	}
	_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	return err == nil
}
