package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Status — ответ backend'а о состоянии gate'а для аккаунта.
type Status struct {
	GateStatus string    `json:"gateStatus"` // "OPEN" | "CLOSED"
	Promote    bool      `json:"promote"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	GateOpen   = "OPEN"
	GateClosed = "CLOSED"
)

// StatusProvider — срез клиента, который потребляет Evaluator.
type StatusProvider interface {
	GateStatus(ctx context.Context, accountID string) (*Status, error)
}

// Client — HTTP-клиент backend gate status collaborator'а.
// Каждый запрос подписывается короткоживущим HS256-токеном (HMAC-подпись
// запросов окружающей системы). Предохранитель не даёт gate-оценке зависать
// на лежащем backend'е: открытый CB мгновенно отдаёт ошибку, а Evaluator
// деградирует проверку до её сконфигурированной строгости.
type Client struct {
	baseURL string
	secret  []byte
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClient(baseURL string, secret []byte, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second // Явный таймаут обязателен: "нет ответа" = "недоступен", не зависание
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "proofkit-backend-gate",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
		logger:  logger.With(zap.String("mod", "backend-client")),
	}
}

func (c *Client) GateStatus(ctx context.Context, accountID string) (*Status, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Status), nil
}

func (c *Client) fetch(ctx context.Context, accountID string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/gate/%s", c.baseURL, accountID), nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}

	token, err := c.signToken(accountID)
	if err != nil {
		return nil, fmt.Errorf("backend: sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: gate status unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend: gate status HTTP %d: %s", resp.StatusCode, body)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("backend: decode gate status: %w", err)
	}
	return &st, nil
}

// signToken — короткоживущий HS256-токен на один запрос.
func (c *Client) signToken(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

var _ StatusProvider = (*Client)(nil)
