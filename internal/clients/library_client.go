// internal/clients/library_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"minilibrary/internal/catalog"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

var (
	ErrUnauthorized = errors.New("access denied")
	ErrBadRequest   = errors.New("invalid parameters")
	ErrNotFound     = errors.New("no book with this id exists")
	ErrNoUnits      = errors.New("the book has no units available")
	ErrServer       = errors.New("server error")
)

// StatusError carries an unexpected response status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// LibraryClient talks to the catalog API. Calls go through a circuit breaker
// that opens after repeated transport or server failures.
type LibraryClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker

	mu    sync.RWMutex
	token string
}

func NewLibraryClient(baseURL string, httpClient *http.Client) *LibraryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &LibraryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "minilibrary",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				var statusErr *StatusError
				return err == nil || (errors.As(err, &statusErr) && statusErr.Code < 500)
			},
		}),
	}
}

type response struct {
	status int
	body   []byte
}

func (c *LibraryClient) do(ctx context.Context, method, path string, payload any) (*response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		res := &response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= 500 {
			return res, &StatusError{Code: resp.StatusCode}
		}
		return res, nil
	})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %v", ErrServer, err)
		}
		return nil, err
	}
	return out.(*response), nil
}

// Token returns the bearer token from the last successful login.
func (c *LibraryClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *LibraryClient) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *LibraryClient) Health(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return expect(res, http.StatusOK)
}

// Login stores the returned token for later calls. A failed login clears it.
func (c *LibraryClient) Login(ctx context.Context, user, pass string) error {
	res, err := c.do(ctx, http.MethodPost, "/login", map[string]string{"user": user, "pass": pass})
	if err != nil {
		return err
	}
	if res.status != http.StatusOK {
		c.setToken("")
		return classify(res.status)
	}

	var login struct {
		Token    string `json:"token"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(res.body, &login); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	c.setToken(login.Token)
	return nil
}

func (c *LibraryClient) Init(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodPost, "/init", nil)
	if err != nil {
		return err
	}
	return expect(res, http.StatusCreated)
}

func (c *LibraryClient) Add(ctx context.Context, book catalog.Book) (*catalog.Book, error) {
	res, err := c.do(ctx, http.MethodPost, "/add", book)
	if err != nil {
		return nil, err
	}
	if err := expect(res, http.StatusCreated); err != nil {
		return nil, err
	}

	var created catalog.Book
	if err := json.Unmarshal(res.body, &created); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	return &created, nil
}

func (c *LibraryClient) Find(ctx context.Context, clauses []string) ([]catalog.Book, error) {
	return c.books(ctx, "/find/"+url.PathEscape(strings.Join(clauses, ";")))
}

func (c *LibraryClient) List(ctx context.Context) ([]catalog.Book, error) {
	return c.books(ctx, "/list")
}

func (c *LibraryClient) books(ctx context.Context, path string) ([]catalog.Book, error) {
	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := expect(res, http.StatusOK); err != nil {
		return nil, err
	}

	var books []catalog.Book
	if err := json.Unmarshal(res.body, &books); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}
	return books, nil
}

// Borrow returns the units left after taking one.
func (c *LibraryClient) Borrow(ctx context.Context, id uuid.UUID) (int, error) {
	return c.adjust(ctx, "/borrow/"+id.String())
}

// Return returns the units available after giving one back.
func (c *LibraryClient) Return(ctx context.Context, id uuid.UUID) (int, error) {
	return c.adjust(ctx, "/return/"+id.String())
}

func (c *LibraryClient) adjust(ctx context.Context, path string) (int, error) {
	res, err := c.do(ctx, http.MethodPut, path, nil)
	if err != nil {
		return 0, err
	}
	if res.status == http.StatusNoContent {
		return 0, ErrNoUnits
	}
	if err := expect(res, http.StatusOK); err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(res.body)))
	if err != nil {
		return 0, fmt.Errorf("decode unit count: %w", err)
	}
	return n, nil
}

func expect(res *response, status int) error {
	if res.status == status {
		return nil
	}
	return classify(res.status)
}

func classify(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Code: status}
	}
}
