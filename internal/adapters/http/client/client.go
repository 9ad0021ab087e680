// Package client talks to the scoring server from a judge station.
package client

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

	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
)

// Default client configuration constants.
const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// StatusError is a non-2xx answer from the server. It unwraps to the
// domain error the status stands for, so callers can classify it with
// errors.Is and model.IsPermanent.
type StatusError struct {
	Op      string
	Code    int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return e.kind }

// Client calls the scoring API.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string

	logger logger.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.GetOrNop().Named("client")
	}
	return c
}

// SetToken sets the panel session token sent with score submissions.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Submit posts one score. The boolean reports a replay the server had
// already applied.
func (c *Client) Submit(ctx context.Context, sub model.ScoreSubmission) (bool, error) {
	var ack types.SubmitResponse
	if err := c.do(ctx, "submit score", http.MethodPost, "/api/scores", nil, sub, &ack, submitKind); err != nil {
		return false, err
	}
	if !ack.Success {
		return false, fmt.Errorf("submit score: %w: server did not acknowledge", ErrServer)
	}
	return ack.Duplicate, nil
}

// Login exchanges a judge passcode for a panel session token and keeps the
// token for later submissions.
func (c *Client) Login(ctx context.Context, req types.SessionRequest) (types.SessionResponse, error) {
	var resp types.SessionResponse
	if err := c.do(ctx, "open panel session", http.MethodPost, "/api/panel/session", nil, req, &resp, genericKind); err != nil {
		return types.SessionResponse{}, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// Query selects the heat or round a read covers.
type Query struct {
	RoundHeatID int64
	RoundID     int64
	EventID     int64
	DivisionID  int64
	PersonnelID int64
}

func (q Query) values() url.Values {
	v := url.Values{}
	set := func(k string, id int64) {
		if id > 0 {
			v.Set(k, strconv.FormatInt(id, 10))
		}
	}
	set("round_heat_id", q.RoundHeatID)
	set("round_id", q.RoundID)
	set("event_id", q.EventID)
	set("division_id", q.DivisionID)
	set("personnel_id", q.PersonnelID)
	return v
}

// Standings fetches ranked and unranked athletes.
func (c *Client) Standings(ctx context.Context, q Query) (types.Standings, error) {
	var st types.Standings
	err := c.do(ctx, "fetch standings", http.MethodGet, "/api/standings", q.values(), nil, &st, genericKind)
	return st, err
}

// BestScores fetches each athlete's best score.
func (c *Client) BestScores(ctx context.Context, q Query) ([]types.BestScore, error) {
	q.PersonnelID = 0
	var out []types.BestScore
	err := c.do(ctx, "fetch best scores", http.MethodGet, "/api/scores/best", q.values(), nil, &out, genericKind)
	return out, err
}

// JudgeBest fetches one judge's best score per bib.
func (c *Client) JudgeBest(ctx context.Context, roundHeatID, personnelID int64) ([]types.JudgeBest, error) {
	var out []types.JudgeBest
	q := Query{RoundHeatID: roundHeatID, PersonnelID: personnelID}
	err := c.do(ctx, "fetch judge best", http.MethodGet, "/api/scores/best", q.values(), nil, &out, genericKind)
	return out, err
}

// RunBoard fetches the head judge board for a heat.
func (c *Client) RunBoard(ctx context.Context, roundHeatID int64) ([]types.AthleteRuns, error) {
	var out []types.AthleteRuns
	path := "/api/heats/" + strconv.FormatInt(roundHeatID, 10) + "/runs"
	err := c.do(ctx, "fetch run board", http.MethodGet, path, nil, nil, &out, genericKind)
	return out, err
}

// Healthy probes /healthz. Any 2xx means the server is reachable.
func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, "health probe", http.MethodGet, "/healthz", nil, nil, nil, genericKind)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, kindOf func(int, string) error) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		c.logger.Debug(ctx, "server refused request",
			logger.String("op", op),
			logger.Int("status", resp.StatusCode),
			logger.String("message", msg),
		)
		return &StatusError{Op: op, Code: resp.StatusCode, Message: msg, kind: kindOf(resp.StatusCode, msg)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var e types.ErrorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

// submitKind classifies POST /api/scores answers. Only invalid, missing and
// ambiguous run records are permanent; everything else is retried. A 404
// without the scoring body (a proxy, a wrong base URL) stays transient.
func submitKind(code int, msg string) error {
	switch {
	case code == http.StatusBadRequest:
		return model.ErrInvalidSubmission
	case code == http.StatusNotFound && strings.EqualFold(msg, "Run result not found"):
		return model.ErrRunResultNotFound
	case code == http.StatusConflict:
		return model.ErrAmbiguousRunResult
	default:
		return genericKind(code, msg)
	}
}

func genericKind(code int, msg string) error {
	switch {
	case code == http.StatusUnauthorized && strings.EqualFold(msg, "Invalid passcode"):
		return model.ErrInvalidPasscode
	case code == http.StatusUnauthorized:
		return model.ErrUnauthorized
	case code == http.StatusForbidden:
		return model.ErrForbidden
	case code == http.StatusTooManyRequests:
		return ErrThrottled
	case code >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrRequest
	}
}

// IsTransient reports whether err should be retried later.
func IsTransient(err error) bool {
	return err != nil && !model.IsPermanent(err) && !errors.Is(err, model.ErrInvalidPasscode)
}
