package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
)

const (
	StatusMoveOK   = "MOVEOK"
	StatusGameOver = "GAMEOVER"

	ResultCheckmate = "checkmate"
	ResultStalemate = "stalemate"
	ResultDraw      = "draw"

	IdempotencyHeader = "Idempotency-Key"
)

// MoveRequest asks the worker to validate and apply one move.
type MoveRequest struct {
	GameID         uuid.UUID `json:"game_id"`
	Seq            int       `json:"seq"`
	FEN            string    `json:"fen"`
	States         string    `json:"states"`
	Move           string    `json:"move"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type MoveResponse struct {
	Status string `json:"status"`
	FEN    string `json:"fen"`
	States string `json:"states"`
	Result string `json:"result,omitempty"`
}

type SuggestRequest struct {
	FEN    string `json:"fen"`
	States string `json:"states"`
}

type SuggestResponse struct {
	Move string `json:"move"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type Client struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

// NewClient returns a worker client. Per-call deadlines come from the caller's context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		tracer:  otel.Tracer("chessticulate/worker"),
	}
}

// Move submits req. A repeated call with the same IdempotencyKey returns the original verdict.
func (c *Client) Move(ctx context.Context, req MoveRequest) (*MoveResponse, error) {
	ctx, span := c.tracer.Start(ctx, "worker.move", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("game.id", req.GameID.String()),
			attribute.Int("game.seq", req.Seq),
		))
	defer span.End()

	var resp MoveResponse
	if err := c.post(ctx, "/move", req.IdempotencyKey, req, &resp); err != nil {
		if !errors.Is(err, ErrIllegalMove) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	switch resp.Status {
	case StatusMoveOK, StatusGameOver:
	default:
		err := fmt.Errorf("%w: unknown status %q", ErrRejected, resp.Status)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.FEN == "" {
		return nil, fmt.Errorf("%w: empty board in reply", ErrRejected)
	}
	if resp.States == "" {
		resp.States = "{}"
	}
	span.SetAttributes(attribute.String("worker.status", resp.Status))
	return &resp, nil
}

// Suggest asks the worker for a move on the given board. It changes no state.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) (*SuggestResponse, error) {
	ctx, span := c.tracer.Start(ctx, "worker.suggest", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var resp SuggestResponse
	if err := c.post(ctx, "/suggest", "", req, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if strings.TrimSpace(resp.Move) == "" {
		return nil, fmt.Errorf("%w: empty suggestion", ErrRejected)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request", ErrRejected)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		// Drain and close the body to ensure connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrIllegalMove, readMessage(resp.Body))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		logging.Warn("Worker non-200 response", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
		})
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		logging.Error("Worker rejected request", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
			"body":   readMessage(resp.Body),
		})
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response", ErrRejected)
	}
	return nil
}

// readMessage extracts the worker's {"message": ...} body, falling back to raw text.
func readMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4*1024))
	var msg errorResponse
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}
	return strings.TrimSpace(string(body))
}
