// Package client talks to the diff digest server: it starts note generation
// and lists sample diffs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/internal/http/dto"
	"github.com/ashtonliu88/diff-digest/internal/notes"
	"github.com/ashtonliu88/diff-digest/internal/service/diffsource"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ErrUnreachable indicates the server could not be reached.
var ErrUnreachable = errors.New("diff digest server unreachable")

// Client calls the server API. Zero value is not valid; use New.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for baseURL (e.g. http://localhost:8080). A nil
// httpClient uses one without a timeout, since generation responses stream
// for as long as the model writes.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// NotesStream is the body of a generation response. Read it to EOF before
// calling TrailerError.
type NotesStream struct {
	resp *http.Response
}

func (s *NotesStream) Read(p []byte) (int, error) {
	return s.resp.Body.Read(p)
}

func (s *NotesStream) Close() error {
	return s.resp.Body.Close()
}

// TrailerError returns the mid-stream failure reported in the error trailer.
// Trailers are only populated once the body has been read to EOF.
func (s *NotesStream) TrailerError() (string, bool) {
	if s.resp.Trailer == nil {
		return "", false
	}
	msg := s.resp.Trailer.Get(notes.ErrorTrailer)
	return msg, msg != ""
}

// GenerateNotes starts a generation. A non-2xx status is returned as a
// *notes.RemoteError carrying the payload message when there is one.
// Cancelling ctx aborts the response body.
func (c *Client) GenerateNotes(ctx context.Context, req notes.Request) (*NotesStream, error) {
	body, err := json.Marshal(dto.GenerateNotesRequest{PRID: req.SubjectID, Diff: req.Body})
	if err != nil {
		return nil, fmt.Errorf("encoding notes request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate-notes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("notes request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(httpReq, "notes.request", attribute.String("subject_id", req.SubjectID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("generate notes: %w", errors.Join(ErrUnreachable, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return &NotesStream{resp: resp}, nil
}

// ListDiffs fetches one page of merged diffs for owner/repo.
func (c *Client) ListDiffs(ctx context.Context, params diffsource.ListParams) (*diffsource.Page, error) {
	q := url.Values{}
	q.Set("owner", params.Owner)
	q.Set("repo", params.Repo)
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sample-diffs?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("diffs request: %w", err)
	}

	resp, err := c.do(httpReq, "diffs.request",
		attribute.String("owner", params.Owner),
		attribute.String("repo", params.Repo),
	)
	if err != nil {
		return nil, fmt.Errorf("list diffs: %w", errors.Join(ErrUnreachable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var body dto.ListDiffsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("list diffs: parse response: %w", err)
	}

	page := &diffsource.Page{
		Diffs:       make([]diffsource.Diff, 0, len(body.Diffs)),
		NextPage:    body.NextPage,
		CurrentPage: body.CurrentPage,
		PerPage:     body.PerPage,
	}
	for _, d := range body.Diffs {
		page.Diffs = append(page.Diffs, diffsource.Diff{
			ID:          d.ID,
			Description: d.Description,
			Diff:        d.Diff,
			URL:         d.URL,
		})
	}
	return page, nil
}

// GetDiff fetches one merged pull request of owner/repo by id.
func (c *Client) GetDiff(ctx context.Context, owner, repo, id string) (*diffsource.Diff, error) {
	q := url.Values{}
	q.Set("owner", owner)
	q.Set("repo", repo)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/sample-diffs/"+url.PathEscape(id)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("diff request: %w", err)
	}

	resp, err := c.do(httpReq, "diff.request",
		attribute.String("owner", owner),
		attribute.String("repo", repo),
		attribute.String("subject_id", id),
	)
	if err != nil {
		return nil, fmt.Errorf("get diff: %w", errors.Join(ErrUnreachable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", diffsource.ErrDiffNotFound, statusError(resp))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var body dto.DiffResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("get diff: parse response: %w", err)
	}
	return &diffsource.Diff{
		ID:          body.ID,
		Description: body.Description,
		Diff:        body.Diff,
		URL:         body.URL,
	}, nil
}

// do sends req inside a client span whose context is propagated to the
// server. The span covers the response headers only, not the streamed body.
func (c *Client) do(req *http.Request, spanName string, attrs ...attribute.KeyValue) (*http.Response, error) {
	ctx, span := logger.StartClientSpan(req.Context(), spanName, append(attrs,
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	)...)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	span.Set(attribute.Int("http.response.status_code", resp.StatusCode))
	if requestID := resp.Header.Get("X-Request-Id"); requestID != "" {
		span.Set(attribute.String("request_id", requestID))
		slog.DebugContext(ctx, "request accepted", "path", req.URL.Path, "request_id", requestID)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if msg, ok := notes.DecodeError(string(data)); ok {
		return &notes.RemoteError{Message: msg}
	}
	return &notes.RemoteError{Message: fmt.Sprintf("Server error: %d", resp.StatusCode)}
}
