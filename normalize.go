package steris

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"
)

// normalizerTransport maps every failed exchange into the uniform *APIError shape.
// It recovers nothing and never retries: retry for the 401 case belongs to the
// authorizer below it. It also transparently decodes brotli-encoded response bodies,
// which the transport layer does not handle on its own.
type normalizerTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

// errorBody is the JSON error envelope the API uses for failures.
type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// RoundTrip satisfies http.RoundTripper.
func (n *normalizerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := n.base.RoundTrip(req)
	if err != nil {
		// A failure that bubbled up from the authorizer's refresh path is already
		// classified; reshaping it again would misreport it as a transport error.
		var already *APIError
		if errors.As(err, &already) || errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrNoRefreshToken) {
			return nil, err
		}

		// No response received at all: keep the transport's own message.
		n.logFailure(req, 0, err.Error())
		return nil, &APIError{
			Message: err.Error(),
			Err:     errors.Join(ErrTransport, err),
		}
	}

	decodeBody(resp)

	if resp.StatusCode < 400 {
		return resp, nil
	}

	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: statusMessage(resp.StatusCode),
		Err:     classify(resp.StatusCode),
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if readErr == nil {
		if parsed, ok := parseErrorBody(resp.Header.Get("Content-Type"), body); ok {
			apiErr.FieldErrors = parsed.Errors
		}
	}

	n.logFailure(req, resp.StatusCode, apiErr.Message)

	return nil, apiErr
}

// decodeBody swaps in a brotli reader when the server compressed the response. The
// header is dropped so downstream consumers see a plain body.
func decodeBody(resp *http.Response) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		return
	}

	resp.Body = &brotliBody{reader: brotli.NewReader(resp.Body), closer: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
}

type brotliBody struct {
	reader io.Reader
	closer io.Closer
}

func (b *brotliBody) Read(p []byte) (int, error) { return b.reader.Read(p) }
func (b *brotliBody) Close() error               { return b.closer.Close() }

// parseErrorBody extracts the field-error envelope when the body is JSON. When the
// server omits the Content-Type header the body bytes are sniffed instead.
func parseErrorBody(contentType string, body []byte) (errorBody, bool) {
	if len(body) == 0 {
		return errorBody{}, false
	}

	isJSON := strings.Contains(contentType, "application/json")
	if contentType == "" {
		isJSON = mimetype.Detect(body).Is("application/json")
	}
	if !isJSON {
		return errorBody{}, false
	}

	var parsed errorBody
	if err := json.Unmarshal(bytes.TrimSpace(body), &parsed); err != nil {
		return errorBody{}, false
	}

	return parsed, true
}

func (n *normalizerTransport) logFailure(req *http.Request, status int, message string) {
	attrs := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"status", status,
		"message", message,
	}
	if id, ok := RequestIDFromContext(req.Context()); ok {
		attrs = append(attrs, "request_id", id)
	}
	n.logger.Warn("request failed", attrs...)
}
