// Package relay talks to the optional share relay: strip uploads that come
// back as a short-lived link plus QR code, and contact messages.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultExpiry is how long the relay keeps an uploaded strip.
const DefaultExpiry = time.Hour

// MaxUploadSize matches the relay's multipart limit.
const MaxUploadSize = 10 << 20

// ErrDisabled is returned when no relay URL is configured.
var ErrDisabled = errors.New("relay is not configured")

// Upload is the relay's answer to a strip upload.
type Upload struct {
	URL         string    `json:"url"`
	QRCode      string    `json:"qrCode"`
	ExpiresHint time.Time `json:"expiresHint"`
}

// Message is a contact form submission.
type Message struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Content string `json:"content"`
}

// Uploader publishes a finished strip.
type Uploader interface {
	Upload(ctx context.Context, blob []byte, name string) (Upload, error)
}

// Messenger forwards contact messages.
type Messenger interface {
	Contact(ctx context.Context, m Message) error
}

// ValidationError lists the fields of a Message that were rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range []string{"name", "email", "content"} {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return "invalid message: " + strings.Join(parts, "; ")
}

var strict = bluemonday.StrictPolicy()

// Sanitize strips markup from every field and trims whitespace.
func (m Message) Sanitize() Message {
	return Message{
		Name:    strings.TrimSpace(strict.Sanitize(m.Name)),
		Email:   strings.TrimSpace(strict.Sanitize(m.Email)),
		Content: strings.TrimSpace(strict.Sanitize(m.Content)),
	}
}

// Validate applies the contact form rules.
func (m Message) Validate() error {
	fields := make(map[string]string)
	if utf8.RuneCountInString(m.Name) < 2 {
		fields["name"] = "Name must be at least 2 characters"
	}
	if addr, err := mail.ParseAddress(m.Email); err != nil || addr.Address != m.Email {
		fields["email"] = "Please enter a valid email address"
	}
	if utf8.RuneCountInString(m.Content) < 10 {
		fields["content"] = "Content must be at least 10 characters"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Expiry  time.Duration
	Client  *http.Client
	Now     func() time.Time
}

// HTTPClient implements Uploader and Messenger against the relay's HTTP API.
type HTTPClient struct {
	base   string
	client *http.Client
	expiry time.Duration
	now    func() time.Time
}

var (
	_ Uploader  = (*HTTPClient)(nil)
	_ Messenger = (*HTTPClient)(nil)
)

// NewHTTPClient returns a client for the relay at opts.BaseURL.
func NewHTTPClient(opts Options) *HTTPClient {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &HTTPClient{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		client: client,
		expiry: opts.Expiry,
		now:    opts.Now,
	}
}

// Enabled reports whether a relay URL is configured.
func (c *HTTPClient) Enabled() bool {
	return c != nil && c.base != ""
}

// Upload posts blob as the multipart field "file". An empty name gets a
// random one.
func (c *HTTPClient) Upload(ctx context.Context, blob []byte, name string) (Upload, error) {
	if !c.Enabled() {
		return Upload{}, ErrDisabled
	}
	if len(blob) == 0 {
		return Upload{}, fmt.Errorf("empty upload")
	}
	if len(blob) > MaxUploadSize {
		return Upload{}, fmt.Errorf("upload of %d bytes exceeds the %d byte limit", len(blob), MaxUploadSize)
	}
	if name == "" {
		name = "photostrip-" + uuid.NewString() + ".jpg"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", http.DetectContentType(blob))
	part, err := w.CreatePart(h)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(blob); err != nil {
		return Upload{}, fmt.Errorf("failed to write upload body: %w", err)
	}
	if err := w.Close(); err != nil {
		return Upload{}, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", &body)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	sent := c.now()
	var out Upload
	if err := c.do(req, &out); err != nil {
		return Upload{}, fmt.Errorf("upload failed: %w", err)
	}
	if out.URL == "" {
		return Upload{}, fmt.Errorf("upload failed: relay returned no url")
	}
	if out.ExpiresHint.IsZero() {
		out.ExpiresHint = sent.Add(c.expiry)
	}
	return out, nil
}

// Contact sanitizes and validates m, then posts it as JSON.
func (c *HTTPClient) Contact(ctx context.Context, m Message) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	m = m.Sanitize()
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/contact", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build contact request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// StatusError is a non-2xx relay response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned %d", e.Code)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Code, e.Message)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
