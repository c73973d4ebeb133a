package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxDownload bounds the size of a downloaded attachment.
const MaxDownload = 25 << 20

// maxRateLimitRetries is how often a request is retried after a 429.
const maxRateLimitRetries = 3

// APIError is a non-2xx REST response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// REST calls the chat HTTP API.
type REST struct {
	baseURL string
	token   string
	client  *http.Client
	agent   string
}

// NewREST returns a REST client. A nil client uses a 30 second timeout.
func NewREST(baseURL, token string, client *http.Client) *REST {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		agent:   "DiscordBot (https://github.com/skytemple/swablu, 1.0)",
	}
}

// CurrentUser returns the bot account.
func (c *REST) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodGet, "/users/@me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SendMessage posts a message to a channel.
func (c *REST) SendMessage(ctx context.Context, channel Snowflake, msg OutgoingMessage) (*Message, error) {
	var out Message
	if err := c.doJSON(ctx, http.MethodPost, "/channels/"+channel.String()+"/messages", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditMessage replaces the content of one of the bot's messages.
func (c *REST) EditMessage(ctx context.Context, channel, id Snowflake, msg OutgoingMessage) (*Message, error) {
	var out Message
	path := "/channels/" + channel.String() + "/messages/" + id.String()
	if err := c.doJSON(ctx, http.MethodPatch, path, msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFile posts a message with one file attachment.
func (c *REST) SendFile(ctx context.Context, channel Snowflake, msg OutgoingMessage, name string, data []byte) (*Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var out Message
	err = c.do(ctx, http.MethodPost, "/channels/"+channel.String()+"/messages", func() (io.Reader, string, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="payload_json"`)
		h.Set("Content-Type", "application/json")
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(payload); err != nil {
			return nil, "", err
		}
		fw, err := w.CreateFormFile("files[0]", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &body, w.FormDataContentType(), nil
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerTyping shows the typing indicator for about ten seconds.
func (c *REST) TriggerTyping(ctx context.Context, channel Snowflake) error {
	return c.doJSON(ctx, http.MethodPost, "/channels/"+channel.String()+"/typing", nil, nil)
}

// OldestMessages returns up to limit of the first messages of a channel,
// oldest first.
func (c *REST) OldestMessages(ctx context.Context, channel Snowflake, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("after", "0")
	q.Set("limit", strconv.Itoa(limit))
	var out []Message
	if err := c.doJSON(ctx, http.MethodGet, "/channels/"+channel.String()+"/messages?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Download fetches an attachment URL. Bodies over MaxDownload are rejected.
func (c *REST) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.agent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &APIError{Method: http.MethodGet, Path: req.URL.Path, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	if len(data) > MaxDownload {
		return nil, fmt.Errorf("attachment is larger than %d bytes", MaxDownload)
	}
	return data, nil
}

func (c *REST) doJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}
	return c.do(ctx, method, path, func() (io.Reader, string, error) {
		if payload == nil {
			return nil, "", nil
		}
		return bytes.NewReader(payload), "application/json", nil
	}, out)
}

// do sends a request, retrying on 429 after the advertised delay. body is
// called once per attempt.
func (c *REST) do(ctx context.Context, method, path string, body func() (io.Reader, string, error), out any) error {
	for attempt := 0; ; attempt++ {
		r, contentType, err := body()
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("User-Agent", c.agent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			wait := retryAfter(resp.Header, data)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if resp.StatusCode/100 != 2 {
			return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
		return nil
	}
}

func retryAfter(h http.Header, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}
	if s, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil && s > 0 {
		return time.Duration(s * float64(time.Second))
	}
	return time.Second
}
