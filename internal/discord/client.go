// Package discord implements typed wrappers over the remote chat
// service's REST API: channels, messages, and multipart attachments. It
// carries no retry policy (spec.md §4.3) and holds no shared mutable
// state beyond an *http.Client and the caller's credentials.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	log "github.com/inconshreveable/log15"

	"a4.io/dcfs/internal/logging"
)

// BaseURL is the backend's API root (spec.md §6).
const BaseURL = "https://discord.com/api/v9"

// messagePageSize is the page size list-messages requests; a short page
// (<100) signals the end of the channel's history (spec.md §4.3).
const messagePageSize = 100

// StatusKind classifies a failed Client call the way spec.md §4.3's
// abstract `{ok, http(code), transport-error, parse-error}` status does.
type StatusKind int

const (
	// StatusTransportError means the HTTP exchange itself failed (DNS,
	// connection refused, timeout, TLS, ...).
	StatusTransportError StatusKind = iota
	// StatusParseError means a 2xx body failed to decode as JSON.
	StatusParseError
	// StatusHTTP means the backend replied with an unexpected status code.
	StatusHTTP
)

// StatusError reports a non-ok Client result.
type StatusError struct {
	Kind     StatusKind
	HTTPCode int
	Err      error
}

func (e *StatusError) Error() string {
	switch e.Kind {
	case StatusHTTP:
		return fmt.Sprintf("discord: unexpected http status %d", e.HTTPCode)
	case StatusParseError:
		return fmt.Sprintf("discord: parse error: %v", e.Err)
	default:
		return fmt.Sprintf("discord: transport error: %v", e.Err)
	}
}

func (e *StatusError) Unwrap() error { return e.Err }

// Client is a thin, stateless-beyond-credentials wrapper over the
// backend's channel/message/attachment endpoints.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	log        log.Logger
}

// New constructs a Client. httpClient may be nil, in which case a
// zero-value http.Client is used; it sets no request timeout.
func New(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		token:      token,
		httpClient: httpClient,
		baseURL:    BaseURL,
		log:        logging.New("discord"),
	}
}

// SetBaseURL overrides the backend root URL, used by other packages'
// tests to point a Client at an httptest server.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &StatusError{Kind: StatusTransportError, Err: err}
	}
	req.Header.Set("Authorization", c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &StatusError{Kind: StatusTransportError, Err: err}
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &StatusError{Kind: StatusParseError, Err: err}
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// logHTTPError reads and discards the body, logging the backend's
// {"message": ...} error payload if present, the same detail the C
// original's discord_get_messages prints on a non-200 response.
func (c *Client) logHTTPError(resp *http.Response) {
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		c.log.Warn("backend returned an error", "http_code", resp.StatusCode, "message", apiErr.Message)
		return
	}
	c.log.Warn("backend returned an unexpected status", "http_code", resp.StatusCode)
}

func isSuccess2xx(code int) bool {
	return code >= 200 && code < 300
}

// ListChannels lists every channel in the guild (spec.md §4.3,
// HTTP 200 expected).
func (c *Client) ListChannels(ctx context.Context, guildID string) ([]Channel, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/channels", guildID), nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.logHTTPError(resp)
		return nil, &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	var channels []Channel
	if err := decodeJSON(resp, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// CreateChannel creates a new guild-text channel (spec.md §6 request
// body). HTTP 201 is expected.
func (c *Client) CreateChannel(ctx context.Context, guildID, name string) (Channel, error) {
	payload := map[string]interface{}{
		"name": name,
		"type": GuildText,
		"permission_overwrites": []map[string]interface{}{
			{"id": guildID, "type": 0, "allow": "0", "deny": "1024"},
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return Channel{}, &StatusError{Kind: StatusParseError, Err: err}
	}
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/guilds/%s/channels", guildID), bytes.NewReader(buf), "application/json")
	if err != nil {
		return Channel{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		c.logHTTPError(resp)
		return Channel{}, &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	var ch Channel
	if err := decodeJSON(resp, &ch); err != nil {
		return Channel{}, err
	}
	return ch, nil
}

// RenameChannel issues a PATCH updating the channel's name. Any 2xx is
// accepted as success (spec.md §9's resolution of the "channel deletion
// success code" open question applies equally here).
func (c *Client) RenameChannel(ctx context.Context, channelID, newName string) error {
	buf, err := json.Marshal(map[string]string{"name": newName})
	if err != nil {
		return &StatusError{Kind: StatusParseError, Err: err}
	}
	resp, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/channels/%s", channelID), bytes.NewReader(buf), "application/json")
	if err != nil {
		return err
	}
	if !isSuccess2xx(resp.StatusCode) {
		c.logHTTPError(resp)
		return &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	drain(resp)
	return nil
}

// DeleteChannel deletes a channel and every message within it, server
// side. Any 2xx is accepted (spec.md §9 Open Questions).
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s", channelID), nil, "")
	if err != nil {
		return err
	}
	if !isSuccess2xx(resp.StatusCode) {
		c.logHTTPError(resp)
		return &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	drain(resp)
	return nil
}

// ListMessages fetches every message in the channel, newest-first pages
// of up to 100, paginating with `before` until a short page is returned
// (spec.md §4.3).
func (c *Client) ListMessages(ctx context.Context, channelID string) ([]Message, error) {
	var all []Message
	before := ""
	for {
		page, err := c.listMessagesPage(ctx, channelID, before)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < messagePageSize {
			return all, nil
		}
		before = page[len(page)-1].ID
	}
}

func (c *Client) listMessagesPage(ctx context.Context, channelID, before string) ([]Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(messagePageSize))
	if before != "" {
		q.Set("before", before)
	}
	path := fmt.Sprintf("/channels/%s/messages?%s", channelID, q.Encode())
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.logHTTPError(resp)
		return nil, &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	var page []Message
	if err := decodeJSON(resp, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// AttachmentPart is one (encoded filename, bytes) pair to upload. Name is
// expected to already be codec-encoded; the client has no knowledge of
// the codec (spec.md §9's "dynamic-typed JSON navigation" flag only
// concerns parsing, not encoding, so this stays a plain data carrier).
type AttachmentPart struct {
	Name string
	Data []byte
}

// CreateAttachments posts 1-10 attachments as a single multipart/form-data
// message (spec.md §4.3 / §6). The backend returns one message record
// whose attachments[] has the same length and order as parts.
func (c *Client) CreateAttachments(ctx context.Context, channelID string, parts []AttachmentPart) (Message, error) {
	if len(parts) == 0 || len(parts) > 10 {
		return Message{}, fmt.Errorf("discord: create-attachments takes 1-10 parts, got %d", len(parts))
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for i, p := range parts {
		fw, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), p.Name)
		if err != nil {
			return Message{}, &StatusError{Kind: StatusParseError, Err: err}
		}
		if _, err := fw.Write(p.Data); err != nil {
			return Message{}, &StatusError{Kind: StatusParseError, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return Message{}, &StatusError{Kind: StatusParseError, Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), &body, w.FormDataContentType())
	if err != nil {
		return Message{}, err
	}
	if resp.StatusCode != http.StatusOK {
		c.logHTTPError(resp)
		return Message{}, &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	var msg Message
	if err := decodeJSON(resp, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// DeleteMessage deletes a single message. HTTP 204 or 200 are both
// acceptable (spec.md §4.3).
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil, "")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		c.logHTTPError(resp)
		return &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	drain(resp)
	return nil
}

// FetchURL downloads the raw bytes behind an attachment's download URL,
// used by the download pipeline (spec.md §4.6). It does not use the
// backend's base path since attachment URLs are absolute CDN links.
func (c *Client) FetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &StatusError{Kind: StatusTransportError, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &StatusError{Kind: StatusTransportError, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Kind: StatusHTTP, HTTPCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StatusError{Kind: StatusTransportError, Err: err}
	}
	return data, nil
}
