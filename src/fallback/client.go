// Package fallback is the client for the REST messaging service, used
// when the live relay connection is unavailable. The service itself is
// external; only the consuming surface lives here.
package fallback

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/mentorlink/relay/src/types"
	"github.com/valyala/fasthttp"
)

// Messenger is the narrow surface the UI layer needs when the session is
// not open.
type Messenger interface {
	PostMessage(toUserID, text, conversationID string) (types.Message, error)
	Conversations(userID string) ([]Conversation, error)
	History(conversationID string) ([]types.Message, error)
}

// Conversation is the REST service's conversation record.
type Conversation struct {
	ConversationID string   `json:"conversationId"`
	Participants   []string `json:"participants"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

// Client talks to the REST messaging service.
type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	timeout time.Duration
}

// New creates a fallback client for the service at baseURL,
// authenticating with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &fasthttp.Client{},
		timeout: 10 * time.Second,
	}
}

// PostMessage submits a message over REST and returns the stored record.
func (c *Client) PostMessage(toUserID, text, conversationID string) (types.Message, error) {
	body, err := json.Marshal(map[string]string{
		"toUserId":       toUserID,
		"text":           text,
		"conversationId": conversationID,
	})
	if err != nil {
		return types.Message{}, err
	}

	var msg types.Message
	if err := c.do(fasthttp.MethodPost, "/api/messages", body, &msg); err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

// Conversations lists the conversations the user participates in.
func (c *Client) Conversations(userID string) ([]Conversation, error) {
	var out []Conversation
	path := "/api/conversations?userId=" + url.QueryEscape(userID)
	if err := c.do(fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches a conversation's message history.
func (c *Client) History(conversationID string) ([]types.Message, error) {
	var out []types.Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(method, path string, body []byte, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return fmt.Errorf("fallback %s %s: status %d", method, path, code)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

var _ Messenger = (*Client)(nil)
