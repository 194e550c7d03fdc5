package fallback

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/mentorlink/relay/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// newTestClient serves the handler over an in-memory listener and
// returns a client wired to it.
func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	c := New("http://rest.test", "test-token")
	c.http = &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}
	return c
}

func TestPostMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string

	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.Path())
		gotAuth = string(ctx.Request.Header.Peek("Authorization"))
		_ = json.Unmarshal(ctx.PostBody(), &gotBody)

		resp, _ := json.Marshal(types.Message{
			MessageID:      "msg-1",
			ConversationID: "conv-u1-u2",
			FromUserID:     "u1",
			ToUserID:       "u2",
			Text:           gotBody["text"],
			Timestamp:      time.Now().UTC(),
		})
		ctx.SetContentType("application/json")
		ctx.SetBody(resp)
	})

	msg, err := c.PostMessage("u2", "hello", "conv-u1-u2")
	require.NoError(t, err)

	assert.Equal(t, "/api/messages", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "u2", gotBody["toUserId"])
	assert.Equal(t, "hello", gotBody["text"])
	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, "hello", msg.Text)
}

func TestConversations(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/api/conversations", string(ctx.Path()))
		assert.Equal(t, "u1", string(ctx.QueryArgs().Peek("userId")))

		resp, _ := json.Marshal([]Conversation{
			{ConversationID: "conv-u1-u2", Participants: []string{"u1", "u2"}},
		})
		ctx.SetContentType("application/json")
		ctx.SetBody(resp)
	})

	convs, err := c.Conversations("u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-u1-u2", convs[0].ConversationID)
	assert.Equal(t, []string{"u1", "u2"}, convs[0].Participants)
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/api/conversations/conv-u1-u2/messages", string(ctx.Path()))

		resp, _ := json.Marshal([]types.Message{
			{MessageID: "msg-1", Text: "hi"},
			{MessageID: "msg-2", Text: "hello"},
		})
		ctx.SetContentType("application/json")
		ctx.SetBody(resp)
	})

	msgs, err := c.History("conv-u1-u2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg-2", msgs[1].MessageID)
}

func TestErrorStatusSurfaces(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	})

	_, err := c.PostMessage("u2", "hello", "")
	assert.ErrorContains(t, err, "status 401")
}
