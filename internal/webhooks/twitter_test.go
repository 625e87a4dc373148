package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipdai/tipdai/internal/storage"
	"github.com/tipdai/tipdai/internal/twitter"
)

type recordingHandler struct {
	mu     sync.Mutex
	tweets []*twitter.Tweet
	dms    []*twitter.DirectMessageEvent
}

func (h *recordingHandler) HandleTweet(_ context.Context, t *twitter.Tweet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tweets = append(h.tweets, t)
}

func (h *recordingHandler) HandleDM(_ context.Context, dm *twitter.DirectMessageEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dms = append(h.dms, dm)
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tweets), len(h.dms)
}

func (h *recordingHandler) waitFor(t *testing.T, tweets, dms int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		gotTweets, gotDms := h.counts()
		if gotTweets >= tweets && gotDms >= dms {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	gotTweets, gotDms := h.counts()
	t.Fatalf("saw %d tweets and %d dms, wanted %d and %d", gotTweets, gotDms, tweets, dms)
}

func newTestController(t *testing.T) (*Controller, *recordingHandler) {
	t.Helper()
	handler := &recordingHandler{}
	bunt := storage.NewBunt(":memory:")
	t.Cleanup(func() { bunt.Close() })
	return NewController(handler, bunt, "test-secret", "999"), handler
}

func tweetEvent(id int64, authorId, text string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"for_user_id": "999",
		"tweet_create_events": []map[string]interface{}{{
			"id":     id,
			"id_str": fmt.Sprint(id),
			"text":   text,
			"user":   map[string]string{"id_str": authorId, "screen_name": "alice"},
		}},
	})
	return string(payload)
}

func dmEvent(ts int64, senderId, text string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"for_user_id": "999",
		"direct_message_events": []map[string]interface{}{{
			"id":                fmt.Sprintf("dm-%d", ts),
			"created_timestamp": fmt.Sprint(ts),
			"message_create": map[string]interface{}{
				"sender_id":    senderId,
				"message_data": map[string]interface{}{"text": text},
			},
		}},
	})
	return string(payload)
}

func TestCRCHandshake(t *testing.T) {
	c, _ := newTestController(t)
	r := httptest.NewRequest("GET", "/webhooks/twitter?crc_token=challenge", nil)
	w := httptest.NewRecorder()
	c.HandleCRC(w, r)

	require.Equal(t, 200, w.Code)
	var resp crcResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte("challenge"))
	assert.Equal(t, "sha256="+base64.StdEncoding.EncodeToString(mac.Sum(nil)), resp.ResponseToken)
}

func TestCRCRequiresToken(t *testing.T) {
	c, _ := newTestController(t)
	w := httptest.NewRecorder()
	c.HandleCRC(w, httptest.NewRequest("GET", "/webhooks/twitter", nil))
	assert.Equal(t, 400, w.Code)
}

func TestEventsDispatchTweetsAndDMs(t *testing.T) {
	c, handler := newTestController(t)

	w := httptest.NewRecorder()
	c.HandleEvents(w, httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(tweetEvent(100, "11", "@TipDai @bob $1"))))
	require.Equal(t, 200, w.Code)

	w = httptest.NewRecorder()
	c.HandleEvents(w, httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(dmEvent(200, "11", "balance"))))
	require.Equal(t, 200, w.Code)

	handler.waitFor(t, 1, 1)
}

func TestEventsSkipBotAuthored(t *testing.T) {
	c, handler := newTestController(t)

	c.HandleEvents(httptest.NewRecorder(), httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(tweetEvent(100, "999", "hi"))))
	c.HandleEvents(httptest.NewRecorder(), httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(dmEvent(200, "999", "hi"))))
	c.HandleEvents(httptest.NewRecorder(), httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(tweetEvent(101, "11", "real"))))

	handler.waitFor(t, 1, 0)
	tweets, dms := handler.counts()
	assert.Equal(t, 1, tweets)
	assert.Equal(t, 0, dms)
}

func TestEventsDropRedeliveries(t *testing.T) {
	c, handler := newTestController(t)

	body := tweetEvent(100, "11", "@TipDai @bob $1")
	c.HandleEvents(httptest.NewRecorder(), httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(body)))
	c.HandleEvents(httptest.NewRecorder(), httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(body)))
	c.HandleEvents(httptest.NewRecorder(), httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader(tweetEvent(101, "11", "newer"))))

	handler.waitFor(t, 2, 0)
	time.Sleep(50 * time.Millisecond)
	tweets, _ := handler.counts()
	assert.Equal(t, 2, tweets)
}

func TestEventsRejectBadPayload(t *testing.T) {
	c, _ := newTestController(t)
	w := httptest.NewRecorder()
	c.HandleEvents(w, httptest.NewRequest("POST", "/webhooks/twitter", strings.NewReader("not json")))
	assert.Equal(t, 400, w.Code)
}

func TestHighWaterMarkPersists(t *testing.T) {
	c, _ := newTestController(t)
	assert.True(t, c.advanceMark("twitter:tweets:11", 5))
	assert.False(t, c.advanceMark("twitter:tweets:11", 5))
	assert.False(t, c.advanceMark("twitter:tweets:11", 4))
	assert.True(t, c.advanceMark("twitter:tweets:11", 6))
	// independent channels don't share marks
	assert.True(t, c.advanceMark("twitter:tweets:12", 1))
}
