package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/history"
	"github.com/civicnet/weeklymatch/internal/matching"
	"github.com/civicnet/weeklymatch/internal/meeting"
	"github.com/civicnet/weeklymatch/internal/profile"
)

// MockSender is a testify mock of Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Name() string { return "mock" }

func (m *MockSender) SendMatchNotification(ctx context.Context, recipientEmail string, payload Payload) SendResult {
	args := m.Called(ctx, recipientEmail, payload)
	return args.Get(0).(SendResult)
}

// fakeClock drives a Pacer without real sleeping.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newFakePacer(interval time.Duration) (*Pacer, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)}
	p := NewPacer(interval)
	p.now = clock.Now
	p.sleep = clock.Sleep
	return p, clock
}

func testPair(a, b *profile.Profile) matching.ScoredPair {
	return matching.ScoredPair{A: a, B: b, Score: 42, Reasons: []string{"Both care about climate"}}
}

func TestPacer_SpacesEveryWait(t *testing.T) {
	p, clock := newFakePacer(600 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	clock.now = clock.now.Add(200 * time.Millisecond)
	require.NoError(t, p.Wait(ctx))
	clock.now = clock.now.Add(time.Second)
	require.NoError(t, p.Wait(ctx))

	assert.Equal(t, []time.Duration{600 * time.Millisecond, 400 * time.Millisecond}, clock.sleeps)
}

func TestPacer_CanceledContext(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Wait(ctx))

	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestDispatchPair_BothDirectionsAndHistory(t *testing.T) {
	a := &profile.Profile{ID: "a", FullName: "Ada", Email: "ada@example.org", Causes: profile.NewStringSet("climate")}
	b := &profile.Profile{ID: "b", Username: "bo@example.org", Skills: profile.NewStringSet("design")}

	sender := new(MockSender)
	sender.On("SendMatchNotification", mock.Anything, "ada@example.org", mock.MatchedBy(func(p Payload) bool {
		return p.RecipientName == "Ada" && p.Match.ID == "b" && p.Match.Name == "bo@example.org"
	})).Return(SendResult{ErrorCode: ErrorCodeServiceDown, Error: errors.New("503")}).Once()
	sender.On("SendMatchNotification", mock.Anything, "bo@example.org", mock.MatchedBy(func(p Payload) bool {
		return p.Match.ID == "a" && p.Match.ProfileURL == "https://civic.example/profile/a" && p.Meeting != nil
	})).Return(SendResult{Success: true}).Once()

	store := history.NewMemoryStore()
	pacer, clock := newFakePacer(600 * time.Millisecond)
	d := NewDispatcher(sender, store, pacer, "https://civic.example/")

	cycleTime := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	outcome := d.DispatchPair(context.Background(), testPair(a, b), &meeting.Details{EventID: "evt"}, cycleTime)

	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "a", outcome.Results[0].RecipientID)
	assert.Equal(t, "b", outcome.Results[0].MatchedUserID)
	assert.False(t, outcome.Results[0].Success)
	assert.Equal(t, ErrorCodeServiceDown, outcome.Results[0].ErrorCode)
	assert.Equal(t, "b", outcome.Results[1].RecipientID)
	assert.True(t, outcome.Results[1].Success)
	assert.Equal(t, "bo@example.org", outcome.Results[1].RecipientEmail)
	assert.NoError(t, outcome.HistoryErr)

	// The failed first send still spaces the second.
	assert.Equal(t, []time.Duration{600 * time.Millisecond}, clock.sleeps)

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].MatchCount)
	assert.True(t, cycleTime.Equal(records[0].LastMatchedAt), "history uses the cycle time, not the wall clock")
	sender.AssertExpectations(t)
}

func TestDispatchPair_NoRecipientAddress(t *testing.T) {
	a := &profile.Profile{ID: "a", FullName: "Ada", Username: "ada"}
	b := &profile.Profile{ID: "b", FullName: "Bo", Email: "bo@example.org"}

	sender := new(MockSender)
	sender.On("SendMatchNotification", mock.Anything, "bo@example.org", mock.Anything).Return(SendResult{Success: true}).Once()

	store := history.NewMemoryStore()
	pacer, clock := newFakePacer(600 * time.Millisecond)
	outcome := NewDispatcher(sender, store, pacer, "").DispatchPair(context.Background(), testPair(a, b), nil, time.Now())

	require.Len(t, outcome.Results, 2)
	assert.False(t, outcome.Results[0].Success)
	assert.Equal(t, "no email address for recipient", outcome.Results[0].Error)
	assert.Empty(t, outcome.Results[0].RecipientEmail)
	assert.True(t, outcome.Results[1].Success)
	assert.Empty(t, clock.sleeps, "a skipped recipient is not a send")
	assert.Len(t, store.Records(), 1, "history is recorded even when a side could not be notified")
	sender.AssertNumberOfCalls(t, "SendMatchNotification", 1)
}

func TestDispatchAll_CompletenessAndHistoryFailures(t *testing.T) {
	members := make([]*profile.Profile, 6)
	for i := range members {
		id := string(rune('a' + i))
		members[i] = &profile.Profile{ID: id, FullName: id, Email: id + "@example.org"}
	}
	pairs := []matching.ScoredPair{
		testPair(members[0], members[1]),
		testPair(members[2], members[3]),
		testPair(members[4], members[5]),
	}

	sender := new(MockSender)
	sender.On("SendMatchNotification", mock.Anything, "c@example.org", mock.Anything).
		Return(SendResult{ErrorCode: ErrorCodeRateLimited, Error: errors.New("429")})
	sender.On("SendMatchNotification", mock.Anything, mock.Anything, mock.Anything).Return(SendResult{Success: true})

	store := history.NewMemoryStore()
	store.RecordErr = errors.New("connection reset")
	pacer, clock := newFakePacer(600 * time.Millisecond)

	results, failures := NewDispatcher(sender, store, pacer, "").DispatchAll(context.Background(), pairs, nil, time.Now())

	require.Len(t, results, 6)
	for i, pair := range pairs {
		assert.Equal(t, pair.A.ID, results[2*i].RecipientID)
		assert.Equal(t, pair.B.ID, results[2*i+1].RecipientID)
	}
	assert.False(t, results[2].Success)
	assert.Len(t, clock.sleeps, 5)

	require.Len(t, failures, 3)
	assert.Equal(t, "a:b", failures[0].Pair)
	assert.Contains(t, failures[0].Error, "connection reset")
}

func TestDispatchPair_HistoryErrorIsTyped(t *testing.T) {
	a := &profile.Profile{ID: "a", FullName: "Ada"}
	b := &profile.Profile{ID: "b", FullName: "Bo"}
	store := history.NewMemoryStore()
	store.RecordErr = errors.New("down")

	pacer, _ := newFakePacer(0)
	outcome := NewDispatcher(new(MockSender), store, pacer, "").DispatchPair(context.Background(), testPair(a, b), nil, time.Now())
	assert.True(t, apperrors.IsErrorType(outcome.HistoryErr, apperrors.ErrorTypeHistoryWrite))
}

func TestRender(t *testing.T) {
	start := time.Date(2024, 6, 10, 16, 0, 0, 0, time.UTC)
	email, err := Render(Payload{
		RecipientName: "Ada",
		Match: MatchProfile{
			ID: "b", Name: "Bo <script>", Bio: "Organizer", Location: "Oakland, US",
			Causes: []string{"climate", "housing"}, ProfileURL: "https://civic.example/profile/b",
		},
		Reasons: []string{"Both care about climate and housing"},
		Meeting: &meeting.Details{StartTime: start, TimeZone: "UTC", VideoURL: "https://meet.google.com/x", ICSURL: "https://civic.example/api/meetings/ics?uid=1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Your civic match: meet Bo <script>", email.Subject)
	assert.Contains(t, email.Text, "Hi Ada,")
	assert.Contains(t, email.Text, "- Both care about climate and housing")
	assert.Contains(t, email.Text, "Causes: climate, housing")
	assert.Contains(t, email.Text, "Video call: https://meet.google.com/x")
	assert.Contains(t, email.Text, "Monday, June 10 at 4:00 PM UTC")
	assert.Contains(t, email.HTML, "Bo &lt;script&gt;")
	assert.NotContains(t, email.HTML, "<script>")
	assert.Contains(t, email.HTML, `href="https://meet.google.com/x"`)

	noMeeting, err := Render(Payload{RecipientName: "Ada", Match: MatchProfile{Name: "Bo"}})
	require.NoError(t, err)
	assert.Contains(t, noMeeting.Text, "set up a time to talk")
}

func TestSendGridSender(t *testing.T) {
	var (
		mu      sync.Mutex
		auth    string
		request map[string]interface{}
		status  = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		w.Header().Set("X-Message-Id", "msg-1")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromAddress: "matches@civic.example", FromName: "Civic Match", Host: srv.URL})
	payload := Payload{RecipientName: "Ada", Match: MatchProfile{ID: "b", Name: "Bo"}}

	res := sender.SendMatchNotification(context.Background(), "ada@example.org", payload)
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, "msg-1", res.MessageID)
	assert.Equal(t, "Bearer SG.test", auth)
	assert.Equal(t, "Your civic match: meet Bo", request["subject"])
	from := request["from"].(map[string]interface{})
	assert.Equal(t, "matches@civic.example", from["email"])
	personalizations := request["personalizations"].([]interface{})
	to := personalizations[0].(map[string]interface{})["to"].([]interface{})
	assert.Equal(t, "ada@example.org", to[0].(map[string]interface{})["email"])

	tests := []struct {
		status int
		code   ErrorCode
	}{
		{http.StatusTooManyRequests, ErrorCodeRateLimited},
		{http.StatusBadRequest, ErrorCodeInvalidPayload},
		{http.StatusBadGateway, ErrorCodeServiceDown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			mu.Lock()
			status = tt.status
			mu.Unlock()
			res := sender.SendMatchNotification(context.Background(), "ada@example.org", payload)
			assert.False(t, res.Success)
			assert.Equal(t, tt.code, res.ErrorCode)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.True(t, apperrors.IsErrorType(res.Error, apperrors.ErrorTypeExternal))
		})
	}
}
