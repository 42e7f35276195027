package mailauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/flow"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/oauth"
)

/*
Fakes. The attempt and token stores are map-backed; the exchanger and
dispatcher record calls so tests can assert exactly what went over the wire.
*/

type fakeAttemptStore struct {
	mu       sync.Mutex
	seq      int
	attempts map[string]AttemptData
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]AttemptData)}
}

func (s *fakeAttemptStore) Create(ctx context.Context, data AttemptData) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	state := fmt.Sprintf("state-%d", s.seq)
	s.attempts[state] = data
	return state, nil
}

func (s *fakeAttemptStore) Peek(ctx context.Context, state string) (AttemptData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.attempts[state]
	if !ok {
		return AttemptData{}, domain.ErrAttemptNotFound()
	}
	return data, nil
}

func (s *fakeAttemptStore) Consume(ctx context.Context, state string) (AttemptData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.attempts[state]
	if !ok {
		return AttemptData{}, domain.ErrAttemptNotFound()
	}
	delete(s.attempts, state)
	return data, nil
}

type fakeTokenStore struct {
	mu       sync.Mutex
	tokens   map[domain.IdentityKey]domain.AuthTokens
	userInfo map[domain.IdentityKey]domain.UserInfo
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		tokens:   make(map[domain.IdentityKey]domain.AuthTokens),
		userInfo: make(map[domain.IdentityKey]domain.UserInfo),
	}
}

func (s *fakeTokenStore) PutTokens(ctx context.Context, key domain.IdentityKey, t domain.AuthTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = t
	return nil
}

func (s *fakeTokenStore) GetTokens(ctx context.Context, key domain.IdentityKey) (*domain.AuthTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[key]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (s *fakeTokenStore) PutUserInfo(ctx context.Context, key domain.IdentityKey, u domain.UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInfo[key] = u
	return nil
}

func (s *fakeTokenStore) GetUserInfo(ctx context.Context, key domain.IdentityKey) (*domain.UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userInfo[key]
	if !ok {
		return nil, nil
	}
	cp := u
	return &cp, nil
}

func (s *fakeTokenStore) Clear(ctx context.Context, key domain.IdentityKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	delete(s.userInfo, key)
	return nil
}

type fakeExchanger struct {
	mu           sync.Mutex
	exchanged    []string // codes
	refreshed    []string // refresh tokens
	refreshDelay time.Duration

	exchangeTokens domain.AuthTokens
	refreshTokens  domain.AuthTokens
	refreshErr     error
	userInfo       domain.UserInfo
}

func (e *fakeExchanger) Exchange(ctx context.Context, p oauth.Provider, code, verifier string) (domain.AuthTokens, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exchanged = append(e.exchanged, code)
	return e.exchangeTokens, nil
}

func (e *fakeExchanger) Refresh(ctx context.Context, p oauth.Provider, refreshToken string) (domain.AuthTokens, error) {
	if e.refreshDelay > 0 {
		time.Sleep(e.refreshDelay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshed = append(e.refreshed, refreshToken)
	if e.refreshErr != nil {
		return domain.AuthTokens{}, e.refreshErr
	}
	return e.refreshTokens, nil
}

func (e *fakeExchanger) FetchUserInfo(ctx context.Context, p oauth.Provider, accessToken string) (domain.UserInfo, error) {
	return e.userInfo, nil
}

func (e *fakeExchanger) refreshCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.refreshed)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sends []string // access tokens used
}

func (d *fakeDispatcher) Send(ctx context.Context, accessToken string, provider domain.Provider, msg domain.MailMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends = append(d.sends, accessToken)
	return nil
}

type spyChallengeSource struct {
	calls int32
}

func (s *spyChallengeSource) Generate() (oauth.Challenge, error) {
	atomic.AddInt32(&s.calls, 1)
	return oauth.Challenge{Verifier: "test-verifier", Challenge: "test-challenge"}, nil
}

type testDeps struct {
	svc       *Service
	attempts  *fakeAttemptStore
	tokens    *fakeTokenStore
	exchanger *fakeExchanger
	dispatch  *fakeDispatcher
	pkce      *spyChallengeSource
}

func newTestService(t *testing.T, opts ...func(*testDeps)) *testDeps {
	t.Helper()

	d := &testDeps{
		attempts:  newFakeAttemptStore(),
		tokens:    newFakeTokenStore(),
		exchanger: &fakeExchanger{},
		dispatch:  &fakeDispatcher{},
		pkce:      &spyChallengeSource{},
	}

	providers := oauth.NewRegistry(
		oauth.NewGoogleProvider("google-client-id", "https://app.example.com/callback"),
		oauth.NewMicrosoftProvider("ms-client-id", "https://app.example.com/callback"),
	)
	controller := flow.NewController(2*time.Second, 5*time.Millisecond, zerolog.Nop())

	d.svc = NewService(
		providers,
		d.pkce,
		d.attempts,
		controller,
		d.exchanger,
		d.tokens,
		d.dispatch,
		nil,
		Config{RefreshSoonSkew: 5 * time.Minute},
		zerolog.Nop(),
	)

	for _, o := range opts {
		o(d)
	}
	return d
}

/*
Connect flow
*/

func TestConnect_HappyPath(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	d.exchanger.exchangeTokens = domain.AuthTokens{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600, ExpiresAt: time.Now().Add(time.Hour)}
	d.exchanger.userInfo = domain.UserInfo{ID: "u1", Email: "user@example.com"}
	ctx := context.Background()

	start, err := d.svc.StartConnect(ctx, "de", "google")
	if err != nil {
		t.Fatalf("start err: %v", err)
	}
	if start.AuthURL == "" || start.AttemptID == "" {
		t.Fatalf("incomplete start: %+v", start)
	}

	resCh := make(chan *ConnectResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := d.svc.AwaitResult(ctx, start.AttemptID)
		if err != nil {
			errCh <- err
			return
		}
		resCh <- res
	}()

	if err := d.svc.DeliverCallback(ctx, CallbackInput{State: start.AttemptID, Code: "auth-code"}); err != nil {
		t.Fatalf("deliver err: %v", err)
	}

	select {
	case res := <-resCh:
		if res.UserInfo.Email != "user@example.com" {
			t.Fatalf("user info = %+v", res.UserInfo)
		}
	case err := <-errCh:
		t.Fatalf("await err: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("await did not resolve")
	}

	key := domain.NewIdentityKey("de", domain.ProviderGoogle)
	stored, _ := d.tokens.GetTokens(ctx, key)
	if stored == nil || stored.AccessToken != "at" {
		t.Fatalf("tokens not persisted: %+v", stored)
	}
	info, _ := d.tokens.GetUserInfo(ctx, key)
	if info == nil || info.ID != "u1" {
		t.Fatalf("user info not persisted: %+v", info)
	}

	// The exchange consumed the one-time attempt.
	if _, err := d.attempts.Peek(ctx, start.AttemptID); !domain.Is(err, "attempt_not_found") {
		t.Fatalf("attempt survived consume: %v", err)
	}
}

func TestConnect_CancelThenSendRequiresReauth(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()

	start, err := d.svc.StartConnect(ctx, "de", "google")
	if err != nil {
		t.Fatalf("start err: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := d.svc.AwaitResult(ctx, start.AttemptID)
		errCh <- err
	}()

	if err := d.svc.CancelAttempt(ctx, start.AttemptID, ""); err != nil {
		t.Fatalf("cancel err: %v", err)
	}

	select {
	case err := <-errCh:
		if !domain.Is(err, "auth_cancelled") {
			t.Fatalf("await err = %v, want auth_cancelled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("await did not resolve after cancel")
	}

	if _, err := d.svc.ValidAccessToken(ctx, "de", "google"); !domain.Is(err, "reauth_required") {
		t.Fatalf("token after cancel = %v, want reauth_required", err)
	}
}

func TestConnect_PopupBlockedViaCancelReason(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()

	start, err := d.svc.StartConnect(ctx, "de", "microsoft")
	if err != nil {
		t.Fatalf("start err: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := d.svc.AwaitResult(ctx, start.AttemptID)
		errCh <- err
	}()

	if err := d.svc.CancelAttempt(ctx, start.AttemptID, "blocked"); err != nil {
		t.Fatalf("cancel err: %v", err)
	}

	select {
	case err := <-errCh:
		if !domain.Is(err, "popup_blocked") {
			t.Fatalf("await err = %v, want popup_blocked", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("await did not resolve")
	}
}

func TestConnect_ProviderErrorCallback(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()

	start, err := d.svc.StartConnect(ctx, "de", "google")
	if err != nil {
		t.Fatalf("start err: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := d.svc.AwaitResult(ctx, start.AttemptID)
		errCh <- err
	}()

	in := CallbackInput{State: start.AttemptID, ErrorCode: "access_denied", ErrorDescription: "user denied"}
	if err := d.svc.DeliverCallback(ctx, in); err != nil {
		t.Fatalf("deliver err: %v", err)
	}

	select {
	case err := <-errCh:
		if !domain.Is(err, "auth_failed") {
			t.Fatalf("await err = %v, want auth_failed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("await did not resolve")
	}

	if len(d.exchanger.exchanged) != 0 {
		t.Fatalf("exchange must not run after provider error")
	}
}

func TestConnect_ForgedStateIsRejected(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	err := d.svc.DeliverCallback(context.Background(), CallbackInput{State: "forged", Code: "c"})
	if !domain.Is(err, "attempt_not_found") {
		t.Fatalf("err = %v, want attempt_not_found", err)
	}
}

func TestStartConnect_PlaceholderClientID_SkipsPKCE(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	providers := oauth.NewRegistry(
		oauth.NewGoogleProvider("YOUR_GOOGLE_CLIENT_ID", "https://app.example.com/callback"),
	)
	d.svc.providers = providers

	_, err := d.svc.StartConnect(context.Background(), "de", "google")
	if !domain.Is(err, "oauth_not_configured") {
		t.Fatalf("err = %v, want oauth_not_configured", err)
	}
	if atomic.LoadInt32(&d.pkce.calls) != 0 {
		t.Fatalf("pkce source touched despite config failure")
	}
}

func TestStartConnect_UnsupportedProvider(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	if _, err := d.svc.StartConnect(context.Background(), "de", "yahoo"); !domain.Is(err, "unsupported_provider") {
		t.Fatalf("err = %v, want unsupported_provider", err)
	}
}

/*
Token lifecycle
*/

func microsoftKey() domain.IdentityKey {
	return domain.NewIdentityKey("de", domain.ProviderMicrosoft)
}

func TestValidAccessToken_FreshTokenPassesThrough(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()
	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "fresh", ExpiresAt: time.Now().Add(time.Hour),
	})

	tok, err := d.svc.ValidAccessToken(ctx, "de", "microsoft")
	if err != nil || tok != "fresh" {
		t.Fatalf("tok=%q err=%v", tok, err)
	}
	if d.exchanger.refreshCount() != 0 {
		t.Fatalf("refresh ran for a fresh token")
	}
}

func TestValidAccessToken_MicrosoftRefresh(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	d.exchanger.refreshTokens = domain.AuthTokens{
		AccessToken: "new-at", ExpiresAt: time.Now().Add(time.Hour),
	}
	ctx := context.Background()
	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "old-at", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(-time.Minute),
	})

	tok, err := d.svc.ValidAccessToken(ctx, "de", "microsoft")
	if err != nil || tok != "new-at" {
		t.Fatalf("tok=%q err=%v", tok, err)
	}
	if got := d.exchanger.refreshed; len(got) != 1 || got[0] != "rt-1" {
		t.Fatalf("refreshed = %v", got)
	}

	// Response omitted a rotated refresh token; the old one must survive.
	stored, _ := d.tokens.GetTokens(ctx, microsoftKey())
	if stored.RefreshToken != "rt-1" {
		t.Fatalf("refresh token not retained: %+v", stored)
	}
}

func TestValidAccessToken_GoogleExpired_FailsClosed(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()
	key := domain.NewIdentityKey("de", domain.ProviderGoogle)
	_ = d.tokens.PutTokens(ctx, key, domain.AuthTokens{
		AccessToken: "old", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute),
	})

	_, err := d.svc.ValidAccessToken(ctx, "de", "google")
	if !domain.Is(err, "reauth_required") {
		t.Fatalf("err = %v, want reauth_required", err)
	}
	// Even with a refresh token on file, no provider call may be made.
	if d.exchanger.refreshCount() != 0 {
		t.Fatalf("google token was refreshed")
	}
	if stored, _ := d.tokens.GetTokens(ctx, key); stored != nil {
		t.Fatalf("expired google tokens not cleared")
	}
}

func TestValidAccessToken_RefreshDenied_ClearsStorage(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	d.exchanger.refreshErr = domain.ErrAuthFailed(errors.New("invalid_grant"))
	ctx := context.Background()
	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "old", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute),
	})

	_, err := d.svc.ValidAccessToken(ctx, "de", "microsoft")
	if !domain.Is(err, "reauth_required") {
		t.Fatalf("err = %v, want reauth_required", err)
	}
	if stored, _ := d.tokens.GetTokens(ctx, microsoftKey()); stored != nil {
		t.Fatalf("denied refresh left tokens behind")
	}
}

func TestValidAccessToken_RefreshNetworkError(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	d.exchanger.refreshErr = domain.ErrNetwork(errors.New("connection refused"))
	ctx := context.Background()
	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "old", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute),
	})

	_, err := d.svc.ValidAccessToken(ctx, "de", "microsoft")
	if !domain.Is(err, "refresh_failed") {
		t.Fatalf("err = %v, want refresh_failed", err)
	}
}

func TestValidAccessToken_ConcurrentRefreshRunsOnce(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	d.exchanger.refreshDelay = 50 * time.Millisecond
	d.exchanger.refreshTokens = domain.AuthTokens{
		AccessToken: "new-at", RefreshToken: "rt-2", ExpiresAt: time.Now().Add(time.Hour),
	}
	ctx := context.Background()
	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "old", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(-time.Minute),
	})

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := d.svc.ValidAccessToken(ctx, "de", "microsoft")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = tok
		}(i)
	}
	wg.Wait()

	if got := d.exchanger.refreshCount(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	for i, tok := range results {
		if tok != "new-at" {
			t.Fatalf("caller %d got %q", i, tok)
		}
	}
}

func TestExpiringSoon(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()

	// absent key reports false, not an error
	soon, err := d.svc.ExpiringSoon(ctx, "de", "microsoft")
	if err != nil || soon {
		t.Fatalf("absent: soon=%v err=%v", soon, err)
	}

	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "at", ExpiresAt: time.Now().Add(2 * time.Minute),
	})
	soon, err = d.svc.ExpiringSoon(ctx, "de", "microsoft")
	if err != nil || !soon {
		t.Fatalf("2m out with 5m skew: soon=%v err=%v", soon, err)
	}
}

/*
Send and status
*/

func TestSendMail_UsesValidToken(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()
	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour),
	})

	msg := domain.MailMessage{To: []string{"a@example.com"}, Subject: "s", HTMLBody: "b"}
	if err := d.svc.SendMail(ctx, "de", "microsoft", msg); err != nil {
		t.Fatalf("send err: %v", err)
	}
	if len(d.dispatch.sends) != 1 || d.dispatch.sends[0] != "at" {
		t.Fatalf("dispatcher sends = %v", d.dispatch.sends)
	}
}

func TestSendMail_Disconnected(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	msg := domain.MailMessage{To: []string{"a@example.com"}, Subject: "s", HTMLBody: "b"}
	err := d.svc.SendMail(context.Background(), "de", "microsoft", msg)
	if !domain.Is(err, "reauth_required") {
		t.Fatalf("err = %v, want reauth_required", err)
	}
	if len(d.dispatch.sends) != 0 {
		t.Fatalf("dispatcher called without credentials")
	}
}

func TestConnectionStatus(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()

	st, err := d.svc.ConnectionStatus(ctx, "de", "microsoft")
	if err != nil || st.Connected {
		t.Fatalf("disconnected status = %+v err=%v", st, err)
	}

	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{
		AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour),
	})
	_ = d.tokens.PutUserInfo(ctx, microsoftKey(), domain.UserInfo{ID: "u1", Email: "a@b.c"})

	st, err = d.svc.ConnectionStatus(ctx, "de", "microsoft")
	if err != nil || !st.Connected || st.ExpiringSoon {
		t.Fatalf("connected status = %+v err=%v", st, err)
	}
	if st.UserInfo == nil || st.UserInfo.Email != "a@b.c" {
		t.Fatalf("user info = %+v", st.UserInfo)
	}
}

func TestDisconnect_ClearsEverything(t *testing.T) {
	t.Parallel()

	d := newTestService(t)
	ctx := context.Background()
	_ = d.tokens.PutTokens(ctx, microsoftKey(), domain.AuthTokens{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour)})
	_ = d.tokens.PutUserInfo(ctx, microsoftKey(), domain.UserInfo{ID: "u1"})

	if err := d.svc.Disconnect(ctx, "de", "microsoft"); err != nil {
		t.Fatalf("disconnect err: %v", err)
	}

	st, err := d.svc.ConnectionStatus(ctx, "de", "microsoft")
	if err != nil || st.Connected {
		t.Fatalf("status after disconnect = %+v err=%v", st, err)
	}
}
