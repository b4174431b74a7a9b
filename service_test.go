package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/staffbridge/authcore/internal/accounts"
	"github.com/staffbridge/authcore/internal/challenge"
	"github.com/staffbridge/authcore/internal/rate"
	"github.com/staffbridge/authcore/internal/session"
	"github.com/staffbridge/authcore/tokens"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
	fail  bool
}

func (m *captureMailer) Send(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp gateway down")
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[to] = code
	m.sent++
	return nil
}

func (m *captureMailer) codeFor(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type fixture struct {
	service  *Service
	mr       *miniredis.Miniredis
	accounts *accounts.MemoryProvider
	mailer   *captureMailer
	chRepo   *challenge.MemoryRepository
	sessRepo *session.MemoryRepository
	sessions *session.Store
}

var testAccount = &accounts.Account{
	ID:           "acc-1",
	TenantID:     "tenant-acme",
	Email:        "alice@acme.test",
	Role:         "employee",
	Status:       "active",
	Active:       true,
	TenantActive: true,
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	chRepo := challenge.NewMemoryRepository()
	sessRepo := session.NewMemoryRepository()
	sessStore := session.NewStore(session.NewFastStore(client, ""), sessRepo)

	provider := accounts.NewMemoryProvider(testAccount)
	mailer := &captureMailer{}

	if cfg.Tokens.AccessTTL == 0 {
		cfg.Tokens = tokens.Config{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: tokens.MethodHS256,
			PrivateKey:    []byte("test-secret-at-least-32-bytes-long"),
		}
	}
	manager, err := tokens.NewManager(cfg.Tokens)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	svc, err := New(cfg, Deps{
		Challenges: challenge.NewStore(challenge.NewFastStore(client, ""), chRepo),
		Sessions:   sessStore,
		Limiter:    rate.New(client, "", rate.Config(cfg.RateLimit)),
		Accounts:   provider,
		Mailer:     mailer,
		Tokens:     manager,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Close)

	return &fixture{
		service:  svc,
		mr:       mr,
		accounts: provider,
		mailer:   mailer,
		chRepo:   chRepo,
		sessRepo: sessRepo,
		sessions: sessStore,
	}
}

func (f *fixture) login(t *testing.T, meta RequestMeta) (*VerifyResult, string) {
	t.Helper()
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", meta)
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)
	if code == "" {
		t.Fatal("no code was delivered")
	}

	result, err := f.service.VerifyCode(ctx, req.Token, "", code, meta)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	return result, req.Token
}

func TestLoginHappyPath(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	meta := RequestMeta{IPAddress: "203.0.113.7", UserAgent: "go-test/1.0"}

	result, _ := f.login(t, meta)

	if result.Account.Email != testAccount.Email {
		t.Errorf("account email = %q, want %q", result.Account.Email, testAccount.Email)
	}
	if result.Account.TenantID != testAccount.TenantID {
		t.Errorf("tenant = %q, want %q", result.Account.TenantID, testAccount.TenantID)
	}
	if result.SessionID == "" {
		t.Fatal("no session id")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Error("token pair missing")
	}
	if remaining := time.Until(result.ExpiresAt); remaining < 7*time.Hour {
		t.Errorf("session expiry too close: %v", remaining)
	}

	sess, err := f.service.GetSession(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.UserID != testAccount.ID {
		t.Errorf("session user = %q, want %q", sess.UserID, testAccount.ID)
	}
	if sess.DeviceFingerprint == "" {
		t.Error("fingerprint not set")
	}

	at, ip := f.accounts.LastLogin(testAccount.ID)
	if at.IsZero() || ip != meta.IPAddress {
		t.Errorf("last login = (%v, %q), want recorded with ip %q", at, ip, meta.IPAddress)
	}

	snap := f.service.MetricsSnapshot()
	if snap.LoginSuccess != 1 || snap.CodeRequests != 1 {
		t.Errorf("counters = %+v", snap)
	}
}

func TestVerifyByEmailWithoutToken(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{}); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)

	result, err := f.service.VerifyCode(ctx, "", testAccount.Email, code, RequestMeta{})
	if err != nil {
		t.Fatalf("VerifyCode by email: %v", err)
	}
	if result.SessionID == "" {
		t.Fatal("no session id")
	}
}

func TestChallengeSingleUse(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, token := f.login(t, RequestMeta{})
	code := f.mailer.codeFor(testAccount.Email)

	_, err := f.service.VerifyCode(ctx, token, "", code, RequestMeta{})
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("second redemption err = %v, want ErrInvalidCode", err)
	}
}

func TestWrongCodeCountsAttempts(t *testing.T) {
	f := newFixture(t, Config{
		Challenge: ChallengeConfig{MaxAttempts: 3},
		RateLimit: RateLimitConfig{MaxAttempts: 100},
	})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		_, err := f.service.VerifyCode(ctx, req.Token, "", wrong, RequestMeta{})
		var ice *InvalidCodeError
		if !errors.As(err, &ice) {
			t.Fatalf("attempt %d err = %v, want InvalidCodeError", i+1, err)
		}
		if want := 3 - i - 1; ice.AttemptsRemaining != want {
			t.Errorf("attempt %d remaining = %d, want %d", i+1, ice.AttemptsRemaining, want)
		}
		if !errors.Is(err, ErrInvalidCode) {
			t.Errorf("InvalidCodeError does not match ErrInvalidCode")
		}
	}

	// Budget is spent; even the right code is refused now.
	if _, err := f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{}); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("over-budget err = %v, want ErrAttemptsExceeded", err)
	}
}

func TestRateLimitBlocksBeforeCredentialCheck(t *testing.T) {
	f := newFixture(t, Config{
		Challenge: ChallengeConfig{MaxAttempts: 100},
		RateLimit: RateLimitConfig{Window: time.Minute, MaxAttempts: 5},
	})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 5; i++ {
		if _, err := f.service.VerifyCode(ctx, req.Token, "", wrong, RequestMeta{}); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d err = %v", i+1, err)
		}
	}

	// The window is exhausted; a correct code must not create a session.
	if _, err := f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("limited err = %v, want ErrRateLimited", err)
	}
	if f.service.MetricsSnapshot().LoginSuccess != 0 {
		t.Error("session created while rate limited")
	}

	// The window expires, the correct code works again.
	f.mr.FastForward(time.Minute + time.Second)
	if _, err := f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{}); err != nil {
		t.Fatalf("post-window verify: %v", err)
	}
}

func TestRateLimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)

	// Redis down kills the limiter and the fast tiers. The limiter fails
	// open so the flow continues; the login then stops at session
	// creation, which needs the fast tier, not at the limiter.
	f.mr.Close()

	if _, err := f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{}); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("outage verify err = %v, want ErrBackendUnavailable", err)
	}
	if f.service.MetricsSnapshot().DegradedRateLimit == 0 {
		t.Error("degraded-limiter counter not incremented")
	}
	if f.service.MetricsSnapshot().RateLimited != 0 {
		t.Error("outage must not read as rate limiting")
	}
}

func TestExpiredChallenge(t *testing.T) {
	f := newFixture(t, Config{Challenge: ChallengeConfig{TTL: 10 * time.Minute}})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)

	f.service.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	// Expiry reads as not-found, not as a credential failure.
	if _, err := f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{}); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expired err = %v, want ErrChallengeNotFound", err)
	}
}

func TestConcurrentRedemptionSingleWinner(t *testing.T) {
	f := newFixture(t, Config{RateLimit: RateLimitConfig{MaxAttempts: 100}})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{})
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidCode):
		default:
			t.Errorf("racer %d unexpected err: %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestUnknownEmailGetsDecoy(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, "nobody@acme.test", "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if req.Token == "" {
		t.Fatal("decoy must still return a token")
	}
	if f.mailer.sent != 0 {
		t.Error("mail sent for unknown account")
	}

	// The decoy token resolves to nothing.
	if _, err := f.service.VerifyCode(ctx, req.Token, "", "123456", RequestMeta{}); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("decoy verify err = %v, want ErrChallengeNotFound", err)
	}
}

func TestInactiveAccountGetsDecoy(t *testing.T) {
	f := newFixture(t, Config{})

	disabled := *testAccount
	disabled.ID = "acc-2"
	disabled.Email = "bob@acme.test"
	disabled.Active = false
	f.accounts.Put(&disabled)

	req, err := f.service.RequestCode(context.Background(), disabled.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if req.Token == "" {
		t.Fatal("decoy must still return a token")
	}
	if f.mailer.sent != 0 {
		t.Error("mail sent for disabled account")
	}
}

func TestAccountDisabledBetweenRequestAndVerify(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)

	disabled := *testAccount
	disabled.Active = false
	f.accounts.Put(&disabled)

	if _, err := f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("err = %v, want ErrAccountInactive", err)
	}
}

func TestTenantDisabledBetweenRequestAndVerify(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	req, err := f.service.RequestCode(ctx, testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.mailer.codeFor(testAccount.Email)

	suspended := *testAccount
	suspended.TenantActive = false
	f.accounts.Put(&suspended)

	if _, err := f.service.VerifyCode(ctx, req.Token, "", code, RequestMeta{}); !errors.Is(err, ErrTenantInactive) {
		t.Fatalf("err = %v, want ErrTenantInactive", err)
	}
}

func TestMailFailureStillCreatesChallenge(t *testing.T) {
	f := newFixture(t, Config{})
	f.mailer.fail = true

	req, err := f.service.RequestCode(context.Background(), testAccount.Email, "", RequestMeta{})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if req.Warning == "" {
		t.Error("expected delivery warning")
	}
	if f.service.MetricsSnapshot().MailFailures != 1 {
		t.Error("mail failure not counted")
	}
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	cases := []struct {
		name  string
		run   func() error
	}{
		{"bad email", func() error {
			_, err := f.service.RequestCode(ctx, "not-an-email", "", RequestMeta{})
			return err
		}},
		{"short code", func() error {
			_, err := f.service.VerifyCode(ctx, strings.Repeat("a", 64), "", "12345", RequestMeta{})
			return err
		}},
		{"alpha code", func() error {
			_, err := f.service.VerifyCode(ctx, strings.Repeat("a", 64), "", "12345a", RequestMeta{})
			return err
		}},
		{"no token no email", func() error {
			_, err := f.service.VerifyCode(ctx, "", "", "123456", RequestMeta{})
			return err
		}},
		{"short token", func() error {
			_, err := f.service.VerifyCode(ctx, "tiny", "", "123456", RequestMeta{})
			return err
		}},
		{"empty session logout", func() error {
			return f.service.Logout(ctx, "")
		}},
	}
	for _, tc := range cases {
		if err := tc.run(); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", tc.name, err)
		}
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	result, _ := f.login(t, RequestMeta{})

	if err := f.service.Logout(ctx, result.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.service.GetSession(ctx, result.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("post-logout GetSession err = %v, want ErrSessionNotFound", err)
	}
	if _, err := f.sessRepo.Find(ctx, result.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatal("durable session row survived logout")
	}
}
