package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/otps"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/principals"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/resettokens"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// newTestDB returns a real *sql.DB so dbx.WithTx can begin and commit.
// The fake repositories below ignore the handle and keep state in memory.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AccessSecret = "test-access-secret"
	cfg.RefreshSecret = "test-refresh-secret"
	return cfg
}

var cheapHash = cryptox.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 8, KeyLen: 16}

// --- refresh tokens ---

type memRefreshRepo struct {
	mu   sync.Mutex
	seq  int
	rows []*models.RefreshToken

	createErr error
	findErr   error
}

func (r *memRefreshRepo) Create(_ context.Context, t *models.RefreshToken) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.seq++
	cp := *t
	cp.ID = fmt.Sprintf("rt-%d", r.seq)
	r.rows = append(r.rows, &cp)
	t.ID = cp.ID
	return t, nil
}

func (r *memRefreshRepo) FindActive(_ context.Context, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for i := len(r.rows) - 1; i >= 0; i-- {
		if row := r.rows[i]; row.Token == token && !row.Revoked {
			cp := *row
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memRefreshRepo) FindLatestValid(_ context.Context, userID string, now time.Time) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var best *models.RefreshToken
	for _, row := range r.rows {
		if row.UserID != userID || row.Revoked || !row.ExpiresAt.After(now) {
			continue
		}
		if best == nil || !row.CreatedAt.Before(best.CreatedAt) {
			best = row
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *memRefreshRepo) Revoke(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id && !row.Revoked {
			row.Revoked = true
			return true, nil
		}
	}
	return false, nil
}

func (r *memRefreshRepo) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.UserID == userID && !row.Revoked {
			row.Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *memRefreshRepo) byToken(token string) *models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Token == token {
			cp := *row
			return &cp
		}
	}
	return nil
}

// --- otps ---

type memOTPRepo struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*models.OTP

	createErr error
	// consumedElsewhere makes Delete behave as if a concurrent verify won.
	consumedElsewhere bool
}

func newMemOTPRepo() *memOTPRepo { return &memOTPRepo{rows: map[string]*models.OTP{}} }

func (r *memOTPRepo) DeleteByEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, o := range r.rows {
		if o.Email == email {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *memOTPRepo) Create(_ context.Context, o *models.OTP) (*models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.seq++
	o.ID = fmt.Sprintf("otp-%d", r.seq)
	cp := *o
	r.rows[o.ID] = &cp
	return o, nil
}

func (r *memOTPRepo) FindByEmail(_ context.Context, email string) (*models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*models.OTP
	for _, o := range r.rows {
		if o.Email == email {
			found = append(found, o)
		}
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	cp := *found[0]
	return &cp, nil
}

func (r *memOTPRepo) Delete(_ context.Context, o *models.OTP) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[o.ID]; !ok {
		return false, nil
	}
	delete(r.rows, o.ID)
	return !r.consumedElsewhere, nil
}

func (r *memOTPRepo) IncrementAttempts(_ context.Context, o *models.OTP) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[o.ID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	row.Attempts++
	return row.Attempts, nil
}

func (r *memOTPRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, o := range r.rows {
		if o.Expired(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memOTPRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- reset tokens ---

type memResetRepo struct {
	mu   sync.Mutex
	seq  int
	rows []*models.ResetToken

	createErr error
}

func (r *memResetRepo) Create(_ context.Context, t *models.ResetToken) (*models.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.seq++
	t.ID = fmt.Sprintf("rs-%d", r.seq)
	cp := *t
	r.rows = append(r.rows, &cp)
	return t, nil
}

func (r *memResetRepo) FindLatestByEmail(_ context.Context, email string) (*models.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].Email == email {
			cp := *r.rows[i]
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memResetRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memResetRepo) MarkUsed(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id && !row.Used {
			row.Used = true
			return true, nil
		}
	}
	return false, nil
}

func (r *memResetRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	var n int64
	for _, row := range r.rows {
		if row.Expired(now) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

// --- principals ---

type memPrincipalRepo struct {
	mu      sync.Mutex
	kind    models.PrincipalKind
	rows    map[string]*models.Principal
	findErr error
}

func newMemPrincipalRepo(kind models.PrincipalKind) *memPrincipalRepo {
	return &memPrincipalRepo{kind: kind, rows: map[string]*models.Principal{}}
}

func (r *memPrincipalRepo) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.rows[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPrincipalRepo) Create(_ context.Context, p *models.Principal) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = fmt.Sprintf("%s-%d", r.kind, len(r.rows)+1)
	p.Kind = r.kind
	cp := *p
	r.rows[p.Email] = &cp
	return p, nil
}

func (r *memPrincipalRepo) UpdatePassword(_ context.Context, email, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[email]
	if !ok {
		return common.ErrorNotFound
	}
	p.PasswordHash = hash
	return nil
}

func (r *memPrincipalRepo) add(email, password string) *models.Principal {
	hash, err := cryptox.HashPassword([]byte(password), cheapHash)
	if err != nil {
		panic(err)
	}
	p, _ := r.Create(context.Background(), &models.Principal{Email: email, Name: email, PasswordHash: hash})
	return p
}

// --- manager ---

type fakeRepoManager struct {
	refresh *memRefreshRepo
	otp     *memOTPRepo
	reset   *memResetRepo
	users   *memPrincipalRepo
	agents  *memPrincipalRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		refresh: &memRefreshRepo{},
		otp:     newMemOTPRepo(),
		reset:   &memResetRepo{},
		users:   newMemPrincipalRepo(models.PrincipalUser),
		agents:  newMemPrincipalRepo(models.PrincipalAgent),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRepoManager) OTPs(dbx.DBTX) otps.Repository                   { return m.otp }
func (m *fakeRepoManager) ResetTokens(dbx.DBTX) resettokens.Repository     { return m.reset }
func (m *fakeRepoManager) Principals(_ dbx.DBTX, kind models.PrincipalKind) principals.Repository {
	if kind == models.PrincipalAgent {
		return m.agents
	}
	return m.users
}
