package services

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/config"
	"github.com/dmitrijs2005/notekeeper/internal/server/keyvault"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/accesses"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/notes"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/recoveries"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/sharelinks"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/statistics"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

type grantKey struct{ note, user string }

// memStore is an in-memory stand-in for the database. Tables are plain maps
// guarded by mu; fail injects an error into a named repository call.
type memStore struct {
	mu         sync.Mutex
	users      map[string]models.User
	notes      map[string]models.Note
	grants     map[grantKey]models.AccessGrant
	links      map[string]models.ShareLink
	stats      map[string]models.Statistics
	recoveries map[string]models.Recovery
	fail       map[string]error
	seq        int
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]models.User{},
		notes:      map[string]models.Note{},
		grants:     map[grantKey]models.AccessGrant{},
		links:      map[string]models.ShareLink{},
		stats:      map[string]models.Statistics{},
		recoveries: map[string]models.Recovery{},
		fail:       map[string]error{},
	}
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

// check must be called with mu held.
func (s *memStore) check(op string) error {
	return s.fail[op]
}

type memSnapshot struct {
	users      map[string]models.User
	notes      map[string]models.Note
	grants     map[grantKey]models.AccessGrant
	links      map[string]models.ShareLink
	stats      map[string]models.Statistics
	recoveries map[string]models.Recovery
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		users:      maps.Clone(s.users),
		notes:      maps.Clone(s.notes),
		grants:     maps.Clone(s.grants),
		links:      maps.Clone(s.links),
		stats:      maps.Clone(s.stats),
		recoveries: maps.Clone(s.recoveries),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.notes, s.grants = snap.users, snap.notes, snap.grants
	s.links, s.stats, s.recoveries = snap.links, snap.stats, snap.recoveries
}

// memDB satisfies dbx.Database. Transactions are serialized and roll the
// store back to its snapshot on error.
type memDB struct {
	store *memStore
	txMu  sync.Mutex
}

func (d *memDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("memDB: raw SQL not supported")
}

func (d *memDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("memDB: raw SQL not supported")
}

func (d *memDB) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func (d *memDB) WithTx(ctx context.Context, _ *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	snap := d.store.snapshot()
	if err := fn(ctx, d); err != nil {
		d.store.restore(snap)
		return err
	}
	return nil
}

// memManager vends in-memory repositories regardless of the handle passed.
type memManager struct {
	store *memStore
}

func (m *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memManager) Users(dbx.DBTX) users.Repository { return memUsers{m.store} }
func (m *memManager) Notes(dbx.DBTX) notes.Repository { return memNotes{m.store} }
func (m *memManager) Accesses(dbx.DBTX) accesses.Repository { return memAccesses{m.store} }
func (m *memManager) ShareLinks(dbx.DBTX) sharelinks.Repository { return memLinks{m.store} }
func (m *memManager) Statistics(dbx.DBTX) statistics.Repository { return memStats{m.store} }
func (m *memManager) Recoveries(dbx.DBTX) recoveries.Repository { return memRecoveries{m.store} }

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("users.Create"); err != nil {
		return nil, err
	}
	for _, other := range r.s.users {
		if other.UserName == u.UserName || other.Email == u.Email {
			return nil, common.ErrorConflict
		}
	}
	c := *u
	c.CreatedAt = time.Now()
	r.s.users[c.ID] = c
	return &c, nil
}

func (r memUsers) find(pred func(models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if pred(u) {
			c := u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.UserName == username })
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r memUsers) SetRefreshHash(_ context.Context, id, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.RefreshHash = hash
	r.s.users[id] = u
	return nil
}

func (r memUsers) SwapRefreshHash(_ context.Context, id, oldHash, newHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || oldHash == "" || u.RefreshHash != oldHash {
		return false, nil
	}
	u.RefreshHash = newHash
	r.s.users[id] = u
	return true, nil
}

func (r memUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = passwordHash
	r.s.users[id] = u
	return nil
}

// Delete mirrors the ON DELETE CASCADE of the statistics and recovery rows.
func (r memUsers) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("users.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.users, id)
	delete(r.s.stats, id)
	delete(r.s.recoveries, id)
	return nil
}

func (r memUsers) ListNonAdminIDs(context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, u := range r.s.users {
		if !u.IsAdmin {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- notes ---

type memNotes struct{ s *memStore }

func (r memNotes) Create(_ context.Context, n *models.Note) (*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("notes.Create"); err != nil {
		return nil, err
	}
	r.s.seq++
	n.ID = uuid.NewString()
	n.CreatedAt = time.Unix(1_700_000_000, 0).Add(time.Duration(r.s.seq) * time.Second)
	r.s.notes[n.ID] = *n
	return n, nil
}

func (r memNotes) Get(_ context.Context, id string) (*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &n, nil
}

func (r memNotes) GetForUpdate(ctx context.Context, id string) (*models.Note, error) {
	return r.Get(ctx, id)
}

// accessFor must be called with mu held.
func (r memNotes) accessFor(n models.Note, userID string) *models.NoteAccess {
	na := &models.NoteAccess{Note: n}
	if n.OwnerID == userID {
		na.WrappedKey = n.OwnerKey
		na.Permission = models.PermissionReadWrite
		na.IsOwner = true
		return na
	}
	if g, ok := r.s.grants[grantKey{n.ID, userID}]; ok {
		na.WrappedKey = g.WrappedKey
		na.Permission = g.Permission
	}
	return na
}

func (r memNotes) GetForUser(_ context.Context, id, userID string) (*models.NoteAccess, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.accessFor(n, userID), nil
}

func (r memNotes) ListForUser(_ context.Context, userID string, limit, offset int) ([]*models.NoteAccess, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.NoteAccess
	for _, n := range r.s.notes {
		if na := r.accessFor(n, userID); na.WrappedKey != nil {
			out = append(out, na)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Note.CreatedAt.After(out[j].Note.CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r memNotes) ListIDsByOwner(_ context.Context, ownerID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, n := range r.s.notes {
		if n.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r memNotes) ListExpired(_ context.Context, now time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, n := range r.s.notes {
		if n.ActiveUntil != nil && !n.ActiveUntil.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r memNotes) Update(_ context.Context, n *models.Note) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.notes[n.ID]
	if !ok {
		return common.ErrorNotFound
	}
	cur.Header, cur.Text, cur.Tags = n.Header, n.Text, n.Tags
	cur.ActiveUntil, cur.EditedAt, cur.EditedBy = n.ActiveUntil, n.EditedAt, n.EditedBy
	r.s.notes[n.ID] = cur
	return nil
}

func (r memNotes) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("notes.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.notes[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.notes, id)
	return nil
}

// --- accesses ---

type memAccesses struct{ s *memStore }

func (r memAccesses) Upsert(_ context.Context, g *models.AccessGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("accesses.Upsert"); err != nil {
		return err
	}
	r.s.grants[grantKey{g.NoteID, g.UserID}] = *g
	return nil
}

func (r memAccesses) Get(_ context.Context, noteID, userID string) (*models.AccessGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[grantKey{noteID, userID}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &g, nil
}

func (r memAccesses) UpdatePermission(_ context.Context, noteID, userID string, p models.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := grantKey{noteID, userID}
	g, ok := r.s.grants[k]
	if !ok {
		return common.ErrorNotFound
	}
	g.Permission = p
	r.s.grants[k] = g
	return nil
}

func (r memAccesses) Delete(_ context.Context, noteID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := grantKey{noteID, userID}
	if _, ok := r.s.grants[k]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.grants, k)
	return nil
}

func (r memAccesses) DeleteByNote(_ context.Context, noteID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k := range r.s.grants {
		if k.note == noteID {
			delete(r.s.grants, k)
		}
	}
	return nil
}

func (r memAccesses) DeleteByUser(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k := range r.s.grants {
		if k.user == userID {
			delete(r.s.grants, k)
		}
	}
	return nil
}

// --- share links ---

type memLinks struct{ s *memStore }

func (r memLinks) Create(_ context.Context, l *models.ShareLink) (*models.ShareLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.links[l.NoteID]; ok {
		return nil, common.ErrorConflict
	}
	c := *l
	c.CreatedAt = time.Now()
	r.s.links[l.NoteID] = c
	return &c, nil
}

func (r memLinks) GetByNote(_ context.Context, noteID string) (*models.ShareLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.links[noteID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &l, nil
}

func (r memLinks) Delete(_ context.Context, noteID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.links[noteID]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.links, noteID)
	return nil
}

func (r memLinks) DeleteByNote(_ context.Context, noteID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.links, noteID)
	return nil
}

// --- statistics ---

type memStats struct{ s *memStore }

func (r memStats) Create(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check("statistics.Create"); err != nil {
		return err
	}
	if _, ok := r.s.stats[userID]; ok {
		return common.ErrorConflict
	}
	r.s.stats[userID] = models.Statistics{UserID: userID}
	return nil
}

func (r memStats) Get(_ context.Context, userID string) (*models.Statistics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stats[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &st, nil
}

func (r memStats) Increment(_ context.Context, userID string, c statistics.Counter, n int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stats[userID]
	if !ok {
		return common.ErrorNotFound
	}
	switch c {
	case statistics.NotesCreated:
		st.NotesCreated += n
	case statistics.NotesRead:
		st.NotesRead += n
	case statistics.NotesDeleted:
		st.NotesDeleted += n
	default:
		return common.ErrorInvalidArgument
	}
	r.s.stats[userID] = st
	return nil
}

// --- recoveries ---

type memRecoveries struct{ s *memStore }

func (r memRecoveries) Upsert(_ context.Context, rec *models.Recovery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.recoveries[rec.UserID] = *rec
	return nil
}

func (r memRecoveries) Get(_ context.Context, userID string) (*models.Recovery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recoveries[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rec, nil
}

func (r memRecoveries) Delete(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.recoveries[userID]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.recoveries, userID)
	return nil
}

func (r memRecoveries) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, rec := range r.s.recoveries {
		if !rec.ExpiresAt.After(now) {
			delete(r.s.recoveries, id)
			n++
		}
	}
	return n, nil
}

// --- environment ---

type sentMessage struct{ address, text string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, address, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{address, text})
	return nil
}

// env wires every service over one memStore and a file-backed vault with
// small keys.
type env struct {
	store    *memStore
	db       *memDB
	vault    *keyvault.Vault
	notifier *fakeNotifier
	cfg      *config.Config

	users    *UserService
	sessions *SessionService
	notes    *NoteService
	access   *AccessService
	shares   *ShareService
	admin    *AdminService
	reaper   *ExpiryReaper
}

const testKeyBits = 1024

func newEnv(t *testing.T) *env {
	t.Helper()

	fs, err := keyvault.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-access-secret"
	cfg.AccessTokenValidityDuration = time.Minute
	cfg.RefreshTokenValidityDuration = time.Hour
	cfg.BaseURL = "https://notes.test/"

	store := newMemStore()
	db := &memDB{store: store}
	m := &memManager{store: store}
	vault := keyvault.NewVault(fs, testKeyBits, logging.Nop())
	notifier := &fakeNotifier{}
	log := logging.Nop()

	return &env{
		store:    store,
		db:       db,
		vault:    vault,
		notifier: notifier,
		cfg:      cfg,
		users:    NewUserService(db, m, vault, notifier, cfg, log),
		sessions: NewSessionService(db, m, vault, cfg, log),
		notes:    NewNoteService(db, m, vault, log),
		access:   NewAccessService(db, m, vault, log),
		shares:   NewShareService(db, m, vault, cfg.BaseURL, log),
		admin:    NewAdminService(db, m, vault, log),
		reaper:   NewExpiryReaper(db, m, time.Millisecond, log),
	}
}

func (e *env) signUp(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.users.SignUp(context.Background(), SignUpInput{
		UserName: name,
		Email:    name + "@example.com",
		Password: "password1",
	})
	require.NoError(t, err)
	return u
}

func (e *env) createNote(t *testing.T, owner *models.User, header, text, tags string) *NoteView {
	t.Helper()
	v, err := e.notes.Create(context.Background(), owner.ID, NoteInput{Header: header, Text: text, Tags: tags})
	require.NoError(t, err)
	return v
}
