package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobdeck/internal/config"
	"jobdeck/internal/extract"
	"jobdeck/internal/mailbox"
	"jobdeck/internal/notify"
	"jobdeck/internal/store"
)

type fakeMailbox struct {
	emails  []mailbox.RawEmail
	listErr error

	mu        sync.Mutex
	disposed  []imap.UID
	loggedOut bool
}

func (f *fakeMailbox) ListCandidates(ctx context.Context, window time.Duration, max int) ([]imap.UID, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	uids := make([]imap.UID, 0, len(f.emails))
	for _, em := range f.emails {
		uids = append(uids, em.UID)
	}
	return uids, nil
}

func (f *fakeMailbox) FetchDetails(ctx context.Context, uids []imap.UID, opts mailbox.FetchOpts) ([]mailbox.RawEmail, error) {
	return f.emails, nil
}

func (f *fakeMailbox) Dispose(uid imap.UID, policy mailbox.DisposePolicy, archiveMailbox string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed = append(f.disposed, uid)
	return nil
}

func (f *fakeMailbox) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
}

type fakeExtractor struct {
	calls   atomic.Int32
	byMsgID map[string][]extract.Candidate
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, in extract.EmailContext) ([]extract.Candidate, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	// Keyed by subject since EmailContext carries no message id.
	return f.byMsgID[in.Subject], nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []notify.JobSummary
	chats []string
}

func (f *fakeNotifier) Notify(ctx context.Context, chatID string, job notify.JobSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, job)
	f.chats = append(f.chats, chatID)
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Mailbox.Enabled = true
	cfg.Mailbox.BatchDelayMS = 0
	cfg.Extractor.MinRelevance = 0
	return cfg
}

func newTestRunner(t *testing.T, cfg config.Config, mb Mailbox, ex extract.Extractor, n notify.Notifier) (*Runner, *sql.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))
	require.NoError(t, store.SeedSystemStages(context.Background(), db))

	var cfgVal atomic.Value
	cfgVal.Store(cfg)

	return &Runner{
		DB:     db,
		CfgVal: &cfgVal,
		Connect: func(ctx context.Context, cfg config.Config) (Mailbox, error) {
			return mb, nil
		},
		Extractor: ex,
		Notifier:  n,
	}, db
}

func relptr(f float64) *float64 { return &f }

func TestRunOnceEndToEnd(t *testing.T) {
	mb := &fakeMailbox{emails: []mailbox.RawEmail{
		{UID: 1, MessageID: "<m1@alerts>", Subject: "one job", From: "alerts@jobs.example", Body: "..."},
		{UID: 2, MessageID: "<m2@alerts>", Subject: "no jobs", From: "alerts@jobs.example", Body: "..."},
	}}
	ex := &fakeExtractor{byMsgID: map[string][]extract.Candidate{
		"one job": {{
			Title: "SRE", Company: "Acme", URL: "https://acme.com/jobs/1",
			Source: "email", Relevance: relptr(0.9),
		}},
		"no jobs": {},
	}}
	r, db := newTestRunner(t, testConfig(), mb, ex, nil)

	stats, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{EmailsProcessed: 2, JobsInserted: 1}, stats)

	jobs, page, err := store.ListJobs(context.Background(), db, store.ListJobsOpts{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "SRE", jobs[0].Title)

	// Both messages land in the ledger, even the one with zero candidates.
	ledger, err := store.ListProcessedEmails(context.Background(), db, 10)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)

	assert.ElementsMatch(t, []imap.UID{1, 2}, mb.disposed)
	assert.True(t, mb.loggedOut)

	st := r.Status()
	assert.False(t, st.Running)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, st.LastError)
	assert.Equal(t, 2, st.LastEmailsProcessed)
	assert.Equal(t, 1, st.LastJobsInserted)
}

func TestRunOnceSecondRunSkipsProcessed(t *testing.T) {
	mb := &fakeMailbox{emails: []mailbox.RawEmail{
		{UID: 1, MessageID: "<m1@alerts>", Subject: "one job", From: "alerts@jobs.example", Body: "..."},
	}}
	ex := &fakeExtractor{byMsgID: map[string][]extract.Candidate{
		"one job": {{Title: "SRE", Company: "Acme", URL: "https://acme.com/jobs/1", Source: "email"}},
	}}
	r, _ := newTestRunner(t, testConfig(), mb, ex, nil)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), ex.calls.Load())

	// Same mailbox contents again: the ledger blocks reprocessing and the
	// extractor is never called for a processed message id. The message is
	// still disposed, so one that survived a failed disposal does not get
	// re-listed and re-fetched forever.
	mb.disposed = nil
	stats, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, int32(1), ex.calls.Load())
	assert.Equal(t, []imap.UID{1}, mb.disposed)
}

func TestRunOnceConnectContextHasNoDialDeadline(t *testing.T) {
	mb := &fakeMailbox{emails: []mailbox.RawEmail{
		{UID: 1, MessageID: "<m1@alerts>", Subject: "one job", From: "alerts@jobs.example", Body: "..."},
	}}
	ex := &fakeExtractor{byMsgID: map[string][]extract.Candidate{"one job": {}}}
	r, _ := newTestRunner(t, testConfig(), mb, ex, nil)

	// The connection must stay usable through the disposing phase: any
	// setup timeout belongs inside the dialer, never on the run context
	// handed to Connect.
	var gotCtx context.Context
	r.Connect = func(ctx context.Context, cfg config.Config) (Mailbox, error) {
		gotCtx = ctx
		return mb, nil
	}

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, gotCtx)
	_, hasDeadline := gotCtx.Deadline()
	assert.False(t, hasDeadline)
}

func TestRunOnceExtractorFailureStillRecords(t *testing.T) {
	mb := &fakeMailbox{emails: []mailbox.RawEmail{
		{UID: 1, MessageID: "<m1@alerts>", Subject: "poison", From: "alerts@jobs.example", Body: "..."},
	}}
	ex := &fakeExtractor{err: errors.New("model unavailable")}
	r, db := newTestRunner(t, testConfig(), mb, ex, nil)

	stats, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{EmailsProcessed: 1, JobsInserted: 0}, stats)

	// The poison message is in the ledger so it cannot loop forever.
	seen, err := store.HasProcessed(context.Background(), db, "<m1@alerts>")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunOnceRelevanceFilter(t *testing.T) {
	mb := &fakeMailbox{emails: []mailbox.RawEmail{
		{UID: 1, MessageID: "<m1@alerts>", Subject: "mixed", From: "alerts@jobs.example", Body: "..."},
	}}
	ex := &fakeExtractor{byMsgID: map[string][]extract.Candidate{
		"mixed": {
			{Title: "Good", Company: "Acme", URL: "https://acme.com/jobs/1", Source: "email", Relevance: relptr(0.8)},
			{Title: "Bad", Company: "Acme", URL: "https://acme.com/jobs/2", Source: "email", Relevance: relptr(0.1)},
		},
	}}
	cfg := testConfig()
	cfg.Extractor.MinRelevance = 0.5
	r, db := newTestRunner(t, cfg, mb, ex, nil)

	stats, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.JobsInserted)

	jobs, _, err := store.ListJobs(context.Background(), db, store.ListJobsOpts{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Good", jobs[0].Title)
}

func TestRunOnceNotifies(t *testing.T) {
	mb := &fakeMailbox{emails: []mailbox.RawEmail{
		{UID: 1, MessageID: "<m1@alerts>", Subject: "one job", From: "alerts@jobs.example", Body: "..."},
	}}
	ex := &fakeExtractor{byMsgID: map[string][]extract.Candidate{
		"one job": {{Title: "SRE", Company: "Acme", URL: "https://acme.com/jobs/1", Source: "email", Relevance: relptr(0.95)}},
	}}
	n := &fakeNotifier{}
	r, db := newTestRunner(t, testConfig(), mb, ex, n)

	_, err := store.CreateUser(context.Background(), db, "sam@example.com", "4242")
	require.NoError(t, err)
	_, err = store.CreateUser(context.Background(), db, "nochat@example.com", "")
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "SRE", n.sent[0].Title)
	assert.Equal(t, []string{"4242"}, n.chats)

	// The notified job is flagged so a later run does not re-notify.
	jobs, _, err := store.ListJobs(context.Background(), db, store.ListJobsOpts{})
	require.NoError(t, err)
	assert.True(t, jobs[0].Processed)
}

func TestRunOnceListingFailureAborts(t *testing.T) {
	mb := &fakeMailbox{listErr: errors.New("connection reset")}
	r, _ := newTestRunner(t, testConfig(), mb, &fakeExtractor{}, nil)

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)

	st := r.Status()
	assert.Contains(t, st.LastError, "connection reset")
	assert.Empty(t, st.LastOkAt)
}

func TestRunOnceSingleFlight(t *testing.T) {
	r, _ := newTestRunner(t, testConfig(), &fakeMailbox{}, &fakeExtractor{}, nil)

	r.mu.Lock()
	_, err := r.RunOnce(context.Background())
	r.mu.Unlock()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// Once the lock is free the trigger goes through.
	_, err = r.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunOnceMailboxDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Mailbox.Enabled = false

	connected := false
	r, _ := newTestRunner(t, cfg, &fakeMailbox{}, &fakeExtractor{}, nil)
	r.Connect = func(ctx context.Context, cfg config.Config) (Mailbox, error) {
		connected = true
		return &fakeMailbox{}, nil
	}

	stats, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.False(t, connected)
}

func TestRunOnceDeletePolicyMarksLedger(t *testing.T) {
	mb := &fakeMailbox{emails: []mailbox.RawEmail{
		{UID: 1, MessageID: "<m1@alerts>", Subject: "one job", From: "alerts@jobs.example", Body: "..."},
	}}
	ex := &fakeExtractor{byMsgID: map[string][]extract.Candidate{"one job": {}}}

	cfg := testConfig()
	cfg.Mailbox.DisposePolicy = string(mailbox.DisposeDelete)
	r, db := newTestRunner(t, cfg, mb, ex, nil)

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	ledger, err := store.ListProcessedEmails(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.True(t, ledger[0].Deleted)
}
