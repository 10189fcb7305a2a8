// Package pipeline sequences one harvesting run: mailbox → extractor →
// dedup/persist → dispose → notify. At most one run is in flight at a time.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"golang.org/x/sync/errgroup"

	"jobdeck/internal/config"
	"jobdeck/internal/events"
	"jobdeck/internal/extract"
	"jobdeck/internal/mailbox"
	"jobdeck/internal/notify"
	"jobdeck/internal/store"
)

// ErrAlreadyRunning is returned when a trigger (scheduled or manual) fires
// while a run is in flight. Callers skip and log; they never queue.
var ErrAlreadyRunning = errors.New("pipeline run already in progress")

// Phases of a run, strictly forward.
const (
	PhaseIdle       = "idle"
	PhaseListing    = "listing"
	PhaseFetching   = "fetching"
	PhaseExtracting = "extracting"
	PhasePersisting = "persisting"
	PhaseDisposing  = "disposing"
)

// Mailbox is the slice of the mailbox client the runner needs; tests swap in
// a fake.
type Mailbox interface {
	ListCandidates(ctx context.Context, window time.Duration, max int) ([]imap.UID, error)
	FetchDetails(ctx context.Context, uids []imap.UID, opts mailbox.FetchOpts) ([]mailbox.RawEmail, error)
	Dispose(uid imap.UID, policy mailbox.DisposePolicy, archiveMailbox string) error
	Logout()
}

// ConnectFunc dials the mailbox for one run.
type ConnectFunc func(ctx context.Context, cfg config.Config) (Mailbox, error)

type Status struct {
	Running             bool   `json:"running"`
	Phase               string `json:"phase"`
	LastRunAt           string `json:"last_run_at"`
	LastOkAt            string `json:"last_ok_at"`
	LastError           string `json:"last_error"`
	LastEmailsProcessed int    `json:"last_emails_processed"`
	LastJobsInserted    int    `json:"last_jobs_inserted"`
}

type Stats struct {
	EmailsProcessed int `json:"emails_processed"`
	JobsInserted    int `json:"jobs_inserted"`
}

type Runner struct {
	DB        *sql.DB
	CfgVal    *atomic.Value // stores config.Config
	Connect   ConnectFunc
	Extractor extract.Extractor
	Notifier  notify.Notifier
	Hub       *events.Hub

	mu      sync.Mutex
	running atomic.Bool
	status  atomic.Value // Status
}

// IsRunning is a pure query over the single-flight state, for observability
// and tests.
func (r *Runner) IsRunning() bool { return r.running.Load() }

func (r *Runner) Status() Status {
	if s, ok := r.status.Load().(Status); ok {
		return s
	}
	return Status{Phase: PhaseIdle}
}

func (r *Runner) setPhase(phase string) {
	s := r.Status()
	s.Phase = phase
	r.status.Store(s)
}

// RunOnce executes one pipeline run. A second trigger while one is in flight
// gets ErrAlreadyRunning. Failures scoped to one message never abort the
// run; only the initial mailbox listing can.
func (r *Runner) RunOnce(ctx context.Context) (Stats, error) {
	if !r.mu.TryLock() {
		return Stats{}, ErrAlreadyRunning
	}
	defer r.mu.Unlock()
	r.running.Store(true)
	defer r.running.Store(false)

	now := time.Now().Format(time.RFC3339)
	st := r.Status()
	st.Running = true
	st.LastRunAt = now
	st.LastError = ""
	r.status.Store(st)

	stats, err := r.run(ctx)

	st = r.Status()
	st.Running = false
	st.Phase = PhaseIdle
	st.LastEmailsProcessed = stats.EmailsProcessed
	st.LastJobsInserted = stats.JobsInserted
	if err != nil {
		st.LastError = err.Error()
		log.Printf("[pipeline] error: %v", err)
	} else {
		st.LastError = ""
		st.LastOkAt = time.Now().Format(time.RFC3339)
		log.Printf("[pipeline] ok emails=%d inserted=%d", stats.EmailsProcessed, stats.JobsInserted)
	}
	r.status.Store(st)

	return stats, err
}

func (r *Runner) run(ctx context.Context) (Stats, error) {
	var stats Stats

	cfg, ok := r.CfgVal.Load().(config.Config)
	if !ok || !cfg.Mailbox.Enabled {
		return stats, nil
	}

	// Listing: the only step whose failure aborts the run. The next
	// schedule tick retries. Connect gets the run context: the connection
	// must stay usable through the disposing phase, so any setup timeout
	// is the dialer's business.
	r.setPhase(PhaseListing)

	mb, err := r.Connect(ctx, cfg)
	if err != nil {
		return stats, err
	}
	defer mb.Logout()

	window := time.Duration(cfg.Mailbox.WindowDays) * 24 * time.Hour
	uids, err := mb.ListCandidates(ctx, window, cfg.Mailbox.MaxMessages)
	if err != nil {
		return stats, err
	}
	if len(uids) == 0 {
		return stats, nil
	}

	// Fetching: rate-limited batches, per-message failures skipped inside.
	r.setPhase(PhaseFetching)
	emails, err := mb.FetchDetails(ctx, uids, mailbox.FetchOpts{
		BatchSize:  cfg.Mailbox.BatchSize,
		BatchDelay: time.Duration(cfg.Mailbox.BatchDelayMS) * time.Millisecond,
	})
	if err != nil {
		log.Printf("[pipeline] fetch ended early: %v", err)
	}
	if len(emails) == 0 {
		return stats, nil
	}

	// Extracting: bounded fan-out; one candidate list per email. Every
	// other failure mode degrades to zero candidates for that email.
	r.setPhase(PhaseExtracting)
	results, ledgered := r.extractAll(ctx, cfg, emails)

	// Persisting, sequentially per message. Messages are independent: the
	// ledger and the store carry all shared state. A ledger hit skips
	// straight to disposal: it was processed in an earlier run whose
	// disposal may have failed, and disposing it again is what stops it
	// from being re-listed and re-fetched on every tick.
	r.setPhase(PhasePersisting)
	var inserted []store.Job
	var done []mailbox.RawEmail
	for i, em := range emails {
		if ledgered[i] {
			done = append(done, em)
			continue
		}
		jobs, processed := r.persistOne(ctx, cfg, em, results[i])
		if !processed {
			continue
		}
		stats.EmailsProcessed++
		inserted = append(inserted, jobs...)
		done = append(done, em)
	}
	stats.JobsInserted = len(inserted)

	r.setPhase(PhaseDisposing)
	for _, em := range done {
		r.dispose(ctx, mb, cfg, em)
	}

	r.notifyNew(ctx, cfg, inserted)

	if n, err := store.CleanupOldJobs(r.DB); err != nil {
		log.Printf("[pipeline] cleanup: %v", err)
	} else if n > 0 {
		log.Printf("[pipeline] cleaned up %d stale jobs", n)
	}

	return stats, nil
}

// extractAll calls the extractor for every email that is not already in the
// ledger, with fan-out bounded to the mailbox batch size. The second result
// flags ledger hits so the caller can still dispose them.
func (r *Runner) extractAll(ctx context.Context, cfg config.Config, emails []mailbox.RawEmail) ([][]extract.Candidate, []bool) {
	results := make([][]extract.Candidate, len(emails))
	ledgered := make([]bool, len(emails))

	limit := cfg.Mailbox.BatchSize
	if limit <= 0 {
		limit = 10
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i := range emails {
		em := emails[i]

		seen, err := store.HasProcessed(ctx, r.DB, em.MessageID)
		if err != nil {
			log.Printf("[pipeline] ledger lookup uid=%d: %v", em.UID, err)
			continue
		}
		if seen {
			// Already in the ledger: the extractor is never called again
			// for this message id.
			ledgered[i] = true
			continue
		}

		i := i
		g.Go(func() error {
			cands, err := r.Extractor.Extract(ctx, extract.EmailContext{
				Sender:     em.From,
				Subject:    em.Subject,
				Body:       em.Body,
				ReceivedAt: em.ReceivedAt,
			})
			if err != nil {
				// Treated as zero candidates; the email is still marked
				// processed so a poison message cannot loop forever.
				log.Printf("[pipeline] extract uid=%d: %v", em.UID, err)
				results[i] = []extract.Candidate{}
				return nil
			}
			results[i] = cands
			return nil
		})
	}
	_ = g.Wait()
	return results, ledgered
}

// persistOne records one email's outcome. Returns the inserted jobs and
// whether the email finished the pipeline this run.
func (r *Runner) persistOne(ctx context.Context, cfg config.Config, em mailbox.RawEmail, cands []extract.Candidate) ([]store.Job, bool) {
	if cands == nil {
		// ledger lookup failure; nothing to do this run
		return nil, false
	}

	kept := make([]store.JobCandidate, 0, len(cands))
	for _, c := range cands {
		if c.Relevance != nil && *c.Relevance < cfg.Extractor.MinRelevance {
			continue
		}
		kept = append(kept, store.JobCandidate{
			Title:       c.Title,
			Company:     c.Company,
			Location:    c.Location,
			Remote:      c.Remote,
			Description: c.Description,
			URL:         c.URL,
			Salary:      c.Salary,
			PostedAt:    c.PostedAt,
			Source:      c.Source,
			Relevance:   c.Relevance,
		})
	}

	inserted, err := store.DeduplicateAndInsert(ctx, r.DB, kept, cfg.Dedup.Prefer)
	if err != nil {
		log.Printf("[pipeline] persist uid=%d: %v", em.UID, err)
		// fall through: the extracted count is still recorded
	}

	err = store.RecordProcessed(ctx, r.DB, em.MessageID, em.From, len(cands))
	if errors.Is(err, store.ErrDuplicateRecord) {
		// race between overlapping runs; defended against even though the
		// single-flight lock should make it impossible
		return inserted, true
	}
	if err != nil {
		log.Printf("[pipeline] ledger record uid=%d: %v", em.UID, err)
		return inserted, false
	}

	for _, j := range inserted {
		r.publish("job_created", map[string]any{"id": j.ID, "title": j.Title})
	}
	return inserted, true
}

// dispose applies the configured policy. Failures are logged, not retried:
// an undisposed message is safe because the ledger blocks reprocessing.
func (r *Runner) dispose(ctx context.Context, mb Mailbox, cfg config.Config, em mailbox.RawEmail) {
	policy := mailbox.DisposePolicy(cfg.Mailbox.DisposePolicy)
	if err := mb.Dispose(em.UID, policy, cfg.Mailbox.ArchiveMailbox); err != nil {
		log.Printf("[pipeline] dispose uid=%d policy=%s: %v", em.UID, policy, err)
		return
	}
	if policy == mailbox.DisposeDelete {
		if err := store.MarkEmailDeleted(ctx, r.DB, em.MessageID); err != nil {
			log.Printf("[pipeline] mark deleted uid=%d: %v", em.UID, err)
		}
	}
}

// notifyNew sends a summary per above-threshold job to every user with a
// chat handle, then flips the processed flag so nobody is notified twice.
func (r *Runner) notifyNew(ctx context.Context, cfg config.Config, inserted []store.Job) {
	if r.Notifier == nil || len(inserted) == 0 {
		return
	}

	users, err := store.ListUsers(ctx, r.DB)
	if err != nil {
		log.Printf("[pipeline] list users: %v", err)
		return
	}

	var notified []int64
	for _, j := range inserted {
		if j.Relevance == nil || *j.Relevance < cfg.Pipeline.NotifyMinRelevance {
			continue
		}
		for _, u := range users {
			if u.TelegramChatID == "" {
				continue
			}
			if err := r.Notifier.Notify(ctx, u.TelegramChatID, notify.JobSummary{
				Title:   j.Title,
				Company: j.Company,
				Link:    j.URL,
			}); err != nil {
				log.Printf("[pipeline] notify user=%d job=%d: %v", u.ID, j.ID, err)
			}
		}
		notified = append(notified, j.ID)
	}

	if len(notified) > 0 {
		if err := store.MarkJobsProcessed(ctx, r.DB, notified); err != nil {
			log.Printf("[pipeline] mark notified: %v", err)
		}
	}
}

func (r *Runner) publish(typ string, data any) {
	if r.Hub != nil {
		r.Hub.Publish(events.MakeEvent("", typ, 1, data))
	}
}

// DialMailbox builds the production ConnectFunc. lookupPassword runs per
// run so a password set after startup is picked up without a restart.
func DialMailbox(lookupPassword func(cfg config.Config) (string, error)) ConnectFunc {
	return func(ctx context.Context, cfg config.Config) (Mailbox, error) {
		password, err := lookupPassword(cfg)
		if err != nil {
			return nil, err
		}
		addr := cfg.Mailbox.IMAPHost
		if !strings.Contains(addr, ":") {
			port := cfg.Mailbox.IMAPPort
			if port == 0 {
				port = 993
			}
			addr = fmt.Sprintf("%s:%d", addr, port)
		}

		// The timeout bounds dial/login/select only. Dial stops watching
		// the context once setup succeeds, so the connection survives this
		// cancel and lives until Logout.
		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		return mailbox.Dial(dialCtx,
			addr,
			cfg.Mailbox.Username,
			password,
			cfg.Mailbox.Mailbox,
			mailbox.TLSConfigFor(cfg.Mailbox.IMAPHost),
		)
	}
}
