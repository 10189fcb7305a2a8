package mailbox

import (
	"context"
	"log"
	"time"

	"github.com/emersion/go-imap/v2"
	"golang.org/x/time/rate"
)

// ListCandidates searches "unseen, received within window" and returns UIDs
// newest first, capped at max.
func (cl *Client) ListCandidates(ctx context.Context, window time.Duration, max int) ([]imap.UID, error) {
	if max <= 0 {
		max = 200
	}
	cutoff := time.Now().Add(-window)

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   cutoff,
	}

	searchData, err := cl.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &TransportError{Op: "uid search unseen", Err: err}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return []imap.UID{}, nil
	}

	// Process newest first
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > max {
		uids = uids[:max]
	}
	return uids, nil
}

// FetchOpts tune the batching; both values come from configuration, not
// protocol constants.
type FetchOpts struct {
	BatchSize  int
	BatchDelay time.Duration
}

// FetchDetails retrieves and parses full messages in fixed-size batches with
// an inter-batch delay, to stay under provider rate limits. A message that
// fails to fetch or parse is logged and skipped; it never aborts the batch
// or the run.
func (cl *Client) FetchDetails(ctx context.Context, uids []imap.UID, opts FetchOpts) ([]RawEmail, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	limiter := rate.NewLimiter(rate.Every(opts.BatchDelay), 1)
	if opts.BatchDelay <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	out := make([]RawEmail, 0, len(uids))

	for start := 0; start < len(uids); start += opts.BatchSize {
		if err := limiter.Wait(ctx); err != nil {
			return out, err
		}

		end := start + opts.BatchSize
		if end > len(uids) {
			end = len(uids)
		}

		batch, err := cl.fetchBatch(ctx, uids[start:end])
		if err != nil {
			// A broken connection ends the fetch phase; whatever was
			// already parsed still gets processed.
			log.Printf("[mailbox] batch fetch failed uids=%v: %v", uids[start:end], err)
			return out, err
		}
		out = append(out, batch...)
	}

	return out, nil
}

func (cl *Client) fetchBatch(ctx context.Context, uids []imap.UID) ([]RawEmail, error) {
	uidSet := imap.UIDSetNum(uids...)

	// BODY.PEEK[] so fetching never sets \Seen; disposal decides that later.
	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	fetchOptions := &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	}

	fetchCmd := cl.c.Fetch(uidSet, fetchOptions)
	defer func() { _ = fetchCmd.Close() }()

	out := make([]RawEmail, 0, len(uids))

	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		buf, err := msgData.Collect()
		if err != nil {
			log.Printf("[mailbox] fetch collect: %v", err)
			continue
		}

		var em RawEmail
		em.UID = buf.UID

		if buf.Envelope != nil {
			em.Subject = decodeRFC2047(buf.Envelope.Subject)
			em.ReceivedAt = buf.Envelope.Date
			em.From = joinAddrs(buf.Envelope.From)
			em.MessageID = buf.Envelope.MessageID
		}
		if em.ReceivedAt.IsZero() {
			em.ReceivedAt = buf.InternalDate
		}

		var raw []byte
		if b := buf.FindBodySection(bodyAll); b != nil {
			raw = b
		}

		parsed := extractBody(raw)
		em.Body = parsed.Body
		if em.MessageID == "" {
			em.MessageID = parsed.MessageID
		}
		if em.MessageID == "" {
			// Message-Id is the ledger key; synthesize one so a header-less
			// message still cannot be reprocessed within this mailbox.
			em.MessageID = syntheticMessageID(em.From, em.Subject, em.UID)
		}
		if em.Subject == "" {
			em.Subject = parsed.Subject
		}
		if em.From == "" {
			em.From = parsed.From
		}

		out = append(out, em)
	}

	if err := fetchCmd.Close(); err != nil {
		return out, &TransportError{Op: "fetch close", Err: err}
	}
	return out, nil
}

func joinAddrs(addrs []imap.Address) string {
	for i := range addrs {
		a := &addrs[i]
		if addr := a.Addr(); addr != "" {
			return addr
		}
		if a.Name != "" {
			return a.Name
		}
	}
	return ""
}
