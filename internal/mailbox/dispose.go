package mailbox

import (
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// DisposePolicy decides what happens to a message once its fate is decided.
type DisposePolicy string

const (
	DisposeMarkRead           DisposePolicy = "mark-read"
	DisposeArchive            DisposePolicy = "archive"
	DisposeMarkReadAndArchive DisposePolicy = "mark-read-and-archive"
	DisposeDelete             DisposePolicy = "delete"
)

// Dispose applies the policy to a processed message. Failures here are safe
// to log and forget: the ledger already prevents reprocessing an undisposed
// message.
func (cl *Client) Dispose(uid imap.UID, policy DisposePolicy, archiveMailbox string) error {
	switch policy {
	case DisposeMarkRead:
		return cl.markSeen(uid)
	case DisposeArchive:
		return cl.move(uid, archiveMailbox)
	case DisposeMarkReadAndArchive:
		if err := cl.markSeen(uid); err != nil {
			return err
		}
		return cl.move(uid, archiveMailbox)
	case DisposeDelete:
		return cl.expunge(uid)
	default:
		return fmt.Errorf("unknown dispose policy %q", policy)
	}
}

func (cl *Client) markSeen(uid imap.UID) error {
	set := imap.UIDSetNum(uid)
	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	// Store returns a fetch command; Close drains it and yields the status.
	if err := cl.c.Store(set, storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

func (cl *Client) move(uid imap.UID, dest string) error {
	if dest == "" {
		dest = "Archive"
	}
	set := imap.UIDSetNum(uid)
	if _, err := cl.c.Move(set, dest).Wait(); err != nil {
		return fmt.Errorf("imap move to %q: %w", dest, err)
	}
	return nil
}

func (cl *Client) expunge(uid imap.UID) error {
	set := imap.UIDSetNum(uid)
	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}
	if err := cl.c.Store(set, storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("imap store add deleted: %w", err)
	}
	if err := cl.c.UIDExpunge(set).Close(); err != nil {
		return fmt.Errorf("imap expunge: %w", err)
	}
	return nil
}
