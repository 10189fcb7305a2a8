package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy plus everything wrong or
// suspicious about it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.Mailbox.IMAPHost = strings.TrimSpace(out.Mailbox.IMAPHost)
	out.Mailbox.Username = strings.TrimSpace(out.Mailbox.Username)
	out.Mailbox.Mailbox = strings.TrimSpace(out.Mailbox.Mailbox)
	out.Dedup.Prefer = strings.ToLower(strings.TrimSpace(out.Dedup.Prefer))

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if out.Mailbox.Enabled {
		if out.Mailbox.IMAPHost == "" {
			res.addErr("mailbox.imap_host is required when mailbox.enabled=true")
		}
		if out.Mailbox.IMAPPort == 0 {
			out.Mailbox.IMAPPort = 993
		}
		if out.Mailbox.Username == "" {
			res.addErr("mailbox.username is required when mailbox.enabled=true")
		}
		if out.Mailbox.Mailbox == "" {
			out.Mailbox.Mailbox = "INBOX"
		}
	}

	if out.Mailbox.WindowDays <= 0 {
		res.addErr("mailbox.window_days must be > 0")
	}
	if out.Mailbox.BatchSize <= 0 {
		res.addErr("mailbox.batch_size must be > 0")
	} else if out.Mailbox.BatchSize > 50 {
		res.addWarn("mailbox.batch_size is high (%d) and may trip provider rate limits.", out.Mailbox.BatchSize)
	}
	if out.Mailbox.BatchDelayMS < 0 {
		res.addErr("mailbox.batch_delay_ms must be >= 0")
	}
	if out.Mailbox.MaxMessages <= 0 {
		out.Mailbox.MaxMessages = 200
	}

	switch out.Mailbox.DisposePolicy {
	case "mark-read", "archive", "mark-read-and-archive", "delete":
	case "":
		out.Mailbox.DisposePolicy = "mark-read"
	default:
		res.addErr("mailbox.dispose_policy must be one of mark-read|archive|mark-read-and-archive|delete")
	}

	if out.Pipeline.IntervalMinutes <= 0 {
		res.addErr("pipeline.interval_minutes must be > 0")
	} else if out.Pipeline.IntervalMinutes < 5 {
		res.addWarn("pipeline.interval_minutes is very low (%d); mailbox providers may throttle.", out.Pipeline.IntervalMinutes)
	}
	if out.Pipeline.NotifyMinRelevance < 0 || out.Pipeline.NotifyMinRelevance > 1 {
		res.addErr("pipeline.notify_min_relevance must be within 0..1")
	}

	if out.Extractor.TimeoutSeconds <= 0 {
		out.Extractor.TimeoutSeconds = 45
	}
	if out.Extractor.MinRelevance < 0 || out.Extractor.MinRelevance > 1 {
		res.addErr("extractor.min_relevance must be within 0..1")
	}

	switch out.Dedup.Prefer {
	case "url", "title-company-source":
	case "":
		out.Dedup.Prefer = "url"
	default:
		res.addErr("dedup.prefer must be url or title-company-source")
	}

	return out, res
}
