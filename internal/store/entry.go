package store

import (
	"strings"
	"time"
)

// TimestampFormat is the layout of Entry.Timestamp.
const TimestampFormat = "2006-01-02 15:04:05"

// Entry is one line of a conversation's live log.
type Entry struct {
	Timestamp   string   `json:"timestamp"`
	Speaker     string   `json:"speaker"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// NewEntry stamps an entry with t in local time.
func NewEntry(t time.Time, speaker, content string, attachments ...string) Entry {
	return Entry{
		Timestamp:   t.Local().Format(TimestampFormat),
		Speaker:     speaker,
		Content:     content,
		Attachments: attachments,
	}
}

// Line renders the entry as "[timestamp] speaker: content\n". Newlines in any
// field are escaped so the result is always exactly one line.
func (e Entry) Line() string {
	content := e.Content
	if len(e.Attachments) > 0 {
		content += " [Attachments: " + strings.Join(e.Attachments, ", ") + "]"
	}

	var b strings.Builder
	b.Grow(len(e.Timestamp) + len(e.Speaker) + len(content) + 6)
	b.WriteByte('[')
	b.WriteString(escapeNewlines(e.Timestamp))
	b.WriteString("] ")
	b.WriteString(escapeNewlines(e.Speaker))
	b.WriteString(": ")
	b.WriteString(escapeNewlines(content))
	b.WriteByte('\n')
	return b.String()
}

var newlineEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\n`)

func escapeNewlines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return newlineEscaper.Replace(s)
}
