package mailsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Message is one accepted SMTP transaction.
type Message struct {
	From       string
	To         []string
	User       string
	Subject    string
	MessageID  string
	Data       []byte
	ReceivedAt time.Time
}

// Sink receives every accepted message.
type Sink interface {
	Deliver(ctx context.Context, m *Message) error
}

// NewSink returns a DirSink for dir, or a Discard sink when dir is empty.
func NewSink(dir string) (Sink, error) {
	if dir == "" {
		return Discard{}, nil
	}
	return NewDirSink(dir)
}

// Discard drops messages. The backend still logs their envelope.
type Discard struct{}

func (Discard) Deliver(context.Context, *Message) error { return nil }

// DirSink writes each message as an .eml file.
type DirSink struct {
	dir string
	seq atomic.Uint64
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mailsink: create %s: %w", dir, err)
	}
	return &DirSink{dir: dir}, nil
}

// Deliver writes <timestamp>_<seq>.eml.
func (d *DirSink) Deliver(_ context.Context, m *Message) error {
	name := fmt.Sprintf("%s_%06d.eml", m.ReceivedAt.Format("20060102_150405"), d.seq.Add(1))
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, m.Data, 0o640); err != nil {
		return fmt.Errorf("mailsink: write %s: %w", path, err)
	}
	return nil
}

// Recorder keeps messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Deliver(_ context.Context, m *Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, *m)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of everything received so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
