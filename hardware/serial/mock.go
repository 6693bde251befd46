package serial

// Public API to easy create modem stubs to test your code.
import (
	"bytes"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
)

// Reply is modem output scheduled relative to the command write.
type Reply struct {
	After time.Duration
	Data  string
}

// Responder maps one written line (without CR LF) to modem output.
type Responder func(line string) []Reply

// MockPort is Port for tests. Every complete line written is passed
// to Responder, replies become readable once Now() passes their time.
// Now defaults to time.Now, tests share a fake clock with the modem.
type MockPort struct {
	Responder Responder
	Now       func() time.Time

	mu      sync.Mutex
	partial bytes.Buffer
	lines   []string
	pending []pendingReply
	closed  bool
}

type pendingReply struct {
	at   time.Time
	data []byte
}

func NewMockPort(r Responder, now func() time.Time) *MockPort {
	if now == nil {
		now = time.Now
	}
	return &MockPort{Responder: r, Now: now}
}

// ScriptResponder replies with the same chunks to every command.
func ScriptResponder(rs ...Reply) Responder {
	return func(string) []Reply { return rs }
}

// ParseReplies reads compact reply script, space separated entries of
// comma separated tokens: d<duration> delay, s<text> ascii (\r \n escapes),
// b<hex> raw bytes. Example: "d40ms,s+EVT:RX d3ms,sOK\r\n".
func ParseReplies(script string) []Reply {
	var rs []Reply
	for _, es := range strings.Fields(script) {
		r := Reply{}
		for _, token := range strings.Split(es, ",") {
			if token == "" {
				continue
			}
			switch token[0] {
			case 'b':
				b, err := hex.DecodeString(token[1:])
				if err != nil {
					panic(errors.Annotatef(err, "reply script token=%s", token))
				}
				r.Data += string(b)
			case 'd':
				d, err := time.ParseDuration(token[1:])
				if err != nil {
					panic(errors.Annotatef(err, "reply script token=%s", token))
				}
				r.After = d
			case 's':
				r.Data += strings.NewReplacer(`\r`, "\r", `\n`, "\n").Replace(token[1:])
			default:
				panic("unknown token: " + token)
			}
		}
		rs = append(rs, r)
	}
	return rs
}

// Push makes data readable at once, as unsolicited modem output.
func (self *MockPort) Push(data string) {
	self.mu.Lock()
	self.pending = append(self.pending, pendingReply{at: self.Now(), data: []byte(data)})
	self.mu.Unlock()
}

// Lines returns all complete lines written so far.
func (self *MockPort) Lines() []string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]string(nil), self.lines...)
}

func (self *MockPort) Write(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return 0, ErrClosed
	}
	self.partial.Write(p)
	for {
		s := self.partial.String()
		idx := strings.Index(s, "\r\n")
		if idx < 0 {
			break
		}
		line := s[:idx]
		self.partial.Next(idx + 2)
		self.lines = append(self.lines, line)
		if self.Responder == nil {
			continue
		}
		now := self.Now()
		for _, r := range self.Responder(line) {
			self.pending = append(self.pending, pendingReply{at: now.Add(r.After), data: []byte(r.Data)})
		}
	}
	return len(p), nil
}

func (self *MockPort) ReadAvailable(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return 0, ErrClosed
	}
	now := self.Now()
	n := 0
	for len(self.pending) > 0 && n < len(p) {
		r := &self.pending[0]
		if r.at.After(now) {
			break
		}
		c := copy(p[n:], r.data)
		n += c
		r.data = r.data[c:]
		if len(r.data) == 0 {
			self.pending = self.pending[1:]
		}
	}
	return n, nil
}

// Discard drops replies that are already due, future ones stay.
func (self *MockPort) Discard() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	now := self.Now()
	keep := self.pending[:0]
	for _, r := range self.pending {
		if r.at.After(now) {
			keep = append(keep, r)
		}
	}
	self.pending = keep
	return nil
}

func (self *MockPort) Close() error {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
	return nil
}
