package input

import (
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/gdamore/tcell/v2"
)

// Mode is the modal state of the key parser.
type Mode int

const (
	// Normal dispatches single keys and multi-key command sequences.
	Normal Mode = iota
	// Insert hands keys to the composer; only Esc and Enter are parsed.
	Insert
	// VisualSelect extends a message selection with movement keys.
	VisualSelect
	// CommandPending buffers the tail of a multi-key sequence.
	CommandPending
)

func (m Mode) String() string {
	switch m {
	case Insert:
		return "insert"
	case VisualSelect:
		return "visual"
	case CommandPending:
		return "pending"
	}
	return "normal"
}

const (
	// seqBudget bounds how long a started sequence may wait for its tail.
	seqBudget = time.Second
	// seqMaxLen bounds the buffered sequence length.
	seqMaxLen = 2
	// countMax caps the numeric repeat prefix.
	countMax = 999
)

// Machine turns discrete key events into Intents. It holds no store state;
// the shell resolves cursor targets before forwarding intents to the engine.
type Machine struct {
	mode  Mode
	count int
	seq   []rune
	since time.Time

	// now is swapped in tests to drive sequence expiry.
	now func() time.Time
}

// NewMachine starts in Normal mode.
func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// Mode reports the current modal state.
func (m *Machine) Mode() Mode { return m.mode }

// Reset drops any pending count or sequence and returns to Normal.
func (m *Machine) Reset() {
	m.mode = Normal
	m.count = 0
	m.seq = m.seq[:0]
}

// takeCount consumes the accumulated repeat prefix, defaulting to 1.
func (m *Machine) takeCount() int {
	n := m.count
	m.count = 0
	if n < 1 {
		n = 1
	}
	return n
}

// Handle processes one key event. The boolean reports whether an intent was
// produced; a false return means the key only changed internal state (or was
// ignored).
func (m *Machine) Handle(ev *tcell.EventKey) (Intent, bool) {
	switch m.mode {
	case Insert:
		return m.handleInsert(ev)
	case VisualSelect:
		return m.handleVisual(ev)
	case CommandPending:
		return m.handlePending(ev)
	}
	return m.handleNormal(ev)
}

func (m *Machine) handleNormal(ev *tcell.EventKey) (Intent, bool) {
	switch ev.Key() {
	case tcell.KeyEscape:
		m.Reset()
		return Intent{Kind: IntentClearSelection}, true
	case tcell.KeyEnter:
		m.count = 0
		return Intent{Kind: IntentSwitchChat}, true
	case tcell.KeyDown:
		return Intent{Kind: IntentNavigateMsg, Delta: m.takeCount()}, true
	case tcell.KeyUp:
		return Intent{Kind: IntentNavigateMsg, Delta: -m.takeCount()}, true
	case tcell.KeyPgUp, tcell.KeyCtrlU:
		m.count = 0
		return Intent{Kind: IntentFetchPage}, true
	}
	if ev.Key() != tcell.KeyRune {
		return Intent{}, false
	}

	r := ev.Rune()
	if r >= '1' && r <= '9' || (r == '0' && m.count > 0) {
		m.count = m.count*10 + int(r-'0')
		if m.count > countMax {
			m.count = countMax
		}
		return Intent{}, false
	}

	switch r {
	case 'd', 's', 'g':
		m.mode = CommandPending
		m.seq = append(m.seq[:0], r)
		m.since = m.now()
		return Intent{}, false
	case 'j':
		return Intent{Kind: IntentNavigateMsg, Delta: m.takeCount()}, true
	case 'k':
		return Intent{Kind: IntentNavigateMsg, Delta: -m.takeCount()}, true
	case 'J':
		return Intent{Kind: IntentNavigateChat, Delta: m.takeCount()}, true
	case 'K':
		return Intent{Kind: IntentNavigateChat, Delta: -m.takeCount()}, true
	case 'G':
		m.count = 0
		return Intent{Kind: IntentJumpLatest}, true
	case 'i', 'a':
		m.count = 0
		m.mode = Insert
		return Intent{}, false
	case 'I':
		m.count = 0
		return Intent{Kind: IntentComposeExternal}, true
	case 'r':
		m.count = 0
		m.mode = Insert
		return Intent{Kind: IntentReply}, true
	case 'e':
		m.count = 0
		m.mode = Insert
		return Intent{Kind: IntentEdit}, true
	case 'v':
		m.count = 0
		m.mode = VisualSelect
		return Intent{Kind: IntentSelect}, true
	case ' ':
		return Intent{Kind: IntentSelect, Count: m.takeCount()}, true
	case 'y':
		m.count = 0
		return Intent{Kind: IntentYank}, true
	case 'p':
		m.count = 0
		return Intent{Kind: IntentForward}, true
	case 'P':
		m.count = 0
		return Intent{Kind: IntentTogglePin}, true
	case 'M':
		m.count = 0
		return Intent{Kind: IntentToggleMute}, true
	case 'u':
		m.count = 0
		return Intent{Kind: IntentToggleUnread}, true
	case 'm':
		m.count = 0
		return Intent{Kind: IntentMarkRead}, true
	case 'o':
		m.count = 0
		return Intent{Kind: IntentOpen}, true
	case 'D':
		m.count = 0
		return Intent{Kind: IntentDownload}, true
	case 'R':
		m.count = 0
		return Intent{Kind: IntentRetry}, true
	case 'q':
		return Intent{Kind: IntentQuit}, true
	}
	m.count = 0
	return Intent{}, false
}

func (m *Machine) handlePending(ev *tcell.EventKey) (Intent, bool) {
	if m.now().Sub(m.since) > seqBudget || len(m.seq) >= seqMaxLen {
		m.Reset()
		return m.handleNormal(ev)
	}
	if ev.Key() == tcell.KeyEscape {
		m.Reset()
		return Intent{}, false
	}
	if ev.Key() != tcell.KeyRune {
		m.Reset()
		return Intent{}, false
	}

	m.seq = append(m.seq, ev.Rune())
	seq := string(m.seq)
	count := m.takeCount()
	m.mode = Normal
	m.seq = m.seq[:0]

	switch seq {
	case "dd":
		return Intent{Kind: IntentDelete, Count: count}, true
	case "gg":
		return Intent{Kind: IntentJumpOldest}, true
	case "sd":
		return Intent{Kind: IntentAttach, Attach: gateway.ContentDocument}, true
	case "sp":
		return Intent{Kind: IntentAttach, Attach: gateway.ContentPhoto}, true
	case "sa":
		return Intent{Kind: IntentAttach, Attach: gateway.ContentVoice}, true
	case "sv":
		return Intent{Kind: IntentAttach, Attach: gateway.ContentVideo}, true
	}
	return Intent{}, false
}

func (m *Machine) handleVisual(ev *tcell.EventKey) (Intent, bool) {
	switch ev.Key() {
	case tcell.KeyEscape:
		m.Reset()
		return Intent{Kind: IntentClearSelection}, true
	case tcell.KeyDown:
		return Intent{Kind: IntentNavigateMsg, Delta: m.takeCount()}, true
	case tcell.KeyUp:
		return Intent{Kind: IntentNavigateMsg, Delta: -m.takeCount()}, true
	}
	if ev.Key() != tcell.KeyRune {
		return Intent{}, false
	}

	r := ev.Rune()
	if r >= '1' && r <= '9' || (r == '0' && m.count > 0) {
		m.count = m.count*10 + int(r-'0')
		if m.count > countMax {
			m.count = countMax
		}
		return Intent{}, false
	}

	switch r {
	case 'j':
		return Intent{Kind: IntentNavigateMsg, Delta: m.takeCount()}, true
	case 'k':
		return Intent{Kind: IntentNavigateMsg, Delta: -m.takeCount()}, true
	case ' ':
		return Intent{Kind: IntentSelect, Count: m.takeCount()}, true
	case 'y':
		m.Reset()
		return Intent{Kind: IntentYank}, true
	case 'd':
		m.Reset()
		return Intent{Kind: IntentDelete, Count: 1}, true
	case 'p':
		m.Reset()
		return Intent{Kind: IntentForward}, true
	}
	return Intent{}, false
}

func (m *Machine) handleInsert(ev *tcell.EventKey) (Intent, bool) {
	switch ev.Key() {
	case tcell.KeyEscape:
		m.Reset()
		return Intent{Kind: IntentCancel}, true
	case tcell.KeyEnter:
		m.Reset()
		return Intent{Kind: IntentSubmitInput}, true
	}
	// Everything else belongs to the composer widget.
	return Intent{}, false
}
