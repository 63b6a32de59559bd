package input

import (
	"testing"
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/gdamore/tcell/v2"
)

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func special(k tcell.Key) *tcell.EventKey {
	return tcell.NewEventKey(k, 0, tcell.ModNone)
}

// feed runs a string of rune keys and returns every produced intent.
func feed(m *Machine, keys string) []Intent {
	var out []Intent
	for _, r := range keys {
		if intent, ok := m.Handle(key(r)); ok {
			out = append(out, intent)
		}
	}
	return out
}

func TestSingleKeyCommands(t *testing.T) {
	cases := []struct {
		r    rune
		want IntentKind
	}{
		{'y', IntentYank},
		{'p', IntentForward},
		{'P', IntentTogglePin},
		{'M', IntentToggleMute},
		{'u', IntentToggleUnread},
		{'m', IntentMarkRead},
		{'o', IntentOpen},
		{'I', IntentComposeExternal},
		{'D', IntentDownload},
		{'R', IntentRetry},
		{'G', IntentJumpLatest},
		{'q', IntentQuit},
	}
	for _, tc := range cases {
		m := NewMachine()
		intent, ok := m.Handle(key(tc.r))
		if !ok || intent.Kind != tc.want {
			t.Errorf("key %q: got (%v, %v), want %v", tc.r, intent.Kind, ok, tc.want)
		}
		if m.Mode() != Normal {
			t.Errorf("key %q: mode = %v, want normal", tc.r, m.Mode())
		}
	}
}

func TestNumericPrefixRepeatsNavigation(t *testing.T) {
	m := NewMachine()
	intents := feed(m, "4j")
	if len(intents) != 1 {
		t.Fatalf("intents = %v", intents)
	}
	if intents[0].Kind != IntentNavigateMsg || intents[0].Delta != 4 {
		t.Fatalf("got %+v, want navigate delta 4", intents[0])
	}

	intents = feed(m, "12k")
	if intents[0].Delta != -12 {
		t.Fatalf("delta = %d, want -12", intents[0].Delta)
	}

	// Count is consumed; the next motion is unrepeated.
	intents = feed(m, "j")
	if intents[0].Delta != 1 {
		t.Fatalf("delta = %d, want 1", intents[0].Delta)
	}
}

func TestNumericPrefixCap(t *testing.T) {
	m := NewMachine()
	intents := feed(m, "99999j")
	if intents[0].Delta != countMax {
		t.Fatalf("delta = %d, want %d", intents[0].Delta, countMax)
	}
}

func TestMultiKeySequences(t *testing.T) {
	cases := []struct {
		seq    string
		want   IntentKind
		attach gateway.ContentType
	}{
		{"dd", IntentDelete, ""},
		{"gg", IntentJumpOldest, ""},
		{"sd", IntentAttach, gateway.ContentDocument},
		{"sp", IntentAttach, gateway.ContentPhoto},
		{"sa", IntentAttach, gateway.ContentVoice},
		{"sv", IntentAttach, gateway.ContentVideo},
	}
	for _, tc := range cases {
		m := NewMachine()
		intents := feed(m, tc.seq)
		if len(intents) != 1 || intents[0].Kind != tc.want {
			t.Errorf("%q: intents = %v, want %v", tc.seq, intents, tc.want)
			continue
		}
		if intents[0].Attach != tc.attach {
			t.Errorf("%q: attach = %q, want %q", tc.seq, intents[0].Attach, tc.attach)
		}
		if m.Mode() != Normal {
			t.Errorf("%q: mode = %v, want normal", tc.seq, m.Mode())
		}
	}
}

func TestSequenceWithRepeatPrefix(t *testing.T) {
	m := NewMachine()
	intents := feed(m, "3dd")
	if len(intents) != 1 || intents[0].Kind != IntentDelete || intents[0].Count != 3 {
		t.Fatalf("intents = %+v, want delete count 3", intents)
	}
}

func TestPendingSequenceExpiresWithoutSideEffects(t *testing.T) {
	m := NewMachine()
	now := time.Now()
	m.now = func() time.Time { return now }

	if _, ok := m.Handle(key('d')); ok {
		t.Fatal("sequence prefix should not emit")
	}
	if m.Mode() != CommandPending {
		t.Fatalf("mode = %v, want pending", m.Mode())
	}

	// Past the budget, the buffered 'd' is discarded and the new key is
	// parsed fresh in Normal mode.
	now = now.Add(seqBudget + time.Millisecond)
	intent, ok := m.Handle(key('y'))
	if !ok || intent.Kind != IntentYank {
		t.Fatalf("got (%v, %v), want yank", intent.Kind, ok)
	}
	if m.Mode() != Normal {
		t.Fatalf("mode = %v, want normal", m.Mode())
	}
}

func TestPendingSequenceUnknownTailResets(t *testing.T) {
	m := NewMachine()
	intents := feed(m, "dx")
	if len(intents) != 0 {
		t.Fatalf("intents = %v, want none", intents)
	}
	if m.Mode() != Normal {
		t.Fatalf("mode = %v, want normal", m.Mode())
	}
}

func TestPendingSequenceEscapeCancels(t *testing.T) {
	m := NewMachine()
	m.Handle(key('s'))
	if _, ok := m.Handle(special(tcell.KeyEscape)); ok {
		t.Fatal("escape in pending should not emit")
	}
	if m.Mode() != Normal {
		t.Fatalf("mode = %v, want normal", m.Mode())
	}
}

func TestInsertModeRoundTrip(t *testing.T) {
	m := NewMachine()
	if _, ok := m.Handle(key('i')); ok {
		t.Fatal("entering insert should not emit")
	}
	if m.Mode() != Insert {
		t.Fatalf("mode = %v, want insert", m.Mode())
	}

	// Composer keys pass through unparsed.
	if _, ok := m.Handle(key('d')); ok {
		t.Fatal("insert-mode rune should not emit")
	}

	intent, ok := m.Handle(special(tcell.KeyEnter))
	if !ok || intent.Kind != IntentSubmitInput {
		t.Fatalf("got (%v, %v), want submit", intent.Kind, ok)
	}
	if m.Mode() != Normal {
		t.Fatalf("mode = %v, want normal", m.Mode())
	}
}

func TestInsertEscapeCancels(t *testing.T) {
	m := NewMachine()
	m.Handle(key('a'))
	intent, ok := m.Handle(special(tcell.KeyEscape))
	if !ok || intent.Kind != IntentCancel {
		t.Fatalf("got (%v, %v), want cancel", intent.Kind, ok)
	}
	if m.Mode() != Normal {
		t.Fatalf("mode = %v, want normal", m.Mode())
	}
}

func TestReplyAndEditEnterInsert(t *testing.T) {
	for _, tc := range []struct {
		r    rune
		want IntentKind
	}{{'r', IntentReply}, {'e', IntentEdit}} {
		m := NewMachine()
		intent, ok := m.Handle(key(tc.r))
		if !ok || intent.Kind != tc.want {
			t.Fatalf("key %q: got (%v, %v), want %v", tc.r, intent.Kind, ok, tc.want)
		}
		if m.Mode() != Insert {
			t.Fatalf("key %q: mode = %v, want insert", tc.r, m.Mode())
		}
	}
}

func TestVisualSelectFlow(t *testing.T) {
	m := NewMachine()
	intent, ok := m.Handle(key('v'))
	if !ok || intent.Kind != IntentSelect {
		t.Fatalf("got (%v, %v), want select", intent.Kind, ok)
	}
	if m.Mode() != VisualSelect {
		t.Fatalf("mode = %v, want visual", m.Mode())
	}

	intents := feed(m, "2j")
	if intents[0].Kind != IntentNavigateMsg || intents[0].Delta != 2 {
		t.Fatalf("got %+v, want navigate delta 2", intents[0])
	}

	intent, ok = m.Handle(key('y'))
	if !ok || intent.Kind != IntentYank {
		t.Fatalf("got (%v, %v), want yank", intent.Kind, ok)
	}
	if m.Mode() != Normal {
		t.Fatalf("yank should leave visual mode, mode = %v", m.Mode())
	}
}

func TestVisualEscapeClearsSelection(t *testing.T) {
	m := NewMachine()
	m.Handle(key('v'))
	intent, ok := m.Handle(special(tcell.KeyEscape))
	if !ok || intent.Kind != IntentClearSelection {
		t.Fatalf("got (%v, %v), want clear_selection", intent.Kind, ok)
	}
	if m.Mode() != Normal {
		t.Fatalf("mode = %v, want normal", m.Mode())
	}
}

func TestUnknownKeyDropsPendingCount(t *testing.T) {
	m := NewMachine()
	intents := feed(m, "5xj")
	if len(intents) != 1 || intents[0].Delta != 1 {
		t.Fatalf("intents = %+v, want single unrepeated navigate", intents)
	}
}
