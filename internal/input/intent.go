package input

import "github.com/caiofmp/tgram/internal/gateway"

// IntentKind tags a command produced by the state machine. The shell fills
// in context (active chat, cursor message, composer text) before handing the
// intent to the engine; the machine itself only resolves keys.
type IntentKind int

const (
	IntentNone IntentKind = iota

	// Engine-bound actions.
	IntentSend
	IntentReply
	IntentEdit
	IntentDelete
	IntentYank
	IntentForward
	IntentTogglePin
	IntentToggleMute
	IntentToggleUnread
	IntentMarkRead
	IntentFetchPage
	IntentAttach
	IntentComposeExternal
	IntentOpen
	IntentDownload
	IntentRetry
	IntentSwitchChat

	// Viewport-bound actions.
	IntentNavigateMsg
	IntentNavigateChat
	IntentJumpLatest
	IntentJumpOldest
	IntentSelect
	IntentClearSelection

	// Shell control.
	IntentSubmitInput
	IntentCancel
	IntentQuit
)

func (k IntentKind) String() string {
	switch k {
	case IntentSend:
		return "send"
	case IntentReply:
		return "reply"
	case IntentEdit:
		return "edit"
	case IntentDelete:
		return "delete"
	case IntentYank:
		return "yank"
	case IntentForward:
		return "forward"
	case IntentTogglePin:
		return "toggle_pin"
	case IntentToggleMute:
		return "toggle_mute"
	case IntentToggleUnread:
		return "toggle_unread"
	case IntentMarkRead:
		return "mark_read"
	case IntentFetchPage:
		return "fetch_page"
	case IntentAttach:
		return "attach"
	case IntentComposeExternal:
		return "compose_external"
	case IntentOpen:
		return "open"
	case IntentDownload:
		return "download"
	case IntentRetry:
		return "retry"
	case IntentSwitchChat:
		return "switch_chat"
	case IntentNavigateMsg:
		return "navigate_msg"
	case IntentNavigateChat:
		return "navigate_chat"
	case IntentJumpLatest:
		return "jump_latest"
	case IntentJumpOldest:
		return "jump_oldest"
	case IntentSelect:
		return "select"
	case IntentClearSelection:
		return "clear_selection"
	case IntentSubmitInput:
		return "submit_input"
	case IntentCancel:
		return "cancel"
	case IntentQuit:
		return "quit"
	}
	return "none"
}

// Intent is a resolved command. Only the fields relevant to Kind are set.
type Intent struct {
	Kind   IntentKind
	ChatID int64
	MsgID  int64
	MsgIDs []int64

	// ReplyTo carries the reply target for IntentSend.
	ReplyTo int64
	// Text is the composer content for IntentSend and IntentEdit.
	Text string
	// Path is a local file for IntentAttach sends.
	Path string
	// Attach hints what kind of file the picker should produce.
	Attach gateway.ContentType

	// Delta is a signed navigation distance, repeat prefix applied.
	Delta int
	// Count is the raw repeat prefix (1 when none was typed).
	Count int
}
