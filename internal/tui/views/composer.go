package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the message input line. It owns the text; the key machine only
// decides when Enter means submit.
type Composer struct {
	*tview.InputField
	onSend func(text string)
}

// NewComposer creates the composer input.
func NewComposer() *Composer {
	field := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: field}
	field.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			if text := c.GetText(); text != "" {
				c.onSend(text)
			}
			c.SetText("")
		}
	})
	return c
}

// SetOnSend sets the submit callback.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetPrompt changes the label, e.g. to show a reply or edit target.
func (c *Composer) SetPrompt(prompt string) {
	c.SetLabel(" " + prompt + " ")
}
