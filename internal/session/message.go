package session

import (
	"time"

	"github.com/conneroisu/livecode/internal/dom"
)

// Outbound message types.
const (
	TypePatch          = "patch"
	TypeMount          = "mount"
	TypeSetValue       = "set-value"
	TypeClipboardWrite = "clipboard-write"
	TypeReload         = "reload"
	TypeError          = "error"
)

// Inbound message types.
const (
	TypeReady     = "ready"
	TypeEdit      = "edit"
	TypeRun       = "run"
	TypeReset     = "reset"
	TypeCopy      = "copy"
	TypeClipboard = "clipboard"
	TypeFrame     = "frame"
)

// Message is sent to the browser.
type Message struct {
	Type      string     `json:"type"`
	Patch     *dom.Patch `json:"patch,omitempty"`
	Editor    string     `json:"editor,omitempty"`
	Text      string     `json:"text,omitempty"`
	Language  string     `json:"language,omitempty"`
	Mode      string     `json:"mode,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Inbound is received from the browser.
type Inbound struct {
	Type    string `json:"type"`
	Editor  string `json:"editor,omitempty"`
	Text    string `json:"text,omitempty"`
	OK      bool   `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	Run     int    `json:"run,omitempty"`
	Event   string `json:"event,omitempty"`
	Message string `json:"message,omitempty"`
}
