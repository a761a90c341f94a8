// Package notify shows desktop notifications about the backend.
package notify

import (
	"fmt"
	"log"

	"github.com/gen2brain/beeep"
	"github.com/verba-project/verba/internal/backend"
)

const appName = "Verba"

// sendFunc is swapped out in tests.
type sendFunc func(title, message string) error

func beeepSend(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Notifier 发送系统通知
type Notifier struct {
	enabled bool
	send    sendFunc
}

// New creates a Notifier.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled, send: beeepSend}
}

// BackendStatus notifies about launch failures and unexpected exits. Running
// and deliberate stops stay quiet.
func (n *Notifier) BackendStatus(st backend.Status) {
	switch st.State {
	case backend.StateFailed:
		n.notify("Backend failed to start", truncate(st.Error))
	case backend.StateExited:
		code := -1
		if st.ExitCode != nil {
			code = *st.ExitCode
		}
		n.notify("Backend stopped unexpectedly", fmt.Sprintf("The backend exited with code %d.", code))
	}
}

func (n *Notifier) notify(title, message string) {
	if !n.enabled {
		return
	}
	// 通知失败不影响主流程
	if err := n.send(appName+": "+title, message); err != nil {
		log.Printf("[Notify] Failed to show notification: %v", err)
	}
}

// maxMessageRunes 通知正文最多保留的字符数
const maxMessageRunes = 200

func truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) > maxMessageRunes {
		return string(runes[:maxMessageRunes]) + "..."
	}
	return msg
}
