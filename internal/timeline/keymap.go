package timeline

// Command is a transport or zoom action produced by the keyboard keymap.
type Command int

const (
	CmdNone Command = iota
	CmdTogglePlay
	CmdStepBack
	CmdStepForward
	CmdJumpBackSecond
	CmdJumpForwardSecond
	CmdJumpStart
	CmdJumpEnd
	CmdRewind
	CmdFastForward
	CmdZoomIn
	CmdZoomOut
)

// KeyEvent is a toolkit-independent key press. Code follows DOM
// KeyboardEvent.code / key naming for letter and arrow keys.
type KeyEvent struct {
	Key   string
	Shift bool
	Ctrl  bool
	Meta  bool
}

// shuttleSeconds is how far J/L shuttle per press.
const shuttleSeconds = 2

// Translate maps a key press to a transport command. When focus sits inside
// a text input the keymap is fully disabled and always returns CmdNone;
// typing in a prompt field must never drive the transport.
func Translate(ev KeyEvent, textInputFocused bool) Command {
	if textInputFocused {
		return CmdNone
	}

	if ev.Ctrl || ev.Meta {
		switch ev.Key {
		case "+", "=":
			return CmdZoomIn
		case "-":
			return CmdZoomOut
		}
		return CmdNone
	}

	switch ev.Key {
	case " ", "Space":
		return CmdTogglePlay
	case "ArrowLeft":
		if ev.Shift {
			return CmdJumpBackSecond
		}
		return CmdStepBack
	case "ArrowRight":
		if ev.Shift {
			return CmdJumpForwardSecond
		}
		return CmdStepForward
	case "Home":
		return CmdJumpStart
	case "End":
		return CmdJumpEnd
	case "j", "J":
		return CmdRewind
	case "k", "K":
		return CmdTogglePlay
	case "l", "L":
		return CmdFastForward
	}
	return CmdNone
}

// FrameDelta returns the playhead offset a command applies at the given
// frame rate. Commands that are not relative moves return ok=false.
func FrameDelta(cmd Command, fps int) (delta int, ok bool) {
	if fps <= 0 {
		fps = 30
	}
	switch cmd {
	case CmdStepBack:
		return -1, true
	case CmdStepForward:
		return 1, true
	case CmdJumpBackSecond:
		return -fps, true
	case CmdJumpForwardSecond:
		return fps, true
	case CmdRewind:
		return -shuttleSeconds * fps, true
	case CmdFastForward:
		return shuttleSeconds * fps, true
	}
	return 0, false
}
