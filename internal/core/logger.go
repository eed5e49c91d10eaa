package core

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	Info LogLevel = iota
	Warning
	Error
	Debug
)

func (l LogLevel) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warning:
		return "WARN"
	case Error:
		return "ERROR"
	case Debug:
		return "DEBUG"
	default:
		return "?"
	}
}

// LogEntry is a single log record passed to LogHandler.
type LogEntry struct {
	Level   LogLevel
	Message string
}

// LogHandlerFunc is the signature for the installer's global log sink.
type LogHandlerFunc func(sender interface{}, entry LogEntry)

// LogHandler is the package-level log sink. It is nil by default: the core
// never requires a logging backend (that's an external collaborator, per
// spec §1) and simply drops log calls until a caller installs a handler.
var LogHandler LogHandlerFunc

func pushLog(sender interface{}, level LogLevel, message string) {
	if LogHandler != nil {
		LogHandler(sender, LogEntry{Level: level, Message: message})
	}
}

// PushLogDebug sends a debug log message.
func PushLogDebug(sender interface{}, message string) { pushLog(sender, Debug, message) }

// PushLogInfo sends an info log message.
func PushLogInfo(sender interface{}, message string) { pushLog(sender, Info, message) }

// PushLogWarning sends a warning log message.
func PushLogWarning(sender interface{}, message string) { pushLog(sender, Warning, message) }

// PushLogError sends an error log message.
func PushLogError(sender interface{}, message string) { pushLog(sender, Error, message) }
