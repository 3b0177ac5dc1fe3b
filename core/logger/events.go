package logger

// LogEntry is one line of the event log. Exactly one of the event fields is
// set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	RunCommand   *RunCommand   `json:"run_command,omitempty"`
	RunRedirect  *RunRedirect  `json:"run_redirect,omitempty"`
	RunPipeline  *RunPipeline  `json:"run_pipeline,omitempty"`
	CommandError *CommandError `json:"command_error,omitempty"`
	SessionEnd   *SessionEnd   `json:"session_end,omitempty"`
}

// LogType is an event that can be recorded in a LogEntry.
type LogType interface {
	setOn(le *LogEntry)
}

// ExitStatus is the recorded termination status of a child.
type ExitStatus struct {
	Code     int    `json:"code"`
	Signal   string `json:"signal,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
}

// RunCommand is a plain command that ran to completion.
type RunCommand struct {
	Command []string   `json:"command"`
	Status  ExitStatus `json:"status"`
}

// RunRedirect is a command whose output was written to a file.
type RunRedirect struct {
	Command []string   `json:"command"`
	Target  string     `json:"target"`
	Append  bool       `json:"append,omitempty"`
	Status  ExitStatus `json:"status"`
}

// RunPipeline is a two stage pipeline.
type RunPipeline struct {
	Producer       []string   `json:"producer"`
	Consumer       []string   `json:"consumer"`
	ProducerStatus ExitStatus `json:"producer_status"`
	ConsumerStatus ExitStatus `json:"consumer_status"`
}

// CommandError is a line that couldn't be run.
type CommandError struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}

// SessionEnd marks the end of a session.
type SessionEnd struct {
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
}

func (e *RunCommand) setOn(le *LogEntry)   { le.RunCommand = e }
func (e *RunRedirect) setOn(le *LogEntry)  { le.RunRedirect = e }
func (e *RunPipeline) setOn(le *LogEntry)  { le.RunPipeline = e }
func (e *CommandError) setOn(le *LogEntry) { le.CommandError = e }
func (e *SessionEnd) setOn(le *LogEntry)   { le.SessionEnd = e }

// GetLogType returns the event set on the entry, or nil.
func (le *LogEntry) GetLogType() LogType {
	switch {
	case le.RunCommand != nil:
		return le.RunCommand
	case le.RunRedirect != nil:
		return le.RunRedirect
	case le.RunPipeline != nil:
		return le.RunPipeline
	case le.CommandError != nil:
		return le.CommandError
	case le.SessionEnd != nil:
		return le.SessionEnd
	default:
		return nil
	}
}
