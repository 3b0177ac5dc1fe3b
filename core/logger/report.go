package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries int        `json:"invalid_entries,omitempty"`

	Commands  CommandReport  `json:"command_report"`
	Redirects RedirectReport `json:"redirect_report"`
	Pipelines PipelineReport `json:"pipeline_report"`
	Errors    ErrorReport    `json:"error_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	if le.SessionID != "" {
		r.Sessions.Increment(le.SessionID)
	}

	switch event := le.GetLogType().(type) {
	case *RunCommand:
		r.Commands.update(event.Command, event.Status)
	case *RunRedirect:
		r.Commands.update(event.Command, event.Status)
		r.Redirects.update(event)
	case *RunPipeline:
		r.Commands.update(event.Producer, event.ProducerStatus)
		r.Commands.update(event.Consumer, event.ConsumerStatus)
		r.Pipelines.update(event)
	case *CommandError:
		r.Errors.update(event)
	case *SessionEnd:
		// Ignore
	default:
		r.InvalidEntries++
	}
}

type CommandReport struct {
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
	// Exit statuses, signals are reported by name.
	ExitStatuses StrCounter `json:"exit_statuses"`
	// Commands that couldn't be found or executed.
	NotFound StrCounter `json:"not_found"`
}

func (r *CommandReport) update(command []string, status ExitStatus) {
	if len(command) > 0 {
		r.CommandNames.Increment(command[0])
		if status.NotFound {
			r.NotFound.Increment(command[0])
		}
	}
	r.ExitStatuses.Increment(status.String())
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return "signal " + s.Signal
	}
	return fmt.Sprintf("%d", s.Code)
}

type RedirectReport struct {
	Targets StrCounter `json:"targets"`
	Modes   StrCounter `json:"modes"`
}

func (r *RedirectReport) update(rr *RunRedirect) {
	r.Targets.Increment(rr.Target)
	if rr.Append {
		r.Modes.Increment("append")
	} else {
		r.Modes.Increment("truncate")
	}
}

type PipelineReport struct {
	Count int `json:"count"`
	// Pipelines by their program names, e.g. "ls | wc".
	Shapes StrCounter `json:"shapes"`
}

func (r *PipelineReport) update(rp *RunPipeline) {
	r.Count++
	r.Shapes.Increment(strings.Join([]string{first(rp.Producer), first(rp.Consumer)}, " | "))
}

type ErrorReport struct {
	Errors *PathCounter `json:"errors"`
}

func (r *ErrorReport) update(ce *CommandError) {
	if r.Errors == nil {
		r.Errors = NewPathCounter("line", "error")
	}
	r.Errors.Increment(ce.Line, ce.Error)
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// Len returns the number of distinct keys.
func (s *StrCounter) Len() int {
	return len(s.internal)
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of string tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for the given key.
func (ctr *PathCounter) Get(key ...string) int {
	return ctr.internal[toKey(key...)]
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
