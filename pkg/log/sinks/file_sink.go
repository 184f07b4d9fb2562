package sinks

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/deskstep/deskstep/pkg/log"
)

// FileSink appends one JSON line per event to the run's log file. The
// file lives next to the run's trajectories and is the machine-readable
// counterpart of the console output.
type FileSink struct {
	path string
	file *os.File
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", path, err)
	}
	return &FileSink{path: path, file: f}, nil
}

func (fs *FileSink) Write(event *log.LogEvent) error {
	logEntry := map[string]any{
		"level":   levelToString(event.Level),
		"time":    event.Timestamp,
		"message": event.Message,
	}
	for k, v := range event.Fields {
		logEntry[k] = v
	}

	data, err := json.Marshal(logEntry)
	if err != nil {
		return fmt.Errorf("marshaling log event for %q: %w", fs.path, err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing to log file %q: %w", fs.path, err)
	}

	return nil
}

// Close flushes the file to disk before closing; run logs are often
// read immediately after an interrupted run.
func (fs *FileSink) Close() error {
	if fs.file == nil {
		return nil
	}
	if err := fs.file.Sync(); err != nil {
		fs.file.Close()
		return fmt.Errorf("syncing log file %q: %w", fs.path, err)
	}
	return fs.file.Close()
}
