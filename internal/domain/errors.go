package domain

import "fmt"

// DataSourceError is returned when the backing store is unreachable or
// returns rows this service cannot read. Fatal to the current run only.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// ResolutionError is returned when a task's contact data cannot be turned
// into a deliverable destination. Skips that task, never the run.
type ResolutionError struct {
	TaskID string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve recipient for task %s: %s", e.TaskID, e.Reason)
}

// ChannelError is returned when the messaging provider rejects a send or
// the call fails in transit. Skips that task, never the run.
type ChannelError struct {
	Destination string
	Err         error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel send to %s: %v", e.Destination, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
