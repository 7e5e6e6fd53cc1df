package events

// ServiceOutputPayload is one line of service output, or the terminal
// notification when IsComplete is set.
type ServiceOutputPayload struct {
	ServiceID  string `json:"service_id"`
	Output     string `json:"output"`
	IsStderr   bool   `json:"is_stderr"`
	IsComplete bool   `json:"is_complete"`
	ExitCode   *int   `json:"exit_code,omitempty"`
}

// ServiceTopic returns the topic for a service.
func ServiceTopic(serviceID string) Topic {
	return Topic{Kind: KindService, ID: serviceID}
}

// NewServiceLineEvent creates a service_output event for one output line.
func NewServiceLineEvent(serviceID, line string, isStderr bool) *BaseEvent {
	return NewEvent(EventTypeServiceOutput, ServiceTopic(serviceID), ServiceOutputPayload{
		ServiceID: serviceID,
		Output:    line,
		IsStderr:  isStderr,
	})
}

// NewServiceExitEvent creates the terminal service_output event. A nil
// exitCode means the code was unavailable, e.g. the process was signalled.
func NewServiceExitEvent(serviceID string, exitCode *int) *BaseEvent {
	return NewEvent(EventTypeServiceOutput, ServiceTopic(serviceID), ServiceOutputPayload{
		ServiceID:  serviceID,
		IsComplete: true,
		ExitCode:   exitCode,
	})
}

// DataSavedPayload is published after the application data blob is written.
type DataSavedPayload struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// NewDataSavedEvent creates a data_saved event.
func NewDataSavedEvent(path string, size int) *BaseEvent {
	return NewEvent(EventTypeDataSaved, Topic{Kind: KindAppData}, DataSavedPayload{
		Path:  path,
		Bytes: size,
	})
}
