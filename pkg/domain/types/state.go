package types

// CaptureState is the state of a single capture: Idle → Extracting → Persisted | Failed
type CaptureState string

const (
	CaptureIdle       CaptureState = "idle"
	CaptureExtracting CaptureState = "extracting"
	CapturePersisted  CaptureState = "persisted"
	CaptureFailed     CaptureState = "failed"
)

func (s CaptureState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can happen
func (s CaptureState) IsTerminal() bool {
	return s == CapturePersisted || s == CaptureFailed
}

// QueryState is the state of a live query:
// Idle → Querying → Streaming → Completed | FailedWithPartialSave
type QueryState string

const (
	QueryIdle                  QueryState = "idle"
	QueryQuerying              QueryState = "querying"
	QueryStreaming             QueryState = "streaming"
	QueryCompleted             QueryState = "completed"
	QueryFailedWithPartialSave QueryState = "failed_with_partial_save"
)

func (s QueryState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can happen
func (s QueryState) IsTerminal() bool {
	return s == QueryCompleted || s == QueryFailedWithPartialSave
}
