package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	PassStarted Type = iota + 1
	PassComplete
	FileUploaded
	FileSkipped
	FileFailed
	DirCreated
	RemoteDeleted
	ReconcileFailed
	LivenessLost
)

var typeNames = [...]string{
	PassStarted:     "PassStarted",
	PassComplete:    "PassComplete",
	FileUploaded:    "FileUploaded",
	FileSkipped:     "FileSkipped",
	FileFailed:      "FileFailed",
	DirCreated:      "DirCreated",
	RemoteDeleted:   "RemoteDeleted",
	ReconcileFailed: "ReconcileFailed",
	LivenessLost:    "LivenessLost",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	PassID    string
	Path      string // canonical remote path
	Size      int64  // file size (FileUploaded)
	Error     error
	DryRun    bool // the action was reported but not performed
}
