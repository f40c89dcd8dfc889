package ranging

// Status is the outcome code reported by the device for one ranging request.
type Status int

const (
	StatusSuccess Status = iota
	StatusInProgress
	StatusTimedOut
	StatusNotStarted
	// StatusUnknown is the catch-all for anything the device reports outside
	// the codes above, including responses that could not be parsed at all.
	StatusUnknown
)

var statusLabels = map[Status]string{
	StatusSuccess:    "Success",
	StatusInProgress: "In-progress",
	StatusTimedOut:   "Timed out",
	StatusNotStarted: "Not started",
	StatusUnknown:    "Unknown",
}

// StatusFromCode maps a numeric status field to a Status. Codes outside the
// known set resolve to StatusUnknown.
func StatusFromCode(code int) Status {
	s := Status(code)
	if s < StatusSuccess || s >= StatusUnknown {
		return StatusUnknown
	}
	return s
}

func (s Status) String() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return statusLabels[StatusUnknown]
}

// Code returns the wire value of the status. StatusUnknown has no wire value
// of its own and reports 4, matching the driver's enum.
func (s Status) Code() int {
	if s < StatusSuccess || s > StatusUnknown {
		return int(StatusUnknown)
	}
	return int(s)
}
