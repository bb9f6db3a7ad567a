package model

// Status is the relay state reported on the status output.
type Status string

const (
	StatusConnected    Status = "Connected"
	StatusSending      Status = "Sending Data..."
	StatusNoData       Status = "No Data"
	StatusNotConnected Status = "Not Connected"
	StatusError        Status = "Error"
)

// Level groups statuses by severity for indicators.
type Level string

const (
	LevelOK      Level = "ok"
	LevelPending Level = "pending"
	LevelFault   Level = "fault"
)

// Level returns the indicator level of s.
func (s Status) Level() Level {
	switch s {
	case StatusConnected:
		return LevelOK
	case StatusSending, StatusNoData:
		return LevelPending
	default:
		return LevelFault
	}
}
