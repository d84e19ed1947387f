package model

// ALPN protocol negotiated by client and server.
const Protocol = "serialq"

type Status int

const (
	STATUS_OK Status = iota
	STATUS_FAILED
	// The server dropped the job before running it.
	STATUS_CANCELED
)

func (s Status) String() string {
	switch s {
	case STATUS_OK:
		return "ok"
	case STATUS_FAILED:
		return "failed"
	case STATUS_CANCELED:
		return "canceled"
	default:
		return "unknown"
	}
}
