package domain

import "time"

// Cursor is the scan watermark: every block up to and including
// LastProcessedBlock has been scanned for deposits.
type Cursor struct {
	Name               string
	LastProcessedBlock uint64
	UpdatedAt          time.Time
}
