package ledger

import "time"

// Transfer is a request to move amount from Sender to Recipient.
type Transfer struct {
	Amount    uint64
	Sender    string
	Recipient string
	Memo      string
}

// Entry is a journal row written for an executed transfer.
type Entry struct {
	ID        string
	Amount    uint64
	Sender    string
	Recipient string
	Memo      string
	CreatedAt time.Time
}
