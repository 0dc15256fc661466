package domain

// CallState is the position of a call in the record/reply cycle.
type CallState string

const (
	// CallAwaitingRecording means the provider has been told to play and record.
	CallAwaitingRecording CallState = "awaiting-recording"
	// CallProcessingReply means a recording is being turned into the next reply.
	CallProcessingReply CallState = "processing-reply"
)

// Turn is one archived exchange of a call. Turns are kept for audit only and
// are never replayed into a prompt.
type Turn struct {
	PK         string
	SK         string
	CallSID    string
	Recording  string
	Transcript string
	Reply      string
	Status     string
	CreatedAt  string
	TTL        int64
}
