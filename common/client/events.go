package client

// DataRequestFailed signals that a payload fetch started by the cache
// could not complete: the frame never left (channel down) or the
// server answered the outstanding request with an error. The cache's
// loading mark for the blob has already been cleared, so the id may
// be requested again.
type DataRequestFailed struct {
	BlobID string
	Reason string
}

func (DataRequestFailed) EventName() string { return "client.data_request_failed" }
