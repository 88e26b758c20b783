package blobcache

// DataRequested signals that a consumer wants a payload the cache does
// not hold. An external fetch (GetBlobData over the channel) satisfies
// it. Requesting an id already cached or already loading emits nothing.
type DataRequested struct {
	BlobID string
}

func (DataRequested) EventName() string { return "blobcache.data_requested" }

// DataCached signals that a payload arrived and its handle is ready
type DataCached struct {
	BlobID string
	Mime   string
	Size   int64
}

func (DataCached) EventName() string { return "blobcache.data_cached" }

// ListUpdated signals a change to the authoritative summary list
type ListUpdated struct {
	Count      int
	TotalCount int
}

func (ListUpdated) EventName() string { return "blobcache.list_updated" }
