package domain

// VideoRecord is one line of extractor output. Field names follow the
// yt-dlp JSON schema; only the named fields are read.
type VideoRecord struct {
	Title        string  `json:"title"`
	Description  *string `json:"description"`
	Duration     uint64  `json:"duration"`
	Uploader     string  `json:"uploader"`
	NEntries     *uint64 `json:"n_entries"`
	ExtractorKey string  `json:"extractor_key"`
	OriginalURL  string  `json:"original_url"`
	Timestamp    int64   `json:"timestamp"`
	Filename     string  `json:"filename"`
}

// MediaMetadata extracts the catalog subset of the record.
func (v VideoRecord) MediaMetadata() MediaMetadata {
	return MediaMetadata{
		Title:        v.Title,
		Description:  v.Description,
		Duration:     v.Duration,
		ExtractorKey: v.ExtractorKey,
		OriginalURL:  v.OriginalURL,
		Timestamp:    v.Timestamp,
	}
}

// ProbeMode selects how much work a metadata probe does. OrderAware reads
// up to two entries so the list order can be inferred; Minimal reads one.
type ProbeMode string

const (
	ProbeOrderAware ProbeMode = "order_aware"
	ProbeMinimal    ProbeMode = "minimal"
)

// ListProbe is the result of probing a URL for its shape.
type ListProbe struct {
	ListKind       ListKind
	ListCount      *uint64
	ListOrder      ListOrder
	Uploader       string
	SourceProvider string
}

// StreamItem is one element of a streaming list: a record or, as the last
// element before close, a terminal error.
type StreamItem struct {
	Record *VideoRecord
	Err    error
}
