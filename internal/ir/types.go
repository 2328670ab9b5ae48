package ir

// StoredDocument is a document as the storage layer returns it: the committed
// record plus the bookkeeping the write path needs for optimistic concurrency.
type StoredDocument struct {
	ID      string `json:"id"`
	Rev     string `json:"rev"`
	Data    Object `json:"data"`
	Deleted bool   `json:"deleted"`
	Seq     int64  `json:"seq"` // Store-wide logical write counter
}

// Clone returns a deep copy of d.
func (d StoredDocument) Clone() StoredDocument {
	d.Data = d.Data.Clone()
	return d
}
