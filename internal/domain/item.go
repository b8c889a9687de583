package domain

import "time"

// Item is the metadata record kept in the key-value store. Its content body lives in the blob
// store under BlobKey.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BlobKey   string    `json:"blobKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ItemContent is the JSON document written to the blob store for an item.
type ItemContent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
