package model

import "strings"

const (
	UnknownTrack  = "Unknown Track"
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// Track is the inline projection of a catalog track carried by queue items,
// enough to render and play without another lookup.
type Track struct {
	ID         string `json:"id" bson:"id"`
	Name       string `json:"name" bson:"name"`
	Artist     string `json:"artist" bson:"artist"`
	ArtistID   string `json:"artistId,omitempty" bson:"artistId,omitempty"`
	Album      string `json:"album" bson:"album"`
	AlbumID    string `json:"albumId,omitempty" bson:"albumId,omitempty"`
	AlbumCover string `json:"albumCover,omitempty" bson:"albumCover,omitempty"`
	Duration   int    `json:"duration" bson:"duration"` // seconds
	Audio      string `json:"audio,omitempty" bson:"audio,omitempty"`
}

// Normalize fills blank display fields with placeholders.
func (t Track) Normalize() Track {
	t.ID = strings.TrimSpace(t.ID)
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		t.Name = UnknownTrack
	}
	t.Artist = strings.TrimSpace(t.Artist)
	if t.Artist == "" {
		t.Artist = UnknownArtist
	}
	t.Album = strings.TrimSpace(t.Album)
	if t.Album == "" {
		t.Album = UnknownAlbum
	}
	if t.Duration < 0 {
		t.Duration = 0
	}
	return t
}

// QueueItem is one row of a jam queue. Position is the index in the queue.
type QueueItem struct {
	JamID       string `json:"-" bson:"jamId"`
	QueueItemID string `json:"queueItemId" bson:"_id"`
	Position    int    `json:"position" bson:"position"`
	AddedBy     string `json:"addedBy,omitempty" bson:"addedBy,omitempty"`
	Track       Track  `json:"track" bson:"track"`
}

// Renumber rewrites positions so they match slice indexes.
func Renumber(items []QueueItem) []QueueItem {
	for i := range items {
		items[i].Position = i
	}
	return items
}
