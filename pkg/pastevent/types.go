package pastevent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Align controls how the intro block is laid out.
type Align string

const (
	AlignStart  Align = "start"
	AlignCenter Align = "center"
)

// Hero is the banner section at the top of a past event page.
type Hero struct {
	BackgroundImage string `json:"backgroundImage,omitempty"`
}

// Intro is the lead paragraph section.
type Intro struct {
	Content string `json:"content"`
	Align   Align  `json:"align"`
}

// FeatureItem is a single highlighted activity of the event.
type FeatureItem struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Content  string   `json:"content"`
	Images   []string `json:"images,omitempty"`
}

// FeatureList is the ordered list of feature items.
type FeatureList struct {
	Items []FeatureItem `json:"items"`
}

// GalleryImage is one image of the gallery section.
type GalleryImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Gallery is the ordered image grid section.
type Gallery struct {
	Images []GalleryImage `json:"images"`
}

// Conclusion is the closing section.
type Conclusion struct {
	Content string `json:"content"`
}

// PastEvent is the canonical, fully populated past event record.
//
// All five nested sections are always present once a record went through
// Normalize, so consumers never check for their presence.
type PastEvent struct {
	ID             uuid.UUID   `json:"id"`
	Slug           string      `json:"slug"`
	Title          string      `json:"title"`
	Subtitle       string      `json:"subtitle,omitempty"`
	Description    string      `json:"description,omitempty"`
	Year           int         `json:"year"`
	ThumbnailImage string      `json:"thumbnailImage,omitempty"`
	Hero           Hero        `json:"hero"`
	Intro          Intro       `json:"intro"`
	FeatureList    FeatureList `json:"featureList"`
	Gallery        Gallery     `json:"gallery"`
	Conclusion     Conclusion  `json:"conclusion"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Summary is the lightweight listing shape of a past event. It never carries
// the nested sections.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Year           int       `json:"year"`
	ThumbnailImage string    `json:"thumbnailImage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// YearAggregate is the number of past events recorded for a year.
type YearAggregate struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// RawRecord is a past event as persisted. Nested sections are kept as opaque
// JSON and may be nil, null or partially shaped.
type RawRecord struct {
	ID             uuid.UUID       `json:"id"`
	Slug           string          `json:"slug"`
	Title          string          `json:"title"`
	Subtitle       string          `json:"subtitle,omitempty"`
	Description    string          `json:"description,omitempty"`
	Year           int             `json:"year"`
	ThumbnailImage string          `json:"thumbnailImage,omitempty"`
	Hero           json.RawMessage `json:"hero,omitempty"`
	Intro          json.RawMessage `json:"intro,omitempty"`
	FeatureList    json.RawMessage `json:"featureList,omitempty"`
	Gallery        json.RawMessage `json:"gallery,omitempty"`
	Conclusion     json.RawMessage `json:"conclusion,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Document is a validated create payload.
type Document struct {
	Slug           string
	Title          string
	Subtitle       string
	Description    string
	Year           int
	ThumbnailImage string
	Hero           json.RawMessage
	Intro          json.RawMessage
	FeatureList    json.RawMessage
	Gallery        json.RawMessage
	Conclusion     json.RawMessage
}

// Patch is a validated partial update. Nil fields are left untouched.
type Patch struct {
	Slug           *string
	Title          *string
	Subtitle       *string
	Description    *string
	Year           *int
	ThumbnailImage *string
	Hero           json.RawMessage
	Intro          json.RawMessage
	FeatureList    json.RawMessage
	Gallery        json.RawMessage
	Conclusion     json.RawMessage
}

// IsEmpty reports whether the patch changes nothing.
func (p *Patch) IsEmpty() bool {
	return p.Slug == nil && p.Title == nil && p.Subtitle == nil && p.Description == nil &&
		p.Year == nil && p.ThumbnailImage == nil && p.Hero == nil && p.Intro == nil &&
		p.FeatureList == nil && p.Gallery == nil && p.Conclusion == nil
}

// Apply writes the patch onto a raw record. Timestamps are the repository's job.
func (p *Patch) Apply(rec *RawRecord) {
	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.Subtitle != nil {
		rec.Subtitle = *p.Subtitle
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.Year != nil {
		rec.Year = *p.Year
	}
	if p.ThumbnailImage != nil {
		rec.ThumbnailImage = *p.ThumbnailImage
	}
	if p.Hero != nil {
		rec.Hero = cloneRaw(p.Hero)
	}
	if p.Intro != nil {
		rec.Intro = cloneRaw(p.Intro)
	}
	if p.FeatureList != nil {
		rec.FeatureList = cloneRaw(p.FeatureList)
	}
	if p.Gallery != nil {
		rec.Gallery = cloneRaw(p.Gallery)
	}
	if p.Conclusion != nil {
		rec.Conclusion = cloneRaw(p.Conclusion)
	}
}

// ListFilter narrows a summary listing.
type ListFilter struct {
	Year *int
}

// Clone returns a deep copy of the record.
func (r *RawRecord) Clone() *RawRecord {
	c := *r
	c.Hero = cloneRaw(r.Hero)
	c.Intro = cloneRaw(r.Intro)
	c.FeatureList = cloneRaw(r.FeatureList)
	c.Gallery = cloneRaw(r.Gallery)
	c.Conclusion = cloneRaw(r.Conclusion)
	return &c
}

func cloneRaw(m json.RawMessage) json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(json.RawMessage, len(m))
	copy(out, m)
	return out
}
