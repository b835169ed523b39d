package pastevent

import (
	"encoding/json"
)

// Normalize resolves a raw record into the canonical PastEvent.
//
// Missing, null or malformed sections are replaced by their defaults and
// every field inside a section is defaulted on its own, so the result is
// always complete. Unknown keys are dropped. Normalize does no I/O and is
// safe for concurrent use.
func Normalize(rec *RawRecord) PastEvent {
	if rec == nil {
		rec = &RawRecord{}
	}
	return PastEvent{
		ID:             rec.ID,
		Slug:           rec.Slug,
		Title:          rec.Title,
		Subtitle:       rec.Subtitle,
		Description:    rec.Description,
		Year:           rec.Year,
		ThumbnailImage: rec.ThumbnailImage,
		Hero:           NormalizeHero(rec.Hero),
		Intro:          NormalizeIntro(rec.Intro),
		FeatureList:    NormalizeFeatureList(rec.FeatureList),
		Gallery:        NormalizeGallery(rec.Gallery),
		Conclusion:     NormalizeConclusion(rec.Conclusion),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// DefaultHero returns the hero used when the section is absent.
func DefaultHero() Hero { return Hero{} }

// DefaultIntro returns an empty intro aligned to the start.
func DefaultIntro() Intro { return Intro{Content: "", Align: AlignStart} }

// DefaultFeatureList returns a feature list with no items.
func DefaultFeatureList() FeatureList { return FeatureList{Items: []FeatureItem{}} }

// DefaultGallery returns a gallery with no images.
func DefaultGallery() Gallery { return Gallery{Images: []GalleryImage{}} }

// DefaultConclusion returns an empty conclusion.
func DefaultConclusion() Conclusion { return Conclusion{Content: ""} }

// NormalizeHero resolves the hero section.
func NormalizeHero(raw json.RawMessage) Hero {
	obj := decodeObject(raw)
	if obj == nil {
		return DefaultHero()
	}
	return Hero{BackgroundImage: stringField(obj, "backgroundImage")}
}

// NormalizeIntro resolves the intro section. Any align other than "center"
// falls back to "start".
func NormalizeIntro(raw json.RawMessage) Intro {
	intro := DefaultIntro()
	obj := decodeObject(raw)
	if obj == nil {
		return intro
	}
	intro.Content = stringField(obj, "content")
	if Align(stringField(obj, "align")) == AlignCenter {
		intro.Align = AlignCenter
	}
	return intro
}

// NormalizeFeatureList resolves the feature list. Entries that are not
// objects are dropped; image lists keep string entries only.
func NormalizeFeatureList(raw json.RawMessage) FeatureList {
	list := DefaultFeatureList()
	obj := decodeObject(raw)
	if obj == nil {
		return list
	}
	items, _ := obj["items"].([]any)
	for _, v := range items {
		item, ok := v.(map[string]any)
		if !ok {
			continue
		}
		list.Items = append(list.Items, FeatureItem{
			Title:    stringField(item, "title"),
			Subtitle: stringField(item, "subtitle"),
			Content:  stringField(item, "content"),
			Images:   stringList(item["images"]),
		})
	}
	return list
}

// NormalizeGallery resolves the gallery. Images without a url are dropped.
func NormalizeGallery(raw json.RawMessage) Gallery {
	gallery := DefaultGallery()
	obj := decodeObject(raw)
	if obj == nil {
		return gallery
	}
	images, _ := obj["images"].([]any)
	for _, v := range images {
		img, ok := v.(map[string]any)
		if !ok {
			continue
		}
		url := stringField(img, "url")
		if url == "" {
			continue
		}
		gallery.Images = append(gallery.Images, GalleryImage{URL: url, Alt: stringField(img, "alt")})
	}
	return gallery
}

// NormalizeConclusion resolves the conclusion section.
func NormalizeConclusion(raw json.RawMessage) Conclusion {
	obj := decodeObject(raw)
	if obj == nil {
		return DefaultConclusion()
	}
	return Conclusion{Content: stringField(obj, "content")}
}

// Raw re-encodes the canonical record in its stored form.
func (e PastEvent) Raw() *RawRecord {
	return &RawRecord{
		ID:             e.ID,
		Slug:           e.Slug,
		Title:          e.Title,
		Subtitle:       e.Subtitle,
		Description:    e.Description,
		Year:           e.Year,
		ThumbnailImage: e.ThumbnailImage,
		Hero:           encodeSection(e.Hero),
		Intro:          encodeSection(e.Intro),
		FeatureList:    encodeSection(e.FeatureList),
		Gallery:        encodeSection(e.Gallery),
		Conclusion:     encodeSection(e.Conclusion),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// decodeObject returns nil for absent, null or non-object sections.
func decodeObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// encodeSection cannot fail for the section structs, which hold only strings
// and slices of them.
func encodeSection(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
