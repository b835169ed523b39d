package pastevent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxFeatureImages = 4
	maxGalleryImages = 9
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	imagePattern = regexp.MustCompile(`^(/uploads/|https?://)`)
)

// reservedSlugs collide with static routes under /past-events.
var reservedSlugs = map[string]bool{
	"years":      true,
	"check-slug": true,
}

// SanitizeSlug trims and lowercases a slug before it is stored or compared.
func SanitizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// payload is the wire shape shared by create and update requests.
type payload struct {
	Slug           *string         `json:"slug"`
	Title          *string         `json:"title"`
	Subtitle       *string         `json:"subtitle"`
	Description    *string         `json:"description"`
	ThumbnailImage *string         `json:"thumbnailImage"`
	Year           json.RawMessage `json:"year"`
	Hero           json.RawMessage `json:"hero"`
	Intro          json.RawMessage `json:"intro"`
	FeatureList    json.RawMessage `json:"featureList"`
	Gallery        json.RawMessage `json:"gallery"`
	Conclusion     json.RawMessage `json:"conclusion"`
}

func decodePayload(body []byte, verr *ValidationError) (payload, bool) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			verr.Add(typeErr.Field, "must be a "+typeErr.Type.String())
		} else {
			verr.Add("body", "malformed JSON document")
		}
		return p, false
	}
	return p, true
}

// ParseDocument decodes and validates a create payload. The year may be a
// JSON number or a numeric string and is coerced to an integer.
func ParseDocument(body []byte) (Document, error) {
	verr := &ValidationError{}
	p, ok := decodePayload(body, verr)
	if !ok {
		return Document{}, verr
	}

	doc := Document{
		Slug:           deref(p.Slug),
		Title:          deref(p.Title),
		Subtitle:       deref(p.Subtitle),
		Description:    deref(p.Description),
		ThumbnailImage: deref(p.ThumbnailImage),
		Hero:           nullToNil(p.Hero),
		Intro:          nullToNil(p.Intro),
		FeatureList:    nullToNil(p.FeatureList),
		Gallery:        nullToNil(p.Gallery),
		Conclusion:     nullToNil(p.Conclusion),
	}
	if isAbsent(p.Year) {
		verr.Add("year", "is required")
	} else if year, err := parseYear(p.Year); err != nil {
		verr.Add("year", err.Error())
	} else {
		doc.Year = year
	}

	if err := doc.Validate(); err != nil {
		var docErr *ValidationError
		if errors.As(err, &docErr) {
			for _, f := range docErr.Fields {
				if f.Field == "year" && hasField(verr, "year") {
					continue
				}
				verr.Fields = append(verr.Fields, f)
			}
		}
	}
	if err := verr.OrNil(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ParsePatch decodes and validates a partial update payload. Absent fields
// are left untouched; a null section resets it to its default.
func ParsePatch(body []byte) (Patch, error) {
	verr := &ValidationError{}
	p, ok := decodePayload(body, verr)
	if !ok {
		return Patch{}, verr
	}

	patch := Patch{
		Slug:           p.Slug,
		Title:          p.Title,
		Subtitle:       p.Subtitle,
		Description:    p.Description,
		ThumbnailImage: p.ThumbnailImage,
		Hero:           p.Hero,
		Intro:          p.Intro,
		FeatureList:    p.FeatureList,
		Gallery:        p.Gallery,
		Conclusion:     p.Conclusion,
	}
	if !isAbsent(p.Year) {
		year, err := parseYear(p.Year)
		if err != nil {
			verr.Add("year", err.Error())
		} else {
			patch.Year = &year
		}
	} else if p.Year != nil {
		verr.Add("year", "cannot be null")
	}

	if err := patch.Validate(); err != nil {
		var patchErr *ValidationError
		if errors.As(err, &patchErr) {
			verr.Fields = append(verr.Fields, patchErr.Fields...)
		}
	}
	if err := verr.OrNil(); err != nil {
		return Patch{}, err
	}
	return patch, nil
}

// Validate sanitizes the slug and checks the document. Sections may be
// partial; only their shape and image references are checked.
func (d *Document) Validate() error {
	verr := &ValidationError{}
	d.Slug = SanitizeSlug(d.Slug)
	d.Title = strings.TrimSpace(d.Title)

	validateSlug(d.Slug, verr)
	if d.Title == "" {
		verr.Add("title", "is required")
	}
	if d.Year <= 0 {
		verr.Add("year", "must be a positive integer")
	}
	validateImageRef("thumbnailImage", d.ThumbnailImage, verr)
	validateSections(d.Hero, d.Intro, d.FeatureList, d.Gallery, d.Conclusion, verr)
	return verr.OrNil()
}

// Validate checks the fields present in the patch.
func (p *Patch) Validate() error {
	verr := &ValidationError{}
	if p.Slug != nil {
		s := SanitizeSlug(*p.Slug)
		p.Slug = &s
		validateSlug(s, verr)
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
		if t == "" {
			verr.Add("title", "cannot be empty")
		}
	}
	if p.Year != nil && *p.Year <= 0 {
		verr.Add("year", "must be a positive integer")
	}
	if p.ThumbnailImage != nil {
		validateImageRef("thumbnailImage", *p.ThumbnailImage, verr)
	}
	validateSections(p.Hero, p.Intro, p.FeatureList, p.Gallery, p.Conclusion, verr)
	return verr.OrNil()
}

func validateSlug(slug string, verr *ValidationError) {
	switch {
	case slug == "":
		verr.Add("slug", "is required")
	case !slugPattern.MatchString(slug):
		verr.Add("slug", "must contain only lowercase letters, digits and single dashes")
	case reservedSlugs[slug]:
		verr.Add("slug", "is reserved")
	}
}

func validateImageRef(field, value string, verr *ValidationError) {
	if value != "" && !imagePattern.MatchString(value) {
		verr.Add(field, "must be an /uploads/ path or an http(s) URL")
	}
}

func validateSections(hero, intro, featureList, gallery, conclusion json.RawMessage, verr *ValidationError) {
	sections := []struct {
		name string
		raw  json.RawMessage
	}{
		{"hero", hero}, {"intro", intro}, {"featureList", featureList},
		{"gallery", gallery}, {"conclusion", conclusion},
	}
	for _, s := range sections {
		if isAbsent(s.raw) {
			continue
		}
		if decodeObject(s.raw) == nil {
			verr.Add(s.name, "must be an object")
		}
	}

	if obj := decodeObject(hero); obj != nil {
		validateImageRef("hero.backgroundImage", stringField(obj, "backgroundImage"), verr)
	}
	if obj := decodeObject(intro); obj != nil {
		if align, ok := obj["align"]; ok && align != nil {
			if a, _ := align.(string); a != string(AlignStart) && a != string(AlignCenter) {
				verr.Add("intro.align", `must be "start" or "center"`)
			}
		}
	}
	if obj := decodeObject(featureList); obj != nil {
		if v, ok := obj["items"]; ok && v != nil {
			items, isList := v.([]any)
			if !isList {
				verr.Add("featureList.items", "must be a list")
			}
			for i, it := range items {
				item, isObj := it.(map[string]any)
				if !isObj {
					verr.Add(fmt.Sprintf("featureList.items[%d]", i), "must be an object")
					continue
				}
				images, _ := item["images"].([]any)
				if len(images) > maxFeatureImages {
					verr.Add(fmt.Sprintf("featureList.items[%d].images", i),
						fmt.Sprintf("must have at most %d images", maxFeatureImages))
				}
				for j, img := range images {
					s, _ := img.(string)
					validateImageRef(fmt.Sprintf("featureList.items[%d].images[%d]", i, j), s, verr)
				}
			}
		}
	}
	if obj := decodeObject(gallery); obj != nil {
		images, _ := obj["images"].([]any)
		if len(images) > maxGalleryImages {
			verr.Add("gallery.images", fmt.Sprintf("must have at most %d images", maxGalleryImages))
		}
		for i, it := range images {
			img, _ := it.(map[string]any)
			url := stringField(img, "url")
			if url == "" {
				verr.Add(fmt.Sprintf("gallery.images[%d].url", i), "is required")
				continue
			}
			validateImageRef(fmt.Sprintf("gallery.images[%d].url", i), url, verr)
		}
	}
}

// parseYear accepts an integral JSON number or a numeric string.
func parseYear(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, errors.New("must be an integer")
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.Atoi(t.String()); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
			return 0, errors.New("must be an integer")
		}
		return int(f), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, errors.New("must be an integer")
		}
		return n, nil
	default:
		return 0, errors.New("must be an integer")
	}
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	if isAbsent(raw) {
		return nil
	}
	return raw
}

func hasField(verr *ValidationError, field string) bool {
	for _, f := range verr.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
