package pastevent

// ProjectSummary selects the listing fields of a raw record. The nested
// sections are never read, so repositories may skip loading them.
func ProjectSummary(rec *RawRecord) Summary {
	return Summary{
		ID:             rec.ID,
		Slug:           rec.Slug,
		Title:          rec.Title,
		Description:    rec.Description,
		Year:           rec.Year,
		ThumbnailImage: rec.ThumbnailImage,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// Summary projects a canonical record to its listing shape.
func (e PastEvent) Summary() Summary {
	return Summary{
		ID:             e.ID,
		Slug:           e.Slug,
		Title:          e.Title,
		Description:    e.Description,
		Year:           e.Year,
		ThumbnailImage: e.ThumbnailImage,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// ProjectSummaries projects a listing in order.
func ProjectSummaries(recs []*RawRecord) []Summary {
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ProjectSummary(rec))
	}
	return out
}
