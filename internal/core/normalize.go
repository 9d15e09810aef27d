package core

import (
	"sort"
	"strings"
)

// Header aliases per target field, in priority order. Keys are compared
// after canonicalHeader, so "Date_Purchased" and "date purchased" match.
var (
	titleAliases         = []string{"title", "name", "project name", "project title"}
	statusAliases        = []string{"status", "state", "project status"}
	companyAliases       = []string{"company", "manufacturer", "brand"}
	artistAliases        = []string{"artist", "creator", "designer"}
	widthAliases         = []string{"width"}
	heightAliases        = []string{"height"}
	legacyHeightAliases  = []string{"length"}
	dimensionsAliases    = []string{"dimensions", "dimension"}
	drillShapeAliases    = []string{"drill shape", "shape"}
	canvasTypeAliases    = []string{"canvas type", "canvas"}
	drillTypeAliases     = []string{"drill type", "drilltype"}
	kitCategoryAliases   = []string{"type of kit", "kit category", "category"}
	datePurchasedAliases = []string{"date purchased", "purchase date", "purchased on"}
	dateStartedAliases   = []string{"date started", "start date", "started on"}
	dateCompletedAliases = []string{"date completed", "completion date", "completed on", "date finished"}
	dateReceivedAliases  = []string{"date received", "received date", "received on"}
	notesAliases         = []string{"notes", "general notes", "note", "comments"}
	sourceURLAliases     = []string{"source url", "url", "source", "link"}
	diamondsAliases      = []string{"total diamonds", "diamond count", "diamonds", "count"}
	tagsAliases          = []string{"tags", "tag", "labels"}
)

// statusSynonyms maps canonicalized free text to the closed status set.
var statusSynonyms = map[string]ProjectStatus{
	"wishlist":  StatusWishlist,
	"wish list": StatusWishlist,
	"wish":      StatusWishlist,
	"wanted":    StatusWishlist,
	"want":      StatusWishlist,
	"planned":   StatusWishlist,

	"purchased":  StatusPurchased,
	"bought":     StatusPurchased,
	"ordered":    StatusPurchased,
	"on order":   StatusPurchased,
	"shipped":    StatusPurchased,
	"in transit": StatusPurchased,

	"stash":       StatusStash,
	"in stash":    StatusStash,
	"stashed":     StatusStash,
	"owned":       StatusStash,
	"received":    StatusStash,
	"not started": StatusStash,

	"progress":    StatusProgress,
	"in progress": StatusProgress,
	"wip":         StatusProgress,
	"started":     StatusProgress,
	"working":     StatusProgress,
	"ongoing":     StatusProgress,
	"active":      StatusProgress,

	"completed": StatusCompleted,
	"complete":  StatusCompleted,
	"done":      StatusCompleted,
	"finished":  StatusCompleted,

	"archived": StatusArchived,
	"archive":  StatusArchived,

	"destashed":  StatusDestashed,
	"destash":    StatusDestashed,
	"sold":       StatusDestashed,
	"gifted":     StatusDestashed,
	"given away": StatusDestashed,
	"traded":     StatusDestashed,
}

// Kit category keyword sets. They must stay disjoint.
var (
	fullKitKeywords = map[string]bool{
		"full": true, "fullsize": true, "regular": true, "standard": true,
		"large": true, "big": true, "normal": true,
	}
	miniKitKeywords = map[string]bool{
		"mini": true, "minis": true, "small": true, "tiny": true,
		"keychain": true, "keychains": true, "coaster": true, "coasters": true,
		"bookmark": true, "bookmarks": true, "sticker": true, "stickers": true,
		"magnet": true, "magnets": true,
	}
)

// Normalize converts one raw row into a partial project. It returns false
// when no title alias resolves to a non-blank value; the row must then be
// skipped and left out of every count.
//
// Normalize never fails: unparseable values leave their field unset.
func Normalize(row RawRow) (PartialProject, bool) {
	idx := indexRow(row)

	title := idx.first(titleAliases)
	if title == "" {
		return PartialProject{}, false
	}

	p := PartialProject{
		Title:       title,
		Status:      NormalizeStatus(idx.first(statusAliases)),
		Company:     idx.first(companyAliases),
		Artist:      idx.first(artistAliases),
		DrillShape:  idx.first(drillShapeAliases),
		CanvasType:  idx.first(canvasTypeAliases),
		DrillType:   idx.first(drillTypeAliases),
		KitCategory: ClassifyKitCategory(idx.first(kitCategoryAliases)),
		Notes:       idx.first(notesAliases),
		SourceURL:   idx.first(sourceURLAliases),
		TagNames:    SplitTags(idx.first(tagsAliases)),
	}

	p.Width, p.Height = normalizeDimensions(idx)

	if n, ok := ParseCount(idx.first(diamondsAliases)); ok {
		p.TotalDiamonds = &n
	}

	p.DatePurchased, _ = NormalizeDate(idx.first(datePurchasedAliases))
	p.DateStarted, _ = NormalizeDate(idx.first(dateStartedAliases))
	p.DateCompleted, _ = NormalizeDate(idx.first(dateCompletedAliases))
	p.DateReceived, _ = NormalizeDate(idx.first(dateReceivedAliases))

	return p, true
}

// NormalizeRecord is Normalize for a parsed record; it carries the source
// line number through for error messages.
func NormalizeRecord(rec Record) (PartialProject, bool) {
	p, ok := Normalize(rec.Fields)
	if ok {
		p.Line = rec.Line
	}
	return p, ok
}

// normalizeDimensions prefers explicit width/height, falls back to the
// legacy "length" column for height, and only consults a combined
// "W x H" column when neither width nor height was given.
func normalizeDimensions(idx rowIndex) (width, height *float64) {
	rawWidth := idx.first(widthAliases)
	rawHeight := idx.first(heightAliases)
	if rawHeight == "" {
		rawHeight = idx.first(legacyHeightAliases)
	}

	if rawWidth == "" && rawHeight == "" {
		if w, h, ok := ParseDimensions(idx.first(dimensionsAliases)); ok {
			return &w, &h
		}
		return nil, nil
	}

	if w, ok := ParseDimension(rawWidth); ok {
		width = &w
	}
	if h, ok := ParseDimension(rawHeight); ok {
		height = &h
	}
	return width, height
}

// NormalizeStatus maps free text to the closed status set. Blank or
// unrecognized input becomes StatusWishlist.
func NormalizeStatus(s string) ProjectStatus {
	key := canonicalHeader(s)
	if status, ok := statusSynonyms[key]; ok {
		return status
	}
	return StatusWishlist
}

// ClassifyKitCategory returns KitCategoryFull or KitCategoryMini when the
// value contains keywords from exactly one set, and "" otherwise.
func ClassifyKitCategory(s string) KitCategory {
	words := strings.Fields(canonicalHeader(s))
	if len(words) == 0 {
		return ""
	}

	var full, mini bool
	for _, w := range words {
		if fullKitKeywords[w] {
			full = true
		}
		if miniKitKeywords[w] {
			mini = true
		}
	}

	switch {
	case full && !mini:
		return KitCategoryFull
	case mini && !full:
		return KitCategoryMini
	default:
		return ""
	}
}

// canonicalHeader lower-cases, treats '_' and '-' as spaces and collapses
// runs of whitespace.
func canonicalHeader(s string) string {
	s = strings.ToLower(CleanCell(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// rowIndex is a canonical-header view of a RawRow.
type rowIndex map[string]string

// indexRow builds the canonical view. When two raw headers canonicalize to
// the same key, the first non-blank value in sorted header order wins so
// the result never depends on map iteration order.
func indexRow(row RawRow) rowIndex {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	idx := make(rowIndex, len(row))
	for _, k := range keys {
		v := CleanCell(row[k])
		if v == "" {
			continue
		}
		ck := canonicalHeader(k)
		if _, exists := idx[ck]; !exists {
			idx[ck] = v
		}
	}
	return idx
}

// first returns the value for the first alias with a non-blank cell.
func (idx rowIndex) first(aliases []string) string {
	for _, alias := range aliases {
		if v, ok := idx[canonicalHeader(alias)]; ok {
			return v
		}
	}
	return ""
}
