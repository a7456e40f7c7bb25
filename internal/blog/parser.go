package blog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ParseError means the document is structurally unreadable: empty, or
// without a usable header row. A single bad row is never a ParseError.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse sheet: " + e.Reason
}

// ParseResult is an ordered list of posts plus the number of rows that
// were dropped for missing a title.
type ParseResult struct {
	Posts   []Post
	Dropped int

	// first-seen index: lowercased slug -> position in Posts; on slug
	// collisions the first row wins the lookup
	index map[string]int
}

// Lookup finds a post by slug, case-insensitively.
func (pr *ParseResult) Lookup(slug string) (Post, bool) {
	i, ok := pr.index[strings.ToLower(slug)]
	if !ok {
		return Post{}, false
	}
	return pr.Posts[i], true
}

// ParsePosts turns the raw CSV export of the posts sheet into typed
// post records. Pure and deterministic, no I/O.
//
// Row 1 names the columns; names are matched case-insensitively and
// their order carries no meaning. A row without a title is dropped and
// counted, rows marked hidden are silently excluded.
func ParsePosts(raw string) (*ParseResult, error) {
	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ParseError{Reason: "empty document"}
	}
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("read header row: %s", err)}
	}

	columns := columnIndex(header)
	if _, ok := columns["title"]; !ok {
		return nil, &ParseError{Reason: "no title column in header row"}
	}

	result := &ParseResult{
		index: make(map[string]int),
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// one unreadable row is not fatal
			result.Dropped++
			continue
		}

		get := func(column string) string {
			i, ok := columns[column]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		title := get("title")
		if title == "" {
			result.Dropped++
			continue
		}

		// drafts stay out of every query
		if isTruthy(get("hidden")) || isTruthy(get("draft")) {
			continue
		}
		if visible := get("visible"); visible != "" && !isTruthy(visible) {
			continue
		}

		postSlug := get("slug")
		if postSlug == "" {
			postSlug = Slugify(title)
		}

		body := get("body")
		if body == "" {
			body = get("content")
		}
		published := get("published")
		if published == "" {
			published = get("date")
		}

		post := Post{
			Slug:      postSlug,
			Title:     title,
			Author:    get("author"),
			Tags:      get("tags"),
			Body:      body,
			Published: published,
		}

		key := strings.ToLower(post.Slug)
		if _, exists := result.index[key]; !exists {
			result.index[key] = len(result.Posts)
		}
		result.Posts = append(result.Posts, post)
	}

	if result.Dropped > 0 {
		log.Debugf("parse posts sheet: dropped %d rows", result.Dropped)
	}

	return result, nil
}

// ParseMetadata reads the settings sheet: key/value rows holding the
// SEO fields and the CSS blob. Tolerant by design - unknown keys are
// ignored and missing keys leave their defaults, so a blog without a
// settings tab still renders.
func ParseMetadata(raw string) Metadata {
	var meta Metadata

	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warnf("parse settings sheet row: %s", err)
			continue
		}
		if len(record) < 2 {
			continue
		}

		value := record[1]
		switch normalizeColumn(record[0]) {
		case "key", "setting":
			// header row, nothing to pick up
		case "title", "seo_title":
			meta.SEO.Title = strings.TrimSpace(value)
		case "description", "seo_description":
			meta.SEO.Description = strings.TrimSpace(value)
		case "image", "seo_image", "social_image":
			meta.SEO.Image = strings.TrimSpace(value)
		case "css":
			// stylesheet text is kept verbatim
			meta.CSS = value
		}
	}

	return meta
}

func columnIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = normalizeColumn(name)
		if name == "" {
			continue
		}
		if _, exists := columns[name]; !exists {
			columns[name] = i
		}
	}
	return columns
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.TrimSpace(name))
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "true", "yes", "y", "1", "x":
		return true
	}
	return false
}
