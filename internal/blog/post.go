package blog

import (
	gosimple "github.com/gosimple/slug"
)

// Post is one published blog entry, parsed from a spreadsheet row.
// Posts keep the order of their rows in the sheet; nothing re-sorts them.
type Post struct {
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	// Tags is the raw comma-separated text from the sheet; it is split
	// and normalized only at filter time
	Tags string `json:"tags,omitempty"`
	// Body is raw markup, rendered unescaped; the sheet editor is trusted
	Body      string `json:"body"`
	Published string `json:"published,omitempty"`
}

type SEO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Metadata holds the blog-wide settings rows: SEO fields and the CSS
// blob injected into every page.
type Metadata struct {
	SEO SEO
	CSS string
}

// Slugify derives a URL slug from a post title, used when a row has no
// explicit slug column.
func Slugify(title string) string {
	return gosimple.Make(title)
}
