package blog

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Author      string   `xml:"author,omitempty"`
	Description string   `xml:"description"`
	Categories  []string `xml:"category,omitempty"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        string   `xml:"guid"`
}

// RenderFeed builds the RSS 2.0 document for one blog. The post fields
// alone are enough to fill every feed item; no extra lookups needed.
func RenderFeed(domain, spreadsheetID string, seo SEO, posts []Post) ([]byte, error) {
	blogURL := fmt.Sprintf("%s/~%s", domain, spreadsheetID)

	items := make([]rssItem, 0, len(posts))
	for _, post := range posts {
		pubDate := ""
		if t, err := time.Parse("2006-01-02", post.Published); err == nil {
			pubDate = t.Format(time.RFC1123Z)
		}

		var categories []string
		for _, tag := range strings.Split(post.Tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				categories = append(categories, tag)
			}
		}

		postURL := fmt.Sprintf("%s/%s", blogURL, post.Slug)
		items = append(items, rssItem{
			Title:       post.Title,
			Link:        postURL,
			Author:      post.Author,
			Description: post.Body,
			Categories:  categories,
			PubDate:     pubDate,
			GUID:        postURL,
		})
	}

	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       seo.Title,
			Link:        blogURL,
			Description: seo.Description,
			Items:       items,
		},
	}

	feedBytes, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rss feed: %w", err)
	}

	return append([]byte(xml.Header), feedBytes...), nil
}
