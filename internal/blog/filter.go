package blog

import "strings"

// FilterByAuthor keeps posts whose author matches exactly, ignoring
// case. Posts without an author never match a non-empty query. The
// relative order of the input is preserved.
func FilterByAuthor(posts []Post, author string) []Post {
	if author == "" {
		return posts
	}

	var filtered []Post
	for _, post := range posts {
		if post.Author != "" && strings.EqualFold(post.Author, author) {
			filtered = append(filtered, post)
		}
	}
	return filtered
}

// FilterByTags keeps posts whose raw tag text contains every requested
// tag as a case-insensitive substring. Deliberately lenient: a query
// for "go" matches a post tagged "golang", same as the original filter.
func FilterByTags(posts []Post, tagsQuery string) []Post {
	if tagsQuery == "" {
		return posts
	}

	filtered := posts
	for _, tag := range strings.Split(tagsQuery, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		filtered = filterByTag(filtered, tag)
	}
	return filtered
}

func filterByTag(posts []Post, tag string) []Post {
	tag = strings.ToLower(tag)

	var filtered []Post
	for _, post := range posts {
		if post.Tags != "" && strings.Contains(strings.ToLower(post.Tags), tag) {
			filtered = append(filtered, post)
		}
	}
	return filtered
}
