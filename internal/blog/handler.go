package blog

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aTylerRobertson/sheet-posting/internal/telemetry/tracing"
	"github.com/aTylerRobertson/sheet-posting/pkg"

	"github.com/coocood/freecache"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

// spreadsheet share URLs look like:
// https://docs.google.com/spreadsheets/d/<id>/edit?usp=sharing
var spreadsheetURLRegex = regexp.MustCompile(`/d/([^/]+)/`)

// real spreadsheet ids are long; anything shorter is a bogus paste
const minSpreadsheetIDLen = 30

const feedCacheSize = 10 * 1024 * 1024

type Handler struct {
	store     *Store
	feedCache *freecache.Cache
	feedTTL   time.Duration
	domain    string
	defaultID string
	templates *template.Template
}

func NewHandler(store *Store, domain, defaultSpreadsheetID string, feedTTL time.Duration) *Handler {
	return &Handler{
		store:     store,
		feedCache: freecache.NewCache(feedCacheSize),
		feedTTL:   feedTTL,
		domain:    strings.TrimSuffix(domain, "/"),
		defaultID: defaultSpreadsheetID,
		templates: template.Must(template.ParseFS(templatesFS, "templates/*.gohtml")),
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/", handler.handleIndex).Methods("GET").Name("index")
	router.HandleFunc("/", handler.handleSpreadsheetURL).Methods("POST").Name("spreadsheet-url")
	router.HandleFunc("/~{id}", handler.handleBlog).Methods("GET").Name("blog")
	router.HandleFunc("/~{id}/rss", handler.handleRSS).Methods("GET").Name("blog-rss")
	router.HandleFunc("/~{id}/{post}", handler.handlePost).Methods("GET").Name("blog-post")
}

// handleIndex renders the "paste your spreadsheet URL" page, or the
// default blog when the deployment serves a single fixed one.
func (handler *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if handler.defaultID != "" {
		handler.renderBlog(w, r, handler.defaultID)
		return
	}

	w.Header().Set("Content-Type", pkg.ContentType.HTML)
	if err := handler.templates.ExecuteTemplate(w, "index.gohtml", nil); err != nil {
		log.Errorf("render index page: %s", err)
	}
}

// handleSpreadsheetURL pulls the spreadsheet id out of a pasted share
// URL and sends the visitor to their new blog.
func (handler *Handler) handleSpreadsheetURL(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		log.Errorf("handle spreadsheet url, parse form error: %s", err)
		http.Error(w, "parse form error", http.StatusBadRequest)
		return
	}

	pastedURL := r.Form.Get("url")
	match := spreadsheetURLRegex.FindStringSubmatch(pastedURL)
	if match == nil || len(match[1]) <= minSpreadsheetIDLen {
		log.Debugf("no usable spreadsheet id in pasted url [%s]", pastedURL)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	http.Redirect(w, r, "/~"+match[1], http.StatusFound)
}

func (handler *Handler) handleBlog(w http.ResponseWriter, r *http.Request) {
	handler.renderBlog(w, r, mux.Vars(r)["id"])
}

func (handler *Handler) renderBlog(w http.ResponseWriter, r *http.Request, spreadsheetID string) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "blogHandler.blog")
	defer span.End()

	posts, err := handler.store.GetAllPosts(ctx, spreadsheetID)
	if err != nil {
		handler.renderUnavailable(w, spreadsheetID, err)
		return
	}

	// same cache entry as the posts above, cannot fail here
	seo, _ := handler.store.GetSEO(ctx, spreadsheetID)
	css, _ := handler.store.GetCSS(ctx, spreadsheetID)

	var filter template.HTML
	if author := r.URL.Query().Get("author"); author != "" {
		posts = FilterByAuthor(posts, author)
		filter = template.HTML(fmt.Sprintf("Showing all posts by <i>%s</i>", template.HTMLEscapeString(author)))
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		posts = FilterByTags(posts, tags)
		filter = template.HTML(fmt.Sprintf("Showing all posts tagged <i>%s</i>", template.HTMLEscapeString(tags)))
	}

	data := blogPageData{
		URL:    handler.blogURL(spreadsheetID),
		Filter: filter,
		SEO:    seo,
		CSS:    template.CSS(css),
		Posts:  handler.postViews(spreadsheetID, posts),
	}

	w.Header().Set("Content-Type", pkg.ContentType.HTML)
	if err := handler.templates.ExecuteTemplate(w, "blog.gohtml", data); err != nil {
		log.Errorf("render blog page [%s]: %s", spreadsheetID, err)
	}
}

func (handler *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "blogHandler.post")
	defer span.End()

	vars := mux.Vars(r)
	spreadsheetID := vars["id"]

	post, err := handler.store.GetSinglePost(ctx, spreadsheetID, vars["post"])
	if errors.Is(err, ErrPostNotFound) {
		// unknown post: back to the blog index, same as the original
		http.Redirect(w, r, "/~"+spreadsheetID, http.StatusFound)
		return
	}
	if err != nil {
		handler.renderUnavailable(w, spreadsheetID, err)
		return
	}

	seo, _ := handler.store.GetSEO(ctx, spreadsheetID)
	css, _ := handler.store.GetCSS(ctx, spreadsheetID)

	data := postPageData{
		URL:  handler.blogURL(spreadsheetID),
		SEO:  seo,
		CSS:  template.CSS(css),
		Post: handler.postView(spreadsheetID, post),
	}

	w.Header().Set("Content-Type", pkg.ContentType.HTML)
	if err := handler.templates.ExecuteTemplate(w, "post.gohtml", data); err != nil {
		log.Errorf("render post page [%s/%s]: %s", spreadsheetID, post.Slug, err)
	}
}

func (handler *Handler) handleRSS(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "blogHandler.rss")
	defer span.End()

	spreadsheetID := mux.Vars(r)["id"]

	cacheKey := []byte("rss::" + spreadsheetID)
	if feedBytes, err := handler.feedCache.Get(cacheKey); err == nil {
		log.Tracef("rss feed for [%s] served from cache", spreadsheetID)
		pkg.WriteResponseBytesOK(w, pkg.ContentType.XML, feedBytes)
		return
	}

	posts, err := handler.store.GetAllPosts(ctx, spreadsheetID)
	if err != nil {
		log.Errorf("rss feed for [%s]: %s", spreadsheetID, err)
		http.Error(w, "blog unavailable", http.StatusBadGateway)
		return
	}
	seo, _ := handler.store.GetSEO(ctx, spreadsheetID)

	feedBytes, err := RenderFeed(handler.domain, spreadsheetID, seo, posts)
	if err != nil {
		log.Errorf("render rss feed for [%s]: %s", spreadsheetID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := handler.feedCache.Set(cacheKey, feedBytes, int(handler.feedTTL.Seconds())); err != nil {
		log.Errorf("failed to cache rss feed for [%s]: %s", spreadsheetID, err)
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.XML, feedBytes)
}

func (handler *Handler) renderUnavailable(w http.ResponseWriter, spreadsheetID string, err error) {
	log.Errorf("blog [%s] unavailable: %s", spreadsheetID, err)

	w.Header().Set("Content-Type", pkg.ContentType.HTML)
	w.WriteHeader(http.StatusBadGateway)
	if err := handler.templates.ExecuteTemplate(w, "unavailable.gohtml", nil); err != nil {
		log.Errorf("render unavailable page: %s", err)
	}
}

func (handler *Handler) blogURL(spreadsheetID string) string {
	return fmt.Sprintf("%s/~%s", handler.domain, spreadsheetID)
}

type blogPageData struct {
	URL    string
	Filter template.HTML
	SEO    SEO
	CSS    template.CSS
	Posts  []postView
}

type postPageData struct {
	URL  string
	SEO  SEO
	CSS  template.CSS
	Post postView
}

type postView struct {
	Post
	URL      string
	BodyHTML template.HTML
	TagLinks template.HTML
}

func (handler *Handler) postViews(spreadsheetID string, posts []Post) []postView {
	views := make([]postView, 0, len(posts))
	for _, post := range posts {
		views = append(views, handler.postView(spreadsheetID, post))
	}
	return views
}

// postView wraps a post for rendering: the body goes out unescaped
// (the sheet editor is trusted), and each comma-separated tag becomes
// a ?tags= link, mirroring the original tag links helper.
func (handler *Handler) postView(spreadsheetID string, post Post) postView {
	blogURL := handler.blogURL(spreadsheetID)

	var links []string
	for _, tag := range strings.Split(post.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		links = append(links, fmt.Sprintf(
			"<a href='%s?tags=%s'>%s</a>",
			blogURL, url.QueryEscape(tag), template.HTMLEscapeString(tag),
		))
	}

	return postView{
		Post:     post,
		URL:      fmt.Sprintf("%s/%s", blogURL, post.Slug),
		BodyHTML: template.HTML(post.Body),
		TagLinks: template.HTML(strings.Join(links, ", ")),
	}
}
