package server

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/webbook"
	"github.com/dotecxy/legado2-sub001/response"
)

// SourceRequest carries the book source document each call runs against
type SourceRequest struct {
	Source json.RawMessage `json:"source" binding:"required"`
}

func (r *SourceRequest) rawSource() json.RawMessage { return r.Source }

// SearchRequest is the body of POST /api/v1/search
type SearchRequest struct {
	SourceRequest
	Key  string `json:"key" binding:"required"`
	Page int    `json:"page"`
}

// ExploreRequest is the body of POST /api/v1/explore
type ExploreRequest struct {
	SourceRequest
	URL  string `json:"url" binding:"required"`
	Page int    `json:"page"`
}

// ExploreKindsRequest is the body of POST /api/v1/explore/kinds
type ExploreKindsRequest struct {
	SourceRequest
	Refresh bool `json:"refresh"`
}

// BookRequest is the body of the book info and chapter list calls. A search
// result row may be sent instead of a book.
type BookRequest struct {
	SourceRequest
	Book       source.Book        `json:"book"`
	SearchBook *source.SearchBook `json:"searchBook"`
}

func (r *BookRequest) book() source.Book {
	if r.Book.BookURL == "" && r.SearchBook != nil {
		return *r.SearchBook.ToBook()
	}
	return r.Book
}

// ContentRequest is the body of POST /api/v1/book/content
type ContentRequest struct {
	SourceRequest
	Book           source.Book        `json:"book"`
	Chapter        source.BookChapter `json:"chapter"`
	NextChapterURL string             `json:"nextChapterUrl"`
}

type sourced interface {
	rawSource() json.RawMessage
}

// Handler serves book operations over HTTP
type Handler struct {
	svc *webbook.Service
}

// NewHandler creates a handler for svc
func NewHandler(svc *webbook.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the book routes under /api/v1
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api/v1")
	g.POST("/search", h.search)
	g.POST("/explore", h.explore)
	g.POST("/explore/kinds", h.exploreKinds)
	g.POST("/book/info", h.bookInfo)
	g.POST("/book/toc", h.chapterList)
	g.POST("/book/content", h.content)
}

// bind decodes the body and its book source; on failure the error response
// is already written
func bind(c *gin.Context, req sourced) (*source.BookSource, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}
	sources, err := source.Parse(req.rawSource())
	if err != nil {
		response.FromError(c, err)
		return nil, false
	}
	if len(sources) == 0 {
		response.BadRequest(c, "source is empty")
		return nil, false
	}
	return sources[0], true
}

func (h *Handler) search(c *gin.Context) {
	var req SearchRequest
	src, ok := bind(c, &req)
	if !ok {
		return
	}
	books, err := h.svc.SearchBooks(c.Request.Context(), src, req.Key, req.Page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, books)
}

func (h *Handler) explore(c *gin.Context) {
	var req ExploreRequest
	src, ok := bind(c, &req)
	if !ok {
		return
	}
	books, err := h.svc.ExploreBooks(c.Request.Context(), src, req.URL, req.Page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, books)
}

func (h *Handler) exploreKinds(c *gin.Context) {
	var req ExploreKindsRequest
	src, ok := bind(c, &req)
	if !ok {
		return
	}
	if req.Refresh {
		h.svc.ClearExploreKinds(src)
	}
	kinds, err := h.svc.ExploreKinds(c.Request.Context(), src)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, kinds)
}

func (h *Handler) bookInfo(c *gin.Context) {
	var req BookRequest
	src, ok := bind(c, &req)
	if !ok {
		return
	}
	book := req.book()
	if err := h.svc.GetBookInfo(c.Request.Context(), src, &book); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, book)
}

// chapterList fetches the detail page first when the book has no TOC URL yet
func (h *Handler) chapterList(c *gin.Context) {
	var req BookRequest
	src, ok := bind(c, &req)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	book := req.book()
	if book.TocURL == "" {
		if err := h.svc.GetBookInfo(ctx, src, &book); err != nil {
			response.FromError(c, err)
			return
		}
	}
	chapters, err := h.svc.GetChapterList(ctx, src, &book)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"book": book, "chapters": chapters})
}

func (h *Handler) content(c *gin.Context) {
	var req ContentRequest
	src, ok := bind(c, &req)
	if !ok {
		return
	}
	chapter := req.Chapter
	text, err := h.svc.GetContent(c.Request.Context(), src, &req.Book, &chapter, req.NextChapterURL)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"chapter": chapter, "content": text})
}
