package server

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sitevoice/sitevoice/internal/email"
	"github.com/sitevoice/sitevoice/internal/pipeline"
	"github.com/sitevoice/sitevoice/internal/report"
	"github.com/sitevoice/sitevoice/internal/search"
)

// Relevance cutoff applied by this caller; the search component itself
// does not filter by score.
const defaultMinScore = 0.6

// Server exposes the pipeline trigger and read API. Authentication is
// out of scope here: callers identify themselves with an explicit
// user_id, enforced only as an ownership filter.
type Server struct {
	db          *sql.DB
	store       *report.Store
	pipeline    *pipeline.Pipeline
	searcher    *search.Searcher
	synthesizer *email.Synthesizer
}

func New(db *sql.DB, store *report.Store, p *pipeline.Pipeline, searcher *search.Searcher, synth *email.Synthesizer) *Server {
	return &Server{db: db, store: store, pipeline: p, searcher: searcher, synthesizer: synth}
}

// Router builds the Gin router with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "sitevoice"})
	})

	api := router.Group("/api")
	api.POST("/notes", s.handleCreateNote)
	api.POST("/notes/:id/reprocess", s.handleReprocess)
	api.GET("/reports/:id", s.handleGetReport)
	api.GET("/search", s.handleSearch)
	api.POST("/reports/:id/email", s.handleComposeEmail)
	api.GET("/runs", s.handleListRuns)

	return router
}

type createNoteRequest struct {
	ID         string   `json:"id"`
	UserID     string   `json:"user_id" binding:"required"`
	Transcript string   `json:"transcript" binding:"required"`
	ImageRefs  []string `json:"image_refs"`
}

func (s *Server) handleCreateNote(c *gin.Context) {
	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := s.store.Create(c.Request.Context(), report.CreateParams{
		ID:         req.ID,
		UserID:     req.UserID,
		Transcript: req.Transcript,
		ImageRefs:  req.ImageRefs,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.pipeline.Trigger(r.ID)
	c.JSON(http.StatusAccepted, gin.H{"id": r.ID})
}

func (s *Server) handleReprocess(c *gin.Context) {
	id := c.Param("id")
	userID := c.Query("user_id")
	if _, err := s.store.GetOwned(c.Request.Context(), id, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	s.pipeline.Trigger(id)
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (s *Server) handleGetReport(c *gin.Context) {
	id := c.Param("id")
	userID := c.Query("user_id")

	r, err := s.store.GetOwned(c.Request.Context(), id, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	items, err := s.store.ActionItems(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": r, "action_items": items})
}

func (s *Server) handleSearch(c *gin.Context) {
	userID := c.Query("user_id")
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "16"))
	minScore := defaultMinScore
	if raw := c.Query("min_score"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			minScore = v
		}
	}

	results, err := s.searcher.Search(c.Request.Context(), userID, query, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filtered := make([]search.Result, 0, len(results))
	for _, r := range results {
		if r.Score > minScore {
			filtered = append(filtered, r)
		}
	}

	c.JSON(http.StatusOK, gin.H{"results": filtered})
}

type composeEmailRequest struct {
	UserID             string `json:"user_id" binding:"required"`
	RecipientName      string `json:"recipient_name"`
	RecipientEmail     string `json:"recipient_email"`
	SenderName         string `json:"sender_name"`
	IncludeAttachments bool   `json:"include_attachments"`
}

func (s *Server) handleComposeEmail(c *gin.Context) {
	id := c.Param("id")
	var req composeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := s.store.GetOwned(c.Request.Context(), id, req.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	items, err := s.store.ActionItems(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	text, err := s.synthesizer.Compose(c.Request.Context(), email.ComposeParams{
		Report:             r,
		ActionItems:        items,
		RecipientName:      req.RecipientName,
		RecipientEmail:     req.RecipientEmail,
		SenderName:         req.SenderName,
		IncludeAttachments: req.IncludeAttachments,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	subject, body := email.SplitSubject(text)
	c.JSON(http.StatusOK, gin.H{"subject": subject, "body": body, "raw": text})
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := pipeline.ListRuns(s.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
