package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"zonewatch/internal/apperr"
	"zonewatch/internal/auth"
	"zonewatch/internal/logger"
	"zonewatch/internal/models"
	"zonewatch/internal/observability"
	"zonewatch/internal/service/assistant"
)

const maxUploadBytes = 10 << 20 // 10 MB

// Handler wires HTTP routes to the stores and the chat orchestrator.
type Handler struct {
	personality *assistant.PersonalityStore
	sessions    *assistant.SessionStore
	chat        *assistant.ChatService
	assets      *assistant.AssetStore
	auth        *auth.Service
	metrics     *observability.Metrics
	log         logger.Logger
}

type Deps struct {
	Personality *assistant.PersonalityStore
	Sessions    *assistant.SessionStore
	Chat        *assistant.ChatService
	Assets      *assistant.AssetStore
	Auth        *auth.Service
	Metrics     *observability.Metrics // optional
	Logger      logger.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(deps Deps) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	authSvc := deps.Auth
	if authSvc == nil {
		authSvc = auth.NewService("")
	}
	return &Handler{
		personality: deps.Personality,
		sessions:    deps.Sessions,
		chat:        deps.Chat,
		assets:      deps.Assets,
		auth:        authSvc,
		metrics:     deps.Metrics,
		log:         log,
	}
}

// NewRouter builds the gin engine with recovery, request logging and every route.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	registerStatic(router)
	router.GET("/healthz", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	router.POST("/api/login", h.login)
	router.POST("/api/logout", h.logout)

	guarded := []gin.HandlerFunc{h.auth.Middleware(), h.auth.CSRFMiddleware()}
	router.GET("/uploads/*name", append(guarded, h.serveUpload)...)

	api := router.Group("/api", guarded...)
	api.GET("/sessions", h.listSessions)
	api.GET("/session/:id", h.getSession)
	api.DELETE("/session/:id", h.deleteSession)
	api.POST("/session/:id/rename", h.renameSession)
	api.POST("/session/:id/pin", h.pinSession)
	api.GET("/personality", h.getPersonality)
	api.POST("/set_personality", h.setPersonality)
	api.POST("/chat", h.chatExchange)
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		if h.metrics != nil {
			h.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			h.metrics.HTTPLatency.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())
		}
		h.log.Debug("http", "request served", map[string]any{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": latency.String(),
		})
	}
}

// respondError maps the error kind onto an HTTP status.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindBusy:
		status = http.StatusTooManyRequests
	case apperr.KindUpstream:
		status = http.StatusBadGateway
	case apperr.KindPersistence:
		status = http.StatusInternalServerError
	default:
		h.log.Error("http", "unclassified error", map[string]any{"path": c.Request.URL.Path, "error": err})
	}
	c.JSON(status, gin.H{"error": apperr.Message(err), "kind": string(kind)})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Count()})
}

type loginRequest struct {
	Token string `json:"token"`
}

// login swaps the access token for cookies so the browser client can use it.
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}
	if !h.auth.Enabled() {
		c.JSON(http.StatusOK, gin.H{"status": "success", "auth": "disabled"})
		return
	}
	if !h.auth.Validate(strings.TrimSpace(req.Token)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "unauthorized"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed", "kind": string(apperr.KindInternal)})
		return
	}
	h.setAuthCookies(c, strings.TrimSpace(req.Token), csrfToken)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) logout(c *gin.Context) {
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.List())
}

func (h *Handler) getSession(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type renameRequest struct {
	Title string `json:"title"`
}

func (h *Handler) renameSession(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}
	if err := h.sessions.Rename(c.Request.Context(), c.Param("id"), req.Title); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) pinSession(c *gin.Context) {
	pinned, err := h.sessions.TogglePin(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "pinned": pinned})
}

func (h *Handler) getPersonality(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"personality": h.personality.Override(),
		"effective":   h.personality.EffectiveInstruction(),
	})
}

type personalityRequest struct {
	Personality string `json:"personality"`
}

func (h *Handler) setPersonality(c *gin.Context) {
	var req personalityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}
	if err := h.personality.Save(c.Request.Context(), req.Personality); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "personality override saved"})
}

func (h *Handler) chatExchange(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+1<<20)
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large", "kind": string(apperr.KindValidation)})
			return
		}
		h.respondError(c, apperr.Validation("invalid multipart form"))
		return
	}

	upload, err := readUpload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.chat.Exchange(c.Request.Context(), assistant.ExchangeRequest{
		SessionID: c.PostForm("session_id"),
		Text:      c.PostForm("message"),
		Upload:    upload,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readUpload returns nil when the form carries no file.
func readUpload(c *gin.Context) (*models.Upload, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperr.Validation("invalid file field")
	}
	if fh.Size > maxUploadBytes {
		return nil, apperr.Validation("file too large")
	}
	data, err := readFileHeader(fh)
	if err != nil {
		return nil, apperr.Validation("could not read uploaded file")
	}
	return &models.Upload{
		Filename: filepath.Base(fh.Filename),
		Data:     data,
	}, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
}

func (h *Handler) serveUpload(c *gin.Context) {
	name := path.Base(path.Clean("/" + c.Param("name")))
	if name == "/" || name == "." || strings.HasPrefix(name, ".") {
		h.respondError(c, apperr.NotFound("file not found"))
		return
	}
	full := filepath.Join(h.assets.Dir(), name)
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		h.respondError(c, apperr.NotFound("file not found"))
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.File(full)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	secure := gin.Mode() == gin.ReleaseMode
	const ttl = 30 * 24 * 3600
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
