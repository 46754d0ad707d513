package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/config"
	"github.com/audiolibrelab/camcapture/internal/format"
	"github.com/audiolibrelab/camcapture/internal/library"
	"github.com/audiolibrelab/camcapture/internal/service"
	"github.com/audiolibrelab/camcapture/internal/session"
	"github.com/gin-gonic/gin"
)

// Server represents the web server for controlling the camera remotely
type Server struct {
	service    service.Service
	configFile string
	port       string
	engine     *gin.Engine

	profileMu     sync.RWMutex
	activeProfile string
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Session       session.Status `json:"session"`
	Message       string         `json:"message,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	ActiveProfile string         `json:"active_profile,omitempty"`
}

// VideoInfo is one gallery entry
type VideoInfo struct {
	library.Asset
	SizeHuman string `json:"size_human"`
	StreamURL string `json:"stream_url"`
}

type resolutionRequest struct {
	Tier string `json:"tier" binding:"required"`
}

type qualityRequest struct {
	Quality string `json:"quality" binding:"required"`
}

type locationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type profileRequest struct {
	Profile string `json:"profile" binding:"required"`
}

// New creates a web server for svc. configFile is used to list and switch profiles.
func New(svc service.Service, configFile, port string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		service:       svc,
		configFile:    configFile,
		port:          port,
		activeProfile: getActiveProfileName(configFile),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", s.handleIndex)
	r.GET("/status", s.handleStatus)
	r.GET("/ws", s.handleEvents)

	r.POST("/start", s.action("start", svc.Start))
	r.POST("/pause", s.action("pause", svc.Pause))
	r.POST("/resume", s.action("resume", svc.Resume))
	r.POST("/stop", s.action("stop", svc.Stop))
	r.POST("/focus", s.action("focus", svc.Focus))
	r.POST("/blur", s.action("blur", svc.Blur))
	r.POST("/camera/switch", s.action("switch_camera", svc.SwitchCamera))

	settings := r.Group("/settings")
	settings.POST("/resolution", s.handleSetResolution)
	settings.POST("/resolution/toggle", s.action("toggle_resolution", svc.ToggleResolution))
	settings.POST("/quality", s.handleSetQuality)
	settings.POST("/quality/toggle", s.action("toggle_quality", svc.ToggleQuality))
	settings.POST("/location", s.handleSetLocation)

	cfgGroup := r.Group("/config")
	cfgGroup.GET("/profiles", s.handleProfiles)
	cfgGroup.POST("/select", s.handleSelectProfile)

	api := r.Group("/api")
	api.GET("/videos", s.handleVideos)
	api.GET("/videos/:id", s.handleVideo)
	api.GET("/videos/:id/stream", s.handleVideoStream)

	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting CamCapture Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("Shutting down web server")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs every request through slog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		slog.Debug("request",
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"method", c.Request.Method,
			"path", path,
			"client_ip", c.ClientIP())
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.service.Status()
	if err != nil {
		s.sendError(c, err, "operation", "status")
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Session:       st,
		Message:       statusMessage(st),
		LastError:     s.service.GetLastError(),
		ActiveProfile: s.getActiveProfile(),
	})
}

// action wraps a parameterless session operation
func (s *Server) action(name string, fn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(); err != nil {
			s.sendError(c, err, "operation", name)
			return
		}
		s.sendStatus(c)
	}
}

func (s *Server) handleSetResolution(c *gin.Context) {
	var req resolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendBadRequest(c, "tier is required")
		return
	}
	if _, err := format.ParseResolutionTier(req.Tier); err != nil {
		s.sendBadRequest(c, err.Error())
		return
	}
	if err := s.service.SetResolution(req.Tier); err != nil {
		s.sendError(c, err, "operation", "set_resolution", "tier", req.Tier)
		return
	}
	s.sendStatus(c)
}

func (s *Server) handleSetQuality(c *gin.Context) {
	var req qualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendBadRequest(c, "quality is required")
		return
	}
	if _, err := compress.ParseQuality(req.Quality); err != nil {
		s.sendBadRequest(c, err.Error())
		return
	}
	if err := s.service.SetQuality(req.Quality); err != nil {
		s.sendError(c, err, "operation", "set_quality", "quality", req.Quality)
		return
	}
	s.sendStatus(c)
}

func (s *Server) handleSetLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendBadRequest(c, "enabled is required")
		return
	}
	if err := s.service.SetLocationTagging(*req.Enabled); err != nil {
		s.sendError(c, err, "operation", "set_location_tagging")
		return
	}
	s.sendStatus(c)
}

func (s *Server) handleProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles": s.getAvailableProfiles(),
		"active":   s.getActiveProfile(),
	})
}

func (s *Server) handleSelectProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendBadRequest(c, "profile is required")
		return
	}
	if err := s.service.LoadProfile(req.Profile); err != nil {
		s.sendError(c, err, "operation", "select_profile", "profile", req.Profile)
		return
	}

	s.profileMu.Lock()
	s.activeProfile = req.Profile
	s.profileMu.Unlock()

	slog.Info("Profile selected", "profile", req.Profile)
	s.sendStatus(c)
}

func (s *Server) handleVideos(c *gin.Context) {
	count := service.GalleryCount
	if v := c.Query("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendBadRequest(c, "count must be a positive integer")
			return
		}
		count = n
	}

	assets, err := s.service.ListRecent(c.Request.Context(), count)
	if err != nil {
		s.sendError(c, err, "operation", "list_videos")
		return
	}

	videos := make([]VideoInfo, 0, len(assets))
	for _, a := range assets {
		videos = append(videos, videoInfo(a))
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos, "count": len(videos)})
}

func (s *Server) handleVideo(c *gin.Context) {
	asset, err := s.service.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.sendError(c, err, "operation", "get_video", "id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, videoInfo(asset))
}

func (s *Server) handleVideoStream(c *gin.Context) {
	asset, err := s.service.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.sendError(c, err, "operation", "stream_video", "id", c.Param("id"))
		return
	}
	path := asset.Path()
	if _, err := os.Stat(path); err != nil {
		s.sendError(c, fmt.Errorf("%w: file missing", library.ErrNotFound), "operation", "stream_video", "path", path)
		return
	}
	c.Header("Accept-Ranges", "bytes")
	c.File(path)
}

func videoInfo(a library.Asset) VideoInfo {
	return VideoInfo{
		Asset:     a,
		SizeHuman: service.FormatBytes(a.SizeBytes),
		StreamURL: fmt.Sprintf("/api/videos/%s/stream", a.ID),
	}
}

func statusMessage(st session.Status) string {
	switch st.State {
	case session.StateRecording:
		return "Recording " + st.Elapsed
	case session.StatePaused:
		return "Paused at " + st.Elapsed
	case session.StateInitializing:
		return "Starting camera..."
	case session.StateStopping, session.StateFinalizing:
		return "Saving video..."
	case session.StateIdle:
		if !st.Permitted {
			return "Camera and microphone permissions are required."
		}
		if !st.Ready {
			return "Camera is initializing..."
		}
		return "Ready"
	}
	return ""
}

func (s *Server) sendStatus(c *gin.Context) {
	st, err := s.service.Status()
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": st})
}

func (s *Server) sendBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// sendError logs the error and sends a JSON error response with a status derived from err
func (s *Server) sendError(c *gin.Context, err error, logContext ...any) {
	code := statusCode(err)
	logFields := []any{"error", err, "status_code", code}
	logFields = append(logFields, logContext...)
	if code >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Debug("Sending error response to client", logFields...)
	}
	c.JSON(code, gin.H{"success": false, "error": err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotIdle), errors.Is(err, session.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, session.ErrDeviceNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func (s *Server) getActiveProfile() string {
	s.profileMu.RLock()
	defer s.profileMu.RUnlock()
	return s.activeProfile
}

// getAvailableProfiles returns the profile names defined in the config file
func (s *Server) getAvailableProfiles() []string {
	profiles := []string{}
	if s.configFile == "" {
		return profiles
	}
	root, err := config.ValidateConfigurationFormat(s.configFile)
	if err != nil {
		slog.Warn("Failed to read profiles", "error", err)
		return profiles
	}
	for name := range root.Configs {
		profiles = append(profiles, name)
	}
	sort.Strings(profiles)
	return profiles
}

func getActiveProfileName(configFile string) string {
	if configFile == "" {
		return ""
	}
	root, err := config.ValidateConfigurationFormat(configFile)
	if err != nil {
		slog.Warn("Failed to read config file for active profile", "error", err)
		return ""
	}
	if root.ActiveConfig != "" {
		return root.ActiveConfig
	}
	if _, ok := root.Configs["default"]; ok {
		return "default"
	}
	return ""
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
