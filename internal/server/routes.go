package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/Maolipeng/web-drop/internal/config"
	"github.com/Maolipeng/web-drop/internal/signaling"
)

// QRSize is the edge length in pixels of /qr images.
const QRSize = 240

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Browsers connect from whatever origin serves the web client.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter builds the relay's HTTP surface around hub.
func NewRouter(hub *signaling.Hub, cfg *config.ServerConfig) *gin.Engine {
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/health", handleHealth)
	engine.GET("/config", handleConfig(cfg))
	engine.GET("/qr", handleQR)
	engine.GET("/ws", ServeWs(hub))

	return engine
}

// ServeWs upgrades the request and hands the connection to the hub.
func ServeWs(hub *signaling.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("Failed to upgrade connection", "remote", c.ClientIP(), "error", err)
			return
		}
		signaling.NewSession(hub, conn).Start()
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func handleConfig(cfg *config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		servers, err := cfg.BuildICEServers()
		if errors.Is(err, config.ErrInvalidICEServers) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"iceServers": servers})
	}
}

func handleQR(c *gin.Context) {
	code := signaling.NormalizeCode(c.Query("code"))
	if code == "" {
		c.String(http.StatusBadRequest, "code required")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, QRSize)
	if err != nil {
		slog.Error("QR encoding failed", "code", code, "error", err)
		c.String(http.StatusInternalServerError, "qr failed")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// requestLogger logs plain HTTP requests; websocket sessions log through the hub.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			return
		}
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
