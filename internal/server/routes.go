package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/posewire/internal/auth"
	"github.com/danmuck/posewire/internal/observability"
	"github.com/danmuck/posewire/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	contentTypeOctet = "application/octet-stream"
	formatHex        = "hex"
)

var errBodyTooLarge = errors.New("request body too large")

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": "0.0.1",
		})
	})

	v1 := s.router.Group("/v1")
	if s.authToken != "" {
		v1.Use(auth.RequireToken(auth.StaticToken{Token: s.authToken}))
	}
	v1.POST("/records/encode", s.handleEncodeRecord)
	v1.POST("/records/decode", s.handleDecodeRecord)
	v1.POST("/frames/decode", s.handleDecodeFrames)
}

func (s *Server) handleEncodeRecord(c *gin.Context) {
	keyID, err := s.keyID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	var record protocol.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid record: %v", err)})
		return
	}

	buf := protocol.Encode(record, keyID)
	observability.RecordEncode(s.ID, "record", len(buf))

	if c.Query("format") == formatHex {
		c.JSON(http.StatusOK, gin.H{"key_id": keyID, "hex": hex.EncodeToString(buf)})
		return
	}
	c.Data(http.StatusOK, contentTypeOctet, buf)
}

func (s *Server) handleDecodeRecord(c *gin.Context) {
	keyID, err := s.keyID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	buf, err := s.readFrames(c)
	if err != nil {
		respondBodyError(c, err)
		return
	}

	record, diags, err := s.decoder.DecodeRecord(buf, keyID)
	observability.RecordDecode(s.ID, err)
	if err != nil {
		respondDecodeError(c, err)
		return
	}
	observability.RecordDiagnostics(s.ID, diags)
	if diags == nil {
		diags = protocol.Diagnostics{}
	}
	c.JSON(http.StatusOK, gin.H{
		"key_id":      keyID,
		"record":      record,
		"diagnostics": diags,
	})
}

func (s *Server) handleDecodeFrames(c *gin.Context) {
	buf, err := s.readFrames(c)
	if err != nil {
		respondBodyError(c, err)
		return
	}

	dict, err := s.decoder.Decode(buf)
	observability.RecordDecode(s.ID, err)
	if err != nil {
		respondDecodeError(c, err)
		return
	}
	entries := dict.Entries()
	for _, e := range entries {
		observability.RecordDiagnostics(s.ID, e.Diagnostics)
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// keyID reads ?key_id, falling back to the configured default.
func (s *Server) keyID(c *gin.Context) (uint16, error) {
	raw := strings.TrimSpace(c.Query("key_id"))
	if raw == "" {
		return s.DefaultKeyID, nil
	}
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid key_id %q", raw)
	}
	return uint16(v), nil
}

// readFrames reads the request body as raw frame bytes, or as hex text when
// ?format=hex is set.
func (s *Server) readFrames(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	if c.Query("format") != formatHex {
		return body, nil
	}
	buf, err := hex.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("invalid hex body: %w", err)
	}
	return buf, nil
}

func respondBodyError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func respondDecodeError(c *gin.Context, err error) {
	reason := observability.DecodeErrorReason(err)
	if errors.Is(err, protocol.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "reason": reason})
		return
	}
	body := gin.H{"error": err.Error(), "reason": reason}
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		body["offset"] = de.Offset
		body["depth"] = de.Depth
	}
	c.JSON(http.StatusBadRequest, body)
}
