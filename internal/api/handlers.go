package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/notify"
)

// writeError maps service errors onto status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrStudentNotFound), errors.Is(err, attendance.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidChannel),
		errors.Is(err, attendance.ErrInvalidStudent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.svc.RegisterDevice(c.Request.Context(), req.DeviceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := s.roleFor(req.DeviceID)
	tokens, err := auth.Issue(req.DeviceID, role, s.opts.Issuer, s.opts.SigningKey, s.opts.AccessTTL, s.opts.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if s.tokens != nil {
		if err := s.tokens.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
			log.Printf("api: save refresh token for %s: %v", req.DeviceID, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          role,
	})
}

func (s *Server) checkIn(c *gin.Context) {
	var req struct {
		NISN     string `json:"nisn" binding:"required"`
		DeviceID string `json:"device_id"`
		Status   string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	if req.DeviceID == "" {
		req.DeviceID = claims.Subject
	}
	if claims.Subject != "" && claims.Subject != req.DeviceID {
		c.JSON(http.StatusForbidden, gin.H{"error": "device mismatch"})
		return
	}
	if req.Status != "" {
		st, ok := notify.ParseStatus(req.Status)
		if !ok {
			writeError(c, fmt.Errorf("%w: %q", attendance.ErrInvalidStatus, req.Status))
			return
		}
		// scanners only record arrivals; other statuses are entered by staff
		if st != notify.StatusPresent && claims.Role != auth.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "only admin devices may set this status"})
			return
		}
	}

	rec, duplicate, err := s.svc.CheckIn(c.Request.Context(), req.NISN, req.DeviceID, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusAccepted
	if duplicate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"record": rec, "duplicate": duplicate})
}

func (s *Server) listRecords(c *gin.Context) {
	f := attendance.RecordFilter{
		Date:  c.Query("date"),
		Class: c.Query("class"),
		NISN:  c.Query("nisn"),
		Limit: 50,
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	records, err := s.svc.ListRecords(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) summary(c *gin.Context) {
	sum, err := s.svc.Summary(c.Request.Context(), c.Query("date"), c.Query("class"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) listStudents(c *gin.Context) {
	students, err := s.svc.ListStudents(c.Request.Context(), c.Query("class"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (s *Server) getStudent(c *gin.Context) {
	st, err := s.svc.GetStudent(c.Request.Context(), c.Param("nisn"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) upsertStudent(c *gin.Context) {
	var req struct {
		Name             string `json:"name" binding:"required"`
		Class            string `json:"class"`
		TelegramID       string `json:"telegram_id"`
		WhatsAppNumber   string `json:"whatsapp_number"`
		PreferredChannel string `json:"preferred_channel" binding:"omitempty,oneof=telegram whatsapp both none"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := s.svc.UpsertStudent(c.Request.Context(), attendance.Student{
		NISN:             c.Param("nisn"),
		Name:             req.Name,
		Class:            req.Class,
		TelegramID:       req.TelegramID,
		WhatsAppNumber:   req.WhatsAppNumber,
		PreferredChannel: req.PreferredChannel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) preview(c *gin.Context) {
	var req struct {
		NISN   string `json:"nisn" binding:"required"`
		Status string `json:"status"`
		Time   string `json:"time"`
		Date   string `json:"date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.svc.Preview(c.Request.Context(), req.NISN, req.Status, req.Time, req.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
