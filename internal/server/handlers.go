package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spigell/hr-intake/internal/intake"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type messageRequest struct {
	Text string `json:"text"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, intake.ErrInvalidSessionID):
		abortWithError(c, http.StatusBadRequest, "invalid_session_id", err.Error())
	case errors.Is(err, intake.ErrEmptyMessage):
		abortWithError(c, http.StatusBadRequest, "empty_message", err.Error())
	default:
		_ = c.Error(err)
		abortWithError(c, http.StatusBadGateway, "upstream_failure", "the assistant is temporarily unavailable")
	}
}

func (s *Server) startSession(c *gin.Context) {
	user := ""
	if identity, ok := identityFrom(c); ok {
		user = identity.Username
	}

	started, err := s.intake.StartSession(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, started)
}

func (s *Server) sessionStatus(c *gin.Context) {
	status, err := s.intake.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// endSession drops the live conversation. The stored thread stays available for resume.
func (s *Server) endSession(c *gin.Context) {
	if err := s.intake.EndSession(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	messages, err := s.intake.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// postMessage accepts either a JSON body or a multipart form with text and an optional file.
func (s *Server) postMessage(c *gin.Context) {
	var turn intake.Turn

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		turn.Text = c.PostForm("text")

		attachment, err := s.readAttachment(c)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_attachment", err.Error())
			return
		}
		turn.Attachment = attachment
	} else {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		turn.Text = req.Text
	}

	reply, err := s.intake.HandleTurn(c.Request.Context(), c.Param("id"), turn)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) readAttachment(c *gin.Context) (*intake.Attachment, error) {
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header.Size > s.maxUpload {
		return nil, fmt.Errorf("file is larger than %d bytes", s.maxUpload)
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxUpload {
		return nil, fmt.Errorf("file is larger than %d bytes", s.maxUpload)
	}

	return &intake.Attachment{Name: filepath.Base(header.Filename), Data: data}, nil
}

func (s *Server) exportProfile(c *gin.Context) {
	res, err := s.intake.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	switch {
	case res.Success:
		c.JSON(http.StatusOK, res)
	case errors.Is(res.Err, intake.ErrProfileIncomplete):
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusBadGateway, res)
	}
}
