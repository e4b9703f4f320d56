package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"bias-audit/backend/internal/store"
)

func (s *Server) handleCreateDecision(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	sensitivity := s.sensitivity(req.Sensitivity)
	findings := req.Findings
	backend := "client"
	if findings == nil {
		report, err := s.analyzer.Analyze(c.Request.Context(), req.Text, sensitivity)
		if err != nil {
			s.renderError(c, http.StatusBadGateway, err)
			return
		}
		findings = report.Findings
		backend = report.Source
	}

	rec := req.ToModel(findings, sensitivity, backend)
	if err := s.recorder.Append(c.Request.Context(), rec); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalid) {
			status = http.StatusBadRequest
		}
		s.renderError(c, status, err)
		return
	}

	dto := FromModel(*rec)
	logrus.WithFields(logrus.Fields{
		"decision": dto.PublicID,
		"biases":   len(dto.Biases),
		"log":      s.logBackend,
	}).Info("decision recorded")
	s.notifier.Broadcast(DecisionEvent{Type: "decision", Decision: &dto})

	c.JSON(http.StatusCreated, dto)
}

func (s *Server) handleListDecisions(c *gin.Context) {
	offset, limit := parsePage(c)
	rows, total, err := s.recorder.List(c.Request.Context(), store.DecisionQuery{
		Query:  strings.TrimSpace(c.Query("q")),
		Label:  strings.TrimSpace(c.Query("label")),
		Sort:   c.Query("sort"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]DecisionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.JSON(http.StatusOK, DecisionsResponse{Items: dtos, Total: total})
}

func (s *Server) handleDecisionStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("decision websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("decision websocket closed")
			} else {
				logrus.WithError(err).Warn("decision websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) allDecisions(c *gin.Context) ([]DecisionDTO, error) {
	rows, _, err := s.recorder.List(c.Request.Context(), store.DecisionQuery{
		Query: strings.TrimSpace(c.Query("q")),
		Label: strings.TrimSpace(c.Query("label")),
	})
	if err != nil {
		return nil, err
	}
	dtos := make([]DecisionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return dtos, nil
}

func (s *Server) handleExportCSV(c *gin.Context) {
	dtos, err := s.allDecisions(c)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=bias-audit-decisions.csv")
	c.Header("Content-Type", "text/csv")

	if err := WriteCSV(c.Writer, dtos); err != nil {
		logrus.WithError(err).Warn("write csv export")
	}
}

// WriteCSV writes the delimited export with a header row.
func WriteCSV(w io.Writer, dtos []DecisionDTO) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, dto := range dtos {
		if err := writer.Write(dto.CSVRow()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *Server) handleExportJSON(c *gin.Context) {
	dtos, err := s.allDecisions(c)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=bias-audit-decisions.json")
	c.JSON(http.StatusOK, dtos)
}
