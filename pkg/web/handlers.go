package web

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-edgecam/pkg/capture"
	"github.com/teslashibe/go-edgecam/pkg/hub"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
	"github.com/teslashibe/go-edgecam/pkg/stats"
)

var errNoPipeline = fiber.NewError(fiber.StatusServiceUnavailable, "pipeline not attached")

// handleError renders every error as {"error": "..."}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// statusFor maps pipeline and capture errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errors.Is(err, capture.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, capture.ErrConfigurationFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	state := "detached"
	if s.ctrl != nil {
		state = s.ctrl.State().String()
	}
	return c.JSON(fiber.Map{"status": "ok", "pipeline": state})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return errNoPipeline
	}
	r, _ := s.ctrl.Stats()
	return c.JSON(r)
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return errNoPipeline
	}
	info, ok := s.ctrl.Session()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no session yet")
	}
	return c.JSON(info)
}

// handleFrame serves the last processed frame as JPEG.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return errNoPipeline
	}
	b := s.ctrl.Latest()
	if b == nil {
		return fiber.NewError(fiber.StatusNotFound, "no frame processed yet")
	}
	defer b.Release()

	img, err := b.Image()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.cfg.JPEGQuality)); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(buf.Bytes())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return errNoPipeline
	}
	if err := s.ctrl.Start(c.UserContext()); err != nil {
		s.logger.Warn("start requested from viewer failed", "error", err)
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.JSON(fiber.Map{"state": s.ctrl.State().String()})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return errNoPipeline
	}
	if err := s.ctrl.Stop(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": s.ctrl.State().String()})
}

// handleStatsWS streams reports, starting with the current one.
func (s *Server) handleStatsWS(conn *websocket.Conn) {
	client, err := hub.NewClient(s.statsHub, conn)
	if err != nil {
		conn.Close()
		return
	}

	var initial []hub.Message
	if s.ctrl != nil {
		if r, ok := s.ctrl.Stats(); ok {
			if msg, err := reportMessage(r); err == nil {
				initial = append(initial, msg)
			}
		}
	}
	client.Run(initial...)
}

// handleFramesWS streams JPEGs of every frame the browser surface draws.
func (s *Server) handleFramesWS(conn *websocket.Conn) {
	client, err := hub.NewClient(s.frameHub, conn)
	if err != nil {
		conn.Close()
		return
	}
	client.Run()
}

func reportMessage(r stats.Report) (hub.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return hub.Message{}, err
	}
	return hub.NewJSONMessage(data), nil
}
