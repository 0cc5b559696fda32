package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/qrgen"
	"qrprocess-pi/pkg/scanner"
	"qrprocess-pi/pkg/types"
	"qrprocess-pi/pkg/utils"
	"qrprocess-pi/pkg/utils/ps"
)

const (
	opStart = "start"
	opStop  = "stop"
	opTorch = "torch"

	writeWait = 5 * time.Second
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	scanner *scanner.Scanner
	host    *Host
	frames  *FrameStream
	// DiskPath is reported by the device status endpoint.
	DiskPath string
	started  time.Time
}

func New(sc *scanner.Scanner, host *Host, frames *FrameStream) *Server {
	return &Server{
		scanner:  sc,
		host:     host,
		frames:   frames,
		DiskPath: "/",
		started:  time.Now(),
	}
}

// Handler builds the gin engine serving the API.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	apiRouter := r.Group("/api")

	scannerRouter := apiRouter.Group("/scanner")
	scannerRouter.GET("", s.getScanner)
	scannerRouter.PUT("", s.ctlScanner)
	scannerRouter.GET("/events", s.events)

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/realtime/video", s.realtimeVideo)
	deviceRouter.GET("/status", s.deviceStatus)

	apiRouter.GET("/qr", s.qrCode)
	apiRouter.POST("/qr", s.qrCode)

	return r
}

type ScannerStatus struct {
	State     string           `json:"state"`
	Capturing bool             `json:"capturing"`
	CodeTypes []types.CodeType `json:"codeTypes"`
	Device    string           `json:"device,omitempty"`
	Torch     bool             `json:"torch"`
	Stats     capture.Stats    `json:"stats"`
	Host      HostStatus       `json:"host"`
	Uptime    string           `json:"uptime"`
}

func (s *Server) getScanner(c *gin.Context) {
	st := ScannerStatus{
		State:     s.scanner.State(),
		Capturing: s.scanner.IsCapturing(),
		CodeTypes: s.scanner.CodeTypes(),
		Stats:     s.scanner.Session().Stats(),
		Host:      s.host.Status(),
		Uptime:    humanize.Time(s.started),
	}
	if dev := s.scanner.Device(); dev != nil {
		st.Device = dev.Name()
		st.Torch = dev.HasTorch() && dev.TorchMode() == capture.TorchOn
	}

	c.JSON(http.StatusOK, jsend.Success(st))
}

func (s *Server) ctlScanner(c *gin.Context) {
	op := c.Query("op")
	switch op {
	case opStart:
		s.scanner.StartCapturing()
	case opStop:
		s.scanner.StopCapturing()
	case opTorch:
		s.scanner.ToggleTorch()
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(op))
}

func (s *Server) events(c *gin.Context) {
	id, events, cancel := s.host.Events().Subscribe(16)
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("events: upgrade: %s", err)
		return
	}
	defer conn.Close()
	logger.Infof("events: subscriber %s connected from %s", id, conn.RemoteAddr())

	// the read loop only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Infof("events: subscriber %s left", id)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Errorf("events: %s", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Infof("events: subscriber %s: %s", id, err)
				return
			}
		}
	}
}

func (s *Server) realtimeVideo(c *gin.Context) {
	_, frames, cancel := s.frames.Subscribe()
	defer cancel()

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	c.Status(http.StatusOK)
	c.Writer.Flush()
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	start := time.Now()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			end := time.Now()
			logger.Debugf("video: %s since last frame, %s", end.Sub(start), humanize.Bytes(uint64(len(frame))))
			start = end

			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				logger.Warnf("failed to create multi-part writer: %s", err)
				return
			}
			if _, err := partWriter.Write(frame); err != nil {
				logger.Warnf("failed to write image: %s", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

type DeviceStatus struct {
	ps.Status
	Service string `json:"serviceUptime"`
}

func (s *Server) deviceStatus(c *gin.Context) {
	st, err := ps.Collect(s.DiskPath)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(DeviceStatus{Status: st, Service: humanize.Time(s.started)}))
}

type qrRequest struct {
	Text string `json:"text" form:"text" binding:"required"`
}

// qrCode renders text as a QR code PNG.
func (s *Server) qrCode(c *gin.Context) {
	var req qrRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}

	data, err := qrgen.PNG(req.Text)
	if errors.Is(scanner.Wrap(err), scanner.ErrInvalidCode) {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if err != nil {
		internalErr(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
