// Package pipserve serves stored programs over HTTP.
// Packets can be evaluated one at a time, or streamed over a websocket.
package pipserve

import (
	"context"
	"embed"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.brendoncarroll.net/exp/slices2"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"pipdataplane.org/pip"
	"pipdataplane.org/pip/pipeval"
	"pipdataplane.org/pip/pipstore"
)

func Serve(ctx context.Context, l net.Listener, store *pipstore.Store, cfg pipeval.Config) error {
	return New(store, cfg, prometheus.NewRegistry()).Serve(ctx, l)
}

// recentRuns is the number of runs shown on a program's page.
const recentRuns = 20

type Server struct {
	store *pipstore.Store
	cfg   pipeval.Config
	app   *fiber.App
	bgCtx context.Context
}

// New creates a Server evaluating packets with cfg.
// Evaluation metrics are registered with reg and served at /metrics.
func New(store *pipstore.Store, cfg pipeval.Config, reg *prometheus.Registry) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = pipeval.NewMetrics(reg)
	}
	s := &Server{
		store: store,
		cfg:   cfg,
		bgCtx: context.Background(),
	}
	renderer := html.NewFileSystem(http.FS(viewFS), ".html")
	renderer.AddFunc("hexDump", func(x []byte) string {
		return hex.Dump(x)
	})
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Views:                 renderer,
		ErrorHandler:          errorHandler,
	})
	// views
	app.Get("/", s.home)
	app.Get("/program/:prog", s.program)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := app.Group("/v1")
	v1.Get("/programs", s.listPrograms)
	v1.Post("/programs", s.putProgram)
	v1.Get("/program/:prog/source", s.source)
	v1.Get("/program/:prog/runs", s.runs)
	v1.Post("/program/:prog/eval", s.eval)
	v1.Get("/program/:prog/ws", websocket.New(s.handleWS))
	s.app = app
	return s
}

func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.bgCtx = ctx
	logctx.Infof(ctx, "serving on %v", l.Addr())
	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()
	return s.app.Listener(l)
}

// Test passes req to the server's handlers, see fiber.App.Test.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var ferr *fiber.Error
	var nf pipstore.ErrProgramNotFound
	var inv pipstore.ErrInvalidProgram
	switch {
	case errors.As(err, &ferr):
		code = ferr.Code
	case errors.As(err, &nf):
		code = fiber.StatusNotFound
	case errors.As(err, &inv):
		code = fiber.StatusBadRequest
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

type ProgramInfo struct {
	ID        pip.ProgramID `json:"id"`
	Name      string        `json:"name,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func makeProgramInfo(p pipstore.Program) ProgramInfo {
	return ProgramInfo{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt}
}

func (s *Server) home(c *fiber.Ctx) error {
	ps, err := s.store.ListPrograms(c.Context())
	if err != nil {
		return err
	}
	return c.Render("view/home", struct {
		Hostname string
		Programs []ProgramInfo
	}{
		Hostname: c.Hostname(),
		Programs: slices2.Map(ps, makeProgramInfo),
	}, "view/layout")
}

func (s *Server) program(c *fiber.Ctx) error {
	ctx := c.Context()
	id, err := s.resolve(c)
	if err != nil {
		return err
	}
	p, err := s.store.GetProgram(ctx, id)
	if err != nil {
		return err
	}
	runs, err := s.store.ListRuns(ctx, id, recentRuns)
	if err != nil {
		return err
	}
	return c.Render("view/program", struct {
		Hostname string
		Program  ProgramInfo
		Source   string
		Runs     []RunInfo
	}{
		Hostname: c.Hostname(),
		Program:  makeProgramInfo(*p),
		Source:   p.Source,
		Runs:     slices2.Map(runs, makeRunInfo),
	}, "view/layout")
}

func (s *Server) listPrograms(c *fiber.Ctx) error {
	ps, err := s.store.ListPrograms(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(slices2.Map(ps, makeProgramInfo))
}

// putProgram stores the request body as a program, named by the name query parameter.
func (s *Server) putProgram(c *fiber.Ctx) error {
	ctx := c.Context()
	id, err := s.store.PutProgram(ctx, c.Query("name"), string(c.Body()))
	if err != nil {
		return err
	}
	p, err := s.store.GetProgram(ctx, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(makeProgramInfo(*p))
}

func (s *Server) source(c *fiber.Ctx) error {
	id, err := s.resolve(c)
	if err != nil {
		return err
	}
	p, err := s.store.GetProgram(c.Context(), id)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(p.Source)
}

type RunInfo struct {
	ID       int64     `json:"id"`
	Arrival  time.Time `json:"arrival"`
	InPort   uint32    `json:"in_port"`
	PhysPort uint32    `json:"phys_port"`
	Input    []byte    `json:"input"`
	Output   []byte    `json:"output"`
	Verdict  string    `json:"verdict"`
	Port     uint32    `json:"port"`
	Fault    string    `json:"fault,omitempty"`
	Steps    int       `json:"steps"`
}

func makeRunInfo(r pipstore.Run) RunInfo {
	return RunInfo{
		ID:       r.ID,
		Arrival:  r.Arrival,
		InPort:   r.InPort,
		PhysPort: r.PhysPort,
		Input:    r.Input,
		Output:   r.Output,
		Verdict:  r.Verdict.String(),
		Port:     r.Port,
		Fault:    r.Fault,
		Steps:    r.Steps,
	}
}

func (s *Server) runs(c *fiber.Ctx) error {
	id, err := s.resolve(c)
	if err != nil {
		return err
	}
	limit, err := strconv.Atoi(c.Query("limit", "0"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
	}
	runs, err := s.store.ListRuns(c.Context(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(slices2.Map(runs, makeRunInfo))
}

// EvalRequest is a packet to evaluate.
// Data is base64 encoded in JSON.
type EvalRequest struct {
	Data     []byte `json:"data"`
	InPort   uint32 `json:"in_port"`
	PhysPort uint32 `json:"phys_port"`
	Key      uint64 `json:"key"`
	Meta     uint64 `json:"meta"`
}

func (r EvalRequest) packet(now time.Time) pipeval.Packet {
	return pipeval.Packet{
		Data:     r.Data,
		Arrival:  now,
		InPort:   r.InPort,
		PhysPort: r.PhysPort,
		Key:      r.Key,
		Meta:     r.Meta,
	}
}

// EvalResponse is the result of evaluating an EvalRequest.
type EvalResponse struct {
	Run     int64  `json:"run"`
	Verdict string `json:"verdict"`
	Port    uint32 `json:"port"`
	Reason  string `json:"reason,omitempty"`
	Output  []byte `json:"output"`
	Steps   int    `json:"steps"`
	Fault   string `json:"fault,omitempty"`
}

func (s *Server) eval(c *fiber.Ctx) error {
	id, err := s.resolve(c)
	if err != nil {
		return err
	}
	var req EvalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	resp, err := s.evalRecord(c.Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// evalRecord evaluates req and records the run.
// Faults are reported in the response, errors are from the store.
func (s *Server) evalRecord(ctx context.Context, id pip.ProgramID, req EvalRequest) (*EvalResponse, error) {
	ev, err := s.store.Evaluator(ctx, id, s.cfg)
	if err != nil {
		return nil, err
	}
	pkt := req.packet(time.Now())
	res, evalErr := ev.Eval(ctx, pkt)
	runID, err := s.store.RecordRun(ctx, id, pkt, res, evalErr)
	if err != nil {
		return nil, err
	}
	resp := &EvalResponse{
		Run:     runID,
		Verdict: res.Verdict.String(),
		Port:    res.Port,
		Reason:  res.Reason,
		Output:  res.Output,
		Steps:   res.Steps,
	}
	if evalErr != nil {
		resp.Fault = evalErr.Error()
	}
	return resp, nil
}

// handleWS evaluates each EvalRequest received and replies with an EvalResponse.
func (s *Server) handleWS(c *websocket.Conn) {
	ctx := s.bgCtx
	prog := c.Params("prog")
	logctx.Info(ctx, "started websocket", zap.String("program", prog))
	defer logctx.Info(ctx, "closing websocket", zap.String("program", prog))

	if err := func() error {
		id, err := s.store.Resolve(ctx, prog)
		if err != nil {
			return err
		}
		for {
			var req EvalRequest
			if err := c.ReadJSON(&req); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			resp, err := s.evalRecord(ctx, id, req)
			if err != nil {
				return err
			}
			if err := c.WriteJSON(resp); err != nil {
				return err
			}
		}
	}(); err != nil {
		logctx.Error(ctx, "handling websocket", zap.Error(err))
		c.WriteJSON(fiber.Map{"error": err.Error()})
	}
}

// resolve finds the program named by the prog parameter.
func (s *Server) resolve(c *fiber.Ctx) (pip.ProgramID, error) {
	return s.store.Resolve(c.Context(), c.Params("prog"))
}

//go:embed view/*
var viewFS embed.FS
