// Package server renders programs over HTTP and streams progressive tile
// updates over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/field"
	"github.com/stewi1014/juliafield/programs"
	"github.com/stewi1014/juliafield/render"
	"github.com/stewi1014/juliafield/texture"
)

const (
	// MaxDimension bounds the width and height of a requested image.
	MaxDimension = 4096
	// MaxIterations bounds the iteration budget of a request.
	MaxIterations = 4096
)

var (
	ErrUnknownTexture = errors.New("unknown texture")
	ErrBadDimensions  = errors.New("bad image dimensions")
	ErrBadIterations  = errors.New("bad iteration count")

	errSuperseded = errors.New("superseded by a newer request")
)

// Request describes one render.
type Request struct {
	ID         string     `json:"id,omitempty"`
	Program    string     `json:"program"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Center     mgl64.Vec2 `json:"center"`
	ZoomPower  int32      `json:"zoomPower"`
	C          mgl64.Vec2 `json:"c"`
	P          float64    `json:"p"`
	Q          float64    `json:"q"`
	R          float64    `json:"r"`
	Iterations int32      `json:"iterations"`
	Field      string     `json:"field,omitempty"`
	Texture    string     `json:"texture,omitempty"`
	Antialias  float64    `json:"antialias,omitempty"`
}

// DefaultRequest is the request fields missing from a client message default to.
func DefaultRequest() Request {
	u := programs.DefaultUniforms()
	return Request{
		Program:    "julia",
		Width:      640,
		Height:     512,
		Center:     u.Center,
		ZoomPower:  u.ZoomPower,
		C:          u.C,
		P:          u.P,
		Q:          u.Q,
		R:          u.R,
		Iterations: u.Iterations,
		Field:      u.Field,
	}
}

func (r Request) Uniforms() programs.Uniforms {
	return programs.Uniforms{
		Center:     r.Center,
		ZoomPower:  r.ZoomPower,
		C:          r.C,
		P:          r.P,
		Q:          r.Q,
		R:          r.R,
		Iterations: r.Iterations,
		Field:      r.Field,
	}
}

// Status is sent as a text message when a websocket render ends.
type Status struct {
	ID      string `json:"id,omitempty"`
	Done    bool   `json:"done"`
	Tiles   int    `json:"tiles"`
	Elapsed string `json:"elapsed,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Server struct {
	textures map[string]*texture.Texture
	tileSize int
	origins  []string
	mux      *http.ServeMux
}

type Option func(*Server)

func WithTileSize(n int) Option {
	return func(s *Server) { s.tileSize = n }
}

// WithOriginPatterns sets the origins allowed to open a websocket.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

func New(textures map[string]*texture.Texture, opts ...Option) *Server {
	s := &Server{
		textures: textures,
		tileSize: render.DefaultTileSize,
		mux:      http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}

	s.mux.HandleFunc("GET /programs", s.handlePrograms)
	s.mux.HandleFunc("POST /render", s.handleRender)
	s.mux.HandleFunc("GET /ws", s.handleWebsocket)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// LoadTextures loads every decodable image in dir, keyed by file name.
func LoadTextures(dir string, maxDim int) (map[string]*texture.Texture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	textures := make(map[string]*texture.Texture)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		tex, err := texture.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Printf("skipping texture %v: %v", e.Name(), err)
			continue
		}
		textures[e.Name()] = tex.Fit(maxDim)
	}
	return textures, nil
}

type programInfo struct {
	Name    string `json:"name"`
	Variant string `json:"variant"`
}

type catalogue struct {
	Programs    []programInfo `json:"programs"`
	Expressions []string      `json:"expressions"`
	Textures    []string      `json:"textures"`
}

func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	var c catalogue
	for i := 0; i < programs.NumPrograms(); i++ {
		p := programs.GetProgram(i)
		c.Programs = append(c.Programs, programInfo{Name: p.Name, Variant: p.Variant.String()})
	}
	c.Expressions = programs.ExpressionNames()
	c.Textures = make([]string, 0, len(s.textures))
	for name := range s.textures {
		c.Textures = append(c.Textures, name)
	}
	sort.Strings(c.Textures)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c); err != nil {
		log.Printf("encode programs: %v", err)
	}
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	req := DefaultRequest()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}

	img, err := s.prepare(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	out, err := render.Render(r.Context(), img, req.Width, req.Height, render.Options{
		TileSize:  s.tileSize,
		Antialias: req.Antialias,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	log.Printf("rendered %v %dx%d in %s", req.Program, req.Width, req.Height, time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, out); err != nil {
		log.Printf("encode png: %v", err)
	}
}

// handleWebsocket renders each request received on the connection,
// streaming tiles as they finish. A new request cancels the previous one.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		log.Println(err)
		return
	}
	defer c.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan Request)
	go func() {
		defer close(requests)
		for {
			req := DefaultRequest()
			if err := wsjson.Read(ctx, c, &req); err != nil {
				if websocket.CloseStatus(err) == -1 {
					log.Printf("websocket read: %v", err)
				}
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		wg           sync.WaitGroup
		cancelRender context.CancelCauseFunc = func(error) {}
	)
	for req := range requests {
		cancelRender(errSuperseded)
		wg.Wait()

		var renderCtx context.Context
		renderCtx, cancelRender = context.WithCancelCause(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stream(ctx, renderCtx, c, req)
		}()
	}

	cancelRender(context.Canceled)
	wg.Wait()
	c.Close(websocket.StatusNormalClosure, "")
}

// stream renders req, writing tiles to c until renderCtx is cancelled.
// Writes use connCtx; cancelling a write in progress closes the connection.
func (s *Server) stream(connCtx, renderCtx context.Context, c *websocket.Conn, req Request) {
	status := Status{ID: req.ID}

	img, err := s.prepare(req)
	if err != nil {
		status.Error = err.Error()
		if err := wsjson.Write(connCtx, c, status); err != nil {
			log.Printf("websocket write: %v", err)
		}
		return
	}

	var (
		mu    sync.Mutex
		tiles int
	)
	start := time.Now()
	_, err = render.Render(renderCtx, img, req.Width, req.Height, render.Options{
		TileSize:  s.tileSize,
		Antialias: req.Antialias,
		Tile: func(dst *image.NRGBA, tile image.Rectangle) error {
			msg, err := EncodeTile(dst, tile)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if renderCtx.Err() != nil {
				return context.Cause(renderCtx)
			}
			if err := c.Write(connCtx, websocket.MessageBinary, msg); err != nil {
				return err
			}
			tiles++
			return nil
		},
	})
	if errors.Is(context.Cause(renderCtx), errSuperseded) {
		return
	}

	status.Tiles = tiles
	status.Elapsed = time.Since(start).String()
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Done = true
	}
	if err := wsjson.Write(connCtx, c, status); err != nil {
		log.Printf("websocket write: %v", err)
	}
}

func (s *Server) prepare(req Request) (programs.Image, error) {
	if req.Width <= 0 || req.Height <= 0 || req.Width > MaxDimension || req.Height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, req.Width, req.Height)
	}
	if req.Iterations <= 0 || req.Iterations > MaxIterations {
		return nil, fmt.Errorf("%w: %d, want 1 to %d", ErrBadIterations, req.Iterations, MaxIterations)
	}

	p, err := programs.Lookup(req.Program)
	if err != nil {
		return nil, err
	}

	var source field.Sampler
	if p.Variant.Samples() {
		tex, ok := s.textures[req.Texture]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownTexture, req.Texture)
		}
		source = tex
	}

	return p.GetImage(req.Uniforms(), source)
}
