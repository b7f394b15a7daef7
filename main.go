package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/internal/config"
	"github.com/stewi1014/juliafield/programs"
	"github.com/stewi1014/juliafield/server"
	"github.com/stewi1014/juliafield/texture"
)

const usage = `usage: juliafield <command> [flags]

commands:
  render    render a scene to a PNG file
  serve     serve renders over HTTP and websocket
  programs  list programs and field expressions
`

// GLFW must run on the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	mainContext, mainQuit := signal.NotifyContext(context.Background(), os.Interrupt)
	defer mainQuit()

	var err error
	switch os.Args[1] {
	case "render":
		err = renderMain(mainContext, os.Args[2:])
	case "serve":
		err = serveMain(mainContext, os.Args[2:])
	case "programs":
		listPrograms()
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Fatal(err)
	}
}

func listPrograms() {
	for i := 0; i < programs.NumPrograms(); i++ {
		p := programs.GetProgram(i)
		fmt.Printf("%-12v %v\n", p.Name, p.Variant)
	}
	fmt.Println()
	fmt.Println("field expressions:", strings.Join(programs.ExpressionNames(), ", "))
}

func renderMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)

	scene := config.DefaultScene()
	var (
		scenePath = fs.String("scene", "", "load the scene from this file; other flags override it")
		saveScene = fs.String("save-scene", "", "write the final scene to this file")
		output    = fs.String("o", config.OutputFile, "output PNG file")
		useGPU    = fs.Bool("gpu", false, "render with OpenGL instead of the CPU")
		workers   = fs.Int("workers", 0, "CPU render workers, 0 for one per CPU")
		tileSize  = fs.Int("tile", config.TileSize, "CPU render tile size")
	)
	sceneFlags(fs, &scene)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *scenePath != "" {
		loaded, err := config.LoadScene(*scenePath)
		if err != nil {
			return err
		}
		// flags given on the command line win over the loaded scene.
		overrides := scene
		scene = loaded
		fs.Visit(func(f *flag.Flag) {
			applySceneFlag(&scene, overrides, f.Name)
		})
	}

	if *saveScene != "" {
		if err := config.SaveScene(*saveScene, scene); err != nil {
			return err
		}
		log.Printf("saved scene to %v", *saveScene)
	}

	return save(ctx, SaveOptions{
		Name:     *output,
		GPU:      *useGPU,
		Workers:  *workers,
		TileSize: *tileSize,
	}, scene)
}

// sceneFlags registers a flag for every field of scene, defaulting to its
// current value.
func sceneFlags(fs *flag.FlagSet, scene *config.Scene) {
	u := &scene.Uniforms
	fs.StringVar(&scene.Program, "program", scene.Program, "program name, see the programs command")
	fs.IntVar(&scene.Width, "width", scene.Width, "image width")
	fs.IntVar(&scene.Height, "height", scene.Height, "image height")
	fs.Float64Var(&scene.Antialias, "antialias", scene.Antialias, "supersampling distance in pixels, 0 to disable")
	fs.StringVar(&scene.Texture, "texture", scene.Texture, "image sampled by image and field programs")
	fs.Var((*vec2Flag)(&u.Center), "center", "view centre as x,y")
	fs.Var(int32Flag{&u.ZoomPower}, "zoom", "zoom power; each step halves the view")
	fs.Var((*vec2Flag)(&u.C), "c", "julia constant as re,im")
	fs.Float64Var(&u.P, "p", u.P, "exponent")
	fs.Float64Var(&u.Q, "q", u.Q, "field exponent at t = 0")
	fs.Float64Var(&u.R, "r", u.R, "field exponent at t = 1")
	fs.Var(int32Flag{&u.Iterations}, "iterations", "maximum iterations")
	fs.StringVar(&u.Field, "field", u.Field, "field expression for field programs")
}

func applySceneFlag(dst *config.Scene, src config.Scene, name string) {
	switch name {
	case "program":
		dst.Program = src.Program
	case "width":
		dst.Width = src.Width
	case "height":
		dst.Height = src.Height
	case "antialias":
		dst.Antialias = src.Antialias
	case "texture":
		dst.Texture = src.Texture
	case "center":
		dst.Uniforms.Center = src.Uniforms.Center
	case "zoom":
		dst.Uniforms.ZoomPower = src.Uniforms.ZoomPower
	case "c":
		dst.Uniforms.C = src.Uniforms.C
	case "p":
		dst.Uniforms.P = src.Uniforms.P
	case "q":
		dst.Uniforms.Q = src.Uniforms.Q
	case "r":
		dst.Uniforms.R = src.Uniforms.R
	case "iterations":
		dst.Uniforms.Iterations = src.Uniforms.Iterations
	case "field":
		dst.Uniforms.Field = src.Uniforms.Field
	}
}

func serveMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var (
		addr     = fs.String("addr", config.ListenAddr, "listen address")
		textures = fs.String("textures", "", "directory of images available to image and field programs")
		tileSize = fs.Int("tile", config.TileSize, "tile size streamed over websockets")
		origins  = fs.String("origins", "", "comma separated origin patterns allowed to open websockets")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded := make(map[string]*texture.Texture)
	if *textures != "" {
		var err error
		loaded, err = server.LoadTextures(*textures, config.MaxTextureDim)
		if err != nil {
			return err
		}
		log.Printf("loaded %d textures from %v", len(loaded), *textures)
	}

	opts := []server.Option{server.WithTileSize(*tileSize)}
	if *origins != "" {
		opts = append(opts, server.WithOriginPatterns(strings.Split(*origins, ",")...))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(loaded, opts...),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	context.AfterFunc(ctx, func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Printf("shutdown: %v", err)
		}
	})

	log.Printf("listening on %v", *addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type vec2Flag mgl64.Vec2

func (v *vec2Flag) String() string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v,%v", v[0], v[1])
}

func (v *vec2Flag) Set(s string) error {
	x, y, ok := strings.Cut(s, ",")
	if !ok {
		return fmt.Errorf("%q is not of the form x,y", s)
	}
	var err error
	if v[0], err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
		return err
	}
	if v[1], err = strconv.ParseFloat(strings.TrimSpace(y), 64); err != nil {
		return err
	}
	return nil
}

type int32Flag struct{ v *int32 }

func (f int32Flag) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.FormatInt(int64(*f.v), 10)
}

func (f int32Flag) Set(s string) error {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return err
	}
	*f.v = int32(n)
	return nil
}
