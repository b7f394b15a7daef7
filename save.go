package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"time"

	"github.com/stewi1014/juliafield/field"
	"github.com/stewi1014/juliafield/gpu"
	"github.com/stewi1014/juliafield/internal/config"
	"github.com/stewi1014/juliafield/programs"
	"github.com/stewi1014/juliafield/render"
	"github.com/stewi1014/juliafield/texture"
)

type SaveOptions struct {
	Name     string
	GPU      bool
	Workers  int
	TileSize int
}

// save renders scene and writes it as a PNG to opts.Name. The file is
// removed if anything fails after it is created.
func save(ctx context.Context, opts SaveOptions, scene config.Scene) error {
	program, err := programs.Lookup(scene.Program)
	if err != nil {
		return err
	}

	var tex *texture.Texture
	if program.Variant.Samples() {
		if scene.Texture == "" {
			return fmt.Errorf("%v samples an image, set -texture", program.Name)
		}
		tex, err = texture.Load(scene.Texture)
		if err != nil {
			return err
		}
		tex = tex.Fit(config.MaxTextureDim)
	}

	file, err := os.Create(opts.Name)
	if err != nil {
		return err
	}
	keepFile := false
	defer func() {
		file.Close()
		if !keepFile {
			os.Remove(file.Name())
		}
	}()

	start := time.Now()
	var img image.Image
	if opts.GPU {
		img, err = renderGPU(program, scene, tex)
	} else {
		img, err = renderCPU(ctx, program, scene, tex, opts)
	}
	if err != nil {
		return err
	}
	log.Printf("rendered %v %dx%d in %s", program.Name, scene.Width, scene.Height, time.Since(start))

	if err := png.Encode(file, img); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}
	keepFile = true
	log.Printf("saved %v", file.Name())
	return nil
}

func renderCPU(ctx context.Context, program *programs.Program, scene config.Scene, tex *texture.Texture, opts SaveOptions) (image.Image, error) {
	var source field.Sampler
	if tex != nil {
		source = tex
	}
	img, err := program.GetImage(scene.Uniforms, source)
	if err != nil {
		return nil, err
	}

	var lastReport time.Time
	progress := make(chan int, 1)
	defer close(progress)
	go func() {
		for percent := range progress {
			if time.Since(lastReport) > time.Second || percent == 100 {
				lastReport = time.Now()
				log.Printf("rendering %v: %d%%", program.Name, percent)
			}
		}
	}()

	return render.Render(ctx, img, scene.Width, scene.Height, render.Options{
		Workers:   opts.Workers,
		TileSize:  opts.TileSize,
		Antialias: scene.Antialias,
		Progress: func(done, total int) {
			select {
			case progress <- done * 100 / total:
			default:
			}
		},
	})
}

func renderGPU(program *programs.Program, scene config.Scene, tex *texture.Texture) (image.Image, error) {
	if scene.Antialias > 0 {
		log.Println("antialiasing is only applied to CPU renders")
	}

	r, err := gpu.NewRenderer()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.Render(program, scene.Uniforms, tex, scene.Width, scene.Height)
}
