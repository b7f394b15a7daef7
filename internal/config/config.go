package config

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/stewi1014/juliafield/programs"
)

const (
	ImageWidth  = 1000
	ImageHeight = 800

	TileSize      = 64
	MaxTextureDim = 2048

	ListenAddr = ":8080"
	OutputFile = "julia.png"
)

// Scene is everything needed to reproduce a render.
type Scene struct {
	Program   string
	Uniforms  programs.Uniforms
	Width     int
	Height    int
	Antialias float64
	Texture   string
}

func DefaultScene() Scene {
	return Scene{
		Program:  "julia",
		Uniforms: programs.DefaultUniforms(),
		Width:    ImageWidth,
		Height:   ImageHeight,
	}
}

func LoadScene(path string) (Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scene{}, err
	}
	defer f.Close()

	var s Scene
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return Scene{}, fmt.Errorf("decode scene %v: %w", path, err)
	}
	return s, nil
}

func SaveScene(path string, s Scene) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		f.Close()
		return fmt.Errorf("encode scene %v: %w", path, err)
	}
	return f.Close()
}
