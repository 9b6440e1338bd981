// Command imagectl runs the local stages of the image pipeline on files:
// format conversion, mirroring, local enhancement, normalization and mask
// generation. It never calls a remote provider.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"imagechain/internal/domain"
	"imagechain/internal/imageproc"
	"imagechain/internal/infra"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	logger := infra.NewLogger(getenv("APP_ENV", "cli")).With().Str("cmd", "imagectl").Logger()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "convert":
		err = runLocal(args, imageproc.NewConverter(logger).EnsureStandardFormat)
	case "mirror":
		err = runLocal(args, imageproc.Mirror)
	case "enhance":
		err = runLocal(args, imageproc.Enhance)
	case "normalize":
		err = runNormalize(args, imageproc.NewNormalizer(logger))
	case "mask":
		err = runMask(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		exitWithError(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: imagectl <convert|mirror|enhance|normalize|mask> [flags]")
}

func runLocal(args []string, stage func(domain.Image) (domain.Image, error)) error {
	fs := flag.NewFlagSet("imagectl", flag.ExitOnError)
	in := fs.String("in", "", "input image path")
	out := fs.String("out", "", "output image path")
	_ = fs.Parse(args)

	img, err := readImage(*in)
	if err != nil {
		return err
	}
	result, err := stage(img)
	if err != nil {
		return err
	}
	return writeImage(*out, result)
}

func runNormalize(args []string, n *imageproc.Normalizer) error {
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	in := fs.String("in", "", "input image path")
	out := fs.String("out", "", "output image path")
	maxBytes := fs.Int("max-bytes", 4<<20, "byte budget for the output")
	maxDim := fs.Int("max-dim", 0, "maximum width or height (0 = unbounded)")
	maxPixels := fs.Int("max-pixels", 0, "maximum width*height (0 = unbounded)")
	minDim := fs.Int("min-dim", 0, "reject inputs with a smaller side")
	format := fs.String("format", "", "force png or jpeg output")
	_ = fs.Parse(args)

	img, err := readImage(*in)
	if err != nil {
		return err
	}
	res, err := n.Normalize(img, imageproc.Constraints{
		MaxBytes:     *maxBytes,
		MaxDimension: *maxDim,
		MaxPixels:    *maxPixels,
		MinDimension: *minDim,
		Format:       domain.Format(strings.ToLower(*format)),
	})
	if err != nil {
		return err
	}
	fmt.Printf("%dx%d %s %d bytes quality=%d scale=%.4f\n",
		res.Width, res.Height, res.Format, res.Size(), res.Quality, res.Scale)
	return writeImage(*out, res.Image)
}

func runMask(args []string) error {
	fs := flag.NewFlagSet("mask", flag.ExitOnError)
	out := fs.String("out", "", "output mask path")
	width := fs.Int("width", 0, "canvas width")
	height := fs.Int("height", 0, "canvas height")
	rectFlag := fs.String("rect", "", "region as x,y,width,height")
	alpha := fs.Bool("alpha", false, "emit a transparent-hole RGBA mask instead of grayscale")
	_ = fs.Parse(args)

	rect, err := parseRect(*rectFlag)
	if err != nil {
		return err
	}
	enc := imageproc.MaskGrayscale
	if *alpha {
		enc = imageproc.MaskAlpha
	}
	mask, err := imageproc.GenerateMask(*width, *height, rect, enc)
	if err != nil {
		return err
	}
	return writeImage(*out, mask)
}

func parseRect(s string) (domain.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Rect{}, errors.New("-rect must be x,y,width,height")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Rect{}, fmt.Errorf("-rect: %w", err)
		}
		v[i] = f
	}
	return domain.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func readImage(path string) (domain.Image, error) {
	if path == "" {
		return domain.Image{}, errors.New("-in is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Image{}, err
	}
	return domain.Image{Data: data}, nil
}

func writeImage(path string, img domain.Image) error {
	if path == "" {
		return errors.New("-out is required")
	}
	return os.WriteFile(path, img.Data, 0o644)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "imagectl: %v\n", err)
	os.Exit(1)
}
