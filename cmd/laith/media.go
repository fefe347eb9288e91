package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/laith/pkg/provider/media"
)

func runImage(ctx context.Context, e *env, args []string) int {
	fs := flag.NewFlagSet("image", flag.ContinueOnError)
	aspect := fs.String("aspect", string(media.DefaultAspect), "aspect ratio: 1:1, 16:9 or 9:16")
	out := fs.String("o", "", "output file (default: laith-image with the image's extension)")
	prompt, ok := parseMediaArgs(fs, args)
	if !ok {
		return 2
	}
	a, err := media.ParseAspect(*aspect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 2
	}

	application, err := buildApp(ctx, e)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	img, err := application.Studio().Image(ctx, prompt, a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}
	return writeMedia(*out, "laith-image", img.MIMEType, ".png", img.Data)
}

func runVideo(ctx context.Context, e *env, args []string) int {
	fs := flag.NewFlagSet("video", flag.ContinueOnError)
	aspect := fs.String("aspect", string(media.AspectLandscape), "aspect ratio: 16:9 or 9:16")
	resolution := fs.String("resolution", "", "output resolution, e.g. 720p (default: provider default)")
	out := fs.String("o", "", "output file (default: laith-video with the clip's extension)")
	prompt, ok := parseMediaArgs(fs, args)
	if !ok {
		return 2
	}
	a, err := media.ParseAspect(*aspect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 2
	}

	application, err := buildApp(ctx, e)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	vid, err := application.Studio().Video(ctx, media.VideoRequest{Prompt: prompt, Aspect: a, Resolution: *resolution},
		func(msg string) { fmt.Fprintln(os.Stderr, msg) })
	if err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}
	return writeMedia(*out, "laith-video", vid.MIMEType, ".mp4", vid.Data)
}

// parseMediaArgs parses fs and joins the remaining arguments into the prompt.
func parseMediaArgs(fs *flag.FlagSet, args []string) (string, bool) {
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintf(os.Stderr, "usage: laith %s [flags] prompt\n", fs.Name())
		fs.PrintDefaults()
		return "", false
	}
	return prompt, true
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// writeMedia stores data at path, deriving a name from base and the MIME
// type when path is empty.
func writeMedia(path, base, mimeType, fallbackExt string, data []byte) int {
	if path == "" {
		ext, ok := extensions[mimeType]
		if !ok {
			ext = fallbackExt
		}
		path = base + ext
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "laith: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", path, len(data))
	return 0
}
