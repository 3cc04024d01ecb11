package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	framepipeline "github.com/menta2k/frame-pipeline"
	"github.com/menta2k/frame-pipeline/internal/config"
	"github.com/menta2k/frame-pipeline/internal/utils"
	"github.com/menta2k/frame-pipeline/pkg/analysis"
	"github.com/menta2k/frame-pipeline/pkg/codec"
	"github.com/menta2k/frame-pipeline/pkg/photo"
)

func main() {
	var mode, in, outDir, configPath string
	var rotation, orientation int

	// photo mode
	var quality int
	var ext, basis, preview string
	var cropAR, cropWP float64

	// analyze mode
	var size, order, norm, byteOrder, dump string

	// raw input
	var rawFormat, rawSize string

	flag.StringVar(&mode, "mode", "photo", "photo: finish captures to jpg/webp; analyze: write tensor buffers")
	flag.StringVar(&in, "in", "", "input image, raw dump, or directory of them")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&configPath, "config", "", "YAML or JSON config file (default: "+config.GetConfigPath()+" if present)")
	flag.IntVar(&rotation, "rotation", 0, "clockwise sensor rotation in degrees (0, 90, 180, 270)")
	flag.IntVar(&orientation, "orientation", 0, "EXIF orientation tag 1-8, overrides -rotation")

	flag.IntVar(&quality, "quality", 0, "output quality 1-100 (0 = config default)")
	flag.StringVar(&ext, "ext", "", "photo output format: jpg|webp (default from config)")
	flag.Float64Var(&cropAR, "crop-ar", 0, "stencil aspect ratio w/h (0 = no crop)")
	flag.Float64Var(&cropWP, "crop-wp", 0, "stencil width fraction in (0,1]")
	flag.StringVar(&basis, "basis", "", "stencil basis: sensor|preview (default from config)")
	flag.StringVar(&preview, "preview", "", "preview size WxH for -basis preview")

	flag.StringVar(&size, "size", "", "analysis output size WxH; adds a consumer named cli")
	flag.StringVar(&order, "order", "rgb", "analysis color order: rgb|rbg|grb|gbr|brg|bgr")
	flag.StringVar(&norm, "norm", "ubyte", "analysis normalization: ubyte|byte|ufloat|float")
	flag.StringVar(&byteOrder, "byte-order", "little", "float byte order: little|big")
	flag.StringVar(&dump, "dump", "bin", "analysis output: bin|cbor|both")

	flag.StringVar(&rawFormat, "raw-format", "i420", "format of raw dumps: i420|nv21|nv12|bgra|rgba|rgb")
	flag.StringVar(&rawSize, "raw-size", "", "frame size WxH of raw dumps")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in input.jpg|dir [-mode photo|analyze] [-out outdir] [-config file] [-rotation 90] [-crop-ar 1 -crop-wp 0.8] [-size 224x224 -order bgr -norm float]", filepath.Base(os.Args[0]))
	}

	cfg := config.Default()
	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			log.Fatal(err)
		}
	}
	if basis != "" {
		cfg.Photo.CropBasis = basis
	}
	if ext != "" {
		cfg.Photo.OutputFormat = ext
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	inputs, err := utils.ListInputFiles(in)
	if err != nil {
		log.Fatal(err)
	}
	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	rw, rh, err := parseSize(rawSize)
	if err != nil {
		log.Fatal(err)
	}
	raw := rawSpec{format: rawFormat, width: rw, height: rh}

	p := framepipeline.NewWithConfig(framepipeline.Config{
		Photo:  cfg.PhotoFinisherConfig(),
		Worker: photo.WorkerConfig{QueueSize: cfg.Photo.QueueSize},
		Logger: logger,
	})
	defer p.Close()

	switch mode {
	case "photo":
		args := map[string]any{}
		if quality != 0 {
			args["jpegQuality"] = quality
		}
		if cropAR != 0 || cropWP != 0 {
			args["centerCropAspectRatio"] = cropAR
			args["centerCropWidthPercent"] = cropWP
		}
		if preview != "" {
			pw, ph, err := parseSize(preview)
			if err != nil {
				log.Fatal(err)
			}
			args["previewWidth"], args["previewHeight"] = pw, ph
		}
		req, err := photo.ParseRequest(args)
		if err != nil {
			log.Fatal(err)
		}
		req.Basis = cfg.CropBasis()
		if err := req.Validate(); err != nil {
			log.Fatal(err)
		}
		ext := string(cfg.PhotoFinisherConfig().Format)
		if ext == string(codec.JPEG) {
			ext = "jpg"
		}
		runPhoto(p, inputs, outDir, req, ext, raw, rotation, orientation)

	case "analyze":
		opts, err := cfg.AnalysisOptions()
		if err != nil {
			log.Fatal(err)
		}
		if size != "" {
			w, h, err := parseSize(size)
			if err != nil {
				log.Fatal(err)
			}
			cli, err := analysis.ParseOptionsMap(map[string]any{
				"cli": map[string]any{
					"imageWidth": w, "imageHeight": h,
					"colorOrder": order, "normalization": norm, "byteOrder": byteOrder,
				},
			})
			if err != nil {
				log.Fatal(err)
			}
			opts["cli"] = cli["cli"]
		}
		if len(opts) == 0 {
			log.Fatal("analyze mode needs -size or analysis.options in the config")
		}
		if err := p.AttachAll(opts); err != nil {
			log.Fatal(err)
		}
		target := p.TargetResolution()
		slog.Info("analysis consumers attached", "count", len(opts), "target_resolution", fmt.Sprintf("%dx%d", target.Width, target.Height))
		runAnalyze(p, inputs, outDir, dump, raw, rotation, orientation)

	default:
		log.Fatalf("Unknown mode: %s (use 'photo' or 'analyze')", mode)
	}
}

func runPhoto(p *framepipeline.Pipeline, inputs []string, outDir string, req photo.Request, ext string, raw rawSpec, rotation, orientation int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, path := range inputs {
		frame, err := loadFrame(path, raw, rotation, orientation)
		if err != nil {
			slog.Error("load failed", "path", path, "err", err)
			continue
		}

		start := time.Now()
		data, err := p.Capture(ctx, frame, req)
		if err != nil {
			slog.Error("photo failed", "path", path, "err", err)
			continue
		}

		outPath := utils.GenerateOutputFilename(path, outDir, "", "_final", ext)
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			slog.Error("save failed", "path", outPath, "err", err)
			continue
		}
		format, _ := codec.Sniff(data)
		slog.Info("wrote photo", "path", outPath, "format", format, "size", utils.FormatFileSize(int64(len(data))), "duration", time.Since(start))
	}
}

func runAnalyze(p *framepipeline.Pipeline, inputs []string, outDir, dump string, raw rawSpec, rotation, orientation int) {
	keys := p.AnalysisStats().Consumers
	sort.Strings(keys)

	for _, path := range inputs {
		frame, err := loadFrame(path, raw, rotation, orientation)
		if err != nil {
			slog.Error("load failed", "path", path, "err", err)
			continue
		}
		p.ProcessFrame(frame)

		for _, key := range keys {
			f, ok := p.ReadLastFrame(key)
			if !ok {
				slog.Warn("no analysis output", "path", path, "key", key)
				continue
			}
			suffix := "_" + utils.SanitizeFilename(key)

			if dump == "bin" || dump == "both" {
				outPath := utils.GenerateOutputFilename(path, outDir, "", suffix, "bin")
				if err := os.WriteFile(outPath, f.Data, 0o644); err != nil {
					slog.Error("save failed", "path", outPath, "err", err)
				} else {
					slog.Info("wrote tensor", "path", outPath, "key", key, "layout", fmt.Sprintf("%dx%dx3 %s %s", f.Width, f.Height, f.ColorOrder, f.Normalization))
				}
			}

			if dump == "cbor" || dump == "both" {
				data, err := analysis.EncodeSnapshot(f)
				if err != nil {
					slog.Error("snapshot failed", "key", key, "err", err)
					continue
				}
				outPath := utils.GenerateOutputFilename(path, outDir, "", suffix, "cbor")
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					slog.Error("save failed", "path", outPath, "err", err)
				} else {
					slog.Info("wrote snapshot", "path", outPath, "key", key, "size", utils.FormatFileSize(int64(len(data))))
				}
			}
		}
	}

	st := p.AnalysisStats()
	slog.Info("analysis done", "processed", st.Processed, "failed", st.Failed)
}
