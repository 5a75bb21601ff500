package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"labelscan/pkg/analyzer"
	"labelscan/pkg/config"
	"labelscan/pkg/ingredients"
	"labelscan/pkg/logging"
	"labelscan/pkg/ocr"
)

// Runs OCR on one photo and prints every (candidate, profile) result, the
// winner and the tokens it yields. Nothing is sent to the model.
func main() {
	img := flag.String("img", "", "label photo to run OCR on")
	debugDir := flag.String("debug-dir", "", "write the preprocessed candidates here")
	whitelist := flag.Bool("whitelist", false, "also run the character-whitelisted profile")
	flag.Parse()
	if *img == "" && flag.NArg() > 0 {
		*img = flag.Arg(0)
	}
	if *img == "" {
		fmt.Fprintln(os.Stderr, "usage: go run ./tools/cmd/ocr_probe [-debug-dir dir] <photo>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.New("debug", true)
	version, err := ocr.CheckEngine(cfg.OCR.TessdataPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("tesseract unavailable")
	}

	oc := cfg.OCR
	if *debugDir != "" {
		oc.DebugDir = *debugDir
	}
	oc.WhitelistProfile = oc.WhitelistProfile || *whitelist
	ex := analyzer.NewExtractor(oc, logger)

	p, _ := filepath.Abs(*img)
	fmt.Printf("tesseract %s, running OCR on %s\n", version, p)
	text, err := ex.ExtractTextFromFile(context.Background(), p)
	if err != nil {
		logger.Fatal().Err(err).Msg("ocr failed")
	}

	results := append([]ocr.Result(nil), text.Results...)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Confidence > results[j].Confidence })
	for _, r := range results {
		fmt.Printf("%-9s %-7s conf=%5.1f len=%4d %q\n", r.Candidate, r.Profile, r.Confidence, len(r.Text), firstLine(r.Text))
	}
	fmt.Printf("\nbest: %s/%s conf=%.1f\n%s\n", text.Best.Candidate, text.Best.Profile, text.Best.Confidence, text.Text)
	fmt.Printf("\ntokens: %s\n", strings.Join(ingredients.Tokenize(text.Text), " | "))
	if oc.DebugDir != "" {
		fmt.Printf("candidates written to %s\n", oc.DebugDir)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
