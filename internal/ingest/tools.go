package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// commandRunner executes an external command, returning stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// convertToPDF converts an office document to PDF via soffice, writing the
// result next to the source. soffice names its output after the input file,
// so the produced PDF is renamed to the requested path.
func (e *Extractor) convertToPDF(ctx context.Context, sourcePath, pdfPath string) error {
	outDir := filepath.Dir(pdfPath)
	if _, err := e.run(ctx, e.tools.Soffice,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		sourcePath,
	); err != nil {
		return fmt.Errorf("convert to pdf: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	produced := filepath.Join(outDir, base+".pdf")
	if produced == pdfPath {
		return nil
	}
	if err := os.Rename(produced, pdfPath); err != nil {
		return fmt.Errorf("move converted pdf: %w", err)
	}
	return nil
}

// rasterize renders each PDF page to a PNG under the given prefix and
// returns the produced paths in page order. pdftoppm numbers its output
// files itself; the files are renamed to the layout's slide-NNN scheme by
// the caller.
func (e *Extractor) rasterize(ctx context.Context, pdfPath, prefix string) ([]string, error) {
	if _, err := e.run(ctx, e.tools.Pdftoppm,
		"-png",
		"-r", strconv.Itoa(e.tools.RasterDPI),
		pdfPath,
		prefix,
	); err != nil {
		return nil, fmt.Errorf("rasterize pdf: %w", err)
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rasterized pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("rasterize pdf: no pages produced")
	}
	// pdftoppm zero-pads page numbers to a fixed width per invocation, so
	// lexical order is page order.
	return matches, nil
}

// extractPDFText returns per-page text. pdftotext separates pages with form
// feeds; trailing empty pages are dropped.
func (e *Extractor) extractPDFText(ctx context.Context, pdfPath string) ([]string, error) {
	out, err := e.run(ctx, e.tools.Pdftotext, "-layout", pdfPath, "-")
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	pages := strings.Split(string(out), "\f")
	for len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	for i, page := range pages {
		pages[i] = strings.TrimSpace(page)
	}
	return pages, nil
}

// ocrImage runs tesseract over a slide image and returns the recognized
// text.
func (e *Extractor) ocrImage(ctx context.Context, imagePath string) (string, error) {
	out, err := e.run(ctx, e.tools.Tesseract, imagePath, "stdout", "-l", e.tools.OCRLanguage)
	if err != nil {
		return "", fmt.Errorf("ocr image: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
