package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

const slideXMLTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp>
      <p:nvSpPr><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody>
    </p:sp>
    <p:sp>
      <p:nvSpPr><p:nvPr/></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody>
    </p:sp>
  </p:spTree></p:cSld>
</p:sld>`

const notesXMLTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<p:notes xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
         xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp>
      <p:nvSpPr><p:nvPr/></p:nvSpPr>
      <p:txBody>
        <a:p><a:r><a:t>%s</a:t></a:r></a:p>
        <a:p><a:r><a:t>2</a:t></a:r></a:p>
      </p:txBody>
    </p:sp>
  </p:spTree></p:cSld>
</p:notes>`

func writeTestPPTX(t *testing.T, path string, slides int) {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for i := 1; i <= slides; i++ {
		slidePart, err := writer.Create(fmt.Sprintf("ppt/slides/slide%d.xml", i))
		if err != nil {
			t.Fatalf("create slide part: %v", err)
		}
		content := fmt.Sprintf(slideXMLTemplate, fmt.Sprintf("Slide %d Title", i), fmt.Sprintf("Slide %d body text", i))
		if _, err := slidePart.Write([]byte(content)); err != nil {
			t.Fatalf("write slide part: %v", err)
		}

		notesPart, err := writer.Create(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", i))
		if err != nil {
			t.Fatalf("create notes part: %v", err)
		}
		notes := fmt.Sprintf(notesXMLTemplate, fmt.Sprintf("Speaker notes for %d", i))
		if _, err := notesPart.Write([]byte(notes)); err != nil {
			t.Fatalf("write notes part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	testsupport.WriteFile(t, path, buf.Bytes())
}

func TestParsePPTXExtractsTitleBodyNotes(t *testing.T) {
	path := t.TempDir() + "/deck.pptx"
	writeTestPPTX(t, path, 3)

	texts, err := parsePPTX(path)
	if err != nil {
		t.Fatalf("parsePPTX: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(texts))
	}
	for i, text := range texts {
		if text.Index != i+1 {
			t.Fatalf("expected index %d, got %d", i+1, text.Index)
		}
		if text.Title != fmt.Sprintf("Slide %d Title", i+1) {
			t.Fatalf("unexpected title %q", text.Title)
		}
		if !strings.Contains(text.Body, "body text") {
			t.Fatalf("unexpected body %q", text.Body)
		}
		if !strings.Contains(text.Notes, "Speaker notes") {
			t.Fatalf("unexpected notes %q", text.Notes)
		}
		if strings.Contains(text.Notes, "2") && text.Notes != "Speaker notes for 2" {
			t.Fatalf("slide number leaked into notes: %q", text.Notes)
		}
	}
}

// fakeTools simulates the external binaries a real ingestion shells out to.
type fakeTools struct {
	t        *testing.T
	paths    *layout.Layout
	deckID   string
	pages    int
	pageText []string
	ocrText  string
	ocrCalls int
}

func (f *fakeTools) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	switch {
	case strings.Contains(name, "pdftoppm"):
		prefix := args[len(args)-1]
		for i := 1; i <= f.pages; i++ {
			testsupport.WriteFile(f.t, fmt.Sprintf("%s-%d.png", prefix, i), []byte("png"))
		}
		return nil, nil
	case strings.Contains(name, "pdftotext"):
		return []byte(strings.Join(f.pageText, "\f")), nil
	case strings.Contains(name, "tesseract"):
		f.ocrCalls++
		return []byte(f.ocrText), nil
	case strings.Contains(name, "soffice"):
		testsupport.WriteFile(f.t, f.paths.WorkPDFPath(f.deckID), []byte("%PDF-1.4"))
		return nil, nil
	default:
		f.t.Fatalf("unexpected command %s", name)
		return nil, nil
	}
}

func newTestExtractor(t *testing.T, fake *fakeTools) (*Extractor, *layout.Layout) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	paths := layout.New(cfg)
	fake.paths = paths
	e := New(cfg, paths, logging.NewNop())
	e.WithCommandRunner(fake.run)
	return e, paths
}

func TestExtractPDFBuildsSlidesPerPage(t *testing.T) {
	longText := strings.Repeat("Plenty of extracted slide content. ", 4)
	fake := &fakeTools{t: t, deckID: "deck-1", pages: 2, pageText: []string{longText, longText}}
	e, paths := newTestExtractor(t, fake)

	if err := paths.EnsureDeckDirs("deck-1"); err != nil {
		t.Fatalf("EnsureDeckDirs: %v", err)
	}
	source := paths.SourcePath("deck-1", ".pdf")
	testsupport.WriteFile(t, source, []byte("%PDF-1.4"))

	deck := &store.Deck{ID: "deck-1", SourceType: store.SourcePDF, SourcePath: source}
	slides, err := e.Extract(context.Background(), deck)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(slides))
	}
	for i, slide := range slides {
		if slide.Index != i+1 {
			t.Fatalf("expected contiguous index, got %d", slide.Index)
		}
		if slide.ImagePath != paths.SlideImagePath("deck-1", i+1) {
			t.Fatalf("unexpected image path %s", slide.ImagePath)
		}
		if _, err := os.Stat(slide.ImagePath); err != nil {
			t.Fatalf("expected image on disk: %v", err)
		}
		if slide.NeedsImageContext {
			t.Fatal("text-rich slide must not need image context")
		}
	}
	if fake.ocrCalls != 0 {
		t.Fatalf("expected no OCR for text-rich slides, got %d calls", fake.ocrCalls)
	}
}

func TestExtractRunsOCRForThinSlides(t *testing.T) {
	recovered := strings.Repeat("Recovered text from the slide image. ", 3)
	fake := &fakeTools{t: t, deckID: "deck-1", pages: 2, pageText: []string{"", "x"}, ocrText: recovered}
	e, paths := newTestExtractor(t, fake)

	if err := paths.EnsureDeckDirs("deck-1"); err != nil {
		t.Fatalf("EnsureDeckDirs: %v", err)
	}
	source := paths.SourcePath("deck-1", ".pdf")
	testsupport.WriteFile(t, source, []byte("%PDF-1.4"))

	deck := &store.Deck{ID: "deck-1", SourceType: store.SourcePDF, SourcePath: source}
	slides, err := e.Extract(context.Background(), deck)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fake.ocrCalls != 2 {
		t.Fatalf("expected OCR on both thin slides, got %d calls", fake.ocrCalls)
	}
	for _, slide := range slides {
		if slide.OCRText != strings.TrimSpace(recovered) {
			t.Fatalf("expected OCR text recorded, got %q", slide.OCRText)
		}
		if slide.NeedsImageContext {
			t.Fatal("OCR recovered enough text; flag must be false")
		}
	}
}

func TestExtractFlagsImageHeavySlides(t *testing.T) {
	fake := &fakeTools{t: t, deckID: "deck-1", pages: 1, pageText: []string{""}, ocrText: ""}
	e, paths := newTestExtractor(t, fake)

	if err := paths.EnsureDeckDirs("deck-1"); err != nil {
		t.Fatalf("EnsureDeckDirs: %v", err)
	}
	source := paths.SourcePath("deck-1", ".pdf")
	testsupport.WriteFile(t, source, []byte("%PDF-1.4"))

	deck := &store.Deck{ID: "deck-1", SourceType: store.SourcePDF, SourcePath: source}
	slides, err := e.Extract(context.Background(), deck)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !slides[0].NeedsImageContext {
		t.Fatal("expected image-heavy slide flagged")
	}
}

func TestExtractPPTXParsesAndRasterizes(t *testing.T) {
	fake := &fakeTools{t: t, deckID: "deck-1", pages: 2}
	e, paths := newTestExtractor(t, fake)

	if err := paths.EnsureDeckDirs("deck-1"); err != nil {
		t.Fatalf("EnsureDeckDirs: %v", err)
	}
	source := paths.SourcePath("deck-1", ".pptx")
	writeTestPPTX(t, source, 2)

	deck := &store.Deck{ID: "deck-1", SourceType: store.SourcePPTX, SourcePath: source}
	slides, err := e.Extract(context.Background(), deck)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(slides))
	}
	if slides[0].Title != "Slide 1 Title" {
		t.Fatalf("unexpected title %q", slides[0].Title)
	}
	if slides[1].Notes != "Speaker notes for 2" {
		t.Fatalf("unexpected notes %q", slides[1].Notes)
	}
	if _, err := os.Stat(paths.WorkPDFPath("deck-1")); err != nil {
		t.Fatalf("expected converted pdf: %v", err)
	}
}
