package ingest

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// slideText carries the textual content parsed from one PPTX slide part.
type slideText struct {
	Index int
	Title string
	Body  string
	Notes string
}

var (
	slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	notesPartPattern = regexp.MustCompile(`^ppt/notesSlides/notesSlide(\d+)\.xml$`)
)

// parsePPTX reads slide and notes parts from the zip archive. Slides come
// back ordered by their part number, which matches presentation order for
// decks produced by mainstream tools.
func parsePPTX(path string) ([]slideText, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open pptx archive: %w", err)
	}
	defer archive.Close()

	slides := make(map[int]*slideText)
	notes := make(map[int]string)

	for _, file := range archive.File {
		if match := slidePartPattern.FindStringSubmatch(file.Name); match != nil {
			index, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			title, body, err := parseSlidePart(file)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", file.Name, err)
			}
			slides[index] = &slideText{Index: index, Title: title, Body: body}
			continue
		}
		if match := notesPartPattern.FindStringSubmatch(file.Name); match != nil {
			index, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			text, err := parseNotesPart(file)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", file.Name, err)
			}
			notes[index] = text
		}
	}

	if len(slides) == 0 {
		return nil, fmt.Errorf("no slide parts found in archive")
	}

	indices := make([]int, 0, len(slides))
	for index := range slides {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	result := make([]slideText, 0, len(indices))
	for position, index := range indices {
		slide := slides[index]
		slide.Notes = notes[index]
		// Part numbers can have gaps after slide deletion; renumber to a
		// contiguous 1-based sequence.
		slide.Index = position + 1
		result = append(result, *slide)
	}
	return result, nil
}

// Drawing-ML structure, reduced to what text extraction needs. A slide body
// is a tree of shapes (p:sp) holding paragraphs (a:p) of runs (a:r/a:t).
type pptxShapeTree struct {
	Shapes []pptxShape `xml:"cSld>spTree>sp"`
}

type pptxShape struct {
	Properties pptxShapeProperties `xml:"nvSpPr>nvPr"`
	Paragraphs []pptxParagraph     `xml:"txBody>p"`
}

type pptxShapeProperties struct {
	Placeholder *pptxPlaceholder `xml:"ph"`
}

type pptxPlaceholder struct {
	Type string `xml:"type,attr"`
}

type pptxParagraph struct {
	Runs []pptxRun `xml:"r"`
}

type pptxRun struct {
	Text string `xml:"t"`
}

func (p pptxParagraph) text() string {
	var b strings.Builder
	for _, run := range p.Runs {
		b.WriteString(run.Text)
	}
	return strings.TrimSpace(b.String())
}

func parseSlidePart(file *zip.File) (title, body string, err error) {
	tree, err := decodeShapeTree(file)
	if err != nil {
		return "", "", err
	}

	var bodyLines []string
	for _, shape := range tree.Shapes {
		var lines []string
		for _, paragraph := range shape.Paragraphs {
			if text := paragraph.text(); text != "" {
				lines = append(lines, text)
			}
		}
		if len(lines) == 0 {
			continue
		}
		if title == "" && shape.isTitle() {
			title = lines[0]
			bodyLines = append(bodyLines, lines[1:]...)
			continue
		}
		bodyLines = append(bodyLines, lines...)
	}
	return title, strings.Join(bodyLines, "\n"), nil
}

func (s pptxShape) isTitle() bool {
	if s.Properties.Placeholder == nil {
		return false
	}
	switch s.Properties.Placeholder.Type {
	case "title", "ctrTitle":
		return true
	}
	return false
}

func parseNotesPart(file *zip.File) (string, error) {
	tree, err := decodeShapeTree(file)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, shape := range tree.Shapes {
		// Notes pages carry the slide number in a placeholder shape; skip
		// bare numeric lines so they do not pollute the narration prompt.
		for _, paragraph := range shape.Paragraphs {
			text := paragraph.text()
			if text == "" || isSlideNumber(text) {
				continue
			}
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func isSlideNumber(text string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(text))
	return err == nil
}

func decodeShapeTree(file *zip.File) (pptxShapeTree, error) {
	var tree pptxShapeTree
	reader, err := file.Open()
	if err != nil {
		return tree, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return tree, err
	}
	if err := xml.Unmarshal(data, &tree); err != nil {
		return tree, err
	}
	return tree, nil
}
