package slides

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"minutes/internal/services"
)

const (
	presentationNS = "http://schemas.openxmlformats.org/presentationml/2006/main"
	drawingNS      = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

// Slide holds the text content of one slide.
type Slide struct {
	Number int          `json:"slide_number"`
	Title  string       `json:"title,omitempty"`
	Text   []string     `json:"text,omitempty"`
	Tables [][][]string `json:"tables,omitempty"`
}

// Deck is the ordered set of slides in a presentation.
type Deck struct {
	Path   string  `json:"path"`
	Slides []Slide `json:"slides"`
}

// Open parses the deck at filePath. A missing file fails with
// KindResourceNotFound; a file that is not a readable pptx archive fails with
// KindResourceInvalid.
func Open(filePath string) (*Deck, error) {
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Fail(services.KindResourceNotFound, "", "slide deck not found: "+filePath, err)
		}
		return nil, services.Fail(services.KindResourceInvalid, "", "stat slide deck "+filePath, err)
	}
	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, services.Fail(services.KindResourceInvalid, "", "slide deck is not a pptx archive: "+filePath, err)
	}
	defer archive.Close()

	deck, err := Read(&archive.Reader)
	if err != nil {
		return nil, err
	}
	deck.Path = filePath
	return deck, nil
}

// Read parses slides from an opened archive.
func Read(archive *zip.Reader) (*Deck, error) {
	type slidePart struct {
		number int
		file   *zip.File
	}
	var parts []slidePart
	for _, f := range archive.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		parts = append(parts, slidePart{number: number, file: f})
	}
	if len(parts) == 0 {
		return nil, services.Fail(services.KindResourceInvalid, "", "slide deck contains no slides", nil)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].number < parts[j].number })

	deck := &Deck{Slides: make([]Slide, 0, len(parts))}
	for _, p := range parts {
		rc, err := p.file.Open()
		if err != nil {
			return nil, services.Fail(services.KindResourceInvalid, "", "open "+p.file.Name, err)
		}
		slide, err := parseSlide(rc)
		rc.Close()
		if err != nil {
			return nil, services.Fail(services.KindResourceInvalid, "", "parse "+p.file.Name, err)
		}
		slide.Number = p.number
		deck.Slides = append(deck.Slides, slide)
	}
	return deck, nil
}

func parseSlide(r io.Reader) (Slide, error) {
	var (
		slide      Slide
		para       strings.Builder
		cell       []string
		row        []string
		table      [][]string
		titleParts []string
		inText     bool
		inTable    bool
		shapeTitle bool
	)
	decoder := xml.NewDecoder(r)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return slide, nil
		}
		if err != nil {
			return Slide{}, err
		}
		switch el := token.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Space == presentationNS && el.Name.Local == "sp":
				shapeTitle = false
				titleParts = nil
			case el.Name.Space == presentationNS && el.Name.Local == "ph":
				for _, attr := range el.Attr {
					if attr.Name.Local == "type" && (attr.Value == "title" || attr.Value == "ctrTitle") {
						shapeTitle = true
					}
				}
			case el.Name.Space == drawingNS && el.Name.Local == "tbl":
				inTable = true
				table = nil
			case el.Name.Space == drawingNS && el.Name.Local == "tr":
				row = nil
			case el.Name.Space == drawingNS && el.Name.Local == "tc":
				cell = nil
			case el.Name.Space == drawingNS && el.Name.Local == "p":
				para.Reset()
			case el.Name.Space == drawingNS && el.Name.Local == "t":
				inText = true
			case el.Name.Space == drawingNS && el.Name.Local == "br":
				para.WriteByte(' ')
			}
		case xml.CharData:
			if inText {
				para.Write(el)
			}
		case xml.EndElement:
			switch {
			case el.Name.Space == drawingNS && el.Name.Local == "t":
				inText = false
			case el.Name.Space == drawingNS && el.Name.Local == "p":
				text := strings.Join(strings.Fields(para.String()), " ")
				if text == "" {
					continue
				}
				if inTable {
					cell = append(cell, text)
					continue
				}
				slide.Text = append(slide.Text, text)
				if shapeTitle {
					titleParts = append(titleParts, text)
				}
			case el.Name.Space == presentationNS && el.Name.Local == "sp":
				if shapeTitle && slide.Title == "" {
					slide.Title = strings.Join(titleParts, " ")
				}
				shapeTitle = false
			case el.Name.Space == drawingNS && el.Name.Local == "tc":
				row = append(row, strings.Join(cell, " "))
			case el.Name.Space == drawingNS && el.Name.Local == "tr":
				table = append(table, row)
			case el.Name.Space == drawingNS && el.Name.Local == "tbl":
				if len(table) > 0 {
					slide.Tables = append(slide.Tables, table)
				}
				inTable = false
			}
		}
	}
}

// Text renders the deck as a plain-text digest.
func (d *Deck) Text() string {
	if d == nil {
		return ""
	}
	var sb strings.Builder
	for i, slide := range d.Slides {
		if i > 0 {
			sb.WriteString("\n")
		}
		if slide.Title != "" {
			fmt.Fprintf(&sb, "Slide %d: %s\n", slide.Number, slide.Title)
		} else {
			fmt.Fprintf(&sb, "Slide %d\n", slide.Number)
		}
		for _, text := range slide.Text {
			if text == slide.Title {
				continue
			}
			fmt.Fprintf(&sb, "- %s\n", text)
		}
		for _, table := range slide.Tables {
			sb.WriteString("Table:\n")
			for _, row := range table {
				fmt.Fprintf(&sb, "  %s\n", strings.Join(row, " | "))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
