package slides

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"minutes/internal/services"
)

const slideHeader = `<?xml version="1.0" encoding="UTF-8"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"><p:cSld><p:spTree>`

const slideFooter = `</p:spTree></p:cSld></p:sld>`

const titleSlide = slideHeader + `
<p:sp><p:nvSpPr><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>
  <p:txBody><a:p><a:r><a:t>Site Review:</a:t></a:r><a:r><a:t> Oak Street</a:t></a:r></a:p></p:txBody></p:sp>
<p:sp><p:txBody>
  <a:p><a:r><a:t>Store size 12,000 sqft</a:t></a:r></a:p>
  <a:p></a:p>
  <a:p><a:r><a:t>Signage</a:t></a:r><a:br/><a:r><a:t>pylon approved</a:t></a:r></a:p>
</p:txBody></p:sp>` + slideFooter

const tableSlide = slideHeader + `
<p:graphicFrame><a:graphic><a:graphicData><a:tbl>
  <a:tr><a:tc><a:txBody><a:p><a:r><a:t>Metric</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>Value</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
  <a:tr><a:tc><a:txBody><a:p><a:r><a:t>Rent</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>$40</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
</a:tbl></a:graphicData></a:graphic></p:graphicFrame>` + slideFooter

func writeDeck(t *testing.T, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.pptx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create part %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write part %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestOpenExtractsSlidesInOrder(t *testing.T) {
	path := writeDeck(t, map[string]string{
		"ppt/slides/slide10.xml":           tableSlide,
		"ppt/slides/slide2.xml":            titleSlide,
		"ppt/slides/_rels/slide2.xml.rels": "<Relationships/>",
		"ppt/presentation.xml":             "<p:presentation/>",
	})

	deck, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := []Slide{
		{
			Number: 2,
			Title:  "Site Review: Oak Street",
			Text:   []string{"Site Review: Oak Street", "Store size 12,000 sqft", "Signage pylon approved"},
		},
		{
			Number: 10,
			Tables: [][][]string{{{"Metric", "Value"}, {"Rent", "$40"}}},
		},
	}
	if diff := cmp.Diff(want, deck.Slides); diff != "" {
		t.Fatalf("unexpected slides (-want +got):\n%s", diff)
	}

	wantText := "Slide 2: Site Review: Oak Street\n" +
		"- Store size 12,000 sqft\n" +
		"- Signage pylon approved\n" +
		"\n" +
		"Slide 10\n" +
		"Table:\n" +
		"  Metric | Value\n" +
		"  Rent | $40"
	if diff := cmp.Diff(wantText, deck.Text()); diff != "" {
		t.Fatalf("unexpected digest (-want +got):\n%s", diff)
	}
}

func TestOpenMissingDeck(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.pptx"))
	if !services.Is(err, services.KindResourceNotFound) {
		t.Fatalf("expected ResourceNotFound, got %v", err)
	}
}

func TestOpenRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path); !services.Is(err, services.KindResourceInvalid) {
		t.Fatalf("expected ResourceInvalid, got %v", err)
	}
}

func TestOpenRejectsArchiveWithoutSlides(t *testing.T) {
	path := writeDeck(t, map[string]string{"word/document.xml": "<w:document/>"})
	if _, err := Open(path); !services.Is(err, services.KindResourceInvalid) {
		t.Fatalf("expected ResourceInvalid, got %v", err)
	}
}

func TestOpenRejectsBrokenSlideXML(t *testing.T) {
	path := writeDeck(t, map[string]string{"ppt/slides/slide1.xml": slideHeader + "<p:sp>"})
	if _, err := Open(path); !services.Is(err, services.KindResourceInvalid) {
		t.Fatalf("expected ResourceInvalid, got %v", err)
	}
}
