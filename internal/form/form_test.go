package form

import (
	"strings"
	"testing"
)

func TestRenderInputsInOrder(t *testing.T) {
	html := Render("Reading Comprehension", []string{"passage", "question"})
	if !strings.Contains(html, "<title>\n            Reading Comprehension\n        </title>") {
		t.Fatalf("title not rendered")
	}
	if strings.Count(html, "<input ") != 2 {
		t.Fatalf("expected 2 inputs, got %d", strings.Count(html, "<input "))
	}
	p := strings.Index(html, `id="input-passage"`)
	q := strings.Index(html, `id="input-question"`)
	if p < 0 || q < 0 || p > q {
		t.Fatalf("inputs missing or out of order: passage=%d question=%d", p, q)
	}
	if !strings.Contains(html, "var fieldNames = ['passage','question'];") {
		t.Fatalf("field list literal missing")
	}
	if !strings.Contains(html, `xhr.open("POST", "/predict")`) {
		t.Fatalf("script does not post to /predict")
	}
	if !strings.Contains(html, ".form__field") {
		t.Fatalf("stylesheet not inlined")
	}
	if strings.Contains(html, "{{") {
		t.Fatalf("unsubstituted placeholder left in page")
	}
}

func TestRenderEmptyFields(t *testing.T) {
	html := Render("Empty", nil)
	if strings.Count(html, "<input ") != 0 {
		t.Fatalf("expected no inputs")
	}
	if !strings.Contains(html, "var fieldNames = [];") {
		t.Fatalf("expected empty field list")
	}
}

func TestRenderDeterministic(t *testing.T) {
	a := Render("T", []string{"x", "y"})
	b := Render("T", []string{"x", "y"})
	if a != b {
		t.Fatalf("render is not deterministic")
	}
}

func TestRenderDoesNotEscapeFieldNames(t *testing.T) {
	html := Render("T", []string{"a&b"})
	if !strings.Contains(html, "['a&b']") || !strings.Contains(html, `id="input-a&b"`) {
		t.Fatalf("field name was escaped")
	}
}
