package aggregate

import (
	"strings"
	"testing"
)

func TestRetagContributionEmpty(t *testing.T) {
	got, err := retagContribution("  ", "abc", "Ada Lovelace")
	if err != nil {
		t.Fatalf("retagContribution: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestRetagContributionMalformed(t *testing.T) {
	if _, err := retagContribution("<svg><line", "abc", "Ada"); err == nil {
		t.Error("expected parse error for malformed markup")
	}
}

func TestRetagContributionTagsPrimitives(t *testing.T) {
	in := `<svg xmlns="http://www.w3.org/2000/svg" width="100" height="50">` +
		`<g id="paths"><title class="grouptitle">me</title>` +
		`<line x1="0" y1="0" x2="5" y2="5"></line>` +
		`<path d="M0 0" class="stroke"></path>` +
		`<rect width="3" height="3"></rect>` +
		`</g></svg>`

	got, err := retagContribution(in, "deadbeef", "Ada Lovelace")
	if err != nil {
		t.Fatalf("retagContribution: %v", err)
	}

	if strings.Contains(got, "<svg") {
		t.Errorf("outer svg wrapper should be dropped: %s", got)
	}
	if strings.Contains(got, "xmlns") {
		t.Errorf("namespace declarations should be stripped: %s", got)
	}
	if !strings.Contains(got, `id="deadbeef"`) {
		t.Errorf("paths group should take the contributor id: %s", got)
	}
	if !strings.Contains(got, `class="panelistdrawing deadbeef"`) {
		t.Errorf("paths group should be classed as a panelist drawing: %s", got)
	}
	if !strings.Contains(got, ">Ada Lovelace</title>") {
		t.Errorf("group title should carry the panelist name: %s", got)
	}
	if !strings.Contains(got, `<line x1="0" y1="0" x2="5" y2="5" class="deadbeef">`) {
		t.Errorf("line should be tagged with the contributor class: %s", got)
	}
	// An existing class is extended, not replaced.
	if !strings.Contains(got, `class="stroke deadbeef"`) {
		t.Errorf("path class should be extended: %s", got)
	}
	// Undocumented shapes pass through untagged.
	if !strings.Contains(got, `<rect width="3" height="3">`) || strings.Contains(got, `<rect width="3" height="3" class=`) {
		t.Errorf("rect should pass through untouched: %s", got)
	}
}

func TestBuildFullSVG(t *testing.T) {
	d := &CombinedDrawing{Body: `<g id="a"></g><g id="b"></g>`, Width: 640, Height: 480}
	got := buildFullSVG(d)
	want := `<svg xmlns="http://www.w3.org/2000/svg" width="640" height="480"><g id="paths"><g id="a"></g><g id="b"></g></g></svg>`
	if got != want {
		t.Errorf("buildFullSVG = %s, want %s", got, want)
	}
}
