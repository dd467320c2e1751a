package qdrantindex

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"

	quarry "github.com/quarrydocs/quarry"
)

func TestFragmentPayloadRoundTrip(t *testing.T) {
	in := quarry.Fragment{
		DocumentID:   "doc-1",
		Content:      "Restart the ingest worker before peak hours.",
		Index:        3,
		CharStart:    120,
		CharEnd:      164,
		Breadcrumbs:  []string{"Runbook", "Operations"},
		ChunkType:    quarry.ChunkProseSection,
		QualityScore: 0.85,
		Completeness: quarry.CompletenessWithIssues,
		HasTitle:     true,
		TokenCount:   11,
	}

	out := fragmentFromPayload(qdrant.NewValueMap(fragmentPayload(in)))

	if out.DocumentID != in.DocumentID || out.Content != in.Content {
		t.Errorf("identity fields lost: %+v", out)
	}
	if out.Index != 3 || out.CharStart != 120 || out.CharEnd != 164 {
		t.Errorf("range fields lost: %+v", out)
	}
	if len(out.Breadcrumbs) != 2 || out.Breadcrumbs[0] != "Runbook" {
		t.Errorf("breadcrumbs = %v", out.Breadcrumbs)
	}
	if out.ChunkType != quarry.ChunkProseSection || out.Completeness != quarry.CompletenessWithIssues {
		t.Errorf("quality labels lost: %+v", out)
	}
	if out.QualityScore != 0.85 || !out.HasTitle || out.TokenCount != 11 {
		t.Errorf("quality fields lost: %+v", out)
	}
}

func TestFragmentFromPayloadNil(t *testing.T) {
	f := fragmentFromPayload(nil)
	if f.DocumentID != "" || f.Content != "" || len(f.Breadcrumbs) != 0 {
		t.Errorf("expected zero fragment, got %+v", f)
	}
}
