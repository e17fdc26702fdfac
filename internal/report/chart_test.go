package report

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

func TestRenderRiskChartDecodes(t *testing.T) {
	data, err := RenderRiskChart([]int{6, 3, 1}, DefaultChartOptions())
	if err != nil {
		t.Fatalf("RenderRiskChart: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 300 {
		t.Fatalf("unexpected size %v", b)
	}
	// The tallest bar is the first one; sample just above the x axis in its slot.
	plotW := 500 - marginLeft - marginRight
	slot := plotW / 3
	x := marginLeft + slot/2
	y := 300 - marginBottom - 2
	r, g, b, _ := img.At(x, y).RGBA()
	want := color.RGBA{0x2c, 0xa0, 0x2c, 0xff}
	wr, wg, wb, _ := want.RGBA()
	if r != wr || g != wg || b != wb {
		t.Fatalf("pixel at (%d,%d) = %v, want green bar", x, y, img.At(x, y))
	}
}

func TestRenderRiskChartIsPure(t *testing.T) {
	a, err := RenderRiskChart([]int{2, 2, 2}, ChartOptions{})
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	b, err := RenderRiskChart([]int{2, 2, 2}, ChartOptions{})
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("identical inputs rendered differently")
	}
}

func TestRenderRiskChartRejectsBadInput(t *testing.T) {
	if _, err := RenderRiskChart(nil, DefaultChartOptions()); err == nil {
		t.Fatalf("expected error for no groups")
	}
	if _, err := RenderRiskChart([]int{1, -1}, DefaultChartOptions()); err == nil {
		t.Fatalf("expected error for negative count")
	}
	if _, err := RenderRiskChart([]int{1, 2, 3}, ChartOptions{Width: 40, Height: 40}); err == nil {
		t.Fatalf("expected error for tiny canvas")
	}
}

func TestTierCounts(t *testing.T) {
	b := risk.NewBatch("x", nil)
	for _, g := range []int{0, 2, 2, 1, 0, 0} {
		b.Records = append(b.Records, risk.Record{RiskGroup: g})
	}
	if _, err := TierCounts(b); err == nil {
		t.Fatalf("expected error for raw batch")
	}
	b.Stage = risk.StageGrouped
	b.Clusters = 3
	counts, err := TierCounts(b)
	if err != nil {
		t.Fatalf("TierCounts: %v", err)
	}
	if counts[0] != 3 || counts[1] != 1 || counts[2] != 2 {
		t.Fatalf("counts = %v", counts)
	}
	b.Records[0].RiskGroup = 5
	if _, err := TierCounts(b); !errors.Is(err, risk.ErrInvalidLabel) {
		t.Fatalf("expected invalid label, got %v", err)
	}
}
