package report

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

// ChartOptions controls the rendered bar chart.
type ChartOptions struct {
	Width  int
	Height int
	Title  string
	YLabel string
	// Labels names each bar; missing entries fall back to risk.TierLabel.
	Labels []string
}

// DefaultChartOptions returns the standard risk distribution chart layout.
func DefaultChartOptions() ChartOptions {
	return ChartOptions{
		Width:  500,
		Height: 300,
		Title:  "Employees by Risk Group",
		YLabel: "Number of Employees",
	}
}

var (
	background = color.RGBA{0xff, 0xff, 0xff, 0xff}
	ink        = color.RGBA{0x20, 0x20, 0x20, 0xff}
	gridColor  = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	barColors  = []color.RGBA{
		{0x2c, 0xa0, 0x2c, 0xff}, // green
		{0xff, 0x8c, 0x00, 0xff}, // orange
		{0xd6, 0x27, 0x28, 0xff}, // red
	}
	otherBar = color.RGBA{0x80, 0x80, 0x80, 0xff}
)

const (
	marginLeft   = 48
	marginRight  = 16
	marginTop    = 32
	marginBottom = 36
)

// TierCounts returns the number of records in each risk group of a grouped batch.
func TierCounts(b *risk.Batch) ([]int, error) {
	if b == nil {
		return nil, errors.New("tier counts: batch is nil")
	}
	if b.Stage < risk.StageGrouped {
		return nil, fmt.Errorf("tier counts: batch is %s, needs to be %s first", b.Stage, risk.StageGrouped)
	}
	counts := make([]int, b.Clusters)
	for _, r := range b.Records {
		if r.RiskGroup < 0 || r.RiskGroup >= len(counts) {
			return nil, &risk.InvalidLabelError{Label: r.RiskGroup}
		}
		counts[r.RiskGroup]++
	}
	return counts, nil
}

// RenderRiskChart draws one bar per group count and returns PNG bytes.
func RenderRiskChart(counts []int, opt ChartOptions) ([]byte, error) {
	if len(counts) == 0 {
		return nil, errors.New("render chart: no groups")
	}
	def := DefaultChartOptions()
	if opt.Width <= 0 {
		opt.Width = def.Width
	}
	if opt.Height <= 0 {
		opt.Height = def.Height
	}
	plotW := opt.Width - marginLeft - marginRight
	plotH := opt.Height - marginTop - marginBottom
	if plotW < len(counts)*4 || plotH < 20 {
		return nil, fmt.Errorf("render chart: %dx%d is too small", opt.Width, opt.Height)
	}
	maxCount := 0
	for i, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("render chart: negative count for group %d", i)
		}
		if c > maxCount {
			maxCount = c
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, opt.Width, opt.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	x0, y0 := marginLeft, marginTop+plotH
	// Axes and a light grid at quarter steps.
	for q := 1; q <= 4; q++ {
		y := y0 - plotH*q/4
		fillRect(img, x0+1, y, x0+plotW, y+1, gridColor)
		if maxCount > 0 {
			label := strconv.Itoa((maxCount*q + 3) / 4)
			drawText(img, x0-6-textWidth(label), y+4, label)
		}
	}
	fillRect(img, x0, marginTop, x0+1, y0+1, ink)
	fillRect(img, x0, y0, x0+plotW, y0+1, ink)
	drawText(img, x0-6-textWidth("0"), y0+4, "0")

	slot := plotW / len(counts)
	barW := slot * 3 / 5
	for i, c := range counts {
		left := x0 + i*slot + (slot-barW)/2
		h := 0
		if maxCount > 0 {
			h = plotH * c / maxCount
		}
		col := otherBar
		if i < len(barColors) {
			col = barColors[i]
		}
		fillRect(img, left, y0-h, left+barW, y0, col)

		val := strconv.Itoa(c)
		drawText(img, left+(barW-textWidth(val))/2, y0-h-4, val)

		label := risk.TierLabel(i)
		if i < len(opt.Labels) && opt.Labels[i] != "" {
			label = opt.Labels[i]
		}
		drawText(img, left+(barW-textWidth(label))/2, y0+16, label)
	}

	if opt.Title != "" {
		drawText(img, (opt.Width-textWidth(opt.Title))/2, marginTop-14, opt.Title)
	}
	if opt.YLabel != "" {
		drawText(img, 4, opt.Height-6, opt.YLabel)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	draw.Draw(img, image.Rect(x0, y0, x1, y1), &image.Uniform{c}, image.Point{}, draw.Src)
}

func drawText(img *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(ink),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Round()
}
