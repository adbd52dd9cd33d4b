package plot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/czerwonk/pingwatch/store"
)

const DefaultTitle = "Network Latency Over Time"

var (
	ErrEmpty  = errors.New("record store is empty, nothing to plot")
	ErrNoData = errors.New("no latency measured for any target")
)

// Options control the rendered image.
type Options struct {
	Title  string
	Width  vg.Length
	Height vg.Length
	DPI    int
}

func (o *Options) setDefaults() {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.Width <= 0 {
		o.Width = 10 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 5 * vg.Inch
	}
	if o.DPI <= 0 {
		o.DPI = 160
	}
}

// RenderFile reads the record store at in and writes a latency chart to out.
func RenderFile(in, out string, opts Options) error {
	records, err := store.ReadFile(in)
	if err != nil {
		return fmt.Errorf("cannot read record store: %w", err)
	}

	return Render(records, out, opts)
}

// Render draws one line per target into out. The image format is derived
// from the file extension.
func Render(records []store.Record, out string, opts Options) error {
	if len(records) == 0 {
		return ErrEmpty
	}

	series := BuildSeries(records)
	if len(series) == 0 {
		return ErrNoData
	}

	opts.setDefaults()

	p, err := newPlot(series, opts.Title)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(out), ".png") {
		return savePNG(p, out, opts)
	}

	return p.Save(opts.Width, opts.Height, out)
}

func newPlot(series []Series, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (UTC)"
	p.Y.Label.Text = "Latency (ms)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04:05", Time: plot.UTCUnixTime}
	p.Legend.Top = true

	grid := plotter.NewGrid()
	grid.Vertical.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	grid.Horizontal.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(grid)

	for i, s := range series {
		color := plotutil.Color(i)
		inLegend := false

		for _, seg := range s.Segments() {
			xys := make(plotter.XYs, len(seg))
			for j, pt := range seg {
				xys[j].X = float64(pt.Time.UnixNano()) / 1e9
				xys[j].Y = pt.LatencyMS
			}

			var thumb plot.Thumbnailer
			if len(seg) == 1 {
				// isolated sample between two gaps
				sc, err := plotter.NewScatter(xys)
				if err != nil {
					return nil, err
				}
				sc.GlyphStyle.Color = color
				sc.GlyphStyle.Radius = vg.Points(2)
				sc.GlyphStyle.Shape = draw.CircleGlyph{}
				p.Add(sc)
				thumb = sc
			} else {
				l, err := plotter.NewLine(xys)
				if err != nil {
					return nil, err
				}
				l.LineStyle.Color = color
				l.LineStyle.Width = vg.Points(1.5)
				p.Add(l)
				thumb = l
			}

			if !inLegend {
				p.Legend.Add(s.Target, thumb)
				inLegend = true
			}
		}
	}

	return p, nil
}

func savePNG(p *plot.Plot, out string, opts Options) (err error) {
	c := vgimg.NewWith(vgimg.UseWH(opts.Width, opts.Height), vgimg.UseDPI(opts.DPI))
	p.Draw(draw.New(c))

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	_, err = vgimg.PngCanvas{Canvas: c}.WriteTo(f)
	return err
}
