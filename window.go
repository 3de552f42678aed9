package orthoveg

import (
	"context"
	"iter"

	"github.com/airbusgeo/godal"
)

// 影像上的矩形读写窗口（像元坐标）
type Window struct {
	Row, Col      int
	Height, Width int
}

func (w Window) Size() int {
	return w.Height * w.Width
}

// 影像分块布局：按原生块大小切分，边缘块裁剪到影像范围内
type Layout struct {
	Width, Height           int
	BlockWidth, BlockHeight int
}

func layoutOf(ds *godal.Dataset) Layout {
	st := ds.Structure()
	return Layout{
		Width:       st.SizeX,
		Height:      st.SizeY,
		BlockWidth:  st.BlockSizeX,
		BlockHeight: st.BlockSizeY,
	}
}

func (l Layout) block() (bw, bh int) {
	bw, bh = l.BlockWidth, l.BlockHeight
	if bw <= 0 || bw > l.Width {
		bw = l.Width
	}
	if bh <= 0 || bh > l.Height {
		bh = l.Height
	}
	return
}

// 按行优先顺序惰性生成窗口，可重复遍历
func (l Layout) Windows() iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if l.Width <= 0 || l.Height <= 0 {
			return
		}
		bw, bh := l.block()
		for row := 0; row < l.Height; row += bh {
			h := min(bh, l.Height-row)
			for col := 0; col < l.Width; col += bw {
				if !yield(Window{Row: row, Col: col, Height: h, Width: min(bw, l.Width-col)}) {
					return
				}
			}
		}
	}
}

func (l Layout) Count() int {
	if l.Width <= 0 || l.Height <= 0 {
		return 0
	}
	bw, bh := l.block()
	return ((l.Width + bw - 1) / bw) * ((l.Height + bh - 1) / bh)
}

// 单个窗口的最大像元数，用于预分配可复用的缓冲区
func (l Layout) MaxWindowSize() int {
	if l.Width <= 0 || l.Height <= 0 {
		return 0
	}
	bw, bh := l.block()
	return bw * bh
}

// 带取消检查的窗口遍历，fn返回错误即中止
func (l Layout) walk(ctx context.Context, fn func(Window) error) (err error) {
	for w := range l.Windows() {
		if err = ctx.Err(); err != nil {
			return
		}
		if err = fn(w); err != nil {
			return
		}
	}
	return
}
