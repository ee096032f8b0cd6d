package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

const promptPrefix = "> "

// draw renders the pane, status line, and prompt. Only the Run goroutine
// touches the screen.
func (w *Window) draw() {
	width, height := w.screen.Size()
	if width <= 0 || height <= 0 {
		return
	}

	w.mu.Lock()
	lines := w.lines
	scroll := w.scroll
	status := w.status
	prompt := string(w.prompt)
	w.mu.Unlock()

	w.screen.Clear()

	paneHeight := height - 2
	if paneHeight > 0 {
		end := max(len(lines)-scroll, 0)
		start := max(end-paneHeight, 0)
		for row, l := range lines[start:end] {
			drawText(w.screen, 0, row, width, l.style, l.text)
		}
	}

	if height >= 2 {
		bar := tcell.StyleDefault.Reverse(true)
		text := w.opts.Title
		if status != "" {
			text += " | " + status
		}
		if scroll > 0 {
			text += " [scrolled]"
		}
		x := drawText(w.screen, 0, height-2, width, bar, text)
		for ; x < width; x++ {
			w.screen.SetContent(x, height-2, ' ', nil, bar)
		}
	}

	x := drawText(w.screen, 0, height-1, width, tcell.StyleDefault, promptPrefix)
	x = drawText(w.screen, x, height-1, width, tcell.StyleDefault, visibleTail(prompt, width-x-1))
	w.screen.ShowCursor(min(x, width-1), height-1)

	w.screen.Show()
}

// drawText draws s at (x, y) clipped to maxX and returns the next column.
func drawText(s tcell.Screen, x, y, maxX int, style tcell.Style, text string) int {
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			continue
		}
		if x+rw > maxX {
			break
		}
		s.SetContent(x, y, r, nil, style)
		x += rw
	}
	return x
}

// visibleTail returns the longest suffix of s that fits in cols cells, so
// the end of a long prompt stays visible while typing.
func visibleTail(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= cols {
		return s
	}
	runes := []rune(s)
	width := 0
	i := len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if width+rw > cols {
			break
		}
		width += rw
		i--
	}
	return string(runes[i:])
}
