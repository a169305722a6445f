// Package render produces the board snapshot PNG embedded in the canonical
// thread message, and stores it somewhere the tracker can link to.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/okadachi/chess-issue-bot/internal/board"
	"github.com/okadachi/chess-issue-bot/internal/game"
)

const (
	squareSize = 64
	margin     = 24
	boardSize  = squareSize * 8
	totalSize  = boardSize + margin*2
)

var (
	lightSquare = color.RGBA{240, 217, 181, 255}
	darkSquare  = color.RGBA{181, 136, 99, 255}
	background  = color.RGBA{38, 36, 33, 255}
	labelColor  = color.RGBA{222, 222, 222, 255}
)

// BoardRenderer rasterizes a position into PNG bytes.
type BoardRenderer interface {
	RenderPNG(ctx context.Context, fen string) ([]byte, error)
}

type pngBoardRenderer struct{}

func NewBoardRenderer() BoardRenderer { return &pngBoardRenderer{} }

// RenderPNG draws the position. The board is oriented for the side to
// move: rank 1 at the bottom for white, rank 8 at the bottom for black,
// matching how each player would set up a physical board.
func (r *pngBoardRenderer) RenderPNG(ctx context.Context, fen string) ([]byte, error) {
	h, err := board.Load(fen)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	flipped := h.SideToMove() == game.Black
	img := image.NewRGBA(image.Rect(0, 0, totalSize, totalSize))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, imagedraw.Src)

	squareMap := h.Board().SquareMap()
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			file, rank := orient(col, row, flipped)
			sq := nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
			x := margin + col*squareSize
			y := margin + row*squareSize
			rect := image.Rect(x, y, x+squareSize, y+squareSize)

			clr := lightSquare
			if (file+rank)%2 == 0 {
				clr = darkSquare
			}
			imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Src)

			piece := squareMap[sq]
			if piece == nchess.NoPiece {
				continue
			}
			pimg, err := renderPieceImage(piece, squareSize)
			if err != nil {
				return nil, err
			}
			imagedraw.Draw(img, rect, pimg, image.Point{}, imagedraw.Over)
		}
	}

	drawCoordinates(img, flipped)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// orient maps a canvas column/row to the file/rank shown there.
func orient(col, row int, flipped bool) (file, rank int) {
	if flipped {
		return 7 - col, row
	}
	return col, 7 - row
}

func drawCoordinates(img *image.RGBA, flipped bool) {
	face := basicfont.Face7x13
	for i := 0; i < 8; i++ {
		file, rank := orient(i, i, flipped)
		fileLabel := string(rune('A' + file))
		rankLabel := string(rune('1' + rank))

		cx := margin + i*squareSize + squareSize/2 - 3
		drawLabel(img, face, fileLabel, cx, margin-8)
		drawLabel(img, face, fileLabel, cx, margin+boardSize+16)

		cy := margin + i*squareSize + squareSize/2 + 4
		drawLabel(img, face, rankLabel, margin-16, cy)
		drawLabel(img, face, rankLabel, margin+boardSize+8, cy)
	}
}

func drawLabel(img *image.RGBA, face font.Face, text string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
