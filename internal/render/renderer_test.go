package render

import (
	"bytes"
	"context"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/okadachi/chess-issue-bot/internal/board"
)

func TestRenderPNGStartPosition(t *testing.T) {
	r := NewBoardRenderer()
	data, err := r.RenderPNG(context.Background(), board.StartFEN)
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a valid PNG: %v", err)
	}
	if img.Bounds().Dx() != totalSize || img.Bounds().Dy() != totalSize {
		t.Fatalf("unexpected dimensions: %v", img.Bounds())
	}
}

func TestRenderPNGFlipsForBlack(t *testing.T) {
	r := NewBoardRenderer()
	ctx := context.Background()
	white, err := r.RenderPNG(ctx, board.StartFEN)
	if err != nil {
		t.Fatalf("white render: %v", err)
	}
	h, err := board.Load(board.StartFEN)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := h.ApplyMove("e2", "e4", ""); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	black, err := r.RenderPNG(ctx, h.FEN())
	if err != nil {
		t.Fatalf("black render: %v", err)
	}
	if bytes.Equal(white, black) {
		t.Fatalf("expected different images for flipped viewpoints")
	}
}

func TestRenderPNGInvalidPosition(t *testing.T) {
	r := NewBoardRenderer()
	if _, err := r.RenderPNG(context.Background(), "junk"); err == nil {
		t.Fatalf("expected error for invalid position")
	}
}

func TestFileAssetStore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileAssetStore(dir, "https://assets.example.test/boards")
	uri, err := s.Put(context.Background(), "42", "m1-board.png", []byte("png"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if uri != "https://assets.example.test/boards/game-42/m1-board.png" {
		t.Fatalf("unexpected locator: %q", uri)
	}
	if _, err := s.Put(context.Background(), "42", "m2-board.png", []byte("png")); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if _, err := filepath.Glob(filepath.Join(dir, "game-42", "*.png")); err != nil {
		t.Fatalf("glob: %v", err)
	}
}
