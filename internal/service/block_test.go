package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/services"
)

type blockEnv struct {
	pages  *fakePageRepo
	blocks *fakeBlockRepo
	atts   *fakeAttachmentRepo
	svc    services.BlockService
}

func newBlockEnv() *blockEnv {
	env := &blockEnv{
		pages:  newFakePageRepo(),
		blocks: newFakeBlockRepo(),
		atts:   newFakeAttachmentRepo(),
	}
	env.svc = NewBlockService(env.blocks, env.pages, env.atts, testLogger())
	return env
}

func TestCreateBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("appends after the existing blocks", func(t *testing.T) {
		env := newBlockEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})
		env.blocks.add(models.Block{PageID: page.ID, Content: "<p>one</p>", Order: 0})
		env.blocks.add(models.Block{PageID: page.ID, Content: "<p>two</p>", Order: 1})

		blk, err := env.svc.CreateBlock(ctx, &services.CreateBlockRequest{PageID: page.ID, Content: "<p>three</p>"})
		if err != nil {
			t.Fatalf("CreateBlock: %v", err)
		}
		if blk.ID == "" {
			t.Fatal("expected a generated id")
		}
		if blk.Order != 2 {
			t.Errorf("order = %d, want 2", blk.Order)
		}
		if blk.Type != models.BlockTypeText {
			t.Errorf("type = %q, want %q", blk.Type, models.BlockTypeText)
		}
		stored := env.blocks.stored(blk.ID)
		if stored == nil {
			t.Fatal("block not persisted")
		}
		if stored.Content != "<p>three</p>" || stored.SearchText != "three" {
			t.Errorf("stored %q/%q, want <p>three</p>/three", stored.Content, stored.SearchText)
		}
	})

	t.Run("honors an explicit order", func(t *testing.T) {
		env := newBlockEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})
		env.blocks.add(models.Block{PageID: page.ID, Content: "<p>one</p>"})

		blk, err := env.svc.CreateBlock(ctx, &services.CreateBlockRequest{PageID: page.ID, Content: "<p>first</p>", Order: intPtr(0)})
		if err != nil {
			t.Fatalf("CreateBlock: %v", err)
		}
		if blk.Order != 0 {
			t.Errorf("order = %d, want 0", blk.Order)
		}
	})

	t.Run("strips editing artifacts and hostile markup", func(t *testing.T) {
		env := newBlockEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})
		content := `<p class="selected" onclick="steal()">hi <span data-editor-marker="m1">there</span><span class="resize-handle" data-handle="se"></span></p>`

		blk, err := env.svc.CreateBlock(ctx, &services.CreateBlockRequest{PageID: page.ID, Content: content})
		if err != nil {
			t.Fatalf("CreateBlock: %v", err)
		}
		if blk.Content != "<p>hi there</p>" {
			t.Errorf("content = %q, want %q", blk.Content, "<p>hi there</p>")
		}
		if blk.SearchText != "hi there" {
			t.Errorf("search text = %q, want %q", blk.SearchText, "hi there")
		}
	})

	t.Run("drops scripts entirely", func(t *testing.T) {
		env := newBlockEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})

		blk, err := env.svc.CreateBlock(ctx, &services.CreateBlockRequest{PageID: page.ID, Content: "<p>ok</p><script>alert(1)</script>"})
		if err != nil {
			t.Fatalf("CreateBlock: %v", err)
		}
		if blk.Content != "<p>ok</p>" {
			t.Errorf("content = %q, want %q", blk.Content, "<p>ok</p>")
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		env := newBlockEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})

		tests := []struct {
			name string
			req  *services.CreateBlockRequest
			want error
		}{
			{"missing page id", &services.CreateBlockRequest{Content: "<p>x</p>"}, domain.ErrValidation},
			{"unknown page", &services.CreateBlockRequest{PageID: "ghost", Content: "<p>x</p>"}, domain.ErrNotFound},
			{"unknown type", &services.CreateBlockRequest{PageID: page.ID, Type: "canvas", Content: "<p>x</p>"}, domain.ErrValidation},
			{"negative order", &services.CreateBlockRequest{PageID: page.ID, Content: "<p>x</p>", Order: intPtr(-1)}, domain.ErrValidation},
			{"oversized content", &services.CreateBlockRequest{PageID: page.ID, Content: strings.Repeat("a", config.MaxBlockContentBytes+1)}, domain.ErrValidation},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := env.svc.CreateBlock(ctx, tt.req); !errors.Is(err, tt.want) {
					t.Fatalf("err = %v, want %v", err, tt.want)
				}
			})
		}
	})
}

func TestGetBlock(t *testing.T) {
	ctx := context.Background()
	env := newBlockEnv()
	blk := env.blocks.add(models.Block{PageID: "p1", Content: "<p>hello</p>"})
	env.atts.add(models.Attachment{FileName: "pic.png", MimeType: "image/png", BlockID: &blk.ID})

	got, err := env.svc.GetBlock(ctx, blk.ID)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Content != "<p>hello</p>" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].FileName != "pic.png" {
		t.Errorf("attachments = %+v, want pic.png", got.Attachments)
	}

	if _, err := env.svc.GetBlock(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestUpdateBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("sanitizes new content and re-derives search text", func(t *testing.T) {
		env := newBlockEnv()
		blk := env.blocks.add(models.Block{PageID: "p1", Content: "<p>old</p>", SearchText: "old"})

		got, err := env.svc.UpdateBlock(ctx, blk.ID, &services.UpdateBlockRequest{
			Content: strPtr(`<p>new <b onmouseover="x()">bold</b></p>`),
		})
		if err != nil {
			t.Fatalf("UpdateBlock: %v", err)
		}
		if got.Content != "<p>new <b>bold</b></p>" {
			t.Errorf("content = %q, want %q", got.Content, "<p>new <b>bold</b></p>")
		}
		if got.SearchText != "new bold" {
			t.Errorf("search text = %q, want %q", got.SearchText, "new bold")
		}
		if stored := env.blocks.stored(blk.ID); stored.Content != got.Content {
			t.Errorf("stored content = %q, want %q", stored.Content, got.Content)
		}
	})

	t.Run("position-only update keeps the content", func(t *testing.T) {
		env := newBlockEnv()
		blk := env.blocks.add(models.Block{PageID: "p1", Content: "<p>old</p>", SearchText: "old", Order: 0})

		got, err := env.svc.UpdateBlock(ctx, blk.ID, &services.UpdateBlockRequest{Order: intPtr(5)})
		if err != nil {
			t.Fatalf("UpdateBlock: %v", err)
		}
		if got.Order != 5 {
			t.Errorf("order = %d, want 5", got.Order)
		}
		if got.Content != "<p>old</p>" || got.SearchText != "old" {
			t.Errorf("content rewritten: %q/%q", got.Content, got.SearchText)
		}
	})

	t.Run("returns the block with its attachments", func(t *testing.T) {
		env := newBlockEnv()
		blk := env.blocks.add(models.Block{PageID: "p1", Content: "<p>old</p>"})
		env.atts.add(models.Attachment{FileName: "doc.pdf", MimeType: "application/pdf", BlockID: &blk.ID})

		got, err := env.svc.UpdateBlock(ctx, blk.ID, &services.UpdateBlockRequest{Order: intPtr(1)})
		if err != nil {
			t.Fatalf("UpdateBlock: %v", err)
		}
		if len(got.Attachments) != 1 || got.Attachments[0].FileName != "doc.pdf" {
			t.Errorf("attachments = %+v, want doc.pdf", got.Attachments)
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		env := newBlockEnv()
		blk := env.blocks.add(models.Block{PageID: "p1", Content: "<p>old</p>"})

		tests := []struct {
			name string
			req  *services.UpdateBlockRequest
		}{
			{"negative order", &services.UpdateBlockRequest{Order: intPtr(-1)}},
			{"unknown type", &services.UpdateBlockRequest{Type: strPtr("canvas")}},
			{"oversized content", &services.UpdateBlockRequest{Content: strPtr(strings.Repeat("a", config.MaxBlockContentBytes+1))}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := env.svc.UpdateBlock(ctx, blk.ID, tt.req); !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("err = %v, want validation error", err)
				}
			})
		}
	})

	t.Run("unknown block", func(t *testing.T) {
		env := newBlockEnv()
		_, err := env.svc.UpdateBlock(ctx, "ghost", &services.UpdateBlockRequest{Order: intPtr(1)})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestDeleteBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("requires confirmation", func(t *testing.T) {
		env := newBlockEnv()
		blk := env.blocks.add(models.Block{PageID: "p1", Content: "<p>keep</p>"})

		err := env.svc.DeleteBlock(ctx, blk.ID, false)
		var confirm *domain.ConfirmationRequiredError
		if !errors.As(err, &confirm) {
			t.Fatalf("err = %v, want confirmation required", err)
		}
		if confirm.ResourceType != "block" || confirm.ResourceID != blk.ID {
			t.Errorf("confirm = %+v, want block/%s", confirm, blk.ID)
		}
		if env.blocks.stored(blk.ID) == nil {
			t.Error("unconfirmed delete removed the block")
		}
	})

	t.Run("deletes when confirmed", func(t *testing.T) {
		env := newBlockEnv()
		blk := env.blocks.add(models.Block{PageID: "p1", Content: "<p>gone</p>"})

		if err := env.svc.DeleteBlock(ctx, blk.ID, true); err != nil {
			t.Fatalf("DeleteBlock: %v", err)
		}
		if env.blocks.stored(blk.ID) != nil {
			t.Error("block still stored")
		}
	})

	t.Run("unknown block", func(t *testing.T) {
		env := newBlockEnv()
		if err := env.svc.DeleteBlock(ctx, "ghost", true); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestExtractSearchText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"tags stripped", "<p>hello <b>world</b></p>", "hello world"},
		{"whitespace collapsed", "<p>hello\n\t  world</p>", "hello world"},
		{"adjacent elements stay separate words", "<ul><li>one</li><li>two</li></ul>", "one two"},
		{"adjacent paragraphs stay separate words", "<p>first</p><p>second</p>", "first second"},
		{"plain text", "  just   text  ", "just text"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractSearchText(tt.content); got != tt.want {
				t.Errorf("extractSearchText(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}
