package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/services"
)

type attachmentEnv struct {
	atts   *fakeAttachmentRepo
	blocks *fakeBlockRepo
	pages  *fakePageRepo
	store  *fakeFileStore
	tx     *fakeTxManager
	svc    services.AttachmentService
}

func newAttachmentEnv() *attachmentEnv {
	env := &attachmentEnv{
		atts:   newFakeAttachmentRepo(),
		blocks: newFakeBlockRepo(),
		pages:  newFakePageRepo(),
		store:  newFakeFileStore(),
		tx:     &fakeTxManager{},
	}
	blockSvc := NewBlockService(env.blocks, env.pages, env.atts, testLogger())
	env.svc = NewAttachmentService(env.atts, blockSvc, env.store, env.tx, testLogger())
	return env
}

func fileUpload(name, content string) services.FileUpload {
	return services.FileUpload{FileName: name, Size: int64(len(content)), Data: strings.NewReader(content)}
}

func TestUploadAttachments(t *testing.T) {
	ctx := context.Background()

	t.Run("stores bytes then rows", func(t *testing.T) {
		env := newAttachmentEnv()
		files := []services.FileUpload{
			fileUpload("pic.png", "data"),
			fileUpload("notes.txt", "notes"),
		}

		got, err := env.svc.Upload(ctx, nil, files)
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].ID == "" {
			t.Fatal("expected a generated id")
		}
		if got[0].FileName != "pic.png" || got[0].MimeType != "image/png" || got[0].ByteSize != 4 {
			t.Errorf("first = %+v, want pic.png image/png 4 bytes", got[0])
		}
		if got[1].MimeType != "application/octet-stream" {
			t.Errorf("second mime = %q, want application/octet-stream", got[1].MimeType)
		}
		if got[0].BlockID != nil {
			t.Errorf("block = %q, want unowned", *got[0].BlockID)
		}
		if env.tx.calls != 1 {
			t.Errorf("tx calls = %d, want 1", env.tx.calls)
		}
		if len(env.store.files) != 2 {
			t.Errorf("stored files = %d, want 2", len(env.store.files))
		}
		if _, err := env.svc.Get(ctx, got[0].ID); err != nil {
			t.Errorf("row not persisted: %v", err)
		}
	})

	t.Run("strips client paths from names", func(t *testing.T) {
		env := newAttachmentEnv()
		got, err := env.svc.Upload(ctx, nil, []services.FileUpload{fileUpload("../../secret/pic.png", "data")})
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if got[0].FileName != "pic.png" {
			t.Errorf("file name = %q, want pic.png", got[0].FileName)
		}
	})

	t.Run("attaches files to the owning block", func(t *testing.T) {
		env := newAttachmentEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})
		blk := env.blocks.add(models.Block{PageID: page.ID, Content: "<p>x</p>"})

		got, err := env.svc.Upload(ctx, &blk.ID, []services.FileUpload{fileUpload("pic.png", "data")})
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if got[0].BlockID == nil || *got[0].BlockID != blk.ID {
			t.Errorf("block = %v, want %s", got[0].BlockID, blk.ID)
		}
	})

	t.Run("empty block id means unowned", func(t *testing.T) {
		env := newAttachmentEnv()
		got, err := env.svc.Upload(ctx, strPtr(""), []services.FileUpload{fileUpload("pic.png", "data")})
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if got[0].BlockID != nil {
			t.Errorf("block = %q, want unowned", *got[0].BlockID)
		}
	})

	t.Run("rejects an unknown block before touching disk", func(t *testing.T) {
		env := newAttachmentEnv()
		_, err := env.svc.Upload(ctx, strPtr("ghost"), []services.FileUpload{fileUpload("pic.png", "data")})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
		if env.store.saves != 0 {
			t.Errorf("saves = %d, want 0", env.store.saves)
		}
	})

	t.Run("sweeps stored bytes when the commit fails", func(t *testing.T) {
		env := newAttachmentEnv()
		env.atts.createErrAt = 1

		_, err := env.svc.Upload(ctx, nil, []services.FileUpload{
			fileUpload("pic.png", "data"),
			fileUpload("notes.txt", "notes"),
		})
		if err == nil {
			t.Fatal("expected commit failure")
		}
		if len(env.store.files) != 0 {
			t.Errorf("stored files = %d, want 0 after sweep", len(env.store.files))
		}
		if len(env.store.deleted) != 2 {
			t.Errorf("swept = %v, want both stored names", env.store.deleted)
		}
	})

	t.Run("sweeps earlier files when a later save fails", func(t *testing.T) {
		env := newAttachmentEnv()
		env.store.saveErrAt = 2

		_, err := env.svc.Upload(ctx, nil, []services.FileUpload{
			fileUpload("pic.png", "data"),
			fileUpload("notes.txt", "notes"),
		})
		if err == nil {
			t.Fatal("expected save failure")
		}
		if len(env.store.files) != 0 {
			t.Errorf("stored files = %d, want 0 after sweep", len(env.store.files))
		}
		if env.tx.calls != 0 {
			t.Errorf("tx calls = %d, want 0", env.tx.calls)
		}
	})

	t.Run("rejects bad batches before any byte hits disk", func(t *testing.T) {
		tooMany := make([]services.FileUpload, config.MaxFilesPerUpload+1)
		for i := range tooMany {
			tooMany[i] = fileUpload(fmt.Sprintf("f%d.txt", i), "x")
		}

		tests := []struct {
			name  string
			files []services.FileUpload
		}{
			{"no files", nil},
			{"too many files", tooMany},
			{"missing name", []services.FileUpload{fileUpload("", "x")}},
			{"oversized name", []services.FileUpload{fileUpload(strings.Repeat("x", config.MaxFileNameLength+1)+".txt", "x")}},
			{"no data", []services.FileUpload{{FileName: "empty.txt", Size: 1}}},
			{"oversized file", []services.FileUpload{{FileName: "big.bin", Size: config.MaxUploadBytes + 1, Data: strings.NewReader("x")}}},
			{"oversized batch", []services.FileUpload{
				{FileName: "a.bin", Size: config.MaxUploadBytes, Data: strings.NewReader("x")},
				{FileName: "b.bin", Size: 1, Data: strings.NewReader("x")},
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := newAttachmentEnv()
				_, err := env.svc.Upload(ctx, nil, tt.files)
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("err = %v, want validation error", err)
				}
				if env.store.saves != 0 {
					t.Errorf("saves = %d, want 0", env.store.saves)
				}
			})
		}
	})
}

func TestGetAttachment(t *testing.T) {
	ctx := context.Background()
	env := newAttachmentEnv()
	att := env.atts.add(models.Attachment{FileName: "pic.png", MimeType: "image/png", StoredName: "stored-1"})

	got, err := env.svc.Get(ctx, att.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FileName != "pic.png" {
		t.Errorf("file name = %q, want pic.png", got.FileName)
	}

	if _, err := env.svc.Get(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestOpenAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips bytes", func(t *testing.T) {
		env := newAttachmentEnv()
		got, err := env.svc.Upload(ctx, nil, []services.FileUpload{fileUpload("pic.png", "data")})
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}

		att, rc, err := env.svc.Open(ctx, got[0].ID)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer rc.Close()
		if att.FileName != "pic.png" {
			t.Errorf("file name = %q, want pic.png", att.FileName)
		}
		raw, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(raw) != "data" {
			t.Errorf("bytes = %q, want data", raw)
		}
	})

	t.Run("missing bytes map to not found", func(t *testing.T) {
		env := newAttachmentEnv()
		att := env.atts.add(models.Attachment{FileName: "gone.txt", StoredName: "ghost"})

		if _, _, err := env.svc.Open(ctx, att.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})

	t.Run("unknown attachment", func(t *testing.T) {
		env := newAttachmentEnv()
		if _, _, err := env.svc.Open(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestDeleteAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the row and the bytes", func(t *testing.T) {
		env := newAttachmentEnv()
		got, err := env.svc.Upload(ctx, nil, []services.FileUpload{fileUpload("pic.png", "data")})
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}

		if err := env.svc.Delete(ctx, got[0].ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := env.svc.Get(ctx, got[0].ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("row still there: %v", err)
		}
		if len(env.store.files) != 0 {
			t.Errorf("stored files = %d, want 0", len(env.store.files))
		}
	})

	t.Run("strips the inline wrapper from the owning block", func(t *testing.T) {
		env := newAttachmentEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})
		att := env.atts.add(models.Attachment{
			FileName:   "pic.png",
			StoredName: "stored-img",
			MimeType:   "image/png",
			BlockID:    strPtr("blk-img"),
		})
		env.store.files["stored-img"] = []byte("data")

		content := `<p>before</p>` +
			`<span class="inline-image-wrapper" contenteditable="false" data-file-id="` + att.ID + `" data-wrap="left">` +
			`<img src="/api/files/` + att.ID + `" alt="pic.png"/></span>` +
			`<p>after</p>`
		env.blocks.add(models.Block{ID: "blk-img", PageID: page.ID, Content: content})

		if err := env.svc.Delete(ctx, att.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		stored := env.blocks.stored("blk-img")
		if stored.Content != "<p>before</p><p>after</p>" {
			t.Errorf("content = %q, want wrapper stripped", stored.Content)
		}
		if stored.SearchText != "before after" {
			t.Errorf("search text = %q, want %q", stored.SearchText, "before after")
		}
		if _, err := env.svc.Get(ctx, att.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("row still there: %v", err)
		}
		if len(env.store.deleted) == 0 || env.store.deleted[0] != "stored-img" {
			t.Errorf("swept = %v, want [stored-img]", env.store.deleted)
		}
	})

	t.Run("leaves the block alone when nothing references the file", func(t *testing.T) {
		env := newAttachmentEnv()
		page := env.pages.add(models.Page{Title: "Home", Slug: "home"})
		blk := env.blocks.add(models.Block{PageID: page.ID, Content: "<p>plain</p>"})
		att := env.atts.add(models.Attachment{FileName: "doc.pdf", StoredName: "stored-doc", BlockID: &blk.ID})

		if err := env.svc.Delete(ctx, att.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if env.blocks.updates != 0 {
			t.Errorf("block updates = %d, want 0", env.blocks.updates)
		}
		if env.blocks.stored(blk.ID).Content != "<p>plain</p>" {
			t.Errorf("content rewritten: %q", env.blocks.stored(blk.ID).Content)
		}
	})

	t.Run("owning block already gone", func(t *testing.T) {
		env := newAttachmentEnv()
		att := env.atts.add(models.Attachment{FileName: "pic.png", StoredName: "stored-1", BlockID: strPtr("vanished")})

		if err := env.svc.Delete(ctx, att.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := env.svc.Get(ctx, att.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("row still there: %v", err)
		}
	})

	t.Run("unknown attachment", func(t *testing.T) {
		env := newAttachmentEnv()
		if err := env.svc.Delete(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}
