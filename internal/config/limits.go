package config

const (
	// MaxPageTitleLength is the maximum length for page titles.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255) and provide
	// reasonable UX (titles should be short and descriptive).
	MaxPageTitleLength = 255

	// MaxBlockContentBytes is the maximum size of a single block's
	// HTML content. A block is one editable unit, not a whole page;
	// anything larger should be split across blocks.
	MaxBlockContentBytes = 1 << 20

	// MaxUploadBytes is the per-request ceiling for multipart uploads.
	MaxUploadBytes = 100 << 20

	// MaxFilesPerUpload caps how many files one upload request may carry.
	MaxFilesPerUpload = 20

	// MaxFileNameLength is the maximum length for original filenames.
	// Stored names are generated and never approach this.
	MaxFileNameLength = 255

	// MaxSearchTermLength bounds the substring search input.
	MaxSearchTermLength = 200
)
