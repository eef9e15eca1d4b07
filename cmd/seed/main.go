package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"arbor/internal/config"
	"arbor/internal/domain/services"
	"arbor/internal/repository/postgres"
	"arbor/internal/repository/postgres/migrations"
	"arbor/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only run migrations, don't seed pages (for use with shell scripts)")
	clearData := flag.Bool("clear-data", false, "Clear all pages, blocks and attachments (keep schema)")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("🚫 BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *clearData {
		log.Printf("🧹 Clearing data only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	} else if *schemaOnly {
		log.Printf("🏗️  Setting up schema only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	} else {
		log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	// Create database connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Drop tables if requested
	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	// Run migrations to ensure tables exist
	log.Println("📋 Ensuring database schema is up to date...")
	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("✅ Schema ready")

	// Exit early if schema-only mode
	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	// Exit early if clear-data mode (just clear and exit)
	if *clearData {
		log.Println("🧹 Clearing existing pages, blocks and attachments...")
		if err := clearWikiData(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to clear data: %v", err)
		}
		log.Println("✅ Data cleared successfully")
		return
	}

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	pageRepo := postgres.NewPageRepository(repoConfig)
	blockRepo := postgres.NewBlockRepository(repoConfig)
	attachmentRepo := postgres.NewAttachmentRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	// Create services
	pageService := service.NewPageService(pageRepo, blockRepo, attachmentRepo, txManager, logger)
	blockService := service.NewBlockService(blockRepo, pageRepo, attachmentRepo, logger)

	// Clear existing data so the seed is repeatable
	log.Println("⚠️  Clearing existing pages, blocks and attachments...")
	if err := clearWikiData(ctx, pool, tables); err != nil {
		log.Printf("Warning: Could not clear data: %v", err)
	}

	// Seed pages
	log.Println("📝 Seeding pages with block content...")

	created := make(map[string]string) // title -> page id
	total := 0
	for _, root := range seedPages() {
		n, err := createPageTree(ctx, pageService, blockService, root, nil, created)
		if err != nil {
			log.Printf("❌ Failed to create page '%s': %v", root.title, err)
			continue
		}
		total += n
	}

	// Second pass: a block of cross-page links, now that ids exist
	if homeID, ok := created["Welcome"]; ok {
		content := "<p>Jump straight to " +
			link(created["Home Lab"], "the home lab notes") + " or " +
			link(created["Sourdough Bread"], "the sourdough recipe") + ".</p>"
		_, err := blockService.CreateBlock(ctx, &services.CreateBlockRequest{
			PageID:  homeID,
			Content: content,
		})
		if err != nil {
			log.Printf("❌ Failed to create link block: %v", err)
		}
	}

	log.Printf("🎉 Seeding complete! (%d pages)", total)
}

// link renders an in-app anchor to a seeded page.
func link(pageID, label string) string {
	return `<a href="/pages/` + pageID + `">` + label + `</a>`
}

// createPageTree creates a page, its blocks and its children, recording
// every created page in created by title. Returns the number of pages made.
func createPageTree(
	ctx context.Context,
	pages services.PageService,
	blocks services.BlockService,
	node seedPage,
	parentID *string,
	created map[string]string,
) (int, error) {
	page, err := pages.CreatePage(ctx, &services.CreatePageRequest{
		Title:    node.title,
		ParentID: parentID,
	})
	if err != nil {
		return 0, err
	}
	created[node.title] = page.ID
	log.Printf("✅ Created page: %s (slug: %s)", node.title, page.Slug)

	for _, content := range node.blocks {
		if _, err := blocks.CreateBlock(ctx, &services.CreateBlockRequest{
			PageID:  page.ID,
			Content: content,
		}); err != nil {
			log.Printf("❌ Failed to create block on '%s': %v", node.title, err)
		}
	}

	count := 1
	for _, child := range node.children {
		n, err := createPageTree(ctx, pages, blocks, child, &page.ID, created)
		if err != nil {
			log.Printf("❌ Failed to create page '%s': %v", child.title, err)
			continue
		}
		count += n
	}
	return count, nil
}

// dropAllTables drops all tables in reverse order (to respect foreign keys).
// The migration bookkeeping table goes too so migrations re-run cleanly.
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	tableNames := []string{
		tables.Attachments,
		tables.Blocks,
		tables.Pages,
		"schema_migrations",
	}

	for _, table := range tableNames {
		dropSQL := "DROP TABLE IF EXISTS " + table + " CASCADE"
		if _, err := pool.Exec(ctx, dropSQL); err != nil {
			return err
		}
		log.Printf("  ✓ Dropped %s", table)
	}

	return nil
}

// clearWikiData clears all pages, blocks and attachments
func clearWikiData(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	// Attachments and blocks reference pages, so they go first
	for _, table := range []string{tables.Attachments, tables.Blocks, tables.Pages} {
		if _, err := pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

type seedPage struct {
	title    string
	blocks   []string
	children []seedPage
}

func seedPages() []seedPage {
	return []seedPage{
		{
			title: "Welcome",
			blocks: []string{
				`<p>This wiki is the family knowledge base: <strong>projects</strong>, ` +
					`<em>travel plans</em> and the recipes nobody is allowed to lose. ` +
					`Click any block to edit it in place.</p>`,
				`<p>Select some text to bring up the formatting toolbar. It does ` +
					`<strong>bold</strong>, <em>italic</em>, <u>underline</u>, <s>strikethrough</s>, ` +
					`<span style="color: #c0392b">colors</span> and ` +
					`<span style="font-size: 20px">sizes</span>.</p>`,
				`<blockquote>Paste an image straight into a block, drag it where it ` +
					`should sit, and pick how the text wraps around it.</blockquote>`,
			},
		},
		{
			title: "Projects",
			blocks: []string{
				`<p>Anything with more than two steps gets a page here.</p>`,
			},
			children: []seedPage{
				{
					title: "Home Lab",
					blocks: []string{
						`<h2>Rack contents</h2><ul>` +
							`<li>Router with failover to the LTE modem</li>` +
							`<li>NAS with the photo archive (mirrored)</li>` +
							`<li>A fanless mini PC running this wiki</li></ul>`,
						`<p>Next up: move the reverse proxy off the NAS, and label ` +
							`the patch cables <strong>before</strong> anything else breaks.</p>`,
					},
				},
				{
					title: "Reading List",
					blocks: []string{
						`<ol><li><em>The Mythical Man-Month</em> — re-read, it has been a decade</li>` +
							`<li><em>Designing Data-Intensive Applications</em></li>` +
							`<li>That networking book Sam recommended ` +
							`(<a href="https://example.com/books">link</a>)</li></ol>`,
					},
				},
			},
		},
		{
			title: "Travel",
			blocks: []string{
				`<p>Plans, packing lists and notes from past trips.</p>`,
			},
			children: []seedPage{
				{
					title: "Japan 2026",
					blocks: []string{
						`<h2>Itinerary</h2><p>Two weeks in October: Tokyo, then the ` +
							`Kumano Kodo trail, then Kyoto. Rail pass covers everything ` +
							`except the bus legs.</p>`,
						`<h3>Still to book</h3><ul><li>Ryokan near Nachi Falls</li>` +
							`<li>Luggage forwarding between Tokyo and Tanabe</li></ul>`,
					},
				},
			},
		},
		{
			title: "Recipes",
			blocks: []string{
				`<p>Tested recipes only. Experiments stay in the notebook until ` +
					`they work twice.</p>`,
			},
			children: []seedPage{
				{
					title: "Sourdough Bread",
					blocks: []string{
						`<h2>Ingredients</h2><ul><li>500 g bread flour</li>` +
							`<li>375 g water</li><li>100 g ripe starter</li>` +
							`<li>10 g salt</li></ul>`,
						`<h2>Method</h2><ol><li>Mix flour and water, rest 1 hour</li>` +
							`<li>Add starter and salt, knead briefly</li>` +
							`<li>Fold every 45 minutes for 4 hours</li>` +
							`<li>Shape, proof overnight in the fridge</li>` +
							`<li>Bake at 240 °C in the dutch oven, 25 min lid on, 20 off</li></ol>`,
						`<blockquote><em>The dough is ready when it jiggles like a ` +
							`water balloon.</em> Do not rush the proof.</blockquote>`,
					},
				},
			},
		},
	}
}
