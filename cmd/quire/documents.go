package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/hyperjump/quire/internal/cli"
	"github.com/hyperjump/quire/internal/client"
	"github.com/hyperjump/quire/internal/doctree"
	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/extract"
	"github.com/hyperjump/quire/internal/importer"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/richtext"
	"github.com/hyperjump/quire/internal/session"
	"github.com/hyperjump/quire/internal/sharelink"
	"github.com/spf13/cobra"
)

// withLibrary runs fn with a client and the resolved library.
func (a *app) withLibrary(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client, lib models.Library) error) error {
	ctx := cmd.Context()
	c := a.client()
	lib, err := a.resolveLibrary(ctx, c)
	if err != nil {
		return err
	}
	return fn(ctx, c, lib)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 1 {
		return 0, domain.Invalid("invalid document id %q", s)
	}
	return id, nil
}

// parseParent reads a parent argument; "root" and "0" mean no parent.
func parseParent(s string) (*int64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "root", "0":
		return nil, nil
	}
	id, err := parseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (a *app) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the document tree of a library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				docs, err := c.GetTree(ctx, lib.ID())
				if err != nil {
					return err
				}
				return cli.WriteTree(a.stdout, doctree.BuildTree(docs), nil, a.format)
			})
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				doc, err := c.GetDocument(ctx, lib.ID(), id)
				if err != nil {
					return err
				}
				var path []models.Document
				if docs, err := c.GetTree(ctx, lib.ID()); err == nil {
					path = doctree.BuildTree(docs).Path(id)
				}
				var render cli.Renderer
				if !raw {
					render = renderMarkdown
				}
				return cli.WriteDocumentWith(a.stdout, doc, path, a.format, render)
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal styling")
	return cmd
}

// renderMarkdown styles markdown for the terminal. Without a terminal the
// output stays plain text.
func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func (a *app) newCmd() *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "new [title]",
		Short: "Create a document",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				title = session.DefaultTitle
			}
			parentID, err := parseParent(parent)
			if err != nil {
				return err
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				id, err := c.CreateDocument(ctx, lib.ID(), models.CreateDocumentRequest{Title: title, ParentID: parentID})
				if err != nil {
					return err
				}
				return cli.WriteResult(a.stdout, fmt.Sprintf("created document %d", id), models.CreateDocumentResponse{ID: id}, a.format)
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent document id (default: root)")
	return cmd
}

func (a *app) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change a document's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return session.ErrEmptyTitle
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				doc, err := c.UpdateDocument(ctx, lib.ID(), models.UpdateDocumentRequest{ID: id, Title: &title})
				if err != nil {
					return err
				}
				return cli.WriteResult(a.stdout, fmt.Sprintf("renamed document %d to %q", id, doc.Title), doc, a.format)
			})
		},
	}
}

func (a *app) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <parent-id|root>",
		Short: "Move a document under another one, or to the root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			parentID, err := parseParent(args[1])
			if err != nil {
				return err
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				docs, err := c.GetTree(ctx, lib.ID())
				if err != nil {
					return err
				}
				if !doctree.BuildTree(docs).CanReparent(id, parentID) {
					return fmt.Errorf("move %d: %w", id, doctree.ErrInvalidMove)
				}
				if err := c.UpdateParent(ctx, lib.ID(), id, parentID); err != nil {
					return err
				}
				target := "the root"
				if parentID != nil {
					target = fmt.Sprintf("document %d", *parentID)
				}
				return cli.WriteResult(a.stdout, fmt.Sprintf("moved document %d under %s", id, target),
					models.UpdateParentRequest{ID: id, ParentID: parentID}, a.format)
			})
		},
	}
}

func (a *app) editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a document as markdown in $EDITOR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				return a.editDocument(ctx, c, lib.ID(), id)
			})
		},
	}
}

func (a *app) editor() []string {
	for _, name := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(a.getenv(name)); len(fields) > 0 {
			return fields
		}
	}
	return []string{"vi"}
}

// editDocument round-trips the document body through a markdown temp file.
// Nothing is sent when the file comes back unchanged.
func (a *app) editDocument(ctx context.Context, c *client.Client, library string, id int64) error {
	doc, err := c.GetDocument(ctx, library, id)
	if err != nil {
		return err
	}
	text, err := richtext.ToMarkdown(doc.Content)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp("", "quire-*.md")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	argv := append(a.editor(), f.Name())
	ed := exec.CommandContext(ctx, argv[0], argv[1:]...)
	ed.Stdin, ed.Stdout, ed.Stderr = os.Stdin, a.stdout, a.stderr
	if err := ed.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", argv[0], err)
	}

	edited, err := os.ReadFile(f.Name())
	if err != nil {
		return err
	}
	if bytes.Equal(bytes.TrimSpace(edited), bytes.TrimSpace([]byte(text))) {
		return cli.WriteResult(a.stdout, "no changes", doc, a.format)
	}
	content, err := richtext.FromMarkdown(edited)
	if err != nil {
		return err
	}
	updated, err := c.UpdateDocument(ctx, library, models.UpdateDocumentRequest{ID: id, Content: &content})
	if err != nil {
		return err
	}
	return cli.WriteResult(a.stdout, fmt.Sprintf("saved document %d", id), updated, a.format)
}

func (a *app) uploadCmd() *cobra.Command {
	var appendTag bool
	cmd := &cobra.Command{
		Use:   "upload <id> <image>",
		Short: "Upload an image for a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				res, err := c.UploadImage(ctx, lib.ID(), id, filepath.Base(args[1]), f)
				if err != nil {
					return err
				}
				tag := richtext.ImageTag(lib.ID(), res.Filename)
				if appendTag {
					doc, err := c.GetDocument(ctx, lib.ID(), id)
					if err != nil {
						return err
					}
					content := doc.Content + tag
					if _, err := c.UpdateDocument(ctx, lib.ID(), models.UpdateDocumentRequest{ID: id, Content: &content}); err != nil {
						return err
					}
				}
				return cli.WriteResult(a.stdout, fmt.Sprintf("uploaded %s\n%s", res.Filename, tag), res, a.format)
			})
		},
	}
	cmd.Flags().BoolVar(&appendTag, "append", false, "append the image to the end of the document")
	return cmd
}

func (a *app) shareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <id>",
		Short: "Print the read-only and edit links of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				if _, err := c.GetDocument(ctx, lib.ID(), id); err != nil {
					return err
				}
				base := a.cfg.Client.BaseURL
				ro, err := sharelink.ReadOnlyURL(base, lib.ID(), id)
				if err != nil {
					return err
				}
				edit, err := sharelink.EditURL(base, lib.ID(), id)
				if err != nil {
					return err
				}
				return cli.WriteShareLinks(a.stdout, cli.ShareLinks{ReadOnly: ro, Edit: edit}, a.format)
			})
		},
	}
}

type openTarget struct {
	Library    string `json:"library"`
	DocumentID *int64 `json:"document_id,omitempty"`
	ReadOnly   bool   `json:"read_only"`
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Decode a share link and print what it points to",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			intent, err := sharelink.ParseIntent(args[0])
			if err != nil {
				return err
			}
			if !intent.Present() {
				return domain.Invalid("%s carries no library or document", args[0])
			}
			var b strings.Builder
			fmt.Fprintf(&b, "library:  %s\n", intent.Library)
			if intent.DocumentID != nil {
				fmt.Fprintf(&b, "document: %d\n", *intent.DocumentID)
			}
			mode := "edit"
			if intent.ReadOnly {
				mode = "read-only"
			}
			fmt.Fprintf(&b, "mode:     %s\n", mode)
			fmt.Fprintf(&b, "\nquire tui --open %q", args[0])
			return cli.WriteResult(a.stdout, b.String(),
				openTarget{Library: intent.Library, DocumentID: intent.DocumentID, ReadOnly: intent.ReadOnly}, a.format)
		},
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func (a *app) searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the documents of a library",
		Long: `Search the documents of a library. The query is all remaining arguments
joined by spaces, so quoting is optional.

Examples:
  quire search deploy checklist
  quire search -l work --limit 5 "release notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := buildSearchQuery(args)
			if query == "" {
				return domain.Invalid("query must not be empty")
			}
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				res, err := c.Search(ctx, lib.ID(), query, limit)
				if err != nil {
					return err
				}
				return cli.WriteSearchResults(a.stdout, res, a.format)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default: server setting)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var parent, title string
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Convert files to documents",
		Long:  `Convert files to documents. Supported: ` + strings.Join(extract.Extensions, " "),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parentID, err := parseParent(parent)
			if err != nil {
				return err
			}
			if title != "" && len(args) > 1 {
				return domain.Invalid("--title needs a single file")
			}
			ex := extract.NewExtractor()
			return a.withLibrary(cmd, func(ctx context.Context, c *client.Client, lib models.Library) error {
				var created []models.CreateDocumentResponse
				for _, path := range args {
					if !ex.Supported(filepath.Ext(path)) {
						return domain.Invalid("unsupported file type %q", filepath.Ext(path))
					}
					content, err := ex.Extract(path)
					if err != nil {
						return fmt.Errorf("extract %s: %w", path, err)
					}
					name := title
					if name == "" {
						name = importer.Title(path)
					}
					id, err := c.CreateDocument(ctx, lib.ID(), models.CreateDocumentRequest{Title: name, Content: content, ParentID: parentID})
					if err != nil {
						return fmt.Errorf("import %s: %w", path, err)
					}
					created = append(created, models.CreateDocumentResponse{ID: id})
					if a.format == cli.OutputText {
						fmt.Fprintf(a.stdout, "imported %s as document %d\n", path, id)
					}
				}
				if a.format == cli.OutputJSON {
					return cli.WriteResult(a.stdout, "", created, a.format)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent document id (default: root)")
	cmd.Flags().StringVar(&title, "title", "", "document title (default: derived from the file name)")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteStatus(a.stdout, a.cfg.Client.ServerURL, st, a.format)
		},
	}
}
