package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/util"
)

var addCmd = &cobra.Command{
	Use:   "add <source> <url>",
	Short: "Register an item",
	Long: `Register an item so its pages can be fetched.

Source is one of e, wn, hi, ru.

Examples:
  mango-pages add e https://e-hentai.org/g/1/abc/ --pages 24
  mango-pages add wn https://www.wnacg.com/photos-index-aid-42.html --pages 30 --id wn-42`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered items",
	RunE:  runList,
}

func init() {
	addCmd.Flags().IntP("pages", "p", 0, "page count of the item")
	addCmd.Flags().StringP("title", "t", "", "item title")
	addCmd.Flags().String("id", "", "item id (default: random)")
	addCmd.MarkFlagRequired("pages")
}

func runAdd(cmd *cobra.Command, args []string) error {
	source, err := models.ParseSource(args[0])
	if err != nil {
		return err
	}
	pages, _ := cmd.Flags().GetInt("pages")
	title, _ := cmd.Flags().GetString("title")
	id, _ := cmd.Flags().GetString("id")

	if pages < 0 {
		return fmt.Errorf("page count cannot be negative")
	}
	if id == "" {
		id = util.NewItemID()
	} else {
		id = util.SanitizeItemID(id)
	}
	if err := util.ValidateItemID(id); err != nil {
		return err
	}
	if id == app.Config().Storage.ScratchID {
		return fmt.Errorf("item id %q is reserved for previews", id)
	}

	item := &models.Item{ID: id, Title: title, Source: source, URL: args[1], PageCount: pages}
	if err := app.Store().CreateItem(item); err != nil {
		return err
	}
	fmt.Printf("Added %s (%s, %d pages)\n", item.ID, item.Source, item.PageCount)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	items, err := app.Store().ListItems()
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No items.")
		return nil
	}

	fmt.Printf("Items (%d):\n\n", len(items))
	for _, item := range items {
		cached, _ := app.Pages().Count(item.ID)
		title := item.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Printf("[%s] %s\n", item.ID, title)
		fmt.Printf("   Source: %s  Pages: %d/%d cached\n", item.Source, cached, item.PageCount)
		fmt.Printf("   URL: %s\n\n", item.URL)
	}
	return nil
}
