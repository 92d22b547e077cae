package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/tui"
)

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

// optionalID reads --id; zero means create.
func optionalID(cmd *cobra.Command) *int64 {
	id, _ := cmd.Flags().GetInt64("id")
	if id == 0 {
		return nil
	}
	return &id
}

// --- vendors ---

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "List vendors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadVendors(ctx); err != nil {
				return report(c.ctrl, err)
			}
			var rows [][]string
			for _, v := range c.ctrl.Snapshot().Vendors {
				rows = append(rows, []string{formatID(v.ID), v.Name, v.ContactName, v.Email, v.CutoffTime})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "CONTACT", "EMAIL", "CUTOFF"}, rows)
			return nil
		})
	},
}

var vendorsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a vendor, or update one with --id",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := controlplane.Vendor{
			ID:              optionalID(cmd),
			Name:            stringsFlag(cmd, "name"),
			ContactName:     stringsFlag(cmd, "contact"),
			Email:           stringsFlag(cmd, "email"),
			Phone:           stringsFlag(cmd, "phone"),
			OrderingWindow:  stringsFlag(cmd, "window"),
			CutoffTime:      stringsFlag(cmd, "cutoff"),
			PreferredMethod: stringsFlag(cmd, "method"),
			Notes:           stringsFlag(cmd, "notes"),
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			res, err := c.ctrl.SaveVendor(ctx, v)
			if err == nil && res.ID != nil {
				fmt.Fprintln(cmd.OutOrStdout(), *res.ID)
			}
			return report(c.ctrl, err)
		})
	},
}

var vendorsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a vendor and its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			return report(c.ctrl, c.ctrl.DeleteVendor(ctx, id))
		})
	},
}

func init() {
	f := vendorsSaveCmd.Flags()
	f.Int64("id", 0, "vendor id to update")
	f.String("name", "", "vendor name")
	f.String("contact", "", "contact name")
	f.String("email", "", "order email")
	f.String("phone", "", "phone number")
	f.String("window", "", "ordering window")
	f.String("cutoff", "", "order cutoff time (HH:MM)")
	f.String("method", "", "preferred ordering method")
	f.String("notes", "", "free-form notes")
	vendorsCmd.AddCommand(vendorsSaveCmd, vendorsDeleteCmd)
}

// --- vendor items ---

var itemsCmd = &cobra.Command{
	Use:   "items <vendor-id>",
	Short: "List a vendor's catalogue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.SelectVendor(ctx, &id); err != nil {
				return report(c.ctrl, err)
			}
			var rows [][]string
			for _, it := range c.ctrl.Snapshot().VendorItems {
				rows = append(rows, []string{formatID(it.ID), it.Name, it.ItemCode, it.Unit, formatPrice(it.Price), it.Category})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "CODE", "UNIT", "PRICE", "CATEGORY"}, rows)
			return nil
		})
	},
}

var itemsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Add an item to --vendor, or update one with --id",
	RunE: func(cmd *cobra.Command, args []string) error {
		vendorID, _ := cmd.Flags().GetInt64("vendor")
		item := controlplane.VendorItem{
			ID:       optionalID(cmd),
			VendorID: vendorID,
			Name:     stringsFlag(cmd, "name"),
			ItemCode: stringsFlag(cmd, "code"),
			Unit:     stringsFlag(cmd, "unit"),
			Category: stringsFlag(cmd, "category"),
			IsActive: true,
		}
		if cmd.Flags().Changed("price") {
			p := floatFlag(cmd, "price")
			item.Price = &p
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			_, err := c.ctrl.SaveVendorItem(ctx, item)
			return report(c.ctrl, err)
		})
	},
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <item-id>",
	Short: "Remove an item from --vendor's catalogue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		vendorID, _ := cmd.Flags().GetInt64("vendor")
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			return report(c.ctrl, c.ctrl.DeleteVendorItem(ctx, vendorID, id))
		})
	},
}

func init() {
	f := itemsSaveCmd.Flags()
	f.Int64("id", 0, "item id to update")
	f.Int64("vendor", 0, "vendor id")
	f.String("name", "", "item name")
	f.String("code", "", "vendor item code")
	f.String("unit", "", "purchase unit")
	f.Float64("price", 0, "unit price")
	f.String("category", "", "inventory category")
	itemsDeleteCmd.Flags().Int64("vendor", 0, "vendor id")
	itemsDeleteCmd.MarkFlagRequired("vendor")
	itemsCmd.AddCommand(itemsSaveCmd, itemsDeleteCmd)
}

// --- recipes ---

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "List recipes with stock and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadRecipes(ctx); err != nil {
				return report(c.ctrl, err)
			}
			var rows [][]string
			for _, r := range c.ctrl.Snapshot().Recipes {
				onHand := fmt.Sprintf("%.1f", r.OnHand)
				if r.OnHand < r.ParLevel {
					onHand = colorize(colorYellow, onHand)
				}
				rows = append(rows, []string{formatID(r.ID), r.Name, onHand, fmt.Sprintf("%.1f", r.ParLevel),
					fmt.Sprintf("%.2f", r.SalesPrice), fmt.Sprintf("%.2f", r.EstimatedCost)})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "ON HAND", "PAR", "PRICE", "COST"}, rows)
			return nil
		})
	},
}

var recipesSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a recipe, or update one with --id",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := controlplane.Recipe{
			ID:               optionalID(cmd),
			Name:             stringsFlag(cmd, "name"),
			YieldAmount:      floatFlag(cmd, "yield"),
			YieldUnit:        stringsFlag(cmd, "yield-unit"),
			Ingredients:      stringsFlag(cmd, "ingredients"),
			Instructions:     stringsFlag(cmd, "instructions"),
			IsActive:         true,
			SalesPrice:       floatFlag(cmd, "price"),
			RecentSalesCount: intFlag(cmd, "sold"),
			ParLevel:         floatFlag(cmd, "par"),
			OnHand:           floatFlag(cmd, "on-hand"),
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			res, err := c.ctrl.SaveRecipe(ctx, r)
			if err == nil && res.ID != nil {
				fmt.Fprintln(cmd.OutOrStdout(), *res.ID)
			}
			return report(c.ctrl, err)
		})
	},
}

var recipesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Retire a recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			return report(c.ctrl, c.ctrl.DeleteRecipe(ctx, id))
		})
	},
}

func init() {
	f := recipesSaveCmd.Flags()
	f.Int64("id", 0, "recipe id to update")
	f.String("name", "", "recipe name")
	f.Float64("yield", 0, "yield amount")
	f.String("yield-unit", "", "yield unit")
	f.String("ingredients", "", `ingredients as JSON, e.g. [{"item":"Butter","qty":0.5,"unit":"lb"}]`)
	f.String("instructions", "", "method")
	f.Float64("price", 0, "menu price")
	f.Int("sold", 0, "recent sales count")
	f.Float64("par", 0, "par level")
	f.Float64("on-hand", 0, "quantity on hand")
	recipesCmd.AddCommand(recipesSaveCmd, recipesDeleteCmd)
}

var prepUpdateCmd = &cobra.Command{
	Use:   "prep-update <recipe-id>=<on-hand>...",
	Short: "Record on-hand quantities after a prep count",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		counts := make(map[int64]float64, len(args))
		for _, arg := range args {
			k, v, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("invalid count %q: want <recipe-id>=<on-hand>", arg)
			}
			id, err := parseID(k)
			if err != nil {
				return err
			}
			qty, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity in %q", arg)
			}
			counts[id] = qty
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			return report(c.ctrl, c.ctrl.PrepUpdate(ctx, counts))
		})
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Print inventory count sheets grouped by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadInventory(ctx); err != nil {
				return report(c.ctrl, err)
			}
			w := cmd.OutOrStdout()
			category := "\x00"
			for _, it := range c.ctrl.Snapshot().Inventory {
				if it.Category != category {
					category = it.Category
					label := category
					if label == "" {
						label = "Uncategorized"
					}
					fmt.Fprintln(w, colorize(colorBold, strings.ToUpper(label)))
				}
				fmt.Fprintf(w, "  [ ] %-28s %s\n", it.Name, it.Unit)
			}
			return nil
		})
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Show menu engineering classification",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadMenu(ctx); err != nil {
				return report(c.ctrl, err)
			}
			menu := c.ctrl.Snapshot().Menu
			var rows [][]string
			for _, it := range menu.Items {
				rows = append(rows, []string{it.Name, fmt.Sprintf("%.2f", it.Cost), fmt.Sprintf("%.2f", it.Price),
					fmt.Sprintf("%.2f", it.Margin), strconv.Itoa(it.Count), it.Classification})
			}
			w := cmd.OutOrStdout()
			printTable(w, []string{"ITEM", "COST", "PRICE", "MARGIN", "SOLD", "CLASS"}, rows)
			printStatus(w, "Average margin", "%.2f", menu.Averages.Margin)
			printStatus(w, "Average sold", "%.2f", menu.Averages.Count)
			return nil
		})
	},
}

// --- lab ---

var brainCmd = &cobra.Command{
	Use:   "brain <prompt...>",
	Short: "Ask the assistant's model a test question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			answer, err := c.ctrl.TestBrain(ctx, strings.Join(args, " "))
			if err != nil {
				return report(c.ctrl, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(answer))
			return nil
		})
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Transcribe a voice note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			text, err := c.ctrl.Transcribe(ctx, args[0])
			if err != nil {
				return report(c.ctrl, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		})
	},
}

var draftEmailCmd = &cobra.Command{
	Use:   "draft-email <vendor-id> <context...>",
	Short: "Draft an order email to a vendor",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			d, err := c.ctrl.DraftEmail(ctx, &id, strings.Join(args[1:], " "))
			if err != nil {
				return report(c.ctrl, err)
			}
			w := cmd.OutOrStdout()
			printStatus(w, "To", "%s", d.VendorEmail)
			printStatus(w, "Subject", "%s", d.Subject)
			fmt.Fprintln(w)
			fmt.Fprintln(w, d.Body)
			return nil
		})
	},
}

func renderMarkdown(s string) string {
	if noColor {
		return s
	}
	return tui.RenderMarkdown(s, 80)
}
