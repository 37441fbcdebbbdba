package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/types"
)

func (a *app) newCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty draft invoice",
		Example: `  invoicer new
  invoicer new --date 2024-01-15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.inv.CreateDraft(cmd.Context(), date)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, h.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Issue date (YYYY-MM-DD, default: today)")
	return cmd
}

// invoiceView is the JSON shape printed by show.
type invoiceView struct {
	*invoice.Header
	Lines []invoice.Line `json:"lines"`
}

func (a *app) showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <invoice-id>",
		Short: "Print an invoice with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			h, err := a.inv.GetHeader(cmd.Context(), invID)
			if err != nil {
				return err
			}
			lines, err := a.inv.GetLines(cmd.Context(), invID)
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(invoiceView{Header: h, Lines: lines})
			}
			a.printInvoice(h, lines)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var (
		opts   invoice.ListOpts
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices, most recent first",
		Example: `  invoicer list
  invoicer list --search acme
  invoicer list --status FINAL --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" {
				st, err := invoice.ParseStatus(status)
				if err != nil {
					return err
				}
				opts.Status = st
			}
			list, err := a.inv.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(list)
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNUMBER\tDATE\tSTATUS\tCUSTOMER\tTOTAL")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Number, s.IssueDate, s.Status, s.CustomerName, a.money(s.TotalCents))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "Filter by number, customer or date")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of rows")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// saveDoc is the YAML document accepted by save.
type saveDoc struct {
	invoice.Fields `yaml:",inline"`
	Lines          []lineDoc `yaml:"lines"`
}

// lineDoc is one line of a saveDoc. Prices are entered as text ("12,50").
type lineDoc struct {
	Quantity    int64  `yaml:"quantity"`
	Reference   string `yaml:"reference"`
	Description string `yaml:"description"`
	UnitPrice   string `yaml:"unit_price"`
}

func (a *app) saveCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save <invoice-id> --file invoice.yaml",
		Short: "Replace an invoice's fields and lines from a YAML file",
		Example: `  # invoice.yaml
  issue_date: 2024-01-15
  customer_name: Acme
  vat_rate: 20
  lines:
    - quantity: 2
      description: Widget
      unit_price: "15,00"

  invoicer save inv_01h455vb4pex5vsknk084sn02q --file invoice.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			doc, err := readSaveDoc(file)
			if err != nil {
				return err
			}
			lines := make([]invoice.LineInput, len(doc.Lines))
			for i, l := range doc.Lines {
				price, err := types.ParseMoney(l.UnitPrice, a.cfg.Invoice.Currency)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				lines[i] = invoice.LineInput{
					Quantity:       l.Quantity,
					Reference:      l.Reference,
					Description:    l.Description,
					UnitPriceCents: price.Amount,
				}
			}

			h, err := a.inv.Save(cmd.Context(), invID, doc.Fields, lines)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "saved %s: total %s\n", h.ID, a.money(h.TotalCents))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with fields and lines")
	_ = cmd.MarkFlagRequired("file") //nolint:errcheck // flag defined above
	return cmd
}

func readSaveDoc(path string) (*saveDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := &saveDoc{Fields: invoice.Fields{VATRate: invoice.DefaultVATRate}}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func (a *app) finalizeCmd() *cobra.Command {
	return a.transitionCmd("finalize", "Finalize a draft and assign its number", (*invoicer.Invoicer).Finalize)
}

func (a *app) payCmd() *cobra.Command {
	return a.transitionCmd("pay", "Mark a final invoice as paid", (*invoicer.Invoicer).MarkPaid)
}

func (a *app) cancelCmd() *cobra.Command {
	return a.transitionCmd("cancel", "Cancel a final or paid invoice", (*invoicer.Invoicer).Cancel)
}

type transition func(*invoicer.Invoicer, context.Context, id.InvoiceID) (*invoice.Header, error)

func (a *app) transitionCmd(use, short string, op transition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <invoice-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			h, err := op(a.inv, cmd.Context(), invID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s %s\n", h.ID, h.Number, h.Status)
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <invoice-id>",
		Short: "Delete a draft invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			if err := a.inv.Delete(cmd.Context(), invID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", invID)
			return nil
		},
	}
}

func (a *app) printInvoice(h *invoice.Header, lines []invoice.Line) {
	number := h.Number
	if number == "" {
		number = "(none)"
	}
	fmt.Fprintf(a.out, "Invoice %s  %s  %s\n", number, h.Status, h.IssueDate)
	fmt.Fprintf(a.out, "ID: %s\n", h.ID)
	if h.CustomerName != "" {
		fmt.Fprintf(a.out, "Customer: %s\n", h.CustomerName)
	}
	for _, extra := range []string{h.CustomerAddress, h.CustomerPostalCode, h.CustomerEmail, h.CustomerPhone} {
		if extra != "" {
			fmt.Fprintf(a.out, "          %s\n", extra)
		}
	}
	fmt.Fprintln(a.out)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "#\tQTY\tREF\tDESCRIPTION\tUNIT\tTOTAL\t")
	for _, l := range lines {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t\n",
			l.Position, l.Quantity, l.Reference, l.Description, a.money(l.UnitPriceCents), a.money(l.LineTotalCents))
	}
	fmt.Fprintf(w, "\t\t\t\tSubtotal\t%s\t\n", a.money(h.SubtotalCents))
	fmt.Fprintf(w, "\t\t\t\tVAT %d%%\t%s\t\n", h.VATRate, a.money(h.VATCents))
	fmt.Fprintf(w, "\t\t\t\tTotal\t%s\t\n", a.money(h.TotalCents))
	_ = w.Flush() //nolint:errcheck // terminal output
}

func (a *app) money(cents int64) string {
	return types.Cents(cents, a.cfg.Invoice.Currency).String()
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
