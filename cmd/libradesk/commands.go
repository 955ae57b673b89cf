// cmd/libradesk/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/patron"
	"libradesk/internal/server"
	"libradesk/internal/store"
	"libradesk/internal/telemetry"
)

func (a *app) serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Setup(ctx, a.cfg.ServiceName, a.cfg.OTLPEndpoint)
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					a.log.WithError(err).Warn("telemetry shutdown failed")
				}
			}()

			return a.withServices(ctx, func(svc server.Services) error {
				return server.Run(ctx, ":"+a.cfg.Port, server.NewRouter(svc, a.log), a.log)
			})
		},
	}
	cmd.Flags().StringVar(&port, "port", "8080", "listen port")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s).\n", a.cfg.StoreDriver)
			return nil
		},
	}
}

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}

	add := &cobra.Command{
		Use:   "add TITLE AUTHOR ISBN COPIES",
		Short: "Add a book to the catalog",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			copies, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid copies %q", args[3])
			}
			return a.withServices(cmd.Context(), func(svc server.Services) error {
				admission, err := svc.Catalog.AddBook(cmd.Context(), args[0], args[1], args[2], copies)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (ID %d)\n", admission.Message, admission.Book.ID)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(svc server.Services) error {
				books, err := svc.Catalog.ListBooks(cmd.Context())
				if err != nil {
					return err
				}
				if len(books) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No books in library.")
					return nil
				}
				printBooks(cmd.OutOrStdout(), books)
				return nil
			})
		},
	}

	var searchType string
	search := &cobra.Command{
		Use:   "search TERM",
		Short: "Search the catalog by title, author or isbn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(svc server.Services) error {
				books, err := svc.Catalog.Search(cmd.Context(), args[0], catalog.SearchType(searchType))
				if err != nil {
					return err
				}
				if len(books) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No books found matching '%s'.\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d book(s) matching '%s':\n", len(books), args[0])
				printBooks(cmd.OutOrStdout(), books)
				return nil
			})
		},
	}
	search.Flags().StringVar(&searchType, "type", string(catalog.SearchByTitle), "field to match (title, author or isbn)")

	cmd.AddCommand(add, list, search)
	return cmd
}

func (a *app) borrowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "borrow PATRON_ID BOOK_ID",
		Short: "Borrow a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[1])
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(svc server.Services) error {
				checkout, err := svc.Circulation.BorrowBook(cmd.Context(), args[0], bookID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), checkout.Message)
				return nil
			})
		},
	}
}

func (a *app) returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return PATRON_ID BOOK_ID",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[1])
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(svc server.Services) error {
				msg, err := svc.Circulation.ReturnBook(cmd.Context(), args[0], bookID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
}

func (a *app) feeCmd() *cobra.Command {
	var pay bool
	cmd := &cobra.Command{
		Use:   "fee PATRON_ID BOOK_ID",
		Short: "Show the late fee owed on a book, and optionally pay it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[1])
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(svc server.Services) error {
				out := cmd.OutOrStdout()
				quote, err := svc.Circulation.CalculateLateFee(cmd.Context(), args[0], bookID)
				if err != nil {
					return err
				}
				if quote.Status == circulation.StatusInvalidPatron {
					return errors.New(quote.Status)
				}
				fmt.Fprintf(out, "%s: $%.2f\n", quote.Status, quote.FeeAmount)
				if !pay {
					return nil
				}

				receipt, err := svc.Payments.PayLateFee(cmd.Context(), args[0], bookID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (transaction %s)\n", receipt.Message, receipt.TransactionID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pay, "pay", false, "charge the fee through the payment gateway")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status PATRON_ID",
		Short: "Show what a patron holds and owes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(svc server.Services) error {
				report, err := svc.Patrons.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if report.Status == patron.StatusInvalidID {
					return errors.New(report.Status)
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func parseBookID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid book ID: %s", s)
	}
	return id, nil
}

func printBooks(w io.Writer, books []*store.Book) {
	fmt.Fprintf(w, "%-5s %-30s %-25s %-14s %s\n", "ID", "Title", "Author", "ISBN", "Available")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, b := range books {
		fmt.Fprintf(w, "%-5d %-30s %-25s %-14s %d/%d\n",
			b.ID, truncate(b.Title, 30), truncate(b.Author, 25), b.ISBN, b.AvailableCopies, b.TotalCopies)
	}
}

func printReport(w io.Writer, r *patron.StatusReport) {
	fmt.Fprintf(w, "Patron %s: %s\n", r.PatronID, r.Status)
	if len(r.BorrowedBooks) > 0 {
		fmt.Fprintf(w, "%-5s %-30s %-12s %-8s %s\n", "ID", "Title", "Due", "Overdue", "Fee")
		fmt.Fprintln(w, strings.Repeat("-", 70))
		for _, b := range r.BorrowedBooks {
			fmt.Fprintf(w, "%-5d %-30s %-12s %-8d $%.2f\n",
				b.BookID, truncate(b.Title, 30), b.DueDate.Format(time.DateOnly), b.DaysOverdue, b.LateFee)
		}
	}
	fmt.Fprintf(w, "Books borrowed: %d | Late fees: $%.2f | History entries: %d\n",
		r.TotalBooksBorrowed, r.TotalLateFees, len(r.BorrowHistory))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
