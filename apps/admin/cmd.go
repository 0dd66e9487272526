package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/dashboard"
	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	logger   core.Logger
	out      io.Writer
	registry *widget.Registry
	repo     notification.Repository
	email    core.EmailService

	// mockable
	migrateFunc func(ctx context.Context, command string, args ...string) error
	isTerminal  func() bool
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, redo, reset, up-to, down-to)")
	_, _ = fmt.Fprintln(cli.out, "  widgets -ids a,b -base URL [-watch] - fetch widgets through the data source manager")
	_, _ = fmt.Fprintln(cli.out, "  bell -user ID [-json] - print the notification bell of a user")
	_, _ = fmt.Fprintln(cli.out, "  digest -user ID -email ADDR - email the unread bell items of a user")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	widgetsCmd := flag.NewFlagSet("widgets", flag.ContinueOnError)
	widgetsCmd.SetOutput(cli.out)
	widgetsIDs := widgetsCmd.String("ids", "", "Comma-separated widget ids; all known widgets when empty.")
	widgetsBase := widgetsCmd.String("base", "", "Base URL of the widget API.")
	widgetsWatch := widgetsCmd.Bool("watch", false, "Keep refreshing until interrupted.")
	widgetsEvery := widgetsCmd.Duration("interval", 30*time.Second, "Refresh interval with -watch.")

	bellCmd := flag.NewFlagSet("bell", flag.ContinueOnError)
	bellCmd.SetOutput(cli.out)
	bellUser := bellCmd.String("user", "", "The user id.")
	bellJSON := bellCmd.Bool("json", false, "Print JSON even on a terminal.")

	digestCmd := flag.NewFlagSet("digest", flag.ContinueOnError)
	digestCmd.SetOutput(cli.out)
	digestUser := digestCmd.String("user", "", "The user id.")
	digestEmail := digestCmd.String("email", "", "The recipient's email address.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrateFunc(ctx, args[2], args[3:]...)
	case "widgets":
		if err := widgetsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *widgetsBase == "" {
			widgetsCmd.Usage()
			return errHelp
		}
		ids := core.SplitList(*widgetsIDs)
		if len(ids) == 0 {
			ids = cli.registry.IDs()
		}
		return cli.widgets(ctx, *widgetsBase, ids, *widgetsWatch, *widgetsEvery)
	case "bell":
		if err := bellCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *bellUser == "" {
			bellCmd.Usage()
			return errHelp
		}
		return cli.bell(ctx, *bellUser, *bellJSON || !cli.isTerminal())
	case "digest":
		if err := digestCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *digestUser == "" || *digestEmail == "" {
			digestCmd.Usage()
			return errHelp
		}
		to, err := mail.ParseAddress(*digestEmail)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "email", Error: err.Error()})
		}
		return cli.digest(ctx, *digestUser, *to)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) widgets(ctx context.Context, base string, ids []string, watch bool, interval time.Duration) error {
	manager := dashboard.NewManager(dashboard.Options{
		BaseURL:  base,
		Registry: cli.registry,
		Logger:   cli.logger,
	})
	cli.printWidgets(manager.FetchMultiple(ctx, ids, nil))
	if !watch {
		return nil
	}

	for _, id := range ids {
		unsubscribe := manager.Subscribe(id, func(d dashboard.WidgetData) {
			cli.printWidgets(map[string]dashboard.WidgetData{d.WidgetID: d})
		})
		defer unsubscribe()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			manager.InvalidateCache(ids...)
			manager.FetchMultiple(ctx, ids, nil)
		}
	}
}

func (cli *commandLine) printWidgets(data map[string]dashboard.WidgetData) {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WIDGET\tSOURCE\tVALID\tUPDATED\tERRORS")
	for _, id := range ids {
		d := data[id]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			id, d.Source, d.IsValid, d.LastUpdated.Format(time.RFC3339), strings.Join(d.ValidationErrors, "; "))
	}
	_ = w.Flush()
}

func (cli *commandLine) bell(ctx context.Context, userID string, asJSON bool) error {
	bell := notification.NewBell(cli.repo, nil, cli.logger, notification.Options{})
	if err := bell.Mount(ctx, userID); err != nil {
		return errors.Wrap(err, "mounting bell")
	}
	defer bell.Unmount()
	snap := bell.Snapshot()

	if asJSON {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	_, _ = fmt.Fprintf(cli.out, "Unread: %d (badge %q)\n", snap.Badge, snap.BadgeLabel)
	if !snap.MessagesAvailable {
		_, _ = fmt.Fprintln(cli.out, "Messages are unavailable.")
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tREAD\tCREATED\tTITLE\tFROM")
	for _, item := range snap.Items {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			item.Kind, item.Read, item.CreatedAt.Format(time.RFC3339), item.Title, item.SenderName)
	}
	return w.Flush()
}

func (cli *commandLine) digest(ctx context.Context, userID string, to mail.Address) error {
	sent, err := notification.NewDigest(cli.repo, cli.email, cli.logger).Send(ctx, userID, to)
	if err != nil {
		return errors.Wrap(err, "sending digest")
	}
	if sent {
		_, _ = fmt.Fprintf(cli.out, "Digest sent to %s\n", to.String())
	} else {
		_, _ = fmt.Fprintln(cli.out, "Nothing unread; no digest sent.")
	}
	return nil
}
