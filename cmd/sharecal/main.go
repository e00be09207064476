package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sharecal/internal/config"
	"sharecal/internal/export"
	"sharecal/internal/ics"
	appLog "sharecal/internal/log"
	"sharecal/internal/mcp"
	"sharecal/internal/model"
	"sharecal/internal/share"
	"sharecal/internal/store"
	"sharecal/internal/web"
)

const version = "1.0.0"

// exportStopTimeout bounds waiting for a running export at shutdown.
const exportStopTimeout = 30 * time.Second

const usage = `Usage: sharecal [-config PATH] <command> [flags] [args]

Commands:
  parse [-ref DATE] [-json] TEXT...      parse an event sentence and print the draft
  save [-calendar ID] [-ref DATE] TEXT... parse and save to a calendar
  calendars [-add NAME -account A -color N]
                                         list calendars, or create one
  select ID                              select the default calendar
  import [-calendar ID] FILE|URL         import events from an .ics file or URL
  export [-o FILE]                       write all events as iCalendar
  serve [-listen ADDR]                   run the HTTP API and export scheduler
  mcp                                    serve MCP tools on stdio
`

// app carries what every command needs.
type app struct {
	cfg   *config.Config
	store *store.SQLiteStore
	share *share.Service
	out   io.Writer
}

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := flag.String("config", "", "Path to config file (default $SHARECAL_CONFIG or "+config.DefaultPath+")")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.ResolvePath(*configPath), args, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "sharecal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, args []string, out io.Writer) error {
	conf, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	conf.ApplyEnv()
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Debug("effective config",
		"config_path", configPath,
		"listen", conf.Listen,
		"timezone", conf.Location().String(),
		"db_path", conf.DBPath,
		"export_path", conf.Export.Path,
		"export_schedule", conf.Export.Schedule,
	)

	st, err := store.Open(ctx, conf.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	a := &app{
		cfg:   conf,
		store: st,
		share: share.NewService(st, conf.Location(), conf.TitleMaxLength),
		out:   out,
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "parse":
		return a.cmdParse(rest)
	case "save":
		return a.cmdSave(ctx, rest)
	case "calendars":
		return a.cmdCalendars(ctx, rest)
	case "select":
		return a.cmdSelect(ctx, rest)
	case "import":
		return a.cmdImport(ctx, rest)
	case "export":
		return a.cmdExport(ctx, rest)
	case "serve":
		return a.cmdServe(ctx, rest)
	case "mcp":
		return mcp.NewServer(st, a.share).Serve(ctx)
	case "version":
		fmt.Fprintln(out, "sharecal", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// dateFlag is a flag.Value for YYYY-MM-DD reference dates.
type dateFlag struct{ d model.Date }

func (f *dateFlag) String() string {
	if f.d.IsZero() {
		return ""
	}
	return f.d.String()
}

func (f *dateFlag) Set(s string) error {
	d, err := model.ParseDate(s)
	if err != nil {
		return err
	}
	f.d = d
	return nil
}

func (a *app) cmdParse(args []string) error {
	fs := newFlagSet("parse")
	var ref dateFlag
	fs.Var(&ref, "ref", "Reference date YYYY-MM-DD (default today)")
	asJSON := fs.Bool("json", false, "Print the draft as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("parse: text is required")
	}

	d := a.share.Prepare(text, ref.d)
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	printDraft(a.out, d)
	return nil
}

func printDraft(w io.Writer, d model.EventDraft) {
	fmt.Fprintf(w, "Title:    %s\n", d.Title)
	fmt.Fprintf(w, "Date:     %s (%s)\n", d.StartDate, d.StartDate.Weekday())
	if d.IsAllDay || d.StartTime == nil {
		fmt.Fprintln(w, "Time:     all day")
	} else if d.EndTime == nil {
		fmt.Fprintf(w, "Time:     %s\n", d.StartTime)
	} else {
		fmt.Fprintf(w, "Time:     %s-%s\n", d.StartTime, d.EndTime)
	}
	if d.Location != "" {
		fmt.Fprintf(w, "Location: %s\n", d.Location)
	}
}

func (a *app) cmdSave(ctx context.Context, args []string) error {
	fs := newFlagSet("save")
	var ref dateFlag
	fs.Var(&ref, "ref", "Reference date YYYY-MM-DD (default today)")
	calendarID := fs.Int64("calendar", 0, "Calendar ID (default: selected calendar)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("save: text is required")
	}

	d := a.share.Prepare(text, ref.d)
	var (
		id  int64
		err error
	)
	if *calendarID != 0 {
		id, err = a.share.SaveTo(ctx, *calendarID, d)
	} else {
		id, err = a.share.Save(ctx, d)
	}
	if err != nil {
		return err
	}

	printDraft(a.out, d)
	fmt.Fprintf(a.out, "Saved event %d\n", id)
	return nil
}

func (a *app) cmdCalendars(ctx context.Context, args []string) error {
	fs := newFlagSet("calendars")
	add := fs.String("add", "", "Create a calendar with this name")
	account := fs.String("account", "", "Account the new calendar belongs to")
	color := fs.Int("color", 0, "Display color of the new calendar (0xRRGGBB as integer)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *add != "" {
		cal := &model.Calendar{Name: *add, Account: *account, Color: *color}
		if err := a.store.CreateCalendar(ctx, cal); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created calendar %d %q\n", cal.ID, cal.Name)
		return nil
	}

	cals, err := a.store.ListCalendars(ctx)
	if err != nil {
		return err
	}
	selected, hasSelected, err := a.store.SelectedCalendarID(ctx)
	if err != nil {
		return err
	}
	if len(cals) == 0 {
		fmt.Fprintln(a.out, "No calendars. Create one with: sharecal calendars -add NAME")
		return nil
	}
	for _, c := range cals {
		mark := " "
		if hasSelected && c.ID == selected {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %3d  %-24s %s\n", mark, c.ID, c.Name, c.Account)
	}
	return nil
}

func (a *app) cmdSelect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("select: exactly one calendar ID is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("select: invalid calendar ID %q", args[0])
	}
	if err := a.store.SetSelectedCalendarID(ctx, id); err != nil {
		return fmt.Errorf("select calendar %d: %w", id, err)
	}
	fmt.Fprintf(a.out, "Selected calendar %d\n", id)
	return nil
}

func (a *app) cmdImport(ctx context.Context, args []string) error {
	fs := newFlagSet("import")
	calendarID := fs.Int64("calendar", 0, "Calendar ID (default: selected calendar)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("import: exactly one FILE or URL is required")
	}

	id := *calendarID
	if id == 0 {
		sel, ok, err := a.store.SelectedCalendarID(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return share.ErrNoCalendarSelected
		}
		id = sel
	}

	loader := ics.NewLoader(filepath.Join(filepath.Dir(a.cfg.DBPath), "ics-cache"))
	events, err := loader.LoadEvents(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	n, err := a.store.UpsertEvents(ctx, id, events)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Imported %d events into calendar %d\n", n, id)
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := newFlagSet("export")
	outPath := fs.String("o", "", "Output file (default: export.path from config, or stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *outPath
	if path == "" {
		path = a.cfg.Export.Path
	}
	if path == "" || path == "-" {
		events, err := a.store.ListEvents(ctx, 0)
		if err != nil {
			return err
		}
		_, err = io.WriteString(a.out, ics.Export(events, ""))
		return err
	}

	n, err := export.New(a.store, path).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %d events to %s\n", n, path)
	return nil
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	listen := fs.String("listen", "", "HTTP listen address (overrides config if set)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen != "" {
		a.cfg.Listen = *listen
	}

	appLog.Info("sharecal starting", "version", version, "listen", a.cfg.Listen, "timezone", a.cfg.Location().String())

	g, ctx := errgroup.WithContext(ctx)

	srv := web.NewServer(a.cfg, a.store, a.share)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if a.cfg.Export.Path != "" && a.cfg.Export.Schedule != "" {
		exp := export.New(a.store, a.cfg.Export.Path)
		if err := exp.Schedule(a.cfg.Export.Schedule); err != nil {
			return err
		}
		exp.Start()
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), exportStopTimeout)
			defer cancel()
			return exp.Stop(stopCtx)
		})
	}

	err := g.Wait()
	appLog.Info("sharecal exiting")
	return err
}
