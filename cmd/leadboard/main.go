package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/leadboard/internal/board"
	"github.com/leadboard/internal/client"
	"github.com/leadboard/internal/config"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/leadimport"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/session"
	"github.com/leadboard/pkg/logger"
	"github.com/rs/zerolog"
)

const usage = `usage: leadboard <command> [flags] [args]

commands:
  login -u <username> [-p <password>]   start a session (password may come from LEADBOARD_PASSWORD)
  logout                                end the session
  whoami                                show the signed-in user
  board [-ad <name>]                    show every status column
  more [-pages n] <status-id>           load further pages of one column
  move <lead-id> <status-id>            change a lead's status
  assign <lead-id> <user-id>            assign a lead (Admin only)
  users [-role <role>]                  list users
  comments <lead-id>                    show a lead's comments
  comment <lead-id> <text...>           add a comment
  import <file.csv>                     import leads from a CSV export
  watch [-ad <name>]                    show the board and follow live changes
`

type app struct {
	cfg    *config.ClientConfig
	log    zerolog.Logger
	client *client.Client
	sess   *session.Manager
	out    io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log, "leadboard")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := session.OpenSQLite(cfg.SessionPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SessionPath).Msg("Failed to open session store")
	}
	defer store.Close()

	sess := session.NewManager(store, log)
	if err := sess.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore session")
	}

	c, err := client.New(client.Options{
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		CacheTTL: cfg.CacheTTL,
	}, sess, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}

	a := &app{cfg: cfg, log: log, client: c, sess: sess, out: os.Stdout}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// describe turns an error into the message shown to the user
func describe(err error) string {
	switch client.Classify(err) {
	case client.KindNetwork:
		return "Cannot reach the server. Check your connection and try again."
	case client.KindUnauthorized:
		return "Your session has expired. Run `leadboard login` to sign in again."
	case client.KindRejected:
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return "Error: " + apiErr.Message
		}
	}
	return "Error: " + err.Error()
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	if cmd == "login" {
		return a.login(ctx, args)
	}
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(a.out, usage)
		return nil
	}

	// Every other command needs a session
	user := a.sess.User()
	if user == nil {
		return fmt.Errorf("not logged in; run `leadboard login -u <username>`")
	}

	switch cmd {
	case "logout":
		if err := a.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logged out.")
		return nil
	case "whoami":
		fmt.Fprintf(a.out, "%s (%s) %s\n", user.Name, user.Username, user.Role)
		return nil
	case "board":
		return a.showBoard(ctx, user, args)
	case "more":
		return a.more(ctx, user, args)
	case "move":
		return a.move(ctx, user, args)
	case "assign":
		return a.assign(ctx, user, args)
	case "users":
		return a.users(ctx, args)
	case "comments":
		return a.comments(ctx, user, args)
	case "comment":
		return a.comment(ctx, user, args)
	case "import":
		return a.importCSV(ctx, user, args)
	case "watch":
		return a.watch(ctx, user, args)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("LEADBOARD_PASSWORD"), "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("username and password are required")
	}

	resp, err := a.client.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s).\n", resp.User.Name, resp.User.Role)
	return nil
}

// newBoard scopes the board to the user's own leads unless they are an admin
func (a *app) newBoard(user *models.User, adName string, onError func(string, error)) *board.Board {
	cfg := board.Config{
		PageSize:       a.cfg.PageSize,
		AdName:         adName,
		Concurrency:    a.cfg.Concurrency,
		DebounceWindow: a.cfg.DebounceWindow,
		OnError:        onError,
	}
	if !user.IsAdmin() {
		cfg.AssignedTo = user.ID
	}
	return board.New(a.client, cfg, a.log)
}

// loadBoard loads every column; columns that fail are reported and the rest still render
func (a *app) loadBoard(ctx context.Context, b *board.Board) error {
	err := b.InitialLoad(ctx)
	if err == nil {
		return nil
	}
	if k := client.Classify(err); k == client.KindUnauthorized || len(b.Statuses()) == 0 {
		return err
	}
	fmt.Fprintln(a.out, describe(err))
	return nil
}

func (a *app) showBoard(ctx context.Context, user *models.User, args []string) error {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	adName := fs.String("ad", "", "only leads from this ad")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b := a.newBoard(user, *adName, nil)
	defer b.Close()
	if err := a.loadBoard(ctx, b); err != nil {
		return err
	}
	render(a.out, b.Snapshot())
	return nil
}

func (a *app) more(ctx context.Context, user *models.User, args []string) error {
	fs := flag.NewFlagSet("more", flag.ContinueOnError)
	pages := fs.Int("pages", 1, "number of further pages")
	adName := fs.String("ad", "", "only leads from this ad")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: leadboard more [-pages n] <status-id>")
	}
	statusID := fs.Arg(0)

	b := a.newBoard(user, *adName, nil)
	defer b.Close()
	if err := a.loadBoard(ctx, b); err != nil {
		return err
	}
	for i := 0; i < *pages; i++ {
		if err := b.LoadNext(ctx, statusID); err != nil {
			return err
		}
	}

	for _, col := range b.Snapshot() {
		if col.Status.ID == statusID {
			render(a.out, []board.Column{col})
		}
	}
	return nil
}

func (a *app) openDetail(ctx context.Context, user *models.User, leadID string, opts ...board.DetailOption) (*board.Detail, error) {
	lead, err := a.client.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	opts = append(opts, board.WithDetailLogger(a.log))
	return board.NewDetail(a.client, user, *lead, opts...), nil
}

func (a *app) move(ctx context.Context, user *models.User, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: leadboard move <lead-id> <status-id>")
	}
	b := a.newBoard(user, "", nil)
	defer b.Close()
	if err := a.loadBoard(ctx, b); err != nil {
		return err
	}

	d, err := a.openDetail(ctx, user, args[0], board.WithController(b))
	if err != nil {
		return err
	}
	if err := d.ChangeStatus(ctx, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Moved %s to %s.\n", args[0], statusName(b.Statuses(), args[1]))
	return nil
}

func (a *app) assign(ctx context.Context, user *models.User, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: leadboard assign <lead-id> <user-id>")
	}
	if !user.IsAdmin() {
		return fmt.Errorf("only admins can assign leads")
	}
	d, err := a.openDetail(ctx, user, args[0])
	if err != nil {
		return err
	}
	if err := d.Assign(ctx, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Assigned %s to %s.\n", args[0], args[1])
	return nil
}

func (a *app) users(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users", flag.ContinueOnError)
	role := fs.String("role", "", "Admin or SalesTeam")
	if err := fs.Parse(args); err != nil {
		return err
	}
	users, err := a.client.ListUsers(ctx, *role)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tROLE")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Name, u.Role)
	}
	return w.Flush()
}

func (a *app) comments(ctx context.Context, user *models.User, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: leadboard comments <lead-id>")
	}
	d, err := a.openDetail(ctx, user, args[0])
	if err != nil {
		return err
	}
	if err := d.LoadComments(ctx); err != nil {
		return err
	}

	lead := d.Lead()
	fmt.Fprintf(a.out, "%s  %s  %s\n", lead.ID, lead.Name, lead.Phone)
	for _, f := range lead.ExtraFields {
		fmt.Fprintf(a.out, "  %s: %s\n", f.Key, f.Value)
	}
	comments := d.Comments()
	if len(comments) == 0 {
		fmt.Fprintln(a.out, "No comments yet.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, c := range comments {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.UserName, c.Text)
	}
	return w.Flush()
}

func (a *app) comment(ctx context.Context, user *models.User, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: leadboard comment <lead-id> <text...>")
	}
	d, err := a.openDetail(ctx, user, args[0])
	if err != nil {
		return err
	}
	if err := d.AddComment(ctx, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Comment added.")
	return nil
}

func (a *app) importCSV(ctx context.Context, user *models.User, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: leadboard import <file.csv>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	rows, err := leadimport.ReadCSV(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Read %d rows from %s.\n", len(rows), args[0])

	imp := leadimport.New(a.client, a.log,
		leadimport.WithBatchSize(a.cfg.ImportBatchSize),
		leadimport.WithProgress(func(p leadimport.Progress) {
			fmt.Fprintf(a.out, "  batch %d/%d: %d/%d sent, %d added\n", p.Batch, p.Batches, p.Sent, p.Total, p.Added)
		}),
	)
	result, err := imp.Import(ctx, rows)
	fmt.Fprintf(a.out, "Added %d, skipped %d.\n", result.Added, result.Skipped)
	for _, ve := range result.Errors {
		fmt.Fprintf(a.out, "  line %d: %s: %s\n", ve.Line, ve.Field, ve.Message)
	}
	if err != nil {
		return err
	}

	if result.Added > 0 {
		b := a.newBoard(user, "", nil)
		defer b.Close()
		if err := b.Reload(ctx); err != nil {
			return err
		}
		render(a.out, b.Snapshot())
	}
	return nil
}

func (a *app) watch(ctx context.Context, user *models.User, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	adName := fs.String("ad", "", "only leads from this ad")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b := a.newBoard(user, *adName, func(statusID string, err error) {
		fmt.Fprintf(a.out, "%s: %s\n", statusID, describe(err))
	})
	defer b.Close()
	if err := a.loadBoard(ctx, b); err != nil {
		return err
	}
	render(a.out, b.Snapshot())

	err := a.client.Subscribe(ctx, func(e events.Event) {
		if err := board.HandleEvent(ctx, b, e); err != nil {
			a.log.Warn().Err(err).Str("type", e.Type).Msg("Failed to apply event")
			return
		}
		fmt.Fprintf(a.out, "\n-- %s --\n", e.Type)
		render(a.out, b.Snapshot())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func statusName(statuses []models.Status, id string) string {
	for _, st := range statuses {
		if st.ID == id {
			return st.Name
		}
	}
	return id
}

// render prints each column with its leads, or its empty state
func render(out io.Writer, cols []board.Column) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, col := range cols {
		fmt.Fprintf(w, "== %s (%d/%d) ==\n", col.Status.Name, len(col.Leads), col.Total)
		switch {
		case !col.Loaded:
			fmt.Fprintln(w, "  (not loaded)")
		case col.Empty():
			fmt.Fprintln(w, "  No leads in this stage.")
		}
		for _, l := range col.Leads {
			assignee := l.Assignee()
			if assignee == "" {
				assignee = "unassigned"
			}
			created := "-"
			if !l.CreatedAt.IsZero() {
				created = l.CreatedAt.Format("2006-01-02")
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", l.ID, l.Name, l.AdName, assignee, created)
		}
		if col.HasMore() && col.Loaded {
			fmt.Fprintf(w, "  ... run `leadboard more %s` for more\n", col.Status.ID)
		}
	}
	w.Flush()
}
