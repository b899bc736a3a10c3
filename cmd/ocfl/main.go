// Command ocfl is a CLI client for an OCFL storage root: init, new,
// cp, mv, rm, reset, status, commit, ls, log, show, diff, cat, purge,
// validate, info, upgrade (spec.md §5 "CLI").
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	ocflfs "github.com/ocflkit/ocflkit/fs"
	"github.com/ocflkit/ocflkit/fs/local"
	"github.com/ocflkit/ocflkit/repo"
	"github.com/ocflkit/ocflkit/store"
	"github.com/ocflkit/ocflkit/validation"

	"github.com/ocflkit/ocflkit"
)

// exit codes: 0 success, 1 operation failed, 2 usage/configuration error
// (spec.md §6 "exit codes").
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// Globals are flags shared by every subcommand. Defaults for Root/UserName/
// UserEmail come from (in ascending precedence) the user config file, the
// OCFL_* environment variables, and explicit flags.
type Globals struct {
	Root      string `env:"OCFL_ROOT" default:"${configRoot}" help:"Path to the OCFL storage root."`
	UserName  string `env:"OCFL_USER_NAME" default:"${configName}" help:"Name recorded as the author of new versions."`
	UserEmail string `env:"OCFL_USER_EMAIL" default:"${configEmail}" help:"Address recorded as the author of new versions."`
	Verbose   bool   `short:"v" help:"Enable debug logging."`

	log *slog.Logger
}

func (g *Globals) user() *ocfl.User {
	if g.UserName == "" {
		return nil
	}
	return &ocfl.User{Name: g.UserName, Address: g.UserEmail}
}

func (g *Globals) openRepo(ctx context.Context) (*repo.Repo, ocflfs.FS, error) {
	fsys, err := local.New(g.Root)
	if err != nil {
		return nil, nil, err
	}
	r, err := repo.Open(ctx, fsys, ".", ".ocfl-staging")
	return r, fsys, err
}

type CLI struct {
	Globals

	Init     InitCmd     `cmd:"" help:"Initialize a new OCFL storage root."`
	New      NewCmd      `cmd:"" help:"Create a new object with an initial version."`
	Cp       CpCmd       `cmd:"" help:"Copy files into an object and commit the result as a new version."`
	Mv       MvCmd       `cmd:"" help:"Move/rename files in an object and commit the result as a new version."`
	Rm       RmCmd       `cmd:"" help:"Remove files from an object and commit the result as a new version."`
	Reset    ResetCmd    `cmd:"" help:"Restore paths to their state in the previous version and commit the result."`
	Status   StatusCmd   `cmd:"" help:"List the logical paths in an object's HEAD version (commands commit immediately, so nothing is left pending)."`
	Commit   CommitCmd   `cmd:"" help:"Commit a new version whose state is a copy of HEAD."`
	Ls       LsCmd       `cmd:"" help:"List objects, or files within an object's HEAD version."`
	Log      LogCmd      `cmd:"" help:"Show version history for an object."`
	Show     ShowCmd     `cmd:"" help:"Show the logical state of a specific version."`
	Diff     DiffCmd     `cmd:"" help:"Show the difference between two versions."`
	Cat      CatCmd      `cmd:"" help:"Print the contents of a file in an object."`
	Purge    PurgeCmd    `cmd:"" help:"Permanently delete an object."`
	Validate ValidateCmd `cmd:"" help:"Validate an object or the whole storage root."`
	Info     InfoCmd     `cmd:"" help:"Show storage root information."`
	Upgrade  UpgradeCmd  `cmd:"" help:"Upgrade an object to a newer OCFL spec version."`
	Config   ConfigCmd   `cmd:"" help:"Print (or save) the user config file."`
}

func main() {
	cfg, err := loadUserConfig(defaultConfigPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(exitUsage)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ocfl"),
		kong.Description("A client for Oxford Common File Layout storage roots."),
		kong.Vars{"configRoot": cfg.Root, "configName": cfg.Name, "configEmail": cfg.Email},
	)
	if cli.Root == "" && kctx.Command() != "config" {
		kctx.FatalIfErrorf(errors.New("no storage root: pass --root, set OCFL_ROOT, or save one with 'ocfl config --save'"))
	}
	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	cli.Globals.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(cli.Globals.log)

	err = kctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		switch {
		case isUsageError(err):
			os.Exit(exitUsage)
		default:
			os.Exit(exitError)
		}
	}
}

func isUsageError(err error) bool {
	_, ok := err.(*kong.ParseError)
	return ok
}

// --- init ---

type InitCmd struct {
	Spec   string `default:"1.1" help:"OCFL spec version to declare (1.0 or 1.1)."`
	Layout string `default:"0004-hashed-n-tuple-storage-layout" help:"Storage-layout extension name."`
}

func (c *InitCmd) Run(g *Globals) error {
	ctx := context.Background()
	fsys, err := local.New(g.Root)
	if err != nil {
		return err
	}
	spec := ocfl.Spec(c.Spec)
	if !spec.Known() {
		return fmt.Errorf("unknown spec version %q", c.Spec)
	}
	layout, cfg, err := defaultLayout(c.Layout)
	if err != nil {
		return err
	}
	if _, err := store.Init(ctx, fsys, ".", spec, layout, cfg, "initialized by the ocfl CLI"); err != nil {
		return err
	}
	fmt.Printf("initialized OCFL %s storage root at %s\n", spec, g.Root)
	return nil
}

// --- new ---

type NewCmd struct {
	ID     string   `arg:"" help:"Object identifier."`
	Files  []string `arg:"" optional:"" help:"Files to add as the initial version."`
	Digest string   `default:"sha512" help:"Digest algorithm for this object."`
}

func (c *NewCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, fsys, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	m, err := r.Stage(ctx, c.ID, c.Digest)
	if err != nil {
		return err
	}
	for _, f := range c.Files {
		if _, err := m.Stage().FileCopy(ctx, f, fsys, f); err != nil {
			m.Abort()
			return err
		}
	}
	return m.Commit(ctx, "initial version", g.user())
}

// --- cp ---

type CpCmd struct {
	ID        string   `arg:"" help:"Object identifier."`
	Paths     []string `arg:"" help:"One or more sources (local paths, or glob patterns within the object with --internal) followed by the destination logical path."`
	Internal  bool     `help:"Copy within the object instead of from local disk: sources are glob patterns evaluated against Version (default HEAD)."`
	Version   string   `help:"Version the source patterns are resolved against, with --internal; defaults to HEAD."`
	Recursive bool     `short:"r" help:"Recurse into directory sources, or virtual directories with --internal."`
}

func (c *CpCmd) Run(g *Globals) error {
	src, dst, err := splitSourcesDest(c.Paths)
	if err != nil {
		return err
	}
	ctx := context.Background()
	r, fsys, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	m, err := r.Stage(ctx, c.ID, "")
	if err != nil {
		return err
	}
	defer m.Abort()
	if c.Internal {
		vn := m.Stage().Inventory.Head
		if c.Version != "" {
			if vn, err = ocfl.ParseVNum(c.Version); err != nil {
				return err
			}
		}
		if err := m.CopyWithinObject(ctx, vn, src, dst, c.Recursive); err != nil {
			return err
		}
	} else if err := m.CopyFromExternal(ctx, fsys, src, dst, c.Recursive); err != nil {
		return err
	}
	return m.Commit(ctx, fmt.Sprintf("cp %v %s", src, dst), g.user())
}

// --- mv ---

type MvCmd struct {
	ID        string   `arg:"" help:"Object identifier."`
	Paths     []string `arg:"" help:"One or more sources (glob patterns within the object, or local paths with --external) followed by the destination logical path."`
	External  bool     `help:"Move from local disk into the object instead of moving within it."`
	Recursive bool     `short:"r" help:"Recurse into directory sources, or virtual directories within the object."`
}

func (c *MvCmd) Run(g *Globals) error {
	src, dst, err := splitSourcesDest(c.Paths)
	if err != nil {
		return err
	}
	ctx := context.Background()
	r, fsys, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	m, err := r.Stage(ctx, c.ID, "")
	if err != nil {
		return err
	}
	defer m.Abort()
	if c.External {
		if err := m.MoveFromExternal(ctx, fsys, src, dst, c.Recursive); err != nil {
			return err
		}
	} else if err := m.MoveWithinObject(ctx, src, dst, c.Recursive); err != nil {
		return err
	}
	return m.Commit(ctx, fmt.Sprintf("mv %v %s", src, dst), g.user())
}

// splitSourcesDest splits a positional path list into its sources and
// trailing destination. Kong binds positional slice arguments greedily, so
// cp/mv take one combined list rather than a separate Src/Dst pair that
// kong couldn't split itself.
func splitSourcesDest(paths []string) (src []string, dst string, err error) {
	if len(paths) < 2 {
		return nil, "", fmt.Errorf("%w: expected one or more sources and a destination", ocfl.ErrInvalidValue)
	}
	return paths[:len(paths)-1], paths[len(paths)-1], nil
}

// --- rm ---

type RmCmd struct {
	ID        string   `arg:"" help:"Object identifier."`
	Paths     []string `arg:"" help:"Glob pattern(s) to remove, evaluated against HEAD."`
	Recursive bool     `short:"r" help:"Match glob patterns recursively against virtual directories."`
}

func (c *RmCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	m, err := r.Stage(ctx, c.ID, "")
	if err != nil {
		return err
	}
	defer m.Abort()
	removed, err := m.Remove(ctx, c.Paths, c.Recursive)
	if err != nil {
		return err
	}
	return m.Commit(ctx, fmt.Sprintf("rm %v", removed), g.user())
}

// --- reset ---

type ResetCmd struct {
	ID        string   `arg:"" help:"Object identifier."`
	Paths     []string `arg:"" help:"Glob pattern(s) to restore to their state in the previous version."`
	Recursive bool     `short:"r" help:"Match glob patterns recursively against virtual directories."`
}

func (c *ResetCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	m, err := r.Stage(ctx, c.ID, "")
	if err != nil {
		return err
	}
	defer m.Abort()
	if err := m.Reset(ctx, c.Paths, c.Recursive); err != nil {
		return err
	}
	return m.Commit(ctx, fmt.Sprintf("reset %v", c.Paths), g.user())
}

// --- status ---

type StatusCmd struct {
	ID string `arg:"" help:"Object identifier."`
}

func (c *StatusCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	inv, err := r.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("%s @ %s", inv.ID, inv.Head)))
	for _, p := range inv.HeadVersion().State.AllPaths() {
		fmt.Println("  " + p)
	}
	return nil
}

// --- commit ---

type CommitCmd struct {
	ID      string `arg:"" help:"Object identifier."`
	Message string `help:"Version commit message."`
}

func (c *CommitCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	m, err := r.Stage(ctx, c.ID, "")
	if err != nil {
		return err
	}
	return m.Commit(ctx, c.Message, g.user())
}

// --- ls ---

type LsCmd struct {
	ID string `arg:"" optional:"" help:"Object identifier; omit to list every object."`
}

func (c *LsCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	if c.ID == "" {
		ids, err := r.List(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}
	inv, err := r.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	for _, p := range inv.HeadVersion().State.AllPaths() {
		fmt.Println(p)
	}
	return nil
}

// --- log ---

type LogCmd struct {
	ID string `arg:"" help:"Object identifier."`
}

func (c *LogCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	inv, err := r.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	for _, vn := range inv.SortedVersions() {
		v := inv.Versions[vn]
		who := "unknown"
		if v.User != nil {
			who = v.User.Name
		}
		fmt.Printf("%s  %s  %s  %s\n", vn, v.Created.Format("2006-01-02T15:04:05Z"), who, v.Message)
	}
	return nil
}

// --- show ---

type ShowCmd struct {
	ID      string `arg:"" help:"Object identifier."`
	Version string `arg:"" optional:"" help:"Version number, e.g. v3; defaults to HEAD."`
}

func (c *ShowCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	inv, err := r.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	vn := inv.Head
	if c.Version != "" {
		vn, err = ocfl.ParseVNum(c.Version)
		if err != nil {
			return err
		}
	}
	v, ok := inv.Versions[vn]
	if !ok {
		return fmt.Errorf("object %q has no version %s", c.ID, vn)
	}
	for _, p := range v.State.AllPaths() {
		fmt.Println(p)
	}
	return nil
}

// --- diff ---

type DiffCmd struct {
	ID   string `arg:"" help:"Object identifier."`
	From string `arg:"" help:"Earlier version, e.g. v1."`
	To   string `arg:"" help:"Later version, e.g. v2."`
}

func (c *DiffCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	a, err := ocfl.ParseVNum(c.From)
	if err != nil {
		return err
	}
	b, err := ocfl.ParseVNum(c.To)
	if err != nil {
		return err
	}
	d, err := r.Diff(ctx, c.ID, a, b)
	if err != nil {
		return err
	}
	for _, p := range d.Added {
		fmt.Println("+ " + p)
	}
	for _, p := range d.Removed {
		fmt.Println("- " + p)
	}
	for _, p := range d.Modified {
		fmt.Println("~ " + p)
	}
	return nil
}

// --- cat ---

type CatCmd struct {
	ID   string `arg:"" help:"Object identifier."`
	Path string `arg:"" help:"Logical path within the object's HEAD version."`
}

func (c *CatCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	rc, err := r.Cat(ctx, c.ID, c.Path)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(os.Stdout, rc)
	return err
}

// --- purge ---

type PurgeCmd struct {
	ID     string `arg:"" help:"Object identifier."`
	Force  bool   `help:"Required to confirm permanent deletion."`
}

func (c *PurgeCmd) Run(g *Globals) error {
	if !c.Force {
		return fmt.Errorf("refusing to purge %q without --force", c.ID)
	}
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	return r.Main.PurgeObject(ctx, c.ID)
}

// --- validate ---

type ValidateCmd struct {
	ID     string `arg:"" optional:"" help:"Object identifier; omit to validate the whole storage root."`
	Fixity bool   `help:"Re-hash every content file to verify fixity."`
}

func (c *ValidateCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, fsys, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	if c.ID != "" {
		rel, err := r.Main.ResolvePath(c.ID)
		if err != nil {
			return err
		}
		res := validation.ValidateObject(ctx, fsys, rel, c.Fixity)
		return reportValidation(c.ID, res)
	}
	results, err := validation.ValidateRepo(ctx, r.Main, c.Fixity)
	if err != nil {
		return err
	}
	var failed bool
	for root, res := range results {
		if !res.Valid() {
			failed = true
		}
		if err := reportValidation(root, res); err != nil {
			return err
		}
	}
	if failed {
		return fmt.Errorf("one or more objects failed validation")
	}
	return nil
}

func reportValidation(label string, res *validation.Result) error {
	if res.Valid() && len(res.Warnings) == 0 {
		fmt.Printf("%s: valid\n", label)
		return nil
	}
	fmt.Println(headerStyle.Render(label))
	for _, d := range res.Errors {
		fmt.Println(errorStyle.Render("  " + d.Error()))
	}
	for _, d := range res.Warnings {
		fmt.Println(dimStyle.Render("  " + d.Error()))
	}
	if !res.Valid() {
		return fmt.Errorf("%s failed validation", label)
	}
	return nil
}

// --- info ---

type InfoCmd struct{}

func (c *InfoCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("root:   %s\n", g.Root)
	fmt.Printf("spec:   %s\n", r.Main.Spec)
	fmt.Printf("layout: %s\n", r.Main.Layout.Name())
	return nil
}

// --- upgrade ---

type UpgradeCmd struct {
	ID string `arg:"" help:"Object identifier."`
	To string `default:"1.1" help:"Target OCFL spec version."`
}

func (c *UpgradeCmd) Run(g *Globals) error {
	ctx := context.Background()
	r, _, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	return r.Upgrade(ctx, c.ID, ocfl.Spec(c.To))
}
