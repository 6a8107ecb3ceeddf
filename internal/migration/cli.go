package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// Action 一个迁移动作。Args 为 1 的动作接收一个整数参数。
type Action struct {
	Name  string
	Args  int
	Short string

	run func(c *CLI, ctx context.Context, n int) error
}

var actions = []Action{
	{Name: "up", Short: "Apply all pending migrations", run: (*CLI).up},
	{Name: "down", Short: "Roll back the most recent migration", run: (*CLI).down},
	{Name: "down-all", Short: "Roll back every migration", run: (*CLI).downAll},
	{Name: "steps", Args: 1, Short: "Apply (N>0) or roll back (N<0) N migrations", run: (*CLI).steps},
	{Name: "goto", Args: 1, Short: "Migrate up or down to version N", run: (*CLI).gotoVersion},
	{Name: "force", Args: 1, Short: "Set the recorded version without running SQL", run: (*CLI).force},
	{Name: "version", Short: "Print the applied version", run: (*CLI).version},
	{Name: "status", Short: "List every migration and whether it is applied", run: (*CLI).status},
	{Name: "info", Short: "Summarize applied and pending migrations", run: (*CLI).info},
}

// Actions agentrelay migrate 的全部子命令
func Actions() []Action {
	return append([]Action(nil), actions...)
}

// CLI 把 Migrator 的结果写成人读的文本
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 默认写到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, out: os.Stdout}
}

// SetOutput 改写输出目标
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// Run 按名字执行动作，参数个数与格式先于数据库访问校验
func (c *CLI) Run(ctx context.Context, name string, args ...string) error {
	for _, a := range actions {
		if a.Name != name {
			continue
		}
		if len(args) != a.Args {
			return fmt.Errorf("migrate %s: expected %d argument(s), got %d", name, a.Args, len(args))
		}
		n := 0
		if a.Args == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("migrate %s: %q is not an integer", name, args[0])
			}
			n = v
		}
		return a.run(c, ctx, n)
	}
	return fmt.Errorf("unknown migrate action %q", name)
}

func (c *CLI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// report 执行 fn 后打印 done 与当前版本
func (c *CLI) report(ctx context.Context, done string, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	c.printf("%s, now at version %d%s\n", done, v, dirtySuffix(dirty))
	return nil
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}

func (c *CLI) up(ctx context.Context, _ int) error {
	return c.report(ctx, "Applied pending migrations", func() error { return c.migrator.Up(ctx) })
}

func (c *CLI) down(ctx context.Context, _ int) error {
	return c.report(ctx, "Rolled back one migration", func() error { return c.migrator.Down(ctx) })
}

func (c *CLI) downAll(ctx context.Context, _ int) error {
	if err := c.migrator.DownAll(ctx); err != nil {
		return err
	}
	c.printf("Rolled back every migration\n")
	return nil
}

func (c *CLI) steps(ctx context.Context, n int) error {
	verb := "Applied"
	count := n
	if n < 0 {
		verb, count = "Rolled back", -n
	}
	return c.report(ctx, fmt.Sprintf("%s %d migration(s)", verb, count),
		func() error { return c.migrator.Steps(ctx, n) })
}

func (c *CLI) gotoVersion(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("migrate goto: version %d is negative", n)
	}
	return c.report(ctx, fmt.Sprintf("Moved to version %d", n),
		func() error { return c.migrator.Goto(ctx, uint(n)) })
}

func (c *CLI) force(ctx context.Context, n int) error {
	if err := c.migrator.Force(ctx, n); err != nil {
		return err
	}
	c.printf("Recorded version set to %d\n", n)
	return nil
}

func (c *CLI) version(ctx context.Context, _ int) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if v == 0 {
		c.printf("Schema is empty, no migration applied\n")
		return nil
	}
	c.printf("Version %d%s\n", v, dirtySuffix(dirty))
	return nil
}

func (c *CLI) status(ctx context.Context, _ int) error {
	list, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		c.printf("No migration files found\n")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	applied := 0
	for _, s := range list {
		state := "pending"
		if s.Applied {
			applied++
			state = "applied"
		}
		if s.Dirty {
			state = "dirty"
		}
		_, _ = fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	c.printf("\n%d applied, %d pending\n", applied, len(list)-applied)
	return nil
}

func (c *CLI) info(ctx context.Context, _ int) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, row := range []struct {
		k string
		v any
	}{
		{"version", info.CurrentVersion},
		{"dirty", info.Dirty},
		{"total", info.TotalMigrations},
		{"applied", info.AppliedMigrations},
		{"pending", info.PendingMigrations},
	} {
		_, _ = fmt.Fprintf(tw, "%s:\t%v\n", row.k, row.v)
	}
	return tw.Flush()
}
