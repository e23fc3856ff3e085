// Package console interprets text commands against a session. It backs the
// interactive prompt of arcorctl.
package console

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/EgorLis/arcorclient/internal/config"
	"github.com/EgorLis/arcorclient/internal/locking"
	"github.com/EgorLis/arcorclient/internal/session"
)

// quoted runs are kept together: rename scene s1 "weld cell", name="a b"
var reArg = regexp.MustCompile(`[^\s"]*"[^"]*"[^\s"]*|\S+`)

// ErrUsage wraps every malformed command.
var ErrUsage = errors.New("usage")

var (
	good = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bold = color.New(color.Bold).SprintFunc()
)

type Console struct {
	s *session.Session
	// store, when set, receives settings changed from the console on "save".
	store *config.Store
}

func New(s *session.Session, store *config.Store) *Console {
	return &Console{s: s, store: store}
}

var help = []string{
	"help",
	"status",
	"nav",
	"list scenes|projects|packages|types",
	"mode [auto|none]",
	"pause <id> on|off",
	"lock <id> [tree]",
	"unlock <id>",
	`rename scene|project|package <id> "<name>"`,
	"call <Request> [key=value ...]",
	"save",
}

// Handle runs one command line and returns its output.
func (c *Console) Handle(line string) (string, error) {
	fields := splitArgs(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		return strings.Join(help, "\n"), nil

	case "status":
		st := c.s.Stats()
		info := c.s.SystemInfo()
		return fmt.Sprintf("%s %s | user=%s | mode=%s | nav=%s | server=%s api=%s | pending=%d | events=%d dropped=%d ignored=%d",
			bold("state"), stateColor(c.s.State()), c.s.User(), c.s.LockMode(), c.s.Navigation(),
			info.Version, info.APIVersion, c.s.Pending(), st.Events, st.Dropped, st.Ignored), nil

	case "nav":
		return c.s.Navigation().String(), nil

	case "list", "ls":
		if len(args) < 1 {
			return "", usage("list scenes|projects|packages|types")
		}
		return c.list(strings.ToLower(args[0]))

	case "mode":
		if len(args) == 0 {
			return c.s.LockMode().String(), nil
		}
		m, err := locking.ParseMode(args[0])
		if err != nil {
			return "", err
		}
		c.s.SetLockMode(m)
		if c.store != nil {
			c.store.Update(func(cfg *config.Config) { cfg.LockMode = m.String() })
		}
		return "mode " + good(m), nil

	case "pause":
		if len(args) < 2 {
			return "", usage("pause <id> on|off")
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return "", err
		}
		if err := c.s.SetPauseAutoLock(args[0], on); err != nil {
			return "", err
		}
		return fmt.Sprintf("pause %s=%t", args[0], on), nil

	case "lock":
		if len(args) < 1 {
			return "", usage("lock <id> [tree]")
		}
		tree := len(args) > 1 && strings.EqualFold(args[1], "tree")
		if err := c.s.LockEntity(args[0], tree); err != nil {
			return "", err
		}
		return good("locked ") + args[0], nil

	case "unlock":
		if len(args) < 1 {
			return "", usage("unlock <id>")
		}
		if err := c.s.UnlockEntity(args[0]); err != nil {
			return "", err
		}
		return good("unlocked ") + args[0], nil

	case "rename":
		if len(args) < 3 {
			return "", usage(`rename scene|project|package <id> "<name>"`)
		}
		kind, id, name := strings.ToLower(args[0]), args[1], args[2]
		var err error
		switch kind {
		case "scene":
			err = c.s.RenameScene(id, name)
		case "project":
			err = c.s.RenameProject(id, name)
		case "package":
			err = c.s.RenamePackage(id, name)
		default:
			return "", usage(`rename scene|project|package <id> "<name>"`)
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s -> %q", kind, id, name), nil

	case "call":
		if len(args) < 1 {
			return "", usage("call <Request> [key=value ...]")
		}
		var st *structpb.Struct
		if kv := parseKV(args[1:]); len(kv) > 0 {
			var err error
			if st, err = structpb.NewStruct(kv); err != nil {
				return "", err
			}
		}
		v, err := c.s.RawCall(args[0], st)
		if err != nil {
			return "", err
		}
		b, err := protojson.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil

	case "save":
		if c.store == nil || c.store.Path() == "" {
			return "", errors.New("no config file")
		}
		if err := c.store.Save(); err != nil {
			return "", err
		}
		return "saved " + c.store.Path(), nil
	}

	return "", fmt.Errorf("unknown command %q, try help", cmd)
}

func (c *Console) list(what string) (string, error) {
	var lines []string
	switch what {
	case "scenes":
		for _, v := range c.s.Scenes.List() {
			lines = append(lines, entry(v.ID(), v.Data().Name, v))
		}
	case "projects":
		for _, v := range c.s.Projects.List() {
			lines = append(lines, entry(v.ID(), v.Data().Name, v))
		}
	case "packages":
		for _, v := range c.s.Packages.List() {
			lines = append(lines, entry(v.ID(), v.Data().Package.Name, v))
		}
	case "types":
		for _, v := range c.s.ObjectTypes.List() {
			d := v.Data()
			lines = append(lines, fmt.Sprintf("%s (%d actions)", d.Meta.Type, len(d.Actions)))
		}
		sort.Strings(lines)
	default:
		return "", usage("list scenes|projects|packages|types")
	}
	if len(lines) == 0 {
		return "(none)", nil
	}
	return strings.Join(lines, "\n"), nil
}

func entry(id, name string, l session.Lockable) string {
	s := fmt.Sprintf("%s %q", id, name)
	if owner, ok := l.Owner(); ok {
		s += " " + warn("locked by "+owner)
	}
	if l.PauseAutoLock() {
		s += " [paused]"
	}
	return s
}

func stateColor(st session.State) string {
	if st == session.StateRegistered {
		return good(st)
	}
	return warn(st)
}

func usage(s string) error { return fmt.Errorf("%w: %s", ErrUsage, s) }

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, usage("on|off")
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllString(s, -1) {
		out = append(out, strings.ReplaceAll(m, `"`, ""))
	}
	return out
}

// parseKV turns key=value arguments into JSON-like values: booleans and numbers
// are recognised, everything else stays a string.
func parseKV(args []string) map[string]any {
	res := map[string]any{}
	for _, a := range args {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		res[kv[0]] = scalar(kv[1])
	}
	return res
}

func scalar(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}
