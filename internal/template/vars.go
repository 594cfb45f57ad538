package template

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/snapshot"
	"github.com/catflap/catflap/internal/types"
)

// defaultTimeFormat is used by time variables without a ":FMT" suffix.
const defaultTimeFormat = "@Y-@m-@d @H:@M:@S"

// argument is the optional ":ARG" suffix of a variable name.
type argument struct {
	text string
	set  bool
}

// varDef describes a built-in variable. get returns a string, int, bool,
// float64, snapshot.Hash, snapshot.Path, time.Time or value.
type varDef struct {
	kind string
	doc  string
	get  func(r *renderer, arg argument) (any, error)
}

type matchField struct {
	kind string
	doc  string
	get  func(m *snapshot.Match, idx int) any
}

type stepField struct {
	kind string
	doc  string
	get  func(s *snapshot.Step) any
}

var (
	matchPattern = regexp.MustCompile(`^match(\d+|cur)_(.+)$`)
	stepPattern  = regexp.MustCompile(`^step(\d+)_(.+)$`)
	snoutPattern = regexp.MustCompile(`^snout(\d+)$`)
)

// varKey is an indexed variable name broken into its parts, such as
// match2_step3_path -> {family: "step", index: 2, sub: 3, field: "path"}.
type varKey struct {
	family string // "match", "step" or "snout"
	index  int    // 0 with cur set means the latest match
	cur    bool
	sub    int
	field  string
}

// parseKey recognizes indexed variable families. Fields that do not
// exist are rejected so unknown names can fall through to user variables.
func parseKey(name string) (varKey, bool) {
	if m := snoutPattern.FindStringSubmatch(name); m != nil {
		return varKey{family: "snout", index: atoiOrMax(m[1])}, true
	}

	m := matchPattern.FindStringSubmatch(name)
	if m == nil {
		return varKey{}, false
	}
	key := varKey{family: "match", field: m[2]}
	if m[1] == "cur" {
		key.cur = true
	} else {
		key.index = atoiOrMax(m[1])
	}

	if s := stepPattern.FindStringSubmatch(key.field); s != nil {
		key.family = "step"
		key.sub = atoiOrMax(s[1])
		key.field = s[2]
		_, ok := stepFields[key.field]
		return key, ok
	}
	_, ok := matchFields[key.field]
	return key, ok
}

// atoiOrMax parses a run of digits, saturating on overflow so that huge
// indices still fail the bounds check.
func atoiOrMax(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// resolve evaluates a variable expression: name[:arg][|filter,...].
func (r *renderer) resolve(expr string) (value, error) {
	base, chain, hasFilters := strings.Cut(expr, "|")
	name, argText, hasArg := strings.Cut(base, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return value{}, errors.Newf(errors.ErrSyntax, "empty variable name in %q", expr)
	}

	v, err := r.lookup(name, argument{text: argText, set: hasArg})
	if err != nil {
		return value{}, err
	}
	if hasFilters {
		return r.applyFilters(v, chain)
	}
	return v, nil
}

// lookup resolves a bare name: loop variables first, then built-ins,
// then user variables.
func (r *renderer) lookup(name string, arg argument) (value, error) {
	if !arg.set {
		for i := len(r.frames) - 1; i >= 0; i-- {
			if r.frames[i].name == name {
				return textValue(r.frames[i].value), nil
			}
		}
	}

	if def, ok := globalVars[name]; ok {
		raw, err := def.get(r, arg)
		if err != nil {
			return value{}, err
		}
		return convert(name, def.kind, raw, arg)
	}

	if key, ok := parseKey(name); ok {
		return r.lookupIndexed(name, key, arg)
	}

	if v, ok := r.call.eng.UserVariable(name); ok {
		if arg.set {
			return value{}, errors.Newf(errors.ErrInvalidArgument, "user variable %s takes no argument", name)
		}
		return textValue(v), nil
	}

	return value{}, errors.Newf(errors.ErrUnknownVariable, "unknown variable %q", name).WithDetail("variable", name)
}

func (r *renderer) lookupIndexed(name string, key varKey, arg argument) (value, error) {
	snap := r.call.snap

	if key.family == "snout" {
		p, err := snap.Snout(key.index)
		if err != nil {
			return value{}, err
		}
		return convert(name, types.Path, snapshot.SplitPath(p), arg)
	}

	idx := key.index
	if key.cur {
		idx = snap.MatchCount()
	}
	m, err := snap.Match(idx)
	if err != nil {
		return value{}, err
	}

	if key.family == "step" {
		step, err := m.Step(key.sub)
		if err != nil {
			return value{}, err
		}
		f := stepFields[key.field]
		return convert(name, f.kind, f.get(step), arg)
	}

	f := matchFields[key.field]
	return convert(name, f.kind, f.get(m, idx), arg)
}

// convert renders a raw variable value, applying the ":ARG" suffix.
func convert(name, kind string, raw any, arg argument) (value, error) {
	if arg.set && types.ArgHint(kind) == "" {
		return value{}, errors.Newf(errors.ErrInvalidArgument, "%s takes no argument, got %q", name, arg.text)
	}

	switch v := raw.(type) {
	case value:
		return v, nil
	case string:
		return textValue(v), nil
	case int:
		return textValue(strconv.Itoa(v)), nil
	case bool:
		if v {
			return textValue("1"), nil
		}
		return textValue("0"), nil
	case float64:
		return textValue(fmt.Sprintf("%f", v)), nil
	case snapshot.Direction:
		return textValue(v.String()), nil
	case snapshot.Path:
		return pathValue(v), nil
	case snapshot.Hash:
		return hashValue(name, v, arg)
	case time.Time:
		return timeValue(v, arg), nil
	default:
		return value{}, fmt.Errorf("variable %s has unsupported type %T", name, raw)
	}
}

// hashValue renders h as hex, truncated to K characters by a ":K" suffix.
func hashValue(name string, h snapshot.Hash, arg argument) (value, error) {
	s := h.String()
	if !arg.set {
		return textValue(s), nil
	}

	k, err := strconv.Atoi(strings.TrimSpace(arg.text))
	if err != nil {
		return value{}, errors.Newf(errors.ErrInvalidArgument, "%s: truncation length %q is not an integer", name, arg.text)
	}
	if k < 0 {
		return value{}, errors.Newf(errors.ErrInvalidArgument, "%s: negative truncation length %d", name, k)
	}
	if k > len(s) {
		k = len(s)
	}
	return textValue(s[:k]), nil
}

// timeValue formats t with a strftime layout written with @ instead of %.
func timeValue(t time.Time, arg argument) value {
	layout := defaultTimeFormat
	if arg.set {
		layout = arg.text
	}
	return textValue(strftime.Format(strftimeLayout(layout), t))
}

// strftimeLayout converts "@H:@M" to "%H:%M". "@@" is a literal @.
func strftimeLayout(layout string) string {
	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		switch {
		case c == '@' && i+1 < len(layout) && layout[i+1] == '@':
			b.WriteByte('@')
			i++
		case c == '@':
			b.WriteByte('%')
		case c == '%':
			b.WriteString("%%")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// VariableInfo describes a built-in variable for listings.
type VariableInfo struct {
	Name        string
	Kind        string
	Description string
}

// Variables returns the catalogue of built-in variables, sorted by name.
// Indexed families are listed with N and M placeholders.
func Variables() []VariableInfo {
	vars := make([]VariableInfo, 0, len(globalVars)+len(matchFields)+len(stepFields)+1)
	for name, def := range globalVars {
		vars = append(vars, VariableInfo{Name: name, Kind: def.kind, Description: def.doc})
	}
	for field, f := range matchFields {
		vars = append(vars, VariableInfo{Name: "matchN_" + field, Kind: f.kind, Description: f.doc})
	}
	for field, f := range stepFields {
		vars = append(vars, VariableInfo{Name: "matchN_stepM_" + field, Kind: f.kind, Description: f.doc})
	}
	vars = append(vars, VariableInfo{Name: "snoutN", Kind: types.Path, Description: "Path of snout image N"})

	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// fromSnapshot adapts a plain snapshot accessor to a varDef.
func fromSnapshot(kind, doc string, get func(s *snapshot.Snapshot) any) varDef {
	return varDef{kind: kind, doc: doc, get: func(r *renderer, _ argument) (any, error) {
		return get(r.call.snap), nil
	}}
}

func outputVar(name, doc string) varDef {
	return varDef{kind: types.Path, doc: doc, get: func(r *renderer, _ argument) (any, error) {
		s, err := r.call.outputSetting(name)
		if err != nil {
			return nil, err
		}
		return dirValue(s), nil
	}}
}

func fixed2(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

var globalVars map[string]varDef

var matchFields = map[string]matchField{
	"path":        {types.Path, "Path of the match image", func(m *snapshot.Match, _ int) any { return m.Path }},
	"filename":    {types.String, "File name of the match image", func(m *snapshot.Match, _ int) any { return m.Path.Filename }},
	"success":     {types.Bool, "Whether the match succeeded", func(m *snapshot.Match, _ int) any { return m.Success }},
	"result":      {types.Float, "Match score", func(m *snapshot.Match, _ int) any { return m.Result }},
	"direction":   {types.String, "Detected direction (in, out, unknown)", func(m *snapshot.Match, _ int) any { return m.Direction }},
	"description": {types.String, "Matcher description of the result", func(m *snapshot.Match, _ int) any { return m.Description }},
	"desc":        {types.String, "Alias of description", func(m *snapshot.Match, _ int) any { return m.Description }},
	"id":          {types.Hash, "Content hash of the match", func(m *snapshot.Match, _ int) any { return m.ID }},
	"idx":         {types.Int, "Index of the match", func(_ *snapshot.Match, idx int) any { return idx }},
	"time":        {types.Time, "Time of the match", func(m *snapshot.Match, _ int) any { return m.Time }},
	"step_count":  {types.Int, "Number of recorded steps", func(m *snapshot.Match, _ int) any { return len(m.Steps) }},
}

var stepFields = map[string]stepField{
	"path":        {types.Path, "Path of the step image", func(s *snapshot.Step) any { return s.Path }},
	"filename":    {types.String, "File name of the step image", func(s *snapshot.Step) any { return s.Path.Filename }},
	"name":        {types.String, "Short name of the step", func(s *snapshot.Step) any { return s.Name }},
	"description": {types.String, "Description of the step", func(s *snapshot.Step) any { return s.Description }},
	"desc":        {types.String, "Alias of description", func(s *snapshot.Step) any { return s.Description }},
	"active":      {types.Bool, "Whether the step ran", func(s *snapshot.Step) any { return s.Active }},
}

func init() {
	globalVars = map[string]varDef{
		"event": {types.String, "Event being generated", func(r *renderer, _ argument) (any, error) {
			return r.call.event, nil
		}},
		"cwd": {types.Path, "Working directory of the process", func(r *renderer, _ argument) (any, error) {
			return dirValue(r.call.workingDir()), nil
		}},
		"template_path": {types.Template, "Output path of the default or named template", templatePathVar},
		"root_path": {types.Path, "Base directory for relative paths of this template", func(r *renderer, _ argument) (any, error) {
			root, err := r.call.rootPath(r.tmpl)
			if err != nil {
				return nil, err
			}
			return dirValue(root), nil
		}},

		"output_path":          outputVar("output_path", "Base output directory"),
		"match_output_path":    outputVar("match_output_path", "Output directory for match images"),
		"steps_output_path":    outputVar("steps_output_path", "Output directory for step images"),
		"obstruct_output_path": outputVar("obstruct_output_path", "Output directory for obstruct images"),
		"template_output_path": outputVar("template_output_path", "Output directory for templates"),

		"time":       fromSnapshot(types.Time, "Capture time of the snapshot", func(s *snapshot.Snapshot) any { return s.Time }),
		"state":      fromSnapshot(types.String, "Current door state", func(s *snapshot.Snapshot) any { return s.State }),
		"prev_state": fromSnapshot(types.String, "Previous door state", func(s *snapshot.Snapshot) any { return s.PrevState }),

		"version":        fromSnapshot(types.String, "Version of catflap", func(s *snapshot.Snapshot) any { return s.Build.Version }),
		"git_hash":       fromSnapshot(types.String, "Git commit of the build", func(s *snapshot.Snapshot) any { return s.Build.GitHash }),
		"git_hash_short": fromSnapshot(types.String, "Abbreviated git commit", func(s *snapshot.Snapshot) any { return s.Build.GitHashShort() }),
		"git_tainted":    fromSnapshot(types.Bool, "Whether the build tree was modified", func(s *snapshot.Snapshot) any { return s.Build.GitTainted }),

		"match_success":              fromSnapshot(types.Bool, "Whether the match group succeeded", func(s *snapshot.Snapshot) any { return s.Group.Success }),
		"match_count":                fromSnapshot(types.Int, "Number of matches in the group", func(s *snapshot.Snapshot) any { return s.MatchCount() }),
		"match_group_success":        fromSnapshot(types.Bool, "Whether the match group succeeded", func(s *snapshot.Snapshot) any { return s.Group.Success }),
		"match_group_count":          fromSnapshot(types.Int, "Number of matches in the group", func(s *snapshot.Snapshot) any { return s.MatchCount() }),
		"match_group_max_count":      fromSnapshot(types.Int, "Maximum number of matches in a group", func(*snapshot.Snapshot) any { return snapshot.MaxMatches }),
		"match_group_success_count":  fromSnapshot(types.Int, "Number of successful matches", func(s *snapshot.Snapshot) any { return s.Group.SuccessCount }),
		"match_group_final_decision": fromSnapshot(types.Bool, "Whether the final decision overrode the matches", func(s *snapshot.Snapshot) any { return s.Group.FinalDecision }),
		"match_group_direction":      fromSnapshot(types.String, "Direction of the group", func(s *snapshot.Snapshot) any { return s.Group.Direction }),
		"match_group_description":    fromSnapshot(types.String, "Description of the group result", func(s *snapshot.Snapshot) any { return s.Group.Description }),
		"match_group_desc":           fromSnapshot(types.String, "Alias of match_group_description", func(s *snapshot.Snapshot) any { return s.Group.Description }),
		"match_group_id":             fromSnapshot(types.Hash, "Content hash of the group", func(s *snapshot.Snapshot) any { return s.Group.ID }),
		"match_group_start_time":     fromSnapshot(types.Time, "Time the group started", func(s *snapshot.Snapshot) any { return s.Group.StartTime }),
		"match_group_end_time":       fromSnapshot(types.Time, "Time the group ended", func(s *snapshot.Snapshot) any { return s.Group.EndTime }),

		"obstruct_path":     fromSnapshot(types.Path, "Path of the obstruct image", func(s *snapshot.Snapshot) any { return s.Group.ObstructPath }),
		"obstruct_filename": fromSnapshot(types.String, "File name of the obstruct image", func(s *snapshot.Snapshot) any { return s.Group.ObstructPath.Filename }),
		"obstruct_time":     fromSnapshot(types.Time, "Time the frame was obstructed", func(s *snapshot.Snapshot) any { return s.Group.ObstructTime }),

		"matcher":             fromSnapshot(types.String, "Matcher kind", func(s *snapshot.Snapshot) any { return s.Settings.Matcher }),
		"matchtime":           fromSnapshot(types.Int, "Seconds between match groups", func(s *snapshot.Snapshot) any { return s.Settings.MatchTime }),
		"threshold":           fromSnapshot(types.Float, "Match threshold", func(s *snapshot.Snapshot) any { return s.Settings.Threshold }),
		"match_flipped":       fromSnapshot(types.Bool, "Whether flipped snouts are matched", func(s *snapshot.Snapshot) any { return s.Settings.MatchFlipped }),
		"ok_matches_needed":   fromSnapshot(types.Int, "Successful matches needed to unlock", func(s *snapshot.Snapshot) any { return s.Settings.OkMatchesNeeded }),
		"no_final_decision":   fromSnapshot(types.Bool, "Whether the final decision step is skipped", func(s *snapshot.Snapshot) any { return s.Settings.NoFinalDecision }),
		"cascade":             fromSnapshot(types.String, "Haar cascade file", func(s *snapshot.Snapshot) any { return s.Settings.Cascade }),
		"in_direction":        fromSnapshot(types.String, "Which side counts as in", func(s *snapshot.Snapshot) any { return s.Settings.InDirection }),
		"min_size":            fromSnapshot(types.String, "Minimum detection size as WxH", func(s *snapshot.Snapshot) any { return fmt.Sprintf("%dx%d", s.Settings.MinWidth, s.Settings.MinHeight) }),
		"min_size_width":      fromSnapshot(types.Int, "Minimum detection width", func(s *snapshot.Snapshot) any { return s.Settings.MinWidth }),
		"min_size_height":     fromSnapshot(types.Int, "Minimum detection height", func(s *snapshot.Snapshot) any { return s.Settings.MinHeight }),
		"eq_histogram":        fromSnapshot(types.Bool, "Whether histogram equalization is on", func(s *snapshot.Snapshot) any { return s.Settings.EqHistogram }),
		"prey_method":         fromSnapshot(types.String, "Prey detection method", func(s *snapshot.Snapshot) any { return s.Settings.PreyMethod }),
		"prey_steps":          fromSnapshot(types.Int, "Prey detection steps", func(s *snapshot.Snapshot) any { return s.Settings.PreySteps }),
		"no_match_is_fail":    fromSnapshot(types.Bool, "Whether no detection counts as failure", func(s *snapshot.Snapshot) any { return s.Settings.NoMatchIsFail }),
		"lockout_method":      fromSnapshot(types.Int, "Lockout method", func(s *snapshot.Snapshot) any { return s.Settings.LockoutMethod }),
		"lockout_time":        fromSnapshot(types.Int, "Lockout time in seconds", func(s *snapshot.Snapshot) any { return s.Settings.LockoutTime }),
		"lockout_error":       fromSnapshot(types.Int, "Consecutive lockouts before error", func(s *snapshot.Snapshot) any { return s.Settings.LockoutError }),
		"lockout_error_delay": fromSnapshot(types.Float, "Delay after a lockout error", func(s *snapshot.Snapshot) any { return fixed2(s.Settings.LockoutErrorDelay) }),
		"snout_count":         fromSnapshot(types.Int, "Number of snout images", func(s *snapshot.Snapshot) any { return len(s.Settings.Snouts) }),

		"rfid_in_path":      fromSnapshot(types.String, "Inner RFID reader device", func(s *snapshot.Snapshot) any { return s.Settings.RFID.InnerPath }),
		"rfid_out_path":     fromSnapshot(types.String, "Outer RFID reader device", func(s *snapshot.Snapshot) any { return s.Settings.RFID.OuterPath }),
		"rfid_allowed":      fromSnapshot(types.String, "Allowed RFID tags", func(s *snapshot.Snapshot) any { return strings.Join(s.Settings.RFID.Allowed, ",") }),
		"rfid_time":         fromSnapshot(types.Float, "Seconds to wait for RFID after a match", func(s *snapshot.Snapshot) any { return fixed2(s.Settings.RFID.LockTime) }),
		"rfid_lock":         fromSnapshot(types.Bool, "Whether an invalid tag locks", func(s *snapshot.Snapshot) any { return s.Settings.RFID.LockOnInvalid }),
		"rfid_in_data":      fromSnapshot(types.String, "Last tag seen by the inner reader", func(s *snapshot.Snapshot) any { return s.RFIDIn.Data }),
		"rfid_in_complete":  fromSnapshot(types.Bool, "Whether the inner read is complete", func(s *snapshot.Snapshot) any { return s.RFIDIn.Complete }),
		"rfid_out_data":     fromSnapshot(types.String, "Last tag seen by the outer reader", func(s *snapshot.Snapshot) any { return s.RFIDOut.Data }),
		"rfid_out_complete": fromSnapshot(types.Bool, "Whether the outer read is complete", func(s *snapshot.Snapshot) any { return s.RFIDOut.Complete }),
	}
}

func templatePathVar(r *renderer, arg argument) (any, error) {
	reg := r.call.eng.registry

	var t *Template
	var ok bool
	if arg.set {
		name := strings.TrimSpace(arg.text)
		if t, ok = reg.Lookup(name); !ok {
			return nil, errors.Newf(errors.ErrUnknownTemplate, "no template named %q", name).WithDetail("template", name)
		}
	} else if t, ok = reg.Default(); !ok {
		return nil, errors.New(errors.ErrUnknownTemplate, "no unnamed template loaded")
	}

	p, err := r.call.templatePath(t)
	if err != nil {
		return nil, err
	}
	return snapshot.SplitPath(p), nil
}
