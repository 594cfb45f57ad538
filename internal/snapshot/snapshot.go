// Package snapshot models the read-only device state a template is rendered against.
package snapshot

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/catflap/catflap/internal/errors"
)

const (
	// MaxMatches is the number of match attempts kept in one group.
	MaxMatches = 4

	// MaxSteps is the number of matcher sub-stages kept per match.
	MaxSteps = 24

	// HashSize is the byte length of a content hash.
	HashSize = sha1.Size
)

// Direction is the direction the animal was heading.
type Direction string

const (
	DirectionUnknown Direction = "unknown"
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
)

func (d Direction) String() string {
	if d == "" {
		return string(DirectionUnknown)
	}
	return string(d)
}

// Hash is a SHA1 content hash.
type Hash [HashSize]byte

// HashOf hashes data.
func HashOf(data []byte) Hash {
	return sha1.Sum(data)
}

// ParseHash decodes a 40 character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if s == "" {
		return h, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decoding hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("hash %q has %d bytes, want %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// String renders the hash as lowercase hex of fixed length.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

func (h *Hash) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Path is a file location split into directory and file name.
type Path struct {
	Dir      string `yaml:"dir"`
	Filename string `yaml:"filename"`
}

// SplitPath splits p after its last separator.
func SplitPath(p string) Path {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return Path{Filename: p}
	}
	return Path{Dir: p[:i+1], Filename: p[i+1:]}
}

// Full returns the directory and file name concatenated.
func (p Path) Full() string {
	switch {
	case p.Dir == "":
		return p.Filename
	case p.Filename == "" || strings.HasSuffix(p.Dir, "/"):
		return p.Dir + p.Filename
	default:
		return p.Dir + "/" + p.Filename
	}
}

// UnmarshalYAML accepts either a scalar path or a dir/filename mapping.
func (p *Path) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*p = SplitPath(s)
		return nil
	}
	type plain Path
	return value.Decode((*plain)(p))
}

// Step is one sub-stage of a match, such as a prey detection pass.
type Step struct {
	Path        Path   `yaml:"path"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Active      bool   `yaml:"active"`
}

// Match is a single match attempt against the trained profile.
type Match struct {
	Result      float64   `yaml:"result"`
	Success     bool      `yaml:"success"`
	Direction   Direction `yaml:"direction"`
	Path        Path      `yaml:"path"`
	Description string    `yaml:"description"`
	Steps       []Step    `yaml:"steps"`
	ID          Hash      `yaml:"id"`
	Time        time.Time `yaml:"time"`
}

// Step returns the 1-based step n.
func (m *Match) Step(n int) (*Step, error) {
	if n < 1 || n > len(m.Steps) {
		return nil, errors.Newf(errors.ErrIndexOutOfRange, "step %d out of range, match has %d steps", n, len(m.Steps))
	}
	return &m.Steps[n-1], nil
}

// MatchGroup aggregates the matches made while the animal was in view.
type MatchGroup struct {
	Matches       []Match   `yaml:"matches"`
	Success       bool      `yaml:"success"`
	SuccessCount  int       `yaml:"success_count"`
	FinalDecision bool      `yaml:"final_decision"`
	Direction     Direction `yaml:"direction"`
	Description   string    `yaml:"description"`
	ID            Hash      `yaml:"id"`
	StartTime     time.Time `yaml:"start_time"`
	EndTime       time.Time `yaml:"end_time"`
	ObstructPath  Path      `yaml:"obstruct_path"`
	ObstructTime  time.Time `yaml:"obstruct_time"`
}

// RFIDRead is the latest tag seen by one reader.
type RFIDRead struct {
	Data     string `yaml:"data"`
	Complete bool   `yaml:"complete"`
}

// RFIDSettings configures the optional RFID cross-check.
type RFIDSettings struct {
	InnerPath     string   `yaml:"inner_path" koanf:"inner_path"`
	OuterPath     string   `yaml:"outer_path" koanf:"outer_path"`
	Allowed       []string `yaml:"allowed" koanf:"allowed"`
	LockTime      float64  `yaml:"lock_time" koanf:"lock_time"`
	LockOnInvalid bool     `yaml:"lock_on_invalid" koanf:"lock_on_invalid"`
}

// Settings are the static device settings exposed to templates.
type Settings struct {
	Matcher           string       `yaml:"matcher" koanf:"matcher"`
	MatchTime         int          `yaml:"matchtime" koanf:"matchtime"`
	Threshold         float64      `yaml:"threshold" koanf:"threshold"`
	MatchFlipped      bool         `yaml:"match_flipped" koanf:"match_flipped"`
	OkMatchesNeeded   int          `yaml:"ok_matches_needed" koanf:"ok_matches_needed"`
	NoFinalDecision   bool         `yaml:"no_final_decision" koanf:"no_final_decision"`
	Cascade           string       `yaml:"cascade" koanf:"cascade"`
	InDirection       string       `yaml:"in_direction" koanf:"in_direction"`
	MinWidth          int          `yaml:"min_width" koanf:"min_width"`
	MinHeight         int          `yaml:"min_height" koanf:"min_height"`
	EqHistogram       bool         `yaml:"eq_histogram" koanf:"eq_histogram"`
	PreyMethod        string       `yaml:"prey_method" koanf:"prey_method"`
	PreySteps         int          `yaml:"prey_steps" koanf:"prey_steps"`
	NoMatchIsFail     bool         `yaml:"no_match_is_fail" koanf:"no_match_is_fail"`
	LockoutMethod     int          `yaml:"lockout_method" koanf:"lockout_method"`
	LockoutTime       int          `yaml:"lockout_time" koanf:"lockout_time"`
	LockoutError      int          `yaml:"lockout_error" koanf:"lockout_error"`
	LockoutErrorDelay float64      `yaml:"lockout_error_delay" koanf:"lockout_error_delay"`
	Snouts            []string     `yaml:"snouts" koanf:"snouts"`
	RFID              RFIDSettings `yaml:"rfid" koanf:"rfid"`
}

// Paths are the output path patterns. Each value is itself a template.
type Paths struct {
	Output   string `yaml:"output" koanf:"output"`
	Match    string `yaml:"match" koanf:"match"`
	Steps    string `yaml:"steps" koanf:"steps"`
	Obstruct string `yaml:"obstruct" koanf:"obstruct"`
	Template string `yaml:"template" koanf:"template"`
}

// Build identifies the running binary.
type Build struct {
	Version    string `yaml:"version"`
	GitHash    string `yaml:"git_hash"`
	GitTainted bool   `yaml:"git_tainted"`
}

// GitHashShort returns the abbreviated commit hash.
func (b Build) GitHashShort() string {
	if len(b.GitHash) > 7 {
		return b.GitHash[:7]
	}
	return b.GitHash
}

// Snapshot is a point-in-time view of the device.
type Snapshot struct {
	Time      time.Time  `yaml:"time"`
	State     string     `yaml:"state"`
	PrevState string     `yaml:"prev_state"`
	Group     MatchGroup `yaml:"match_group"`
	RFIDIn    RFIDRead   `yaml:"rfid_in"`
	RFIDOut   RFIDRead   `yaml:"rfid_out"`
	Settings  Settings   `yaml:"settings"`
	Paths     Paths      `yaml:"paths"`
	Build     Build      `yaml:"build"`
}

// MatchCount returns the number of recorded matches.
func (s *Snapshot) MatchCount() int {
	return len(s.Group.Matches)
}

// Match returns the 1-based match n, bounded by the recorded count.
func (s *Snapshot) Match(n int) (*Match, error) {
	if n < 1 || n > len(s.Group.Matches) {
		return nil, errors.Newf(errors.ErrIndexOutOfRange, "match %d out of range, %d matches recorded", n, len(s.Group.Matches))
	}
	return &s.Group.Matches[n-1], nil
}

// Snout returns the 1-based snout image path n.
func (s *Snapshot) Snout(n int) (string, error) {
	if n < 1 || n > len(s.Settings.Snouts) {
		return "", errors.Newf(errors.ErrIndexOutOfRange, "snout %d out of range, %d configured", n, len(s.Settings.Snouts))
	}
	return s.Settings.Snouts[n-1], nil
}

// Validate checks the bounded containers.
func (s *Snapshot) Validate() error {
	if n := len(s.Group.Matches); n > MaxMatches {
		return errors.Newf(errors.ErrIndexOutOfRange, "%d matches recorded, at most %d allowed", n, MaxMatches)
	}
	for i, m := range s.Group.Matches {
		if n := len(m.Steps); n > MaxSteps {
			return errors.Newf(errors.ErrIndexOutOfRange, "match %d has %d steps, at most %d allowed", i+1, n, MaxSteps)
		}
	}
	return nil
}

// Parse decodes a YAML snapshot and validates it.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating snapshot: %w", err)
	}
	return &s, nil
}

// Load reads and parses a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	return Parse(data)
}
