package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when the confirmation prompt differs from the first entry.
var ErrMismatch = errors.New("passphrases do not match")

// Source resolves the passphrase of one bridge key role (oracle, owner,
// player) once and caches it. Lookup order is the role variable
// (<ENV>_<ROLE>, e.g. BRIDGE_KEYSTORE_PASSPHRASE_ORACLE), then the shared
// variable, then a terminal prompt.
type Source struct {
	role    string
	envVars []string
	confirm bool

	lookup func(string) (string, bool)
	prompt func(string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source for role backed by envVar.
func NewSource(envVar, role string) *Source {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "bridge"
	}
	s := &Source{role: role, lookup: os.LookupEnv, prompt: readTerminal}
	if envVar = strings.TrimSpace(envVar); envVar != "" {
		s.envVars = []string{envVar + "_" + strings.ToUpper(role), envVar}
	}
	return s
}

// NewConfirmedSource is NewSource for a key being created: an interactive
// passphrase must be typed twice.
func NewConfirmedSource(envVar, role string) *Source {
	s := NewSource(envVar, role)
	s.confirm = true
	return s
}

// Get returns the passphrase, resolving it on first use. Blank passphrases are
// rejected so no bridge key is written or read unprotected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.value, s.err = s.resolve() })
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	for _, name := range s.envVars {
		value, ok := s.lookup(name)
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%s is set but empty", name)
		}
		return value, nil
	}

	value, err := s.prompt(fmt.Sprintf("Enter %s keystore passphrase: ", s.role))
	if err != nil {
		return "", s.unavailable(err)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s keystore passphrase cannot be empty", s.role)
	}
	if s.confirm {
		again, err := s.prompt(fmt.Sprintf("Repeat %s keystore passphrase: ", s.role))
		if err != nil {
			return "", s.unavailable(err)
		}
		if again != value {
			return "", fmt.Errorf("%s keystore: %w", s.role, ErrMismatch)
		}
	}
	return value, nil
}

var errNoTerminal = errors.New("no terminal available")

func (s *Source) unavailable(err error) error {
	if !errors.Is(err, errNoTerminal) {
		return fmt.Errorf("read %s passphrase: %w", s.role, err)
	}
	if len(s.envVars) > 0 {
		return fmt.Errorf("%s keystore passphrase required; set %s or run interactively", s.role, strings.Join(s.envVars, " or "))
	}
	return fmt.Errorf("%s keystore passphrase required and %w", s.role, err)
}

func readTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
