package seed

import (
	"fmt"
	"io"
	"os"
	"strings"

	"helpmatch/internal/models"

	"gopkg.in/yaml.v3"
)

// Fixture is a hand-written data set loaded from YAML.
//
//	users:
//	  - username: alice
//	    email: alice@example.com
//	    role: requester
//	requests:
//	  - requester: alice
//	    title: Move a sofa
//	    category: moving
//	    in_hours: 48
//	    estimated_hours: 2
//	    claimed_by: bob
type Fixture struct {
	Users    []UserFixture    `yaml:"users"`
	Requests []RequestFixture `yaml:"requests"`
}

// UserFixture describes one user.
type UserFixture struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
}

// RequestFixture describes one request. ClaimedBy, when set, claims it
// through the lifecycle after creation.
type RequestFixture struct {
	Requester      string  `yaml:"requester"`
	Title          string  `yaml:"title"`
	Category       string  `yaml:"category"`
	Location       string  `yaml:"location"`
	Requirements   string  `yaml:"requirements"`
	InHours        int     `yaml:"in_hours"`
	EstimatedHours float64 `yaml:"estimated_hours"`
	ClaimedBy      string  `yaml:"claimed_by"`
}

// LoadFixture decodes a fixture and checks its references.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFixtureFile reads a fixture from path.
func LoadFixtureFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = file.Close() }()
	return LoadFixture(file)
}

func (f *Fixture) validate() error {
	known := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		name := strings.TrimSpace(u.Username)
		if name == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if known[name] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, name)
		}
		if u.Role != "" && !models.UserRole(u.Role).Valid() {
			return fmt.Errorf("users[%d]: unknown role %q", i, u.Role)
		}
		known[name] = true
	}
	for i, r := range f.Requests {
		if !known[r.Requester] {
			return fmt.Errorf("requests[%d]: unknown requester %q", i, r.Requester)
		}
		if r.ClaimedBy != "" && !known[r.ClaimedBy] {
			return fmt.Errorf("requests[%d]: unknown claimant %q", i, r.ClaimedBy)
		}
		if r.ClaimedBy == r.Requester {
			return fmt.Errorf("requests[%d]: %q cannot claim their own request", i, r.Requester)
		}
	}
	return nil
}
