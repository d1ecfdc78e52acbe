package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed bootstraps accounts the HTTP surface cannot create: organizers, plus
// optional student profiles that members later claim at sign-up.
type Seed struct {
	Organizers []SeedAccount `yaml:"organizers"`
	Students   []SeedStudent `yaml:"students"`
}

type SeedAccount struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
}

type SeedStudent struct {
	StudentID string `yaml:"student_id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Program   string `yaml:"program"`
}

// LoadSeed reads a YAML seed file. An empty path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, org := range seed.Organizers {
		if org.Username == "" || org.Password == "" {
			return nil, fmt.Errorf("seed organizer %d: username and password are required", i)
		}
	}
	for i, st := range seed.Students {
		if st.StudentID == "" {
			return nil, fmt.Errorf("seed student %d: student_id is required", i)
		}
	}
	return &seed, nil
}
