package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type League struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

type Leagues struct {
	Leagues []League `yaml:"leagues"`
}

func (l Leagues) IDs() []int {
	out := make([]int, 0, len(l.Leagues))
	for _, lg := range l.Leagues {
		out = append(out, lg.ID)
	}
	return out
}

func LoadLeagues(path string) (Leagues, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Leagues{}, fmt.Errorf("read leagues: %w", err)
	}

	var leagues Leagues
	if err := yaml.Unmarshal(data, &leagues); err != nil {
		return Leagues{}, fmt.Errorf("parse leagues: %w", err)
	}

	return leagues, nil
}

// DefaultLeagueIDs is the built-in allow-list used when no YAML file or
// env override is present.
func DefaultLeagueIDs() []int {
	return []int{
		39,  // Premier League
		140, // La Liga
		78,  // Bundesliga
		135, // Serie A
		61,  // Ligue 1
		2,   // Champions League
		3,   // Europa League
		848, // Conference League
	}
}
