package ranker

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile is the operator's skill profile used for keyword matching.
type Profile struct {
	Skills         []string `yaml:"skills"`
	TargetRoles    []string `yaml:"target_roles"`
	ExperienceYrs  int      `yaml:"experience_years"`
	PreferredAreas []string `yaml:"preferred_areas"`
}

// LoadProfile reads a YAML skill profile. A missing path returns an empty
// profile: ranking degrades to tier + freshness only.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, nil
		}
		return Profile{}, eris.Wrapf(err, "ranker: read profile %s", path)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, eris.Wrap(err, "ranker: parse profile")
	}
	return p, nil
}
