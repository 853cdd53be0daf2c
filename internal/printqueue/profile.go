package printqueue

import (
	"fmt"
	"os"

	"github.com/kiwari-pos/tableservice/internal/database"
	"gopkg.in/yaml.v3"
)

// Profile describes the ticket layout and where each print type is written.
//
//	width: 42
//	header: ["Trattoria da Kiwari"]
//	footer: ["Grazie!"]
//	outputs:
//	  comanda: /var/spool/tickets/kitchen
//	  preconto: /var/spool/tickets/cashier
//	  test: /var/spool/tickets/test
type Profile struct {
	Width   int               `yaml:"width"`
	Header  []string          `yaml:"header"`
	Footer  []string          `yaml:"footer"`
	Outputs map[string]string `yaml:"outputs"`
}

const defaultWidth = 42

// DefaultProfile writes every print type under dir.
func DefaultProfile(dir string) Profile {
	return Profile{
		Width: defaultWidth,
		Outputs: map[string]string{
			string(database.PrintTypeComanda):  dir,
			string(database.PrintTypePreconto): dir,
			string(database.PrintTypeTest):     dir,
		},
	}
}

func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse printer profile: %w", err)
	}
	if p.Width == 0 {
		p.Width = defaultWidth
	}
	if p.Width < 24 || p.Width > 80 {
		return Profile{}, fmt.Errorf("printer profile: width %d out of range 24-80", p.Width)
	}
	for _, t := range []database.PrintType{database.PrintTypeComanda, database.PrintTypePreconto, database.PrintTypeTest} {
		if p.Outputs[string(t)] == "" {
			return Profile{}, fmt.Errorf("printer profile: no output for %s", t)
		}
	}
	return p, nil
}

func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read printer profile: %w", err)
	}
	return ParseProfile(data)
}

func (p Profile) outputFor(t database.PrintType) (string, error) {
	dir, ok := p.Outputs[string(t)]
	if !ok || dir == "" {
		return "", fmt.Errorf("no output configured for %s", t)
	}
	return dir, nil
}
