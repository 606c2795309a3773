package dialer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LeadFile is the on-disk lead export.
//
//	leads:
//	  - id: c-101
//	    name: Dana
//	    phone: "615-555-0101"
//	    state: TN
//	    stage: new
type LeadFile struct {
	Leads []Lead `yaml:"leads"`
}

func LoadLeads(path string) ([]Lead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lead file: %w", err)
	}
	return ParseLeads(data)
}

func ParseLeads(data []byte) ([]Lead, error) {
	var f LeadFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lead file: %w", err)
	}
	for i, l := range f.Leads {
		if l.ID == "" {
			return nil, fmt.Errorf("lead %d has no id", i+1)
		}
	}
	return f.Leads, nil
}
