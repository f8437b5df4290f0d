package config

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// SystemTemplate expands into one <system> per <instance> by substituting
// each label in the template text with the instance's value:
//
//	<system_template>
//	  <labels>[PREFIX, TEMP]</labels>
//	  <instance>[T1, 0.5]</instance>
//	  <template><system prefix="PREFIX">...TEMP...</system></template>
//	</system_template>
type SystemTemplate struct {
	Labels    string   `xml:"labels"`
	Instances []string `xml:"instance"`
	Template  struct {
		Body string `xml:",innerxml"`
	} `xml:"template"`
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `'"`)
	}
	return parts
}

// Expand renders every instance of the template.
func (t SystemTemplate) Expand() ([]System, error) {
	labels := parseList(t.Labels)
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: system_template without labels", ErrInvalid)
	}

	systems := make([]System, 0, len(t.Instances))
	for n, inst := range t.Instances {
		values := parseList(inst)
		if len(values) != len(labels) {
			return nil, fmt.Errorf("%w: system_template instance %d has %d values for %d labels",
				ErrInvalid, n, len(values), len(labels))
		}

		// Longest labels first so a label that prefixes another cannot clobber it.
		order := make([]int, len(labels))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return len(labels[order[a]]) > len(labels[order[b]]) })
		pairs := make([]string, 0, 2*len(labels))
		for _, i := range order {
			pairs = append(pairs, labels[i], values[i])
		}
		body := strings.NewReplacer(pairs...).Replace(t.Template.Body)

		var sys System
		if err := xml.Unmarshal([]byte(body), &sys); err != nil {
			return nil, fmt.Errorf("%w: system_template instance %d: %v", ErrInvalid, n, err)
		}
		systems = append(systems, sys)
	}
	return systems, nil
}

func (s *Simulation) expandTemplates() error {
	for _, t := range s.Templates {
		systems, err := t.Expand()
		if err != nil {
			return err
		}
		s.Systems = append(s.Systems, systems...)
	}
	s.Templates = nil
	return nil
}
