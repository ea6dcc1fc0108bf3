// Package domain defines the holdings, snapshots and rebalance results shared by the services.
package domain

import "fmt"

// Fund is one tracked fund and the page its holdings are disclosed on.
type Fund struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
	URL      string `yaml:"url" json:"url"`
}

// String returns the string representation.
func (f Fund) String() string {
	if f.Name == "" {
		return f.ID
	}
	return fmt.Sprintf("%s (%s)", f.Name, f.ID)
}
